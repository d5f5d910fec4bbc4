package services

import (
	"errors"
	"log"

	"github.com/creatorspace/api/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralService credits a referrer's balance once the user they referred
// completes a first purchase.
type ReferralService struct {
	db   *gorm.DB
	fees *FeeCalculator
}

func NewReferralService(db *gorm.DB, fees *FeeCalculator) *ReferralService {
	return &ReferralService{db: db, fees: fees}
}

// CompleteReferralIfApplicable settles a pending referral for userID after a
// purchase of purchaseAmount. The reward is the referral fee cut of that
// purchase, credited to the referrer's balance and marked on the referral row
// in one transaction. No pending referral is not an error.
func (s *ReferralService) CompleteReferralIfApplicable(userID uuid.UUID, purchaseAmount int64) {
	reward := s.fees.ReferralFee(purchaseAmount)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var referral models.Referral
		if err := tx.Where("referred_user_id = ? AND status = ?", userID, "pending").First(&referral).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Model(&models.Balance{}).
			Where("profile_id = ?", referral.ReferrerID).
			Update("amount", gorm.Expr("amount + ?", reward)).Error; err != nil {
			return err
		}

		referral.Status = "completed"
		referral.RewardAmount = reward
		return tx.Save(&referral).Error
	})

	if err != nil {
		log.Printf("🔥 Error processing referral for user %s: %v", userID, err)
	}
}
