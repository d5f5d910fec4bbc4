package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatorspace/api/models"
	"github.com/creatorspace/api/services"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var inFlightStatuses = []string{
	models.PayoutStatusInitialized,
	models.PayoutStatusSubmitted,
	models.PayoutStatusPending,
}

// PayoutStore is the Postgres-backed implementation of the payout and webhook
// store interfaces.
type PayoutStore struct {
	db *gorm.DB
}

func NewPayoutStore(db *gorm.DB) *PayoutStore {
	return &PayoutStore{db: db}
}

func (s *PayoutStore) HasInFlightPayout(ctx context.Context, profileID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PayoutRecord{}).
		Where("profile_id = ? AND status IN ?", profileID, inFlightStatuses).
		Count(&count).Error
	return count > 0, err
}

func (s *PayoutStore) GetPayoutSchedule(ctx context.Context, profileID uuid.UUID) (*models.PayoutSchedule, error) {
	var schedule models.PayoutSchedule
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *PayoutStore) GetPayoutMethod(ctx context.Context, profileID uuid.UUID) (*models.PayoutPaymentMethod, error) {
	var method models.PayoutPaymentMethod
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (s *PayoutStore) GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	var balance models.Balance
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *PayoutStore) SumPayoutsSince(ctx context.Context, profileID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.PayoutRecord{}).
		Where("profile_id = ? AND created_at >= ? AND status <> ?", profileID, since, models.PayoutStatusFailed).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// CreatePayoutRecord inserts the initial record. The partial unique index on
// in-flight payouts turns a concurrent second insert into a duplicate-key
// error, reported as ErrPendingPayout.
func (s *PayoutStore) CreatePayoutRecord(ctx context.Context, record *models.PayoutRecord) error {
	err := s.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return services.ErrPendingPayout
	}
	return err
}

// MarkSubmitted advances the record to submitted and debits the balance by
// the gross reserved amount in one transaction.
func (s *PayoutStore) MarkSubmitted(ctx context.Context, recordID, profileID uuid.UUID, debit int64, externalRef string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PayoutRecord{}).
			Where("id = ? AND status = ?", recordID, models.PayoutStatusInitialized).
			Updates(map[string]interface{}{
				"status":                   models.PayoutStatusSubmitted,
				"external_transaction_ref": externalRef,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("payout record %s is no longer in initialized state", recordID)
		}

		result = tx.Model(&models.Balance{}).
			Where("profile_id = ? AND amount >= ?", profileID, debit).
			Update("amount", gorm.Expr("amount - ?", debit))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("balance for profile %s cannot cover debit of %d", profileID, debit)
		}
		return nil
	})
}

func (s *PayoutStore) MarkFailed(ctx context.Context, recordID uuid.UUID, detail string) error {
	return s.db.WithContext(ctx).Model(&models.PayoutRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"status": models.PayoutStatusFailed,
			"error":  detail,
		}).Error
}

func (s *PayoutStore) ListPayoutRecords(ctx context.Context, profileID uuid.UUID) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

func (s *PayoutStore) ListPayoutRecordsByStatus(ctx context.Context, status string) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&records).Error
	return records, err
}

func (s *PayoutStore) ListAutomaticProfiles(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.PayoutSchedule{}).
		Where("mode = ?", models.PayoutModeAutomatic).
		Pluck("profile_id", &ids).Error
	return ids, err
}

func (s *PayoutStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProcessedWebhookEvent{}).
		Where("id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

// ApplyEvent runs one reconciliation transaction: the record row is locked so
// concurrent deliveries for the same batch serialize, the dedup ledger is
// re-checked under that lock, and the event id is sealed in the same commit
// as the status change.
func (s *PayoutStore) ApplyEvent(ctx context.Context, eventID string, batchID uuid.UUID, apply func(current string) (string, bool)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PayoutRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&record, "id = ?", batchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrUnknownBatch
		}
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.ProcessedWebhookEvent{}).Where("id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if next, ok := apply(record.Status); ok {
			record.Status = next
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
		}

		return tx.Create(&models.ProcessedWebhookEvent{ID: eventID}).Error
	})
}
