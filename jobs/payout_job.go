package jobs

import (
	"context"
	"log"
	"time"

	"github.com/creatorspace/api/services"
)

// AutomaticPayoutJob sweeps creators on automatic payout schedules and pays
// out the ones whose balance has crossed their threshold.
type AutomaticPayoutJob struct {
	payouts *services.PayoutService
}

func NewAutomaticPayoutJob(payouts *services.PayoutService) *AutomaticPayoutJob {
	return &AutomaticPayoutJob{payouts: payouts}
}

// Run evaluates every automatic profile once. Below-threshold balances and
// other ineligibility outcomes are skips; only infrastructure or provider
// failures are logged loudly.
func (j *AutomaticPayoutJob) Run() {
	log.Println("Running job: AutomaticPayouts...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	profiles, err := j.payouts.AutomaticProfiles(ctx)
	if err != nil {
		log.Printf("🔥 Failed to list automatic payout schedules: %v", err)
		return
	}

	var paid, skipped, failed int
	for _, profileID := range profiles {
		record, err := j.payouts.EvaluateAndExecute(ctx, profileID, false)
		switch {
		case err == nil:
			paid++
			log.Printf("Submitted automatic payout %s for profile %s", record.ID, profileID)
		case services.IsIneligibility(err):
			skipped++
		default:
			failed++
			log.Printf("🔥 Automatic payout failed for profile %s: %v", profileID, err)
		}
	}

	log.Printf("Automatic payout sweep done: %d submitted, %d skipped, %d failed.", paid, skipped, failed)
}
