package services

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	config "github.com/creatorspace/api/configs"
	"github.com/creatorspace/api/models"
	"github.com/google/uuid"
)

// payoutPeriod is the trailing window the per-period payout ceiling applies
// over, roughly one calendar month.
const payoutPeriod = 30 * 24 * time.Hour

// defaultProviderCallTimeout bounds the provider call when the caller does
// not supply a timeout of its own.
const defaultProviderCallTimeout = 15 * time.Second

// PayoutStore is the persistence surface the payout service needs. Lookups
// return (nil, nil) when no row exists. CreatePayoutRecord must reject a
// second in-flight record for the same profile with ErrPendingPayout, and
// MarkSubmitted must commit the status change and the balance debit together
// or not at all.
type PayoutStore interface {
	HasInFlightPayout(ctx context.Context, profileID uuid.UUID) (bool, error)
	GetPayoutSchedule(ctx context.Context, profileID uuid.UUID) (*models.PayoutSchedule, error)
	GetPayoutMethod(ctx context.Context, profileID uuid.UUID) (*models.PayoutPaymentMethod, error)
	GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error)
	SumPayoutsSince(ctx context.Context, profileID uuid.UUID, since time.Time) (int64, error)
	CreatePayoutRecord(ctx context.Context, record *models.PayoutRecord) error
	MarkSubmitted(ctx context.Context, recordID, profileID uuid.UUID, debit int64, externalRef string) error
	MarkFailed(ctx context.Context, recordID uuid.UUID, detail string) error
	ListPayoutRecords(ctx context.Context, profileID uuid.UUID) ([]models.PayoutRecord, error)
	ListPayoutRecordsByStatus(ctx context.Context, status string) ([]models.PayoutRecord, error)
	ListAutomaticProfiles(ctx context.Context) ([]uuid.UUID, error)
}

// PayoutBatch is what gets sent to the external provider. BatchID is the
// payout record id and doubles as the provider-side idempotency key.
type PayoutBatch struct {
	BatchID  string
	Receiver string
	Amount   int64
	Currency string
	Note     string
}

type PayoutBatchResult struct {
	HTTPStatus      int
	ProviderBatchID string
}

// PayoutProvider submits payout batches to the external payment provider.
type PayoutProvider interface {
	SendBatchPayout(ctx context.Context, batch PayoutBatch) (*PayoutBatchResult, error)
}

// PayoutService decides whether a creator can be paid out now and, if so,
// drives the record through the initialized -> submitted transition against
// the external provider. Final confirmation arrives later via the webhook
// reconciler.
type PayoutService struct {
	store       PayoutStore
	provider    PayoutProvider
	fees        *FeeCalculator
	cfg         *config.FeeSchedule
	callTimeout time.Duration
	now         func() time.Time
}

// NewPayoutService builds a payout service. providerTimeout caps each call
// to the external provider; pass 0 for the default.
func NewPayoutService(store PayoutStore, provider PayoutProvider, fees *FeeCalculator, cfg *config.FeeSchedule, providerTimeout time.Duration) *PayoutService {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderCallTimeout
	}
	return &PayoutService{
		store:       store,
		provider:    provider,
		fees:        fees,
		cfg:         cfg,
		callTimeout: providerTimeout,
		now:         time.Now,
	}
}

// Evaluate decides go/no-go for a payout and returns the candidate amount.
// Ineligibility comes back as a typed error the caller branches on; for
// automatic schedules below their threshold that is ErrThresholdNotMet, which
// is a wait, not a failure. The in-flight check here is advisory — the unique
// index behind CreatePayoutRecord is what actually closes the race.
func (s *PayoutService) Evaluate(ctx context.Context, profileID uuid.UUID, bypassThreshold bool) (int64, error) {
	inFlight, err := s.store.HasInFlightPayout(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if inFlight {
		return 0, ErrPendingPayout
	}

	schedule, err := s.store.GetPayoutSchedule(ctx, profileID)
	if err != nil {
		return 0, err
	}
	method, err := s.store.GetPayoutMethod(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if schedule == nil || method == nil {
		return 0, ErrNoPayoutMethod
	}

	balance, err := s.store.GetBalance(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, ErrInsufficientBalance
	}

	periodTotal, err := s.store.SumPayoutsSince(ctx, profileID, s.now().Add(-payoutPeriod))
	if err != nil {
		return 0, err
	}

	maxPayout := schedule.MaxPayoutAmount
	if maxPayout <= 0 {
		maxPayout = s.cfg.MaxPayoutPerPeriod
	}
	remaining := maxPayout - periodTotal

	minimum := s.cfg.MinimumPayoutAmount
	if balance.Amount < minimum {
		return 0, ErrInsufficientBalance
	}
	if remaining <= 0 {
		return 0, &MaxPayoutExceededError{Maximum: maxPayout}
	}

	candidate := balance.Amount
	if remaining < candidate {
		candidate = remaining
	}
	if candidate < minimum {
		return 0, &MinPayoutNotMetError{Minimum: minimum}
	}

	if !bypassThreshold {
		if schedule.Mode != models.PayoutModeAutomatic || balance.Amount < schedule.Threshold {
			return 0, ErrThresholdNotMet
		}
	}

	return candidate, nil
}

// Execute reserves a payout record for amount, submits the batch to the
// provider, and either advances the record to submitted while debiting the
// balance, or marks it failed with the provider detail. It never retries; the
// record id makes a caller-driven retry land on the same provider batch.
func (s *PayoutService) Execute(ctx context.Context, profileID uuid.UUID, amount int64) (*models.PayoutRecord, error) {
	method, err := s.store.GetPayoutMethod(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, ErrNoPayoutMethod
	}

	breakdown, err := s.fees.PayoutFee(amount, Provider(method.Provider), method.Country)
	if err != nil {
		return nil, err
	}

	record := &models.PayoutRecord{
		ID:                    uuid.New(),
		ProfileID:             profileID,
		PayoutPaymentMethodID: method.ID,
		Amount:                breakdown.PayoutAmount,
		ProcessingFee:         breakdown.TotalFee,
		Status:                models.PayoutStatusInitialized,
	}
	if err := s.store.CreatePayoutRecord(ctx, record); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	result, err := s.provider.SendBatchPayout(callCtx, PayoutBatch{
		BatchID:  record.ID.String(),
		Receiver: method.Receiver,
		Amount:   breakdown.PayoutAmount,
		Currency: "USD",
		Note:     "Creator earnings payout",
	})
	if err != nil {
		return nil, s.failRecord(ctx, record, &ExternalProviderError{Detail: err.Error(), Err: err})
	}
	if result.HTTPStatus != http.StatusCreated || result.ProviderBatchID == "" {
		provErr := &ExternalProviderError{
			StatusCode: result.HTTPStatus,
			Detail:     "payout batch was not accepted",
		}
		return nil, s.failRecord(ctx, record, provErr)
	}

	// Status advance and balance debit commit together; the debit is the
	// gross reserved amount, net plus processing fee.
	if err := s.store.MarkSubmitted(ctx, record.ID, profileID, breakdown.Amount, result.ProviderBatchID); err != nil {
		return nil, err
	}

	record.Status = models.PayoutStatusSubmitted
	record.ExternalTransactionRef = &result.ProviderBatchID
	return record, nil
}

func (s *PayoutService) failRecord(ctx context.Context, record *models.PayoutRecord, cause error) error {
	detail := cause.Error()
	if err := s.store.MarkFailed(ctx, record.ID, detail); err != nil {
		log.Printf("🔥 Failed to mark payout %s as failed: %v", record.ID, err)
	}
	return cause
}

// EvaluateAndExecute is the composed entry point used by the manual trigger
// endpoint and the automatic payout job.
func (s *PayoutService) EvaluateAndExecute(ctx context.Context, profileID uuid.UUID, bypassThreshold bool) (*models.PayoutRecord, error) {
	amount, err := s.Evaluate(ctx, profileID, bypassThreshold)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, profileID, amount)
}

// History returns a creator's payout records, newest first.
func (s *PayoutService) History(ctx context.Context, profileID uuid.UUID) ([]models.PayoutRecord, error) {
	return s.store.ListPayoutRecords(ctx, profileID)
}

// AllRecords lists payout records across creators, optionally filtered by
// status. Admin use.
func (s *PayoutService) AllRecords(ctx context.Context, status string) ([]models.PayoutRecord, error) {
	return s.store.ListPayoutRecordsByStatus(ctx, status)
}

// AutomaticProfiles lists the creators whose schedules run automatically.
func (s *PayoutService) AutomaticProfiles(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListAutomaticProfiles(ctx)
}

// IsIneligibility reports whether err is one of the eligibility outcomes
// rather than an infrastructure failure, so jobs can skip instead of alert.
func IsIneligibility(err error) bool {
	var minErr *MinPayoutNotMetError
	var maxErr *MaxPayoutExceededError
	return errors.Is(err, ErrPendingPayout) ||
		errors.Is(err, ErrNoPayoutMethod) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrThresholdNotMet) ||
		errors.As(err, &minErr) ||
		errors.As(err, &maxErr)
}
