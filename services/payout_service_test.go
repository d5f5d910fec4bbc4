package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creatorspace/api/models"
	"github.com/google/uuid"
)

// fakeStore is an in-memory PayoutStore / WebhookStore honoring the same
// contracts as the Postgres implementation: CreatePayoutRecord rejects a
// second in-flight record per profile, MarkSubmitted is all-or-nothing, and
// ApplyEvent serializes per call.
type fakeStore struct {
	mu sync.Mutex

	schedules map[uuid.UUID]*models.PayoutSchedule
	methods   map[uuid.UUID]*models.PayoutPaymentMethod
	balances  map[uuid.UUID]*models.Balance
	records   map[uuid.UUID]*models.PayoutRecord
	events    map[string]bool

	failMarkSubmitted bool
	applyCalls        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schedules: make(map[uuid.UUID]*models.PayoutSchedule),
		methods:   make(map[uuid.UUID]*models.PayoutPaymentMethod),
		balances:  make(map[uuid.UUID]*models.Balance),
		records:   make(map[uuid.UUID]*models.PayoutRecord),
		events:    make(map[string]bool),
	}
}

func (f *fakeStore) HasInFlightPayout(ctx context.Context, profileID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProfileID == profileID && r.InFlight() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetPayoutSchedule(ctx context.Context, profileID uuid.UUID) (*models.PayoutSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[profileID], nil
}

func (f *fakeStore) GetPayoutMethod(ctx context.Context, profileID uuid.UUID) (*models.PayoutPaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods[profileID], nil
}

func (f *fakeStore) GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[profileID], nil
}

func (f *fakeStore) SumPayoutsSince(ctx context.Context, profileID uuid.UUID, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, r := range f.records {
		if r.ProfileID == profileID && r.Status != models.PayoutStatusFailed && !r.CreatedAt.Before(since) {
			total += r.Amount
		}
	}
	return total, nil
}

func (f *fakeStore) CreatePayoutRecord(ctx context.Context, record *models.PayoutRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProfileID == record.ProfileID && r.InFlight() {
			return ErrPendingPayout
		}
	}
	record.CreatedAt = time.Now()
	stored := *record
	f.records[record.ID] = &stored
	return nil
}

func (f *fakeStore) MarkSubmitted(ctx context.Context, recordID, profileID uuid.UUID, debit int64, externalRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkSubmitted {
		return errors.New("simulated crash before commit")
	}
	record, ok := f.records[recordID]
	if !ok || record.Status != models.PayoutStatusInitialized {
		return errors.New("record not in initialized state")
	}
	balance, ok := f.balances[profileID]
	if !ok || balance.Amount < debit {
		return errors.New("balance cannot cover debit")
	}
	record.Status = models.PayoutStatusSubmitted
	record.ExternalTransactionRef = &externalRef
	balance.Amount -= debit
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, recordID uuid.UUID, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[recordID]; ok {
		record.Status = models.PayoutStatusFailed
		record.Error = &detail
	}
	return nil
}

func (f *fakeStore) ListPayoutRecords(ctx context.Context, profileID uuid.UUID) ([]models.PayoutRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PayoutRecord
	for _, r := range f.records {
		if r.ProfileID == profileID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPayoutRecordsByStatus(ctx context.Context, status string) ([]models.PayoutRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PayoutRecord
	for _, r := range f.records {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAutomaticProfiles(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for id, s := range f.schedules {
		if s.Mode == models.PayoutModeAutomatic {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID], nil
}

func (f *fakeStore) ApplyEvent(ctx context.Context, eventID string, batchID uuid.UUID, apply func(string) (string, bool)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[batchID]
	if !ok {
		return ErrUnknownBatch
	}
	if f.events[eventID] {
		return nil
	}
	f.applyCalls++
	if next, ok := apply(record.Status); ok {
		record.Status = next
	}
	f.events[eventID] = true
	return nil
}

func (f *fakeStore) record(id uuid.UUID) models.PayoutRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeStore) onlyRecord(t *testing.T) models.PayoutRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) != 1 {
		t.Fatalf("expected exactly 1 payout record, have %d", len(f.records))
	}
	for _, r := range f.records {
		return *r
	}
	panic("unreachable")
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	result *PayoutBatchResult
	err    error
	stall  bool
}

func (p *fakeProvider) SendBatchPayout(ctx context.Context, batch PayoutBatch) (*PayoutBatchResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func okProvider() *fakeProvider {
	return &fakeProvider{result: &PayoutBatchResult{HTTPStatus: 201, ProviderBatchID: "BATCH-OK-1"}}
}

func newTestPayoutService(store *fakeStore, provider PayoutProvider) *PayoutService {
	fees := testFeeSchedule()
	return NewPayoutService(store, provider, NewFeeCalculator(fees, &fakeTaxClient{}), fees, 0)
}

func seedCreator(store *fakeStore, balance int64, mode string, threshold int64) uuid.UUID {
	profileID := uuid.New()
	store.schedules[profileID] = &models.PayoutSchedule{ProfileID: profileID, Mode: mode, Threshold: threshold}
	store.methods[profileID] = &models.PayoutPaymentMethod{
		ID:        uuid.New(),
		ProfileID: profileID,
		Provider:  string(ProviderPayPal),
		Country:   "US",
		Receiver:  "creator@example.com",
	}
	store.balances[profileID] = &models.Balance{ProfileID: profileID, Amount: balance, Currency: "USD"}
	return profileID
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("eligible manual creator with bypass", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
		svc := newTestPayoutService(store, okProvider())

		amount, err := svc.Evaluate(ctx, profileID, true)
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if amount != 5000 {
			t.Errorf("Evaluate() amount = %d, want 5000", amount)
		}
	})

	t.Run("manual creator without bypass waits", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, false); !errors.Is(err, ErrThresholdNotMet) {
			t.Errorf("Evaluate() error = %v, want ErrThresholdNotMet", err)
		}
	})

	t.Run("automatic creator below threshold waits", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 5000, models.PayoutModeAutomatic, 10000)
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, false); !errors.Is(err, ErrThresholdNotMet) {
			t.Errorf("Evaluate() error = %v, want ErrThresholdNotMet", err)
		}
	})

	t.Run("automatic creator above threshold proceeds", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 15000, models.PayoutModeAutomatic, 10000)
		svc := newTestPayoutService(store, okProvider())

		amount, err := svc.Evaluate(ctx, profileID, false)
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if amount != 15000 {
			t.Errorf("Evaluate() amount = %d, want 15000", amount)
		}
	})

	t.Run("in-flight payout blocks", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Status: models.PayoutStatusSubmitted, CreatedAt: time.Now(),
		}
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, true); !errors.Is(err, ErrPendingPayout) {
			t.Errorf("Evaluate() error = %v, want ErrPendingPayout", err)
		}
	})

	t.Run("missing schedule or method", func(t *testing.T) {
		store := newFakeStore()
		profileID := uuid.New()
		store.balances[profileID] = &models.Balance{ProfileID: profileID, Amount: 5000}
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, true); !errors.Is(err, ErrNoPayoutMethod) {
			t.Errorf("Evaluate() error = %v, want ErrNoPayoutMethod", err)
		}
	})

	t.Run("missing balance row", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 0, models.PayoutModeManual, 0)
		delete(store.balances, profileID)
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, true); !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("Evaluate() error = %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("balance below global minimum", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 1999, models.PayoutModeManual, 0)
		svc := newTestPayoutService(store, okProvider())

		if _, err := svc.Evaluate(ctx, profileID, true); !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("Evaluate() error = %v, want ErrInsufficientBalance", err)
		}
	})

	// The per-period ceiling is always enforced here. The behavior it guards
	// was optional upstream; it is deliberately first-class in this service.
	t.Run("period ceiling exhausted", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 500000, models.PayoutModeManual, 0)
		store.schedules[profileID].MaxPayoutAmount = 100000
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Amount: 100000,
			Status: models.PayoutStatusSuccessful, CreatedAt: time.Now().Add(-48 * time.Hour),
		}
		svc := newTestPayoutService(store, okProvider())

		_, err := svc.Evaluate(ctx, profileID, true)
		var maxErr *MaxPayoutExceededError
		if !errors.As(err, &maxErr) {
			t.Fatalf("Evaluate() error = %v, want *MaxPayoutExceededError", err)
		}
		if maxErr.Maximum != 100000 {
			t.Errorf("MaxPayoutExceededError.Maximum = %d, want 100000", maxErr.Maximum)
		}
	})

	t.Run("candidate capped by remaining allowance", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 500000, models.PayoutModeManual, 0)
		store.schedules[profileID].MaxPayoutAmount = 100000
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Amount: 60000,
			Status: models.PayoutStatusSuccessful, CreatedAt: time.Now().Add(-48 * time.Hour),
		}
		svc := newTestPayoutService(store, okProvider())

		amount, err := svc.Evaluate(ctx, profileID, true)
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if amount != 40000 {
			t.Errorf("Evaluate() amount = %d, want 40000", amount)
		}
	})

	t.Run("remaining allowance below minimum", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 500000, models.PayoutModeManual, 0)
		store.schedules[profileID].MaxPayoutAmount = 100000
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Amount: 99000,
			Status: models.PayoutStatusSuccessful, CreatedAt: time.Now().Add(-48 * time.Hour),
		}
		svc := newTestPayoutService(store, okProvider())

		_, err := svc.Evaluate(ctx, profileID, true)
		var minErr *MinPayoutNotMetError
		if !errors.As(err, &minErr) {
			t.Fatalf("Evaluate() error = %v, want *MinPayoutNotMetError", err)
		}
		if minErr.Minimum != 2000 {
			t.Errorf("MinPayoutNotMetError.Minimum = %d, want 2000", minErr.Minimum)
		}
	})

	t.Run("failed and stale records do not count against the ceiling", func(t *testing.T) {
		store := newFakeStore()
		profileID := seedCreator(store, 100000, models.PayoutModeManual, 0)
		store.schedules[profileID].MaxPayoutAmount = 100000
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Amount: 90000,
			Status: models.PayoutStatusFailed, CreatedAt: time.Now().Add(-time.Hour),
		}
		store.records[uuid.New()] = &models.PayoutRecord{
			ID: uuid.New(), ProfileID: profileID, Amount: 90000,
			Status: models.PayoutStatusSuccessful, CreatedAt: time.Now().Add(-45 * 24 * time.Hour),
		}
		svc := newTestPayoutService(store, okProvider())

		amount, err := svc.Evaluate(ctx, profileID, true)
		if err != nil {
			t.Fatalf("Evaluate() error: %v", err)
		}
		if amount != 100000 {
			t.Errorf("Evaluate() amount = %d, want 100000", amount)
		}
	})
}

func TestExecuteSuccess(t *testing.T) {
	store := newFakeStore()
	profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
	provider := okProvider()
	svc := newTestPayoutService(store, provider)

	record, err := svc.Execute(context.Background(), profileID, 5000)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	// PayPal US: flat 25 cent fee, creator nets 4975, balance debited 5000.
	if record.Amount != 4975 || record.ProcessingFee != 25 {
		t.Errorf("record amounts = net %d fee %d, want 4975/25", record.Amount, record.ProcessingFee)
	}
	if record.Status != models.PayoutStatusSubmitted {
		t.Errorf("record status = %s, want submitted", record.Status)
	}
	if record.ExternalTransactionRef == nil || *record.ExternalTransactionRef != "BATCH-OK-1" {
		t.Errorf("external ref not recorded: %+v", record.ExternalTransactionRef)
	}

	stored := store.record(record.ID)
	if stored.Status != models.PayoutStatusSubmitted {
		t.Errorf("stored status = %s, want submitted", stored.Status)
	}
	if got := store.balances[profileID].Amount; got != 0 {
		t.Errorf("balance after payout = %d, want 0", got)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
}

func TestExecuteProviderFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{
			name:     "network error",
			provider: &fakeProvider{err: errors.New("connection reset by peer")},
		},
		{
			name:     "rejected batch",
			provider: &fakeProvider{result: &PayoutBatchResult{HTTPStatus: 422}},
		},
		{
			name:     "accepted without batch id",
			provider: &fakeProvider{result: &PayoutBatchResult{HTTPStatus: 201}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
			svc := newTestPayoutService(store, tt.provider)

			_, err := svc.Execute(context.Background(), profileID, 5000)
			var provErr *ExternalProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("Execute() error = %v, want *ExternalProviderError", err)
			}

			record := store.onlyRecord(t)
			if record.Status != models.PayoutStatusFailed {
				t.Errorf("record status = %s, want failed", record.Status)
			}
			if record.Error == nil || *record.Error == "" {
				t.Error("failure detail not stored on record")
			}
			if got := store.balances[profileID].Amount; got != 5000 {
				t.Errorf("balance after failed payout = %d, want untouched 5000", got)
			}
		})
	}
}

// A crash between the status advance and the balance debit must roll the
// whole submission back, never leave half of it committed.
func TestExecuteProviderTimeout(t *testing.T) {
	store := newFakeStore()
	profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
	provider := &fakeProvider{stall: true}
	fees := testFeeSchedule()
	svc := NewPayoutService(store, provider, NewFeeCalculator(fees, &fakeTaxClient{}), fees, 10*time.Millisecond)

	_, err := svc.Execute(context.Background(), profileID, 5000)
	var provErr *ExternalProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Execute() error = %v, want *ExternalProviderError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want wrapped context.DeadlineExceeded", err)
	}

	record := store.onlyRecord(t)
	if record.Status != models.PayoutStatusFailed {
		t.Errorf("record status = %s, want failed", record.Status)
	}
	if got := store.balances[profileID].Amount; got != 5000 {
		t.Errorf("balance after timed-out payout = %d, want untouched 5000", got)
	}
}

func TestExecuteAtomicDualWrite(t *testing.T) {
	store := newFakeStore()
	store.failMarkSubmitted = true
	profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
	svc := newTestPayoutService(store, okProvider())

	_, err := svc.Execute(context.Background(), profileID, 5000)
	if err == nil {
		t.Fatal("Execute() expected error when submit commit fails")
	}

	record := store.onlyRecord(t)
	if record.Status != models.PayoutStatusInitialized {
		t.Errorf("record status = %s, want initialized (rolled back)", record.Status)
	}
	if got := store.balances[profileID].Amount; got != 5000 {
		t.Errorf("balance = %d, want untouched 5000", got)
	}
}

func TestExecuteConcurrentSingleInFlight(t *testing.T) {
	const workers = 8

	store := newFakeStore()
	profileID := seedCreator(store, 5000, models.PayoutModeManual, 0)
	provider := okProvider()
	svc := newTestPayoutService(store, provider)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Execute(context.Background(), profileID, 5000)
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrPendingPayout):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != 1 || rejected != workers-1 {
		t.Errorf("got %d successes and %d rejections, want 1 and %d", succeeded, rejected, workers-1)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
	if got := store.balances[profileID].Amount; got != 0 {
		t.Errorf("balance = %d, want 0 after a single payout", got)
	}
}

func TestEvaluateAndExecute(t *testing.T) {
	store := newFakeStore()
	profileID := seedCreator(store, 10000, models.PayoutModeAutomatic, 5000)
	svc := newTestPayoutService(store, okProvider())

	record, err := svc.EvaluateAndExecute(context.Background(), profileID, false)
	if err != nil {
		t.Fatalf("EvaluateAndExecute() error: %v", err)
	}
	if record.Status != models.PayoutStatusSubmitted {
		t.Errorf("record status = %s, want submitted", record.Status)
	}

	// The submitted record now occupies the in-flight slot.
	if _, err := svc.EvaluateAndExecute(context.Background(), profileID, true); !errors.Is(err, ErrPendingPayout) {
		t.Errorf("second EvaluateAndExecute() error = %v, want ErrPendingPayout", err)
	}
}

// The automatic payout sweep counts every eligibility outcome as a skip, so
// the classifier must cover all of them, threshold waits included.
func TestIsIneligibility(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pending payout", ErrPendingPayout, true},
		{"no payout method", ErrNoPayoutMethod, true},
		{"insufficient balance", ErrInsufficientBalance, true},
		{"threshold not met", ErrThresholdNotMet, true},
		{"minimum not met", &MinPayoutNotMetError{Minimum: 2000}, true},
		{"ceiling exceeded", &MaxPayoutExceededError{Maximum: 1000000}, true},
		{"provider failure", &ExternalProviderError{StatusCode: 422}, false},
		{"plain error", errors.New("database is down"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIneligibility(tt.err); got != tt.want {
				t.Errorf("IsIneligibility(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
