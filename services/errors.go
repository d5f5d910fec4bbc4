package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the fee and payout services. Callers branch on
// these with errors.Is / errors.As to produce user-facing messages.
var (
	ErrUnsupportedProvider = errors.New("payouts: unsupported payment provider")
	ErrUnsupportedCategory = errors.New("payouts: unsupported transaction category")

	ErrPendingPayout       = errors.New("payouts: a payout is already in progress")
	ErrNoPayoutMethod      = errors.New("payouts: no payout method configured")
	ErrInsufficientBalance = errors.New("payouts: insufficient balance")
	ErrThresholdNotMet     = errors.New("payouts: automatic payout threshold not met")

	ErrInvalidSignature = errors.New("payouts: webhook signature verification failed")
	ErrUnknownBatch     = errors.New("payouts: webhook references an unknown payout batch")
	ErrUnknownEventType = errors.New("payouts: unrecognized webhook event type")
)

// MinPayoutNotMetError carries the exact minimum so the caller can show it.
type MinPayoutNotMetError struct {
	Minimum int64
}

func (e *MinPayoutNotMetError) Error() string {
	return fmt.Sprintf("payouts: amount below the minimum payout of %d", e.Minimum)
}

// MaxPayoutExceededError is returned when the trailing-period total leaves no
// allowance above the minimum payout.
type MaxPayoutExceededError struct {
	Maximum int64
}

func (e *MaxPayoutExceededError) Error() string {
	return fmt.Sprintf("payouts: maximum payout of %d per period exceeded", e.Maximum)
}

// TaxServiceError wraps a failure from the external tax-calculation service.
// It is distinct from validation failures so checkout flows can decide whether
// to block or apply a fallback.
type TaxServiceError struct {
	Detail string
	Err    error
}

func (e *TaxServiceError) Error() string {
	return fmt.Sprintf("payouts: tax service failed: %s", e.Detail)
}

func (e *TaxServiceError) Unwrap() error { return e.Err }

// ExternalProviderError wraps a failed payout-provider call.
type ExternalProviderError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("payouts: provider call failed (status %d): %s", e.StatusCode, e.Detail)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }
