package services

import (
	"context"
	"math"

	config "github.com/creatorspace/api/configs"
)

// Supported payment providers and transaction categories. Both are closed
// sets; the calculators switch exhaustively so adding a provider or category
// is a compile-visible change.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

type Category string

const (
	CategorySubscription Category = "subscription"
	CategoryTip          Category = "tip"
	CategoryMessage      Category = "message"
	CategoryStream       Category = "stream"
	CategoryGems         Category = "gems"
)

// TaxClient computes tax for a checkout via the external tax service.
type TaxClient interface {
	ComputeTax(ctx context.Context, amount int64, country, postalCode string) (int64, error)
}

// BillingAddress is the slice of the fan's address the tax service needs.
type BillingAddress struct {
	Country    string `json:"country" validate:"required,len=2"`
	PostalCode string `json:"postal_code"`
}

type PurchaseFeeBreakdown struct {
	Amount        int64 `json:"amount"`
	ProcessingFee int64 `json:"processing_fee"`
	PlatformFee   int64 `json:"platform_fee"`
	TotalFees     int64 `json:"total_fees"`
	NetAmount     int64 `json:"net_amount"`
}

type CheckoutTotal struct {
	Amount      int64 `json:"amount"`
	PlatformFee int64 `json:"platform_fee"`
	VatFee      int64 `json:"vat_fee"`
	TotalAmount int64 `json:"total_amount"`
}

type PayoutFeeBreakdown struct {
	Amount        int64 `json:"amount"`
	ProcessingFee int64 `json:"processing_fee"`
	TotalFee      int64 `json:"total_fee"`
	PayoutAmount  int64 `json:"payout_amount"`
}

// FeeCalculator computes every fee split on the platform. All amounts are
// integer minor units; each fee term is rounded half-up independently before
// summation, which is what keeps historical amounts reproducible.
type FeeCalculator struct {
	fees *config.FeeSchedule
	tax  TaxClient
}

func NewFeeCalculator(fees *config.FeeSchedule, tax TaxClient) *FeeCalculator {
	return &FeeCalculator{fees: fees, tax: tax}
}

// roundHalfUp rounds to the nearest minor unit, halves away from zero.
func roundHalfUp(v float64) int64 {
	return int64(math.Round(v))
}

func (f *FeeCalculator) processingFee(gross int64, provider Provider) (int64, error) {
	switch provider {
	case ProviderStripe:
		return roundHalfUp(float64(gross)*f.fees.StripeFee) + roundHalfUp(f.fees.StripeFeeFixed*100), nil
	case ProviderPayPal:
		return roundHalfUp(float64(gross)*f.fees.PayPalFee) + roundHalfUp(f.fees.PayPalFeeFixed*100), nil
	default:
		return 0, ErrUnsupportedProvider
	}
}

func (f *FeeCalculator) platformFeeRate(category Category) (float64, error) {
	switch category {
	case CategorySubscription, CategoryTip, CategoryMessage, CategoryStream, CategoryGems:
		return f.fees.CreatorPlatformFee, nil
	default:
		return 0, ErrUnsupportedCategory
	}
}

// PurchaseFee splits a gross purchase amount into the provider's processing
// fee, the platform's cut and the creator's net. A non-nil platformFeeOverride
// replaces the category default (used for creators on negotiated rates).
// NetAmount + TotalFees == gross for every input.
func (f *FeeCalculator) PurchaseFee(gross int64, category Category, provider Provider, platformFeeOverride *float64) (*PurchaseFeeBreakdown, error) {
	processing, err := f.processingFee(gross, provider)
	if err != nil {
		return nil, err
	}

	rate, err := f.platformFeeRate(category)
	if err != nil {
		return nil, err
	}
	if platformFeeOverride != nil {
		rate = *platformFeeOverride
	}

	platform := roundHalfUp(float64(gross) * rate)
	total := processing + platform

	return &PurchaseFeeBreakdown{
		Amount:        gross,
		ProcessingFee: processing,
		PlatformFee:   platform,
		TotalFees:     total,
		NetAmount:     gross - total,
	}, nil
}

// Checkout computes what the fan actually pays: the platform fee is added on
// top of the gross amount, and VAT is computed on that subtotal by the
// external tax service when a billing address with a country is supplied.
// A tax-service failure comes back as a *TaxServiceError, not a generic error.
func (f *FeeCalculator) Checkout(ctx context.Context, gross int64, feeRate float64, address *BillingAddress) (*CheckoutTotal, error) {
	platform := roundHalfUp(float64(gross) * feeRate)
	subtotal := gross + platform

	var vat int64
	if address != nil && address.Country != "" {
		amount, err := f.tax.ComputeTax(ctx, subtotal, address.Country, address.PostalCode)
		if err != nil {
			return nil, &TaxServiceError{Detail: err.Error(), Err: err}
		}
		vat = amount
	}

	return &CheckoutTotal{
		Amount:      gross,
		PlatformFee: platform,
		VatFee:      vat,
		TotalAmount: subtotal + vat,
	}, nil
}

// PayoutFee computes the provider's cut of a payout. PayPal charges a flat
// fee for US destinations and a percentage everywhere else.
func (f *FeeCalculator) PayoutFee(amount int64, provider Provider, country string) (*PayoutFeeBreakdown, error) {
	var fee int64
	switch provider {
	case ProviderPayPal:
		if country == "US" {
			fee = roundHalfUp(f.fees.PayPalPayoutUSFixed * 100)
		} else {
			fee = roundHalfUp(float64(amount) * f.fees.PayPalPayoutInternational)
		}
	case ProviderStripe:
		return nil, ErrUnsupportedProvider
	default:
		return nil, ErrUnsupportedProvider
	}

	return &PayoutFeeBreakdown{
		Amount:        amount,
		ProcessingFee: fee,
		TotalFee:      fee,
		PayoutAmount:  amount - fee,
	}, nil
}

// ReferralFee is the referrer's cut of a referred purchase.
func (f *FeeCalculator) ReferralFee(amount int64) int64 {
	return roundHalfUp(float64(amount) * f.fees.ReferralFee)
}

// FanFeeRate picks the fan-side fee for a checkout: gems purchases carry the
// gems fee, everything else the fan platform fee.
func (f *FeeCalculator) FanFeeRate(category Category) (float64, error) {
	switch category {
	case CategoryGems:
		return f.fees.GemsFee, nil
	case CategorySubscription, CategoryTip, CategoryMessage, CategoryStream:
		return f.fees.FanPlatformFee, nil
	default:
		return 0, ErrUnsupportedCategory
	}
}
