package config

import (
	"log"
	"strconv"
)

// FeeSchedule holds every fee rate and fixed amount the platform charges.
// Loaded once at startup and passed into the services that need it; never
// mutated afterwards. Percentages are fractions (0.029 == 2.9%), fixed fees
// are in major currency units the way the providers document them.
type FeeSchedule struct {
	FanPlatformFee     float64
	CreatorPlatformFee float64
	GemsFee            float64
	ReferralFee        float64

	StripeFee      float64
	StripeFeeFixed float64
	PayPalFee      float64
	PayPalFeeFixed float64

	PayPalPayoutUSFixed       float64
	PayPalPayoutInternational float64

	// Amounts in minor units (cents).
	MinimumPayoutAmount int64
	MaxPayoutPerPeriod  int64
}

// LoadFeeSchedule reads the full schedule from the environment. Every value is
// required; a missing or unparsable one is a startup error, not something we
// can limp along without.
func LoadFeeSchedule() *FeeSchedule {
	return &FeeSchedule{
		FanPlatformFee:     requireRate("FAN_PLATFORM_FEE"),
		CreatorPlatformFee: requireRate("CREATOR_PLATFORM_FEE"),
		GemsFee:            requireRate("GEMS_FEE"),
		ReferralFee:        requireRate("REFERRAL_FEE"),

		StripeFee:      requireRate("STRIPE_FEE"),
		StripeFeeFixed: requireRate("STRIPE_FEE_FIXED"),
		PayPalFee:      requireRate("PAYPAL_FEE"),
		PayPalFeeFixed: requireRate("PAYPAL_FEE_FIXED"),

		PayPalPayoutUSFixed:       requireRate("PAYPAL_FEE_PAYOUT_US_FIXED"),
		PayPalPayoutInternational: requireRate("PAYPAL_FEE_PAYOUT_INTERNATIONAL"),

		MinimumPayoutAmount: requireAmount("MINIMUM_PAYOUT_AMOUNT"),
		MaxPayoutPerPeriod:  requireAmount("MAX_PAYOUT_PER_PERIOD"),
	}
}

func requireRate(key string) float64 {
	raw := Config(key)
	if raw == "" {
		log.Fatalf("🔥 Missing required fee configuration: %s", key)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		log.Fatalf("🔥 Invalid fee configuration %s=%q: %v", key, raw, err)
	}
	return value
}

func requireAmount(key string) int64 {
	raw := Config(key)
	if raw == "" {
		log.Fatalf("🔥 Missing required fee configuration: %s", key)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		log.Fatalf("🔥 Invalid fee configuration %s=%q: %v", key, raw, err)
	}
	return value
}
