package config

// Billing configures C6 BillingGate's paywall and pricing-mode evaluation.
type Billing struct {
	Paused                bool
	WalletAddress         string
	TokenPricePerMillion  float64
	StripeAPIKey          string
	StripePricingTableID  string
	LowBalanceThreshold   int64
	WarningIncrement      int64
}

func loadBillingConfig() Billing {
	return Billing{
		Paused:               getEnvBool("BILLING_PAUSED", false),
		WalletAddress:        getEnv("PAYMENT_WALLET_ADDRESS", ""),
		TokenPricePerMillion: getEnvFloat("TOKEN_PRICE_PER_MILLION_USD", 0),
		StripeAPIKey:         getEnv("STRIPE_API_KEY", ""),
		StripePricingTableID: getEnv("STRIPE_PRICING_TABLE_ID", ""),
		LowBalanceThreshold:  int64(getEnvInt("LOW_BALANCE_WARNING_THRESHOLD", 1000)),
		WarningIncrement:     int64(getEnvInt("TOKEN_WARNING_INCREMENT", 500)),
	}
}
