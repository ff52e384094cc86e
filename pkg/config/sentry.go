package config

// Sentry configures ambient panic/error capture.
type Sentry struct {
	DSN         string
	Environment string
}

func loadSentryConfig() Sentry {
	return Sentry{
		DSN:         getEnv("SENTRY_DSN", ""),
		Environment: getEnv("APP_ENV", "development"),
	}
}
