package config

import "github.com/joho/godotenv"

// Config is the root application configuration. It is threaded explicitly
// through every constructor (container, service, repository) — per spec
// §9's redesign flag there is no package-level global.
type Config struct {
	AppName string
	AppURI  string
	TZ      string

	MasterKey          string // AGIXT_API_KEY: master bearer key and PBKDF2/HMAC salt
	SuperadminEmail    string
	DefaultUser        string
	RegistrationClosed bool

	Database Database
	Redis    Redis
	Auth     Auth
	Billing  Billing
	Email    Email
	OAuth    OAuth
	Sentry   Sentry
	Jobx     JobxConfig
	Notifx   NotifxConfig
	AI       AI
}

// Load reads configuration from the process environment, first attempting
// to populate it from a .env file if one is present (grounded on
// Jeffreasy-LaventeCareAuthSystems's cmd/api/main.go bootstrap).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppName: getEnv("APP_NAME", "flowctl"),
		AppURI:  getEnv("APP_URI", "http://localhost:8080"),
		TZ:      getEnv("TZ", "UTC"),

		MasterKey:          getEnv("AGIXT_API_KEY", ""),
		SuperadminEmail:    getEnv("SUPERADMIN_EMAIL", ""),
		DefaultUser:        getEnv("DEFAULT_USER", ""),
		RegistrationClosed: getEnvBool("REGISTRATION_DISABLED", false),

		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Auth:     loadAuthConfig(),
		Billing:  loadBillingConfig(),
		Email:    loadEmailConfig(),
		OAuth:    loadOAuthConfig(),
		Sentry:   loadSentryConfig(),
		Jobx:     loadJobxConfig(),
		Notifx:   loadNotifxConfig(),
		AI:       loadAIConfig(),
	}
}
