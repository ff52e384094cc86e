package config

import "time"

// Auth configures C3 Crypto's JWT/PAT/TOTP primitives.
type Auth struct {
	JWT        JWTConfig
	Password   PasswordConfig
	TOTP       TOTPConfig
	PAT        PATConfig
	Encryption EncryptionConfig
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	LeewayJWT  time.Duration // §4.3: 5h leeway on verification
	AccessTTL  time.Duration // unused when month-boundary expiry applies; kept for refresh tokens
	RefreshTTL time.Duration
}

type PasswordConfig struct {
	BcryptCost int
}

type TOTPConfig struct {
	Issuer      string
	ValidWindow uint // §4.3/§4.8: 60-step validity window
}

type PATConfig struct {
	TokenPrefix string
}

// EncryptionConfig carries the AES-256-GCM field-encryption keys used for
// tenant-level secrets (OAuth client secrets, SMTP credentials). Keys are
// versioned so an old ciphertext stays decryptable after a key rotation.
type EncryptionConfig struct {
	Keys          map[int]string // version -> 64-char hex key
	ActiveVersion int
}

func loadAuthConfig() Auth {
	return Auth{
		JWT: JWTConfig{
			Secret:     getEnv("AGIXT_API_KEY", ""),
			Issuer:     getEnv("APP_NAME", "flowctl"),
			LeewayJWT:  getEnvDuration("JWT_LEEWAY", 5*time.Hour),
			AccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Password: PasswordConfig{
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
		},
		TOTP: TOTPConfig{
			Issuer:      getEnv("APP_NAME", "flowctl"),
			ValidWindow: uint(getEnvInt("TOTP_VALID_WINDOW", 60)),
		},
		PAT: PATConfig{
			TokenPrefix: getEnv("PAT_TOKEN_PREFIX", "agixt_"),
		},
		Encryption: loadEncryptionConfig(),
	}
}

func loadEncryptionConfig() EncryptionConfig {
	keys := make(map[int]string)
	if v := getEnv("TENANT_SECRET_KEY", ""); v != "" {
		keys[1] = v
	}
	if v := getEnv("TENANT_SECRET_KEY_V2", ""); v != "" {
		keys[2] = v
	}
	if v := getEnv("TENANT_SECRET_KEY_V3", ""); v != "" {
		keys[3] = v
	}
	return EncryptionConfig{
		Keys:          keys,
		ActiveVersion: getEnvInt("TENANT_SECRET_KEY_VERSION", 1),
	}
}
