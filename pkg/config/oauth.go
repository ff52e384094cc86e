package config

// OAuth configures C9 OAuthBroker's per-provider client credentials and the
// backing store for OAuth login-flow state (CSRF state tokens).
type OAuth struct {
	StateManager StateManagerConfig
	Providers    map[string]OAuthProviderConfig
}

type StateManagerConfig struct {
	Type string // "redis" or "memory"
	TTL  string
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func loadOAuthConfig() OAuth {
	return OAuth{
		StateManager: StateManagerConfig{
			Type: getEnv("OAUTH_STATE_MANAGER", "memory"),
			TTL:  getEnv("OAUTH_STATE_TTL", "10m"),
		},
		Providers: map[string]OAuthProviderConfig{
			"google": {
				ClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
				ClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GOOGLE_OAUTH_REDIRECT_URL", ""),
			},
			"microsoft": {
				ClientID:     getEnv("MICROSOFT_OAUTH_CLIENT_ID", ""),
				ClientSecret: getEnv("MICROSOFT_OAUTH_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("MICROSOFT_OAUTH_REDIRECT_URL", ""),
			},
			"github": {
				ClientID:     getEnv("GITHUB_OAUTH_CLIENT_ID", ""),
				ClientSecret: getEnv("GITHUB_OAUTH_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("GITHUB_OAUTH_REDIRECT_URL", ""),
			},
		},
	}
}
