// Package oauthbroker is C9 OAuthBroker: per-(user, provider) OAuth token
// lifecycle. Refresh keeps a stored credential alive ahead of expiry; ApiCall
// wraps an authenticated call with exactly one forced refresh-and-retry when
// the call reports the token has gone stale mid-flight. Grounded on the
// wisbric-nightowl OIDC flow's use of golang.org/x/oauth2 for the exchange
// primitives, generalized from a one-shot login flow to a long-lived,
// per-provider refresh-on-demand credential store.
package oauthbroker

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/metrics"
	"github.com/flowctl/core/pkg/store"
	"golang.org/x/oauth2"
)

var ErrRegistry = errx.NewRegistry("OAUTHBROKER")

var (
	CodeUnknownProvider = ErrRegistry.Register("UNKNOWN_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "unknown oauth provider")
	CodeNoCredential    = ErrRegistry.Register("NO_CREDENTIAL", errx.TypeNotFound, http.StatusNotFound, "no oauth credential on file")
	CodeRefreshFailed   = ErrRegistry.Register("REFRESH_FAILED", errx.TypeExternal, http.StatusBadGateway, "failed to refresh oauth token")
)

func ErrUnknownProvider(id string) *errx.Error {
	return ErrRegistry.New(CodeUnknownProvider).WithDetail("provider_id", id)
}
func ErrNoCredential(id string) *errx.Error {
	return ErrRegistry.New(CodeNoCredential).WithDetail("provider_id", id)
}
func ErrRefreshFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeRefreshFailed, cause)
}

const refreshSkew = 5 * time.Minute

// authErrorPattern matches the error text forms that signal an access token
// has gone stale mid-call, prompting exactly one forced refresh and retry.
var authErrorPattern = regexp.MustCompile(`(?i)unauthorized|forbidden|invalid_token|token_expired`)

// APICallFunc performs one authenticated call using the current access
// token (the "sso_handle" a caller is handed).
type APICallFunc func(ctx context.Context, accessToken string) error

// Broker resolves live OAuth credentials per (user, provider) and wraps
// outbound calls with retry-on-expiry.
type Broker struct {
	oauth     store.UserOAuthRepository
	providers map[string]*oauth2.Config
	logger    *logx.Logger
}

func New(oauth store.UserOAuthRepository, providers map[string]*oauth2.Config, logger *logx.Logger) *Broker {
	return &Broker{oauth: oauth, providers: providers, logger: logger}
}

// Refresh returns the live credential for (userID, providerID). It refreshes
// first when force is set, the stored expiry is unknown, or it falls within
// refreshSkew of now.
func (b *Broker) Refresh(ctx context.Context, userID kernel.UserID, providerID string, force bool) (*store.UserOAuth, error) {
	cfg, ok := b.providers[providerID]
	if !ok {
		return nil, ErrUnknownProvider(providerID)
	}
	row, err := b.oauth.Find(ctx, userID, providerID)
	if err != nil {
		return nil, ErrNoCredential(providerID)
	}

	needsRefresh := force || row.TokenExpiresAt == nil || row.TokenExpiresAt.Before(time.Now().Add(refreshSkew))
	if !needsRefresh {
		return row, nil
	}

	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: row.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		metrics.OAuthTokenRefreshTotal.WithLabelValues(providerID, "failed").Inc()
		return nil, ErrRefreshFailed(err)
	}

	row.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		row.RefreshToken = fresh.RefreshToken
	}
	if !fresh.Expiry.IsZero() {
		expiry := fresh.Expiry
		row.TokenExpiresAt = &expiry
	}

	if err := b.oauth.Upsert(ctx, *row); err != nil {
		metrics.OAuthTokenRefreshTotal.WithLabelValues(providerID, "failed").Inc()
		return nil, errx.Wrap(err, "failed to persist refreshed oauth credential", errx.TypeInternal)
	}
	metrics.OAuthTokenRefreshTotal.WithLabelValues(providerID, "ok").Inc()
	return row, nil
}

// ApiCall runs fn with the current access token. When fn reports an
// authorization failure it force-refreshes exactly once and retries;
// any other error, or a second failure after the retry, is returned as-is.
func (b *Broker) ApiCall(ctx context.Context, userID kernel.UserID, providerID string, fn APICallFunc) error {
	row, err := b.Refresh(ctx, userID, providerID, false)
	if err != nil {
		return err
	}

	callErr := fn(ctx, row.AccessToken)
	if callErr == nil || !isAuthError(callErr) {
		return callErr
	}

	row, err = b.Refresh(ctx, userID, providerID, true)
	if err != nil {
		return err
	}
	return fn(ctx, row.AccessToken)
}

func isAuthError(err error) bool {
	return authErrorPattern.MatchString(err.Error())
}
