package oauthbroker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T, accessToken, refreshToken string, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
			"expires_in":    expiresIn,
		})
	}))
}

func newBroker(t *testing.T, tokenURL string) (*Broker, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	providers := map[string]*oauth2.Config{
		"github": {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
	return New(s.OAuth(), providers, logx.NewLogger(nil)), s
}

func TestRefreshSkipsWhenFarFromExpiry(t *testing.T) {
	ctx := context.Background()
	b, s := newBroker(t, "http://unreachable.invalid/token")
	userID := kernel.NewUserID("u1")
	future := time.Now().Add(time.Hour)
	if err := s.OAuth().Upsert(ctx, store.UserOAuth{
		UserID: userID, ProviderID: "github", AccessToken: "still-good", RefreshToken: "r1", TokenExpiresAt: &future,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, err := b.Refresh(ctx, userID, "github", false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if row.AccessToken != "still-good" {
		t.Fatalf("expected token untouched, got %q", row.AccessToken)
	}
}

func TestRefreshFetchesNewTokenWhenExpiringSoon(t *testing.T) {
	ctx := context.Background()
	srv := newTokenServer(t, "fresh-access", "fresh-refresh", 3600)
	defer srv.Close()

	b, s := newBroker(t, srv.URL)
	userID := kernel.NewUserID("u1")
	soon := time.Now().Add(time.Minute)
	if err := s.OAuth().Upsert(ctx, store.UserOAuth{
		UserID: userID, ProviderID: "github", AccessToken: "stale", RefreshToken: "r1", TokenExpiresAt: &soon,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, err := b.Refresh(ctx, userID, "github", false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if row.AccessToken != "fresh-access" {
		t.Fatalf("expected refreshed access token, got %q", row.AccessToken)
	}
	if row.RefreshToken != "fresh-refresh" {
		t.Fatalf("expected rotated refresh token, got %q", row.RefreshToken)
	}
}

func TestApiCallRetriesOnceOnAuthError(t *testing.T) {
	ctx := context.Background()
	srv := newTokenServer(t, "fresh-access", "fresh-refresh", 3600)
	defer srv.Close()

	b, s := newBroker(t, srv.URL)
	userID := kernel.NewUserID("u1")
	past := time.Now().Add(-time.Hour)
	if err := s.OAuth().Upsert(ctx, store.UserOAuth{
		UserID: userID, ProviderID: "github", AccessToken: "stale", RefreshToken: "r1", TokenExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	attempts := 0
	err := b.ApiCall(ctx, userID, "github", func(_ context.Context, token string) error {
		attempts++
		if attempts == 1 {
			return errors.New("401 unauthorized")
		}
		if token != "fresh-access" {
			t.Fatalf("expected retry to use refreshed token, got %q", token)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ApiCall: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", attempts)
	}
}

func TestApiCallDoesNotRetryOnNonAuthError(t *testing.T) {
	ctx := context.Background()
	b, s := newBroker(t, "http://unreachable.invalid/token")
	userID := kernel.NewUserID("u1")
	future := time.Now().Add(time.Hour)
	if err := s.OAuth().Upsert(ctx, store.UserOAuth{
		UserID: userID, ProviderID: "github", AccessToken: "still-good", RefreshToken: "r1", TokenExpiresAt: &future,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	attempts := 0
	err := b.ApiCall(ctx, userID, "github", func(_ context.Context, _ string) error {
		attempts++
		return errors.New("server exploded")
	})
	if err == nil {
		t.Fatal("expected non-auth error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry for a non-auth error, got %d attempts", attempts)
	}
}
