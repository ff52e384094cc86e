package crypto

import (
	"testing"
	"time"

	"github.com/flowctl/core/pkg/kernel"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "flowctl", 0, 0, 0)
	userID := kernel.NewUserID("u1")
	tenantID := kernel.NewTenantID("t1")

	token, err := svc.GenerateAccessToken(Claims{
		UserID:   userID,
		TenantID: tenantID,
		Email:    "a@b.com",
		Scopes:   []string{"chat:read"},
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "a@b.com" {
		t.Fatalf("email mismatch: %q", claims.Email)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != "chat:read" {
		t.Fatalf("scopes mismatch: %v", claims.Scopes)
	}

	ac := claims.ToAuthContext()
	if ac.UserID == nil || *ac.UserID != userID {
		t.Fatalf("ToAuthContext did not preserve user id")
	}
}

func TestJWTVerifyRejectsTampered(t *testing.T) {
	svc := NewJWTService("test-secret", "flowctl", 0, 0, 0)
	token, err := svc.GenerateAccessToken(Claims{UserID: kernel.NewUserID("u1"), TenantID: kernel.NewTenantID("t1")})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := svc.Verify(token + "tampered"); err == nil {
		t.Fatal("expected verification failure for tampered token")
	}
}

func TestJWTLeewayAllowsRecentExpiry(t *testing.T) {
	svc := NewJWTService("test-secret", "flowctl", time.Millisecond, 0, 5*time.Hour)
	token, err := svc.GenerateAccessToken(Claims{UserID: kernel.NewUserID("u1"), TenantID: kernel.NewTenantID("t1")})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected leeway to tolerate small expiry overshoot, got: %v", err)
	}
}
