package magiclink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/notifx"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
)

type capturingNotifier struct {
	sent []notifx.EmailMessage
}

func (c *capturingNotifier) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newService(t *testing.T) (*Service, *storemem.MemoryStore, *capturingNotifier) {
	t.Helper()
	s := storemem.New()
	totpService := crypto.NewTOTPService("flowctl-test", 60)
	jwtService := crypto.NewJWTService("test-secret", "flowctl-core-test", time.Minute, time.Hour, time.Minute)
	notifier := &capturingNotifier{}
	svc := New(totpService, jwtService, s.Users(), s.Memberships(), notifier, "https://app.example.com", "UTC")
	return svc, s, notifier
}

func seedActiveUser(t *testing.T, s *storemem.MemoryStore, userID kernel.UserID, email string) {
	t.Helper()
	if err := s.Users().Create(context.Background(), store.User{ID: userID, Email: email, IsActive: true}); err != nil {
		t.Fatalf("Create user: %v", err)
	}
}

func TestRequestUnknownEmailIsSilentSuccess(t *testing.T) {
	svc, _, notifier := newService(t)
	if err := svc.Request(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no email sent for unknown address, got %d", len(notifier.sent))
	}
}

func TestRequestKnownEmailSendsCodeAndPersistsSeed(t *testing.T) {
	ctx := context.Background()
	svc, s, notifier := newService(t)
	userID := kernel.NewUserID("u1")
	seedActiveUser(t, s, userID, "u1@example.com")

	if err := svc.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 email sent, got %d", len(notifier.sent))
	}
	user, err := s.Users().FindByEmail(ctx, "u1@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.MFASeed == "" {
		t.Fatal("expected a seed to be persisted after first request")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	userID := kernel.NewUserID("u1")
	seedActiveUser(t, s, userID, "u1@example.com")

	if err := svc.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	user, err := s.Users().FindByEmail(ctx, "u1@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	code, err := svc.totp.CurrentCode(user.MFASeed)
	if err != nil {
		t.Fatalf("CurrentCode: %v", err)
	}

	result, err := svc.Verify(ctx, "u1@example.com", code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a minted token")
	}
	if !strings.HasPrefix(result.URL, "https://app.example.com?token=") {
		t.Fatalf("unexpected magic link url: %s", result.URL)
	}
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	userID := kernel.NewUserID("u1")
	seedActiveUser(t, s, userID, "u1@example.com")
	if err := svc.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	if _, err := svc.Verify(ctx, "u1@example.com", "000000"); err == nil {
		t.Fatal("expected wrong code to fail")
	}
}

func TestVerifyRateLimitsAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	userID := kernel.NewUserID("u1")
	seedActiveUser(t, s, userID, "u1@example.com")
	if err := svc.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	var lastErr error
	for i := 0; i < failedLoginThreshold+5; i++ {
		_, lastErr = svc.Verify(ctx, "u1@example.com", "000000")
	}
	if lastErr == nil {
		t.Fatal("expected repeated failures to eventually rate limit")
	}
	if !strings.Contains(lastErr.Error(), CodeRateLimited.Code) {
		t.Fatalf("expected a rate-limited error after %d failures, got %v", failedLoginThreshold+5, lastErr)
	}
}
