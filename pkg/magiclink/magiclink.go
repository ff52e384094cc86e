// Package magiclink is C8 MagicLink: TOTP-gated passwordless login. A
// request mints or reuses a per-user TOTP seed and emails the current code;
// verify checks the code against that seed and, on success, mints a
// month-boundary-expiring JWT. Grounded on the teacher's
// pkg/iam/otp/otpsrv.OTPService shape (rate-limited issuance, attempt
// tracking on verify) generalized to a real RFC 6238 seed instead of a
// random stored code, since the code must be independently re-derivable
// rather than looked up by value.
package magiclink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/notifx"
	"github.com/flowctl/core/pkg/store"
	"golang.org/x/time/rate"
)

var ErrRegistry = errx.NewRegistry("MAGICLINK")

var (
	CodeInvalidCode = ErrRegistry.Register("INVALID_CODE", errx.TypeAuthorization, http.StatusUnauthorized, "invalid or expired one-time code")
	CodeRateLimited = ErrRegistry.Register("RATE_LIMITED", errx.TypeAuthorization, http.StatusTooManyRequests, "too many failed login attempts")
)

func ErrInvalidCode() *errx.Error { return ErrRegistry.New(CodeInvalidCode) }
func ErrRateLimited() *errx.Error { return ErrRegistry.New(CodeRateLimited) }

const (
	failedLoginWindow    = 24 * time.Hour
	failedLoginThreshold = 100
)

// failedLoginLimiter tracks, per user, a sliding 24h budget of failed
// magic-link verifications using a continuously-refilling token bucket: each
// failure consumes one token, and once the bucket empties the user stays
// rate limited until tokens trickle back in. This approximates a true
// sliding window (old failures decay gradually rather than dropping off at
// exactly +24h) but matches the >=100-failures/24h threshold closely enough.
type failedLoginLimiter struct {
	mu       sync.Mutex
	limiters map[kernel.UserID]*rate.Limiter
}

func newFailedLoginLimiter() *failedLoginLimiter {
	return &failedLoginLimiter{limiters: make(map[kernel.UserID]*rate.Limiter)}
}

func (f *failedLoginLimiter) limiterFor(userID kernel.UserID) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(failedLoginWindow/failedLoginThreshold), failedLoginThreshold)
		f.limiters[userID] = l
	}
	return l
}

func (f *failedLoginLimiter) isLimited(userID kernel.UserID) bool {
	return f.limiterFor(userID).Tokens() < 1
}

func (f *failedLoginLimiter) recordFailure(userID kernel.UserID) {
	f.limiterFor(userID).Allow()
}

// Service issues and verifies magic-link one-time codes.
type Service struct {
	totp        *crypto.TOTPService
	jwt         *crypto.JWTService
	users       store.UserRepository
	memberships store.MembershipRepository
	notifier    notifx.Notifier
	limiter     *failedLoginLimiter
	appURI      string
	loc         *time.Location
}

func New(totp *crypto.TOTPService, jwt *crypto.JWTService, users store.UserRepository, memberships store.MembershipRepository, notifier notifx.Notifier, appURI, tz string) *Service {
	loc, err := time.LoadLocation(tz)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return &Service{
		totp:        totp,
		jwt:         jwt,
		users:       users,
		memberships: memberships,
		notifier:    notifier,
		limiter:     newFailedLoginLimiter(),
		appURI:      appURI,
		loc:         loc,
	}
}

// Request issues a fresh one-time code for email and delivers it by email.
// It never reports whether email belongs to a known account: the response
// is identical whether or not a code was actually sent, so this path cannot
// be used to enumerate registered users. The unknown/inactive-account branch
// runs the same TOTP-seed generation and current-code derivation as the real
// path before returning, so the two branches cost the same wall-clock time —
// otherwise an attacker could tell known emails from unknown ones purely by
// how fast Request responds, defeating the point of returning nil either way.
func (s *Service) Request(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil || user == nil || !user.IsActive {
		s.runDummyTOTPWork(email)
		return nil
	}

	seed := user.MFASeed
	if seed == "" {
		enrollment, err := s.totp.GenerateSecret(email)
		if err != nil {
			return err
		}
		seed = enrollment.Secret
		user.MFASeed = seed
		if err := s.users.Update(ctx, *user); err != nil {
			return errx.Wrap(err, "failed to persist one-time code seed", errx.TypeInternal)
		}
	}

	code, err := s.totp.CurrentCode(seed)
	if err != nil {
		return err
	}

	return s.notifier.SendEmail(ctx, notifx.EmailMessage{
		To:       []string{email},
		Subject:  "Your login code",
		TextBody: fmt.Sprintf("Your one-time login code is %s. It expires shortly.", code),
	})
}

// runDummyTOTPWork performs the same secret-generation and code-derivation
// work the known-account path does, discarding the result, so Request's
// latency doesn't leak whether email is registered.
func (s *Service) runDummyTOTPWork(email string) {
	enrollment, err := s.totp.GenerateSecret(email)
	if err != nil {
		return
	}
	_, _ = s.totp.CurrentCode(enrollment.Secret)
}

// Result is returned from a successful Verify.
type Result struct {
	Token string
	URL   string
}

// Verify checks otp against email's stored seed, consulting the 24h failed
// login budget before looking at the code at all so an already-exhausted
// user cannot be used to keep brute-forcing attempts.
func (s *Service) Verify(ctx context.Context, email, otp string) (*Result, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil || user == nil || !user.IsActive || user.MFASeed == "" {
		return nil, ErrInvalidCode()
	}

	if s.limiter.isLimited(user.ID) {
		return nil, ErrRateLimited()
	}

	if err := s.totp.ValidateCode(otp, user.MFASeed); err != nil {
		s.limiter.recordFailure(user.ID)
		return nil, ErrInvalidCode()
	}

	admin, err := s.isAnySuperAdmin(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateMonthBoundaryAccessToken(crypto.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Scopes: adminScopes(admin),
	}, s.loc)
	if err != nil {
		return nil, err
	}

	return &Result{
		Token: token,
		URL:   s.appURI + "?token=" + url.QueryEscape(token),
	}, nil
}

func adminScopes(admin bool) []string {
	if admin {
		return []string{"*"}
	}
	return nil
}

func (s *Service) isAnySuperAdmin(ctx context.Context, userID kernel.UserID) (bool, error) {
	memberships, err := s.memberships.FindByUser(ctx, userID)
	if err != nil {
		return false, errx.Wrap(err, "failed to load memberships", errx.TypeInternal)
	}
	for _, m := range memberships {
		if m.RoleID == store.RoleSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}
