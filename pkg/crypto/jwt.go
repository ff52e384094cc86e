// Package crypto is C3: JWT issuance/verification, PAT hashing, field
// encryption, and TOTP enrollment/validation. Grounded on the teacher's
// pkg/iam/auth/jwt_service.go (HS256, golang-jwt/jwt/v5, custom claims
// struct) generalized to carry scopes plus the PAT overlay fields kernel.AuthContext
// needs, and on Jeffreasy-LaventeCareAuthSystems' internal/auth/mfa.go and
// internal/crypto/tenant_secrets.go for the two responsibilities the teacher
// itself has no module for.
package crypto

import (
	"fmt"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

var ErrRegistry = errx.NewRegistry("CRYPTO")

var (
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to generate token")
	CodeTokenInvalid          = ErrRegistry.Register("TOKEN_INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "token is invalid or expired")
)

func ErrTokenGenerationFailed(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeTokenGenerationFailed, cause) }
func ErrTokenInvalid() *errx.Error                     { return ErrRegistry.New(CodeTokenInvalid) }

// JWTService issues and verifies HS256 access/refresh tokens. Expiry checks
// carry a five-hour leeway so a token minted just before a month boundary
// does not fail validation on the other side of it (§4.1).
type JWTService struct {
	secretKey      []byte
	issuer         string
	accessTokenTTL time.Duration
	refreshTTL     time.Duration
	leeway         time.Duration
}

func NewJWTService(secretKey, issuer string, accessTTL, refreshTTL, leeway time.Duration) *JWTService {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if leeway == 0 {
		leeway = 5 * time.Hour
	}
	return &JWTService{
		secretKey:      []byte(secretKey),
		issuer:         issuer,
		accessTokenTTL: accessTTL,
		refreshTTL:     refreshTTL,
		leeway:         leeway,
	}
}

// Claims carries identity plus the PAT scope-intersection overlay so a
// PAT-derived token can be verified and rehydrated into an AuthContext
// without a second database round trip.
type Claims struct {
	UserID       kernel.UserID   `json:"user_id"`
	TenantID     kernel.TenantID `json:"tenant_id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	Scopes       []string        `json:"scopes"`
	IsAPIKey     bool            `json:"is_api_key,omitempty"`
	PATScopes    []string        `json:"pat_scopes,omitempty"`
	PATAgentIDs  []string        `json:"pat_agent_ids,omitempty"`
	PATTenantIDs []string        `json:"pat_tenant_ids,omitempty"`
	jwt.RegisteredClaims
}

func (j *JWTService) GenerateAccessToken(c Claims) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   c.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed(err)
	}
	return signed, nil
}

// GenerateMonthBoundaryAccessToken mints an access token whose expiry is
// pinned to the first second of the next calendar month in loc rather than
// accessTokenTTL, giving magic-link sessions a clean month-aligned refresh
// cadence instead of a fixed sliding TTL.
func (j *JWTService) GenerateMonthBoundaryAccessToken(c Claims, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   c.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(nextMonthBoundary(now)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed(err)
	}
	return signed, nil
}

// nextMonthBoundary returns the first second of the calendar month after t.
func nextMonthBoundary(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
}

func (j *JWTService) GenerateRefreshToken(userID kernel.UserID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTTL)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed(err)
	}
	return signed, nil
}

func (j *JWTService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithLeeway(j.leeway))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid()
	}
	return claims, nil
}

// ToAuthContext builds the request-scoped identity AuthContext (§5:
// "AuthContext is assembled once per request and never mutated").
func (c *Claims) ToAuthContext() *kernel.AuthContext {
	userID := c.UserID
	return &kernel.AuthContext{
		UserID:       &userID,
		TenantID:     c.TenantID,
		Email:        c.Email,
		Name:         c.Name,
		Scopes:       c.Scopes,
		IsAPIKey:     c.IsAPIKey,
		PATScopes:    c.PATScopes,
		PATAgentIDs:  c.PATAgentIDs,
		PATTenantIDs: c.PATTenantIDs,
	}
}
