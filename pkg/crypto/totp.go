package crypto

import (
	"bytes"
	"crypto/rand"
	"image/png"
	"math/big"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	CodeTOTPGenerationFailed = ErrRegistry.Register("TOTP_GENERATION_FAILED", errx.TypeInternal, 500, "failed to generate TOTP secret")
	CodeTOTPInvalidCode      = ErrRegistry.Register("TOTP_INVALID_CODE", errx.TypeAuthorization, 401, "invalid or expired TOTP code")
)

func ErrTOTPGenerationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeTOTPGenerationFailed, cause)
}
func ErrTOTPInvalidCode() *errx.Error { return ErrRegistry.New(CodeTOTPInvalidCode) }

// TOTPService issues and validates RFC 6238 time-based one-time codes for
// second-factor enrollment. ValidWindow widens the acceptance skew beyond the
// library default of one step so a user is not locked out by modest client
// clock drift.
type TOTPService struct {
	issuer      string
	validWindow uint
}

func NewTOTPService(issuer string, validWindow uint) *TOTPService {
	if validWindow == 0 {
		validWindow = 1
	}
	return &TOTPService{issuer: issuer, validWindow: validWindow}
}

// Enrollment carries everything a client needs to finish TOTP setup: the
// raw secret for manual entry and a PNG QR code for scanning.
type Enrollment struct {
	Secret    string
	QRCodePNG []byte
}

// GenerateSecret mints a new TOTP secret scoped to accountName (typically the
// user's email) and renders it as a QR code image.
func (s *TOTPService) GenerateSecret(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, ErrTOTPGenerationFailed(err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, ErrTOTPGenerationFailed(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, ErrTOTPGenerationFailed(err)
	}

	return &Enrollment{Secret: key.Secret(), QRCodePNG: buf.Bytes()}, nil
}

// ValidateCode checks code against secret within the configured skew window.
func (s *TOTPService) ValidateCode(code, secret string) error {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      s.validWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrTOTPInvalidCode()
	}
	return nil
}

// CurrentCode returns the TOTP code valid for secret at the current moment,
// used by server-delivered (emailed) one-time codes where the code is
// generated on the server rather than read off an authenticator app.
func (s *TOTPService) CurrentCode(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      s.validWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", ErrTOTPGenerationFailed(err)
	}
	return code, nil
}

// GenerateBackupCodes creates single-use recovery codes for when a user loses
// their authenticator device. Callers must hash codes before persisting them.
func GenerateBackupCodes(count int) ([]string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codes := make([]string, count)
	for i := 0; i < count; i++ {
		var code [8]byte
		for j := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
			if err != nil {
				return nil, errx.Wrap(err, "failed to generate backup code", errx.TypeInternal)
			}
			code[j] = chars[n.Int64()]
		}
		codes[i] = string(code[:4]) + "-" + string(code[4:])
	}
	return codes, nil
}
