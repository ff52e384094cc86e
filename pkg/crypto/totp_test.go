package crypto

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestTOTPGenerateAndValidate(t *testing.T) {
	svc := NewTOTPService("flowctl", 60)
	enrollment, err := svc.GenerateSecret("user@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(enrollment.QRCodePNG) == 0 {
		t.Fatal("expected non-empty QR code")
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := svc.ValidateCode(code, enrollment.Secret); err != nil {
		t.Fatalf("ValidateCode: %v", err)
	}
}

func TestTOTPValidateRejectsWrongCode(t *testing.T) {
	svc := NewTOTPService("flowctl", 1)
	enrollment, err := svc.GenerateSecret("user@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if err := svc.ValidateCode("000000", enrollment.Secret); err == nil {
		t.Fatal("expected invalid code to be rejected")
	}
}

func TestGenerateBackupCodesAreUnique(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	seen := make(map[string]bool)
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate backup code: %s", c)
		}
		seen[c] = true
		if len(c) != 9 { // XXXX-XXXX
			t.Fatalf("unexpected backup code length: %q", c)
		}
	}
}
