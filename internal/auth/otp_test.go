package auth

import (
	"regexp"
	"testing"
	"time"

	"github.com/authhub/server/internal/model"
)

func TestGenerateOTP_format(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, expiresAt, err := GenerateOTP()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Errorf("code should be 6 digits with leading zeros, got %q", code)
		}
		remaining := time.Until(expiresAt)
		if remaining < 9*time.Minute || remaining > 10*time.Minute {
			t.Errorf("expiry should be ~10 minutes out, got %v", remaining)
		}
	}
}

func TestGenerateOTP_varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, _, err := GenerateOTP()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("20 draws should produce more than one distinct code")
	}
}

func TestClassifyOTPFailure(t *testing.T) {
	now := time.Now()
	code := "042135"
	future := now.Add(5 * time.Minute)
	past := now.Add(-time.Minute)

	pending := model.User{OTPCode: &code, OTPExpiresAt: &future}
	expired := model.User{OTPCode: &code, OTPExpiresAt: &past}

	if err := classifyOTPFailure(model.User{}, code, now); err != errOTPNotPending {
		t.Errorf("no pending challenge should classify as not pending, got %v", err)
	}
	if err := classifyOTPFailure(expired, code, now); err != errOTPExpired {
		t.Errorf("past expiry should classify as expired, got %v", err)
	}
	// Boundary: exactly at the expiry instant the code can no longer succeed
	atExpiry := model.User{OTPCode: &code, OTPExpiresAt: &now}
	if err := classifyOTPFailure(atExpiry, code, now); err != errOTPExpired {
		t.Errorf("validation at the expiry instant should classify as expired, got %v", err)
	}
	if err := classifyOTPFailure(pending, "999999", now); err != errOTPMismatch {
		t.Errorf("wrong code should classify as mismatch, got %v", err)
	}
}
