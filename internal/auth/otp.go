package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/authhub/server/internal/model"
)

const (
	otpRange  = 1000000 // codes are 6 digits, 000000-999999
	otpExpiry = 10 * time.Minute
)

// GenerateOTP returns a 6-digit code drawn uniformly from 000000-999999
// (leading zeros kept) and its absolute expiry instant.
func GenerateOTP() (code string, expiresAt time.Time, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), time.Now().Add(otpExpiry), nil
}

// classifyOTPFailure explains why a challenge did not validate. The store's
// atomic consume is the authority; this read-only check only picks the
// internal error variant for logging and tests. An expired code is not
// consumed, it just can no longer succeed.
func classifyOTPFailure(user model.User, code string, now time.Time) error {
	if !user.HasPendingOTP() {
		return errOTPNotPending
	}
	if !now.Before(*user.OTPExpiresAt) {
		return errOTPExpired
	}
	if *user.OTPCode != code {
		return errOTPMismatch
	}
	// The challenge looked valid on re-read; a concurrent attempt consumed
	// it between the update and this read.
	return ErrInvalidOrExpiredOTP
}
