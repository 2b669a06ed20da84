package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents an identity in the system. PasswordHash is nil for
// identities created via federated login. OTPCode and OTPExpiresAt are set
// and cleared together while an email verification is pending.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash *string
	IsVerified   bool
	OTPCode      *string
	OTPExpiresAt *time.Time
	CreatedAt    time.Time
}

// HasPendingOTP reports whether a verification challenge is outstanding.
func (u *User) HasPendingOTP() bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil
}
