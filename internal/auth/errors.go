package auth

import (
	"errors"
	"fmt"
)

// User-facing sentinel errors. Handlers map these to HTTP statuses.
var (
	// ErrAllFieldsRequired indicates a missing username, email or password.
	ErrAllFieldsRequired = errors.New("all fields are required")

	// ErrEmailAlreadyRegistered indicates the email is taken.
	ErrEmailAlreadyRegistered = errors.New("user already exists")

	// ErrInvalidCredentials covers unknown email, wrong password and a
	// missing password hash. The causes are deliberately collapsed so the
	// login endpoint cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotVerified is distinct from ErrInvalidCredentials: unverified
	// accounts are explicitly told to verify first.
	ErrNotVerified = errors.New("please verify your email before logging in")

	// ErrInvalidOrExpiredOTP covers unknown email, wrong code and expired
	// code. Collapsed for the same reason as ErrInvalidCredentials.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired OTP")

	// ErrAssertionIncomplete indicates a federated assertion without an
	// email claim.
	ErrAssertionIncomplete = errors.New("federated assertion missing email claim")

	// ErrNotificationFailed indicates the OTP email could not be delivered.
	// The identity has already been created when this is returned.
	ErrNotificationFailed = errors.New("failed to send verification email")
)

// Internal variants. Each wraps its collapsed user-facing sentinel so logs
// and tests can distinguish causes while errors.Is at the boundary cannot.
var (
	errOTPNotPending = fmt.Errorf("%w: no pending code", ErrInvalidOrExpiredOTP)
	errOTPExpired    = fmt.Errorf("%w: code expired", ErrInvalidOrExpiredOTP)
	errOTPMismatch   = fmt.Errorf("%w: code mismatch", ErrInvalidOrExpiredOTP)

	errUnknownEmail   = fmt.Errorf("%w: unknown email", ErrInvalidCredentials)
	errNoPasswordHash = fmt.Errorf("%w: no password set", ErrInvalidCredentials)
	errWrongPassword  = fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
)
