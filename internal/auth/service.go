package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/authhub/server/internal/mailer"
	"github.com/authhub/server/internal/model"
	"github.com/authhub/server/internal/repo"
)

// Assertion is the set of claims a federated identity provider vouches for
// after its own authentication ceremony.
type Assertion struct {
	Email       string
	DisplayName string
}

// AuthService orchestrates the signup, verification and login flows
type AuthService struct {
	userRepo   repo.UserRepo
	jwtService *JWTService
	sender     mailer.Sender
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repo.UserRepo, jwtService *JWTService, sender mailer.Sender) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
		sender:     sender,
	}
}

// NormalizeEmail lowercases and trims an email address. All lookups and
// writes go through this so the store's unique index sees one form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignupWithVerification creates an unverified identity with a pending OTP
// challenge and emails the code. When the email cannot be delivered the
// identity remains created and ErrNotificationFailed is returned alongside
// it; the caller must report the partial success explicitly.
func (s *AuthService) SignupWithVerification(ctx context.Context, username, email, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return model.User{}, ErrAllFieldsRequired
	}

	// Advisory pre-check; the unique index is the real guard.
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return model.User{}, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, err
	}

	code, expiresAt, err := GenerateOTP()
	if err != nil {
		return model.User{}, err
	}

	user, err := s.userRepo.Create(ctx, model.User{
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		IsVerified:   false,
		OTPCode:      &code,
		OTPExpiresAt: &expiresAt,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return model.User{}, ErrEmailAlreadyRegistered
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your verification OTP is:</p><h2>%s</h2><p>This OTP will expire in 10 minutes.</p>",
		username, code)
	if err := s.sender.Send(email, "Verify your email", body); err != nil {
		log.Printf("User %s: OTP email delivery failed: %v", maskEmail(email), err)
		return user, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	return user, nil
}

// SignupWithoutVerification creates an identity that is verified from the
// start and immediately issues a bearer token.
func (s *AuthService) SignupWithoutVerification(ctx context.Context, username, email, password string) (model.User, string, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return model.User{}, "", ErrAllFieldsRequired
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return model.User{}, "", ErrEmailAlreadyRegistered
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, "", fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, "", err
	}

	user, err := s.userRepo.Create(ctx, model.User{
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		IsVerified:   true,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return model.User{}, "", ErrEmailAlreadyRegistered
		}
		return model.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.jwtService.Sign(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", err
	}

	return user, token, nil
}

// VerifyOTP validates and consumes a pending OTP challenge. Consumption is
// a single conditional update at the store, so a code validates at most
// once even under concurrent attempts. All failure causes collapse to
// ErrInvalidOrExpiredOTP at the boundary.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)

	consumed, err := s.userRepo.ConsumeOTP(ctx, email, code, time.Now())
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}
	if consumed {
		return nil
	}

	// Re-read only to classify the failure for logs; the user sees one
	// message regardless.
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidOrExpiredOTP
		}
		return fmt.Errorf("verify otp: %w", err)
	}
	cause := classifyOTPFailure(user, code, time.Now())
	log.Printf("User %s: OTP verification failed: %v", maskEmail(email), cause)
	return cause
}

// Login authenticates a verified identity by password and issues a token.
// Unknown email, missing hash and wrong password all collapse to
// ErrInvalidCredentials; only the unverified state is reported distinctly.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.User, string, error) {
	email = NormalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, "", errUnknownEmail
		}
		return model.User{}, "", fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsVerified {
		return model.User{}, "", ErrNotVerified
	}

	if user.PasswordHash == nil {
		return model.User{}, "", errNoPasswordHash
	}
	if !CheckPassword(password, user.PasswordHash) {
		return model.User{}, "", errWrongPassword
	}

	token, err := s.jwtService.Sign(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", err
	}

	return user, token, nil
}

// FederatedLogin reconciles a provider assertion onto a local identity and
// issues a token. A first assertion for an email creates a verified
// identity with no password hash; later assertions are pure lookups and
// never overwrite local fields.
func (s *AuthService) FederatedLogin(ctx context.Context, assertion Assertion) (model.User, string, error) {
	email := NormalizeEmail(assertion.Email)
	if email == "" {
		return model.User{}, "", ErrAssertionIncomplete
	}

	user, err := s.userRepo.GetOrCreateByEmail(ctx, model.User{
		Username:   assertion.DisplayName,
		Email:      email,
		IsVerified: true,
	})
	if err != nil {
		return model.User{}, "", fmt.Errorf("reconcile identity: %w", err)
	}

	token, err := s.jwtService.Sign(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", err
	}

	return user, token, nil
}

// maskEmail masks an email address for logging (e.g. al***@x.com)
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "****"
	}
	keep := 2
	if at < keep {
		keep = at
	}
	return email[:keep] + "***" + email[at:]
}
