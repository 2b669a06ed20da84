package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/authhub/server/internal/model"
)

// ErrDuplicateEmail is returned by Create when the email is already taken.
// The unique index on users.email is the authority here, not any preceding
// existence check.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrNotFound is returned when no user matches the query.
var ErrNotFound = errors.New("user not found")

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, user model.User) (model.User, error)
	// GetOrCreateByEmail inserts the user unless the email already exists,
	// then returns whichever row won. Used by federated reconciliation.
	GetOrCreateByEmail(ctx context.Context, user model.User) (model.User, error)
	// ConsumeOTP atomically verifies and clears a pending OTP challenge:
	// it matches on email + code + unexpired, and in the same statement
	// sets is_verified and clears both OTP columns. Returns false when
	// nothing matched.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (bool, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, password_hash, is_verified, otp_code, otp_expires_at, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsVerified,
		&user.OTPCode,
		&user.OTPExpiresAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts a new user. Returns ErrDuplicateEmail when the unique
// index rejects the email, including under concurrent signups.
func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, is_verified, otp_code, otp_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.IsVerified, user.OTPCode, user.OTPExpiresAt))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.User{}, ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return created, nil
}

// GetOrCreateByEmail inserts the user unless the email already exists, then
// selects whichever row is present. Relies on the unique index for race
// safety; two concurrent calls for the same email yield the same row.
func (r *userRepo) GetOrCreateByEmail(ctx context.Context, user model.User) (model.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, is_verified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.IsVerified)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return r.GetByEmail(ctx, user.Email)
}

// ConsumeOTP performs the verify-and-clear as a single conditional update so
// concurrent attempts cannot both observe the code as valid.
func (r *userRepo) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL
		WHERE email = $1 AND otp_code = $2 AND otp_expires_at > $3
	`, email, code, now)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume otp rows: %w", err)
	}
	return n == 1, nil
}
