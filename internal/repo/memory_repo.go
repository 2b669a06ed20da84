package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authhub/server/internal/model"
)

// MemoryUserRepo is an in-memory UserRepo used in tests and local
// development. It enforces the same email uniqueness and atomic OTP
// consumption guarantees as the postgres implementation, with a single
// mutex standing in for the unique index and conditional update.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User // keyed by email
}

// NewMemoryUserRepo builds an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.User)}
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return model.User{}, ErrDuplicateEmail
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	r.users[user.Email] = user
	return user, nil
}

func (r *MemoryUserRepo) GetOrCreateByEmail(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[user.Email]; ok {
		return existing, nil
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	r.users[user.Email] = user
	return user, nil
}

func (r *MemoryUserRepo) ConsumeOTP(_ context.Context, email, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok || !u.HasPendingOTP() {
		return false, nil
	}
	if *u.OTPCode != code || !now.Before(*u.OTPExpiresAt) {
		return false, nil
	}
	u.IsVerified = true
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	r.users[email] = u
	return true, nil
}

// Count returns the number of stored users.
func (r *MemoryUserRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
