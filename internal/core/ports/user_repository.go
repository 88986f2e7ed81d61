package ports

import (
	"context"
	"time"

	"github.com/sessionguard/authgate/internal/core/domain"
)

// UserRepository is the user record store. Implementations return
// domain.ErrUserNotFound for a missing record and wrap every I/O failure in
// domain.ErrStoreUnavailable.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// UpdateLastLogin is a single-row atomic update.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error
	SetOnboardingComplete(ctx context.Context, id string, at time.Time) error
}
