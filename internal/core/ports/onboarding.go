package ports

import (
	"context"

	"github.com/sessionguard/authgate/internal/core/domain"
)

// OnboardingChecker answers whether a user finished the required onboarding
// step. An error means the check could not complete.
type OnboardingChecker interface {
	Completed(ctx context.Context, userID string) (bool, error)
}

// RecordOnboardingChecker answers from a user record the caller already
// loaded, so no further store read is needed.
type RecordOnboardingChecker interface {
	OnboardingChecker
	CompletedFor(user *domain.User) bool
}
