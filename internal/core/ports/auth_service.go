package ports

import (
	"context"

	"github.com/sessionguard/authgate/internal/core/domain"
)

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// LoginResult is returned by every successful sign-in flow.
type LoginResult struct {
	Token  string
	Claims *domain.SessionClaims
	User   *domain.PublicUser
}

// OAuthIdentity is the verified identity returned by an OAuth provider.
type OAuthIdentity struct {
	Provider string
	Email    string
	Name     string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.PublicUser, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	RequestMagicLink(ctx context.Context, email string) error
	RedeemMagicLink(ctx context.Context, token string) (*LoginResult, error)
	LoginWithOAuth(ctx context.Context, identity OAuthIdentity) (*LoginResult, error)
	SetPassword(ctx context.Context, userID, password string) error
	CompleteOnboarding(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.PublicUser, error)
}
