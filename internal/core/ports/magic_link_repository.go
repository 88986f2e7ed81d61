package ports

import (
	"context"
	"time"

	"github.com/sessionguard/authgate/internal/core/domain"
)

// MagicLinkRepository persists single-use sign-in links keyed by token hash.
type MagicLinkRepository interface {
	Insert(ctx context.Context, link *domain.MagicLink) error

	// Consume atomically marks the link as used and returns it. Exactly one
	// of several concurrent callers succeeds; the others get
	// domain.ErrAlreadyConsumed. Unknown or expired links yield
	// domain.ErrInvalidToken.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error)
}
