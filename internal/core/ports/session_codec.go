package ports

import "github.com/sessionguard/authgate/internal/core/domain"

// SessionCodec encodes session claims into a signed transport token.
type SessionCodec interface {
	Issue(subject string) (string, *domain.SessionClaims, error)
	// Decode never distinguishes failure causes: any problem is
	// domain.ErrInvalidToken.
	Decode(token string) (*domain.SessionClaims, error)
}
