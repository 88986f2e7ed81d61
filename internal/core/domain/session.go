package domain

import "time"

// SessionClaims is the minimal claim set carried by a session token.
type SessionClaims struct {
	Subject   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// MagicLink is a single-use sign-in token. Only the SHA-256 hash of the
// random token is ever stored.
type MagicLink struct {
	TokenHash     string
	Email         string
	PendingUserID string // set when the link may register a new account
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
}

// Expired reports whether the link is no longer redeemable at now.
func (m *MagicLink) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}
