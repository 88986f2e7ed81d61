package ports

import "context"

// MagicLinkDelivery is a sign-in link addressed to one recipient.
type MagicLinkDelivery struct {
	Email string
	URL   string
}

// LinkSender hands a magic link to the delivery channel (email in
// production, the log in development).
type LinkSender interface {
	Send(ctx context.Context, delivery MagicLinkDelivery) error
}

// OAuthProvider exchanges an authorization code for a verified identity.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (OAuthIdentity, error)
}
