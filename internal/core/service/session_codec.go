package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionguard/authgate/internal/core/domain"
)

const defaultSessionTTL = 24 * time.Hour

// DevSessionSecret signs tokens when no secret is configured. It is public and
// only acceptable for local development; configuration refuses it in
// production.
const DevSessionSecret = "authgate-insecure-development-secret"

// SessionCodecConfig is loaded once at startup and injected.
type SessionCodecConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// SessionCodec issues and verifies HS256 session tokens.
type SessionCodec struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	now     func() time.Time
	devMode bool
}

func NewSessionCodec(cfg SessionCodecConfig) *SessionCodec {
	c := &SessionCodec{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}
	if len(c.secret) == 0 {
		c.secret = []byte(DevSessionSecret)
		c.devMode = true
	}
	if c.ttl <= 0 {
		c.ttl = defaultSessionTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// UsesDevSecret reports whether the codec fell back to DevSessionSecret.
func (c *SessionCodec) UsesDevSecret() bool {
	return c.devMode
}

// TTL returns the lifetime of issued tokens.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject valid for the configured TTL.
func (c *SessionCodec) Issue(subject string) (string, *domain.SessionClaims, error) {
	if subject == "" {
		return "", nil, domain.ErrInvalidInput
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(c.ttl))),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}

	return signed, &domain.SessionClaims{
		Subject:   subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ceilSecond rounds t up to a whole second. NumericDate truncates, and a
// truncated exp would shorten the token's lifetime below the TTL.
func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second)
	}
	return t
}

// Decode verifies signature, algorithm, issuer and expiry. It performs no I/O
// and every failure is reported as domain.ErrInvalidToken.
func (c *SessionCodec) Decode(token string) (*domain.SessionClaims, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, domain.ErrInvalidToken
	}

	return &domain.SessionClaims{
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
