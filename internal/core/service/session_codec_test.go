package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionguard/authgate/internal/core/domain"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestSessionCodec_RoundTrip(t *testing.T) {
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret"})

	for _, id := range []string{"u1", "6f1c0a5e-8a1b-4a57-9d38-2f6a6f6f2f10", "ünïcødé"} {
		token, issued, err := codec.Issue(id)
		if err != nil {
			t.Fatalf("issue %q: %v", id, err)
		}
		claims, err := codec.Decode(token)
		if err != nil {
			t.Fatalf("decode %q: %v", id, err)
		}
		if claims.Subject != id {
			t.Fatalf("expected subject %q, got %q", id, claims.Subject)
		}
		if !claims.ExpiresAt.Equal(issued.ExpiresAt) {
			t.Fatalf("expiry mismatch: %v vs %v", claims.ExpiresAt, issued.ExpiresAt)
		}
	}
}

func TestSessionCodec_DefaultTTL(t *testing.T) {
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret"})
	if codec.TTL() != 24*time.Hour {
		t.Fatalf("expected 24h default TTL, got %v", codec.TTL())
	}
}

func TestSessionCodec_ExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret", TTL: time.Second, Now: clock.Now})

	token, _, err := codec.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode immediately: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("expected u1, got %s", claims.Subject)
	}

	clock.Advance(2 * time.Second)
	if _, err := codec.Decode(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after TTL, got %v", err)
	}
}

func TestSessionCodec_FractionalSecondIssueKeepsFullTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 990*int(time.Millisecond), time.UTC)}
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret", TTL: time.Second, Now: clock.Now})

	token, issued, err := codec.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if lifetime := issued.ExpiresAt.Sub(clock.now); lifetime < time.Second {
		t.Fatalf("expected at least 1s lifetime, got %v", lifetime)
	}

	clock.Advance(20 * time.Millisecond)
	if _, err := codec.Decode(token); err != nil {
		t.Fatalf("decode 20ms after issue: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := codec.Decode(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after TTL, got %v", err)
	}
}

func TestSessionCodec_RejectsTampering(t *testing.T) {
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret"})
	token, _, err := codec.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	forgedSigned, _ := forged.SignedString([]byte("other-secret"))
	forgedParts := strings.Split(forgedSigned, ".")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noneSigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "u1",
		IssuedAt: jwt.NewNumericDate(time.Now()),
	})
	noExpSigned, _ := noExp.SignedString([]byte("secret"))

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-token",
		"swapped payload": parts[0] + "." + forgedParts[1] + "." + parts[2],
		"wrong secret":    forgedSigned,
		"alg none":        noneSigned,
		"missing exp":     noExpSigned,
		"truncated":       token[:len(token)-4],
	}
	for name, tok := range cases {
		if _, err := codec.Decode(tok); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestSessionCodec_IssuerMismatch(t *testing.T) {
	a := NewSessionCodec(SessionCodecConfig{Secret: "secret", Issuer: "authgate"})
	b := NewSessionCodec(SessionCodecConfig{Secret: "secret", Issuer: "other"})

	token, _, err := b.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Decode(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionCodec_DevSecretFallback(t *testing.T) {
	codec := NewSessionCodec(SessionCodecConfig{})
	if !codec.UsesDevSecret() {
		t.Fatalf("expected dev secret fallback")
	}
	if NewSessionCodec(SessionCodecConfig{Secret: "x"}).UsesDevSecret() {
		t.Fatalf("configured secret must not report dev fallback")
	}
}

func TestSessionCodec_IssueRequiresSubject(t *testing.T) {
	codec := NewSessionCodec(SessionCodecConfig{Secret: "secret"})
	if _, _, err := codec.Issue(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
