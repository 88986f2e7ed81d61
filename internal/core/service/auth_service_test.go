package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

type fixture struct {
	users  *stubUserRepo
	links  *stubLinkRepo
	sender *captureSender
	codec  *SessionCodec
	svc    *AuthService
}

func newFixture(t *testing.T, autoRegister bool) *fixture {
	t.Helper()
	f := &fixture{
		users:  newStubUserRepo(),
		links:  newStubLinkRepo(),
		sender: &captureSender{},
		codec:  NewSessionCodec(SessionCodecConfig{Secret: "secret", TTL: time.Hour}),
	}
	f.svc = NewAuthService(f.users, f.links, f.codec, f.sender, AuthConfig{
		MagicLinkURL: "https://app.example.com/auth/magic-link/verify",
		AutoRegister: autoRegister,
		BcryptCost:   bcrypt.MinCost,
	}, zerolog.Nop())
	return f
}

func (f *fixture) register(t *testing.T, email, password string) *domain.PublicUser {
	t.Helper()
	u, err := f.svc.Register(context.Background(), ports.RegisterInput{Email: email, Password: password, Name: "Test"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func tokenFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("link has no token: %s", raw)
	}
	return tok
}

func TestAuthService_Register_Success(t *testing.T) {
	f := newFixture(t, false)

	user := f.register(t, "alice@example.com", "password123")
	if user.Role != domain.RoleUser {
		t.Fatalf("expected default role %q, got %q", domain.RoleUser, user.Role)
	}

	stored, err := f.users.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if stored.PasswordHash == "password123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cases := []ports.RegisterInput{
		{Email: "", Password: "password123"},
		{Email: "a@example.com", Password: "short"},
		{Email: "a@example.com", Password: "password123", Role: "superuser"},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newFixture(t, false)

	f.register(t, "bob@example.com", "password123")
	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Email: "bob@example.com", Password: "password456"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newFixture(t, false)
	registered := f.register(t, "carol@example.com", "s3cret-pass")

	res, err := f.svc.Login(context.Background(), "carol@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected token")
	}
	if res.User.ID != registered.ID || res.User.LastLoginAt == nil {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if n := f.users.loginCount(registered.ID); n != 1 {
		t.Fatalf("expected exactly one last-login update, got %d", n)
	}

	claims, err := f.codec.Decode(res.Token)
	if err != nil {
		t.Fatalf("decode issued token: %v", err)
	}
	if claims.Subject != registered.ID {
		t.Fatalf("expected subject %s, got %s", registered.ID, claims.Subject)
	}
}

func TestAuthService_Login_EnumerationResistance(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "dave@example.com", "goodpass1")

	_, wrongPass := f.svc.Login(context.Background(), "dave@example.com", "badpass12")
	_, unknown := f.svc.Login(context.Background(), "ghost@example.com", "badpass12")

	if !errors.Is(wrongPass, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPass)
	}
	if !errors.Is(unknown, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknown)
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("outcomes differ: %q vs %q", wrongPass, unknown)
	}
}

func TestAuthService_Login_EmailIsCaseSensitive(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "Erin@example.com", "password123")

	if _, err := f.svc.Login(context.Background(), "erin@example.com", "password123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_DisabledAndPasswordless(t *testing.T) {
	f := newFixture(t, false)
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	f.users.users["u-disabled"] = &domain.User{ID: "u-disabled", Email: "off@example.com", PasswordHash: string(hash), Disabled: true}
	f.users.users["u-nopass"] = &domain.User{ID: "u-nopass", Email: "link@example.com"}

	for _, email := range []string{"off@example.com", "link@example.com"} {
		if _, err := f.svc.Login(context.Background(), email, "password123"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", email, err)
		}
	}
	if f.users.loginCount("u-disabled") != 0 || f.users.loginCount("u-nopass") != 0 {
		t.Fatalf("last-login must not change on failure")
	}
}

func TestAuthService_Login_StoreUnavailable(t *testing.T) {
	f := newFixture(t, false)
	f.users.findErr = domain.ErrStoreUnavailable

	_, err := f.svc.Login(context.Background(), "frank@example.com", "password123")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthService_Login_CancelledBeforeUpdate(t *testing.T) {
	f := newFixture(t, false)
	user := f.register(t, "gina@example.com", "password123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Login(ctx, "gina@example.com", "password123"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := f.users.loginCount(user.ID); n != 0 {
		t.Fatalf("expected no last-login write, got %d", n)
	}
}

func TestAuthService_MagicLink_RoundTrip(t *testing.T) {
	f := newFixture(t, false)
	user := f.register(t, "hank@example.com", "password123")

	if err := f.svc.RequestMagicLink(context.Background(), "hank@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	delivery, ok := f.sender.last()
	if !ok || delivery.Email != "hank@example.com" {
		t.Fatalf("expected delivery to hank, got %+v", delivery)
	}
	token := tokenFromURL(t, delivery.URL)

	for hash := range f.links.links {
		if hash == token {
			t.Fatalf("raw token must not be stored")
		}
	}

	res, err := f.svc.RedeemMagicLink(context.Background(), token)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.User.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, res.User.ID)
	}

	if _, err := f.svc.RedeemMagicLink(context.Background(), token); !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed on reuse, got %v", err)
	}
}

func TestAuthService_MagicLink_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t, false)

	if err := f.svc.RequestMagicLink(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if _, ok := f.sender.last(); ok {
		t.Fatalf("no link should be sent for an unknown email")
	}
}

func TestAuthService_MagicLink_AutoRegister(t *testing.T) {
	f := newFixture(t, true)

	if err := f.svc.RequestMagicLink(context.Background(), "new@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	delivery, _ := f.sender.last()

	res, err := f.svc.RedeemMagicLink(context.Background(), tokenFromURL(t, delivery.URL))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	stored, err := f.users.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("expected account to be created: %v", err)
	}
	if stored.ID != res.User.ID || stored.HasPassword() {
		t.Fatalf("unexpected stored user: %+v", stored)
	}
}

func TestAuthService_MagicLink_Expired(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "ivy@example.com", "password123")

	now := time.Now()
	f.svc.cfg.Now = func() time.Time { return now }
	if err := f.svc.RequestMagicLink(context.Background(), "ivy@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	delivery, _ := f.sender.last()

	f.svc.cfg.Now = func() time.Time { return now.Add(defaultMagicLinkTTL + time.Second) }
	if _, err := f.svc.RedeemMagicLink(context.Background(), tokenFromURL(t, delivery.URL)); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_MagicLink_ConcurrentRedemption(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "jack@example.com", "password123")

	if err := f.svc.RequestMagicLink(context.Background(), "jack@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	delivery, _ := f.sender.last()
	token := tokenFromURL(t, delivery.URL)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		consumed  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RedeemMagicLink(context.Background(), token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyConsumed):
				consumed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || consumed != callers-1 {
		t.Fatalf("expected 1 success and %d consumed, got %d and %d", callers-1, successes, consumed)
	}
}

func TestAuthService_LoginWithOAuth(t *testing.T) {
	f := newFixture(t, false)
	user := f.register(t, "kate@example.com", "password123")

	res, err := f.svc.LoginWithOAuth(context.Background(), ports.OAuthIdentity{Provider: "github", Email: "kate@example.com"})
	if err != nil {
		t.Fatalf("oauth login: %v", err)
	}
	if res.User.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, res.User.ID)
	}

	if _, err := f.svc.LoginWithOAuth(context.Background(), ports.OAuthIdentity{Email: "stranger@example.com"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials without auto-register, got %v", err)
	}
}

func TestAuthService_SetPasswordThenLogin(t *testing.T) {
	f := newFixture(t, false)
	f.users.users["u-link"] = &domain.User{ID: "u-link", Email: "link@example.com", Role: domain.RoleUser}

	if err := f.svc.SetPassword(context.Background(), "u-link", "short"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := f.svc.SetPassword(context.Background(), "u-link", "new-password"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "link@example.com", "new-password"); err != nil {
		t.Fatalf("login after set password: %v", err)
	}
}
