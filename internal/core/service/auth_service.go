package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

const (
	defaultMagicLinkTTL = 15 * time.Minute
	minPasswordLength   = 8
)

// AuthConfig tunes the credential flows.
type AuthConfig struct {
	// MagicLinkTTL bounds how long an unredeemed link stays valid.
	MagicLinkTTL time.Duration
	// MagicLinkURL is the absolute verify endpoint the token is appended to.
	MagicLinkURL string
	// AutoRegister creates an account on the first magic link or OAuth
	// sign-in for an unknown email.
	AutoRegister bool
	BcryptCost   int
	Now          func() time.Time
}

// AuthService implements the credential verifier: password, magic link and
// OAuth sign-in, plus registration.
type AuthService struct {
	users  ports.UserRepository
	links  ports.MagicLinkRepository
	codec  ports.SessionCodec
	sender ports.LinkSender
	cfg    AuthConfig
	log    zerolog.Logger

	// dummyHash is compared against when no real hash exists so that unknown
	// emails cost the same as wrong passwords.
	dummyHash []byte
}

func NewAuthService(
	users ports.UserRepository,
	links ports.MagicLinkRepository,
	codec ports.SessionCodec,
	sender ports.LinkSender,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = defaultMagicLinkTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("authgate-timing-equalizer"), cfg.BcryptCost)
	if err != nil {
		log.Warn().Err(err).Msg("dummy hash generation failed, login timing is not equalized")
	}

	return &AuthService{
		users:     users,
		links:     links,
		codec:     codec,
		sender:    sender,
		cfg:       cfg,
		log:       log,
		dummyHash: dummy,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.PublicUser, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || len(in.Password) < minPasswordLength {
		return nil, domain.ErrInvalidInput
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}
	if !domain.ValidRole(in.Role) {
		return nil, domain.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.cfg.Now().UTC()
	created, err := s.users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	return created.Public(), nil
}

// Login verifies an email/password pair. Unknown emails, accounts without a
// password, disabled accounts and wrong passwords all yield
// domain.ErrInvalidCredentials after the same bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	if email == "" || password == "" {
		s.equalizeTiming(password)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.equalizeTiming(password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.HasPassword() || user.Disabled {
		s.equalizeTiming(password)
		return nil, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// RequestMagicLink issues a single-use sign-in link for email. An unknown
// email without auto-registration is accepted silently.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ErrInvalidInput
	}

	var pendingID string
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		if !s.cfg.AutoRegister {
			s.log.Debug().Msg("magic link requested for unknown email")
			return nil
		}
		pendingID = uuid.NewString()
	case err != nil:
		return err
	case user.Disabled:
		s.log.Debug().Str("user_id", user.ID).Msg("magic link requested for disabled account")
		return nil
	}

	raw, hash, err := newLinkToken()
	if err != nil {
		return fmt.Errorf("magic link token: %w", err)
	}

	now := s.cfg.Now().UTC()
	link := &domain.MagicLink{
		TokenHash:     hash,
		Email:         email,
		PendingUserID: pendingID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.MagicLinkTTL),
	}
	if err := s.links.Insert(ctx, link); err != nil {
		return err
	}

	delivery := ports.MagicLinkDelivery{Email: email, URL: s.linkURL(raw)}
	if err := s.sender.Send(ctx, delivery); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

// RedeemMagicLink consumes a magic link and starts a session for the bound
// email. A second redemption of the same link fails with
// domain.ErrAlreadyConsumed.
func (s *AuthService) RedeemMagicLink(ctx context.Context, token string) (*ports.LoginResult, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	link, err := s.links.Consume(ctx, hashLinkToken(token), s.cfg.Now().UTC())
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, link.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		if link.PendingUserID == "" || !s.cfg.AutoRegister {
			return nil, domain.ErrInvalidToken
		}
		user, err = s.createPasswordless(ctx, link.PendingUserID, link.Email, "")
	}
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, domain.ErrInvalidToken
	}

	return s.startSession(ctx, user)
}

// LoginWithOAuth starts a session for an identity already verified by an
// OAuth provider.
func (s *AuthService) LoginWithOAuth(ctx context.Context, identity ports.OAuthIdentity) (*ports.LoginResult, error) {
	if identity.Email == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, identity.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		if !s.cfg.AutoRegister {
			return nil, domain.ErrInvalidCredentials
		}
		user, err = s.createPasswordless(ctx, uuid.NewString(), identity.Email, identity.Name)
	}
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

func (s *AuthService) SetPassword(ctx context.Context, userID, password string) error {
	if len(password) < minPasswordLength {
		return domain.ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.SetPasswordHash(ctx, userID, string(hash), s.cfg.Now().UTC())
}

func (s *AuthService) CompleteOnboarding(ctx context.Context, userID string) error {
	return s.users.SetOnboardingComplete(ctx, userID, s.cfg.Now().UTC())
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// startSession issues the token first so that the only side effect, the
// last-login write, happens once everything else succeeded.
func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*ports.LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, claims, err := s.codec.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	now := s.cfg.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	return &ports.LoginResult{Token: token, Claims: claims, User: user.Public()}, nil
}

// createPasswordless registers an account without a password. A concurrent
// registration of the same email wins and its record is returned.
func (s *AuthService) createPasswordless(ctx context.Context, id, email, name string) (*domain.User, error) {
	now := s.cfg.Now().UTC()
	user, err := s.users.Create(ctx, &domain.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, domain.ErrUserExists) {
		return s.users.FindByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("account registered on first sign-in")
	return user, nil
}

func (s *AuthService) equalizeTiming(password string) {
	if s.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
	}
}

func (s *AuthService) linkURL(raw string) string {
	sep := "?"
	if strings.Contains(s.cfg.MagicLinkURL, "?") {
		sep = "&"
	}
	return s.cfg.MagicLinkURL + sep + "token=" + url.QueryEscape(raw)
}
