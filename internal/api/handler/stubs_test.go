package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/api/middleware"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

type stubAuthService struct {
	registerFn   func(ctx context.Context, in ports.RegisterInput) (*domain.PublicUser, error)
	loginFn      func(ctx context.Context, email, password string) (*ports.LoginResult, error)
	requestFn    func(ctx context.Context, email string) error
	redeemFn     func(ctx context.Context, token string) (*ports.LoginResult, error)
	oauthFn      func(ctx context.Context, identity ports.OAuthIdentity) (*ports.LoginResult, error)
	setPassFn    func(ctx context.Context, userID, password string) error
	onboardingFn func(ctx context.Context, userID string) error
	meFn         func(ctx context.Context, userID string) (*domain.PublicUser, error)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.PublicUser, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) RequestMagicLink(ctx context.Context, email string) error {
	return s.requestFn(ctx, email)
}

func (s *stubAuthService) RedeemMagicLink(ctx context.Context, token string) (*ports.LoginResult, error) {
	return s.redeemFn(ctx, token)
}

func (s *stubAuthService) LoginWithOAuth(ctx context.Context, identity ports.OAuthIdentity) (*ports.LoginResult, error) {
	return s.oauthFn(ctx, identity)
}

func (s *stubAuthService) SetPassword(ctx context.Context, userID, password string) error {
	return s.setPassFn(ctx, userID, password)
}

func (s *stubAuthService) CompleteOnboarding(ctx context.Context, userID string) error {
	return s.onboardingFn(ctx, userID)
}

func (s *stubAuthService) Me(ctx context.Context, userID string) (*domain.PublicUser, error) {
	return s.meFn(ctx, userID)
}

func loginResult(userID string) *ports.LoginResult {
	return &ports.LoginResult{
		Token:  "signed.jwt.token",
		Claims: &domain.SessionClaims{Subject: userID, ExpiresAt: time.Now().Add(time.Hour)},
		User:   &domain.PublicUser{ID: userID, Email: userID + "@example.com", Role: domain.RoleUser},
	}
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func authenticated(c echo.Context, userID, role string) echo.Context {
	middleware.SetIdentity(c, middleware.Identity{UserID: userID, Role: role})
	return c
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

var (
	cookieSession = SessionTransport{Mode: domain.TransportCookie, CookieName: "session"}
	headerSession = SessionTransport{Mode: domain.TransportHeader}
)
