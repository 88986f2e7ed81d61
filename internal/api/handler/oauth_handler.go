package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/api/metrics"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
	"github.com/sessionguard/authgate/internal/infrastructure/oauth"
)

const (
	stateCookieName = "oauth_state"
	stateCookiePath = "/auth/oauth"
	stateTTL        = 10 * time.Minute
)

// ProviderLookup resolves a configured OAuth provider by name.
type ProviderLookup interface {
	Get(name string) (ports.OAuthProvider, error)
}

type OAuthHandler struct {
	authService ports.AuthService
	providers   ProviderLookup
	session     SessionTransport
}

func NewOAuthHandler(authService ports.AuthService, providers ProviderLookup, session SessionTransport) *OAuthHandler {
	return &OAuthHandler{authService: authService, providers: providers, session: session}
}

// Start redirects to the provider's consent page.
//
// @Summary      Start OAuth sign-in
// @Tags         oauth
// @Param        provider  path  string  true  "google or github"
// @Success      302
// @Failure      404  {object}  errorResponse
// @Router       /auth/oauth/{provider}/start [get]
func (h *OAuthHandler) Start(c echo.Context) error {
	provider, err := h.provider(c)
	if err != nil {
		return err
	}

	state, err := oauth.NewState()
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     stateCookiePath,
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	return c.Redirect(http.StatusFound, provider.AuthCodeURL(state))
}

// Callback checks the state, exchanges the code and starts a session.
//
// @Summary      OAuth callback
// @Tags         oauth
// @Produce      json
// @Param        provider  path   string  true  "google or github"
// @Param        code      query  string  true  "Authorization code"
// @Param        state     query  string  true  "State echoed by the provider"
// @Success      200  {object}  sessionResponse
// @Success      303
// @Failure      401  {object}  errorResponse
// @Router       /auth/oauth/{provider}/callback [get]
func (h *OAuthHandler) Callback(c echo.Context) error {
	provider, err := h.provider(c)
	if err != nil {
		return err
	}

	stored, _ := c.Cookie(stateCookieName)
	c.SetCookie(&http.Cookie{Name: stateCookieName, Path: stateCookiePath, MaxAge: -1, HttpOnly: true})
	if stored == nil || !oauth.StateMatches(c.QueryParam("state"), stored.Value) {
		metrics.ObserveLogin(metrics.MethodOAuth, domain.ErrInvalidCredentials)
		return domain.ErrInvalidCredentials
	}
	if c.QueryParam("error") != "" {
		metrics.ObserveLogin(metrics.MethodOAuth, domain.ErrInvalidCredentials)
		return domain.ErrInvalidCredentials
	}

	ctx := c.Request().Context()
	identity, err := provider.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		metrics.ObserveLogin(metrics.MethodOAuth, err)
		return err
	}

	res, err := h.authService.LoginWithOAuth(ctx, identity)
	metrics.ObserveLogin(metrics.MethodOAuth, err)
	if err != nil {
		return err
	}

	body := h.session.attach(c, res)
	if h.session.usesCookie() {
		return c.Redirect(http.StatusSeeOther, homePath)
	}
	return c.JSON(http.StatusOK, body)
}

func (h *OAuthHandler) provider(c echo.Context) (ports.OAuthProvider, error) {
	p, err := h.providers.Get(c.Param("provider"))
	if errors.Is(err, oauth.ErrUnknownProvider) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	}
	return p, err
}
