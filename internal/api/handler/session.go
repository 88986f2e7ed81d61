package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

// SessionTransport hands issued tokens to clients: as an HttpOnly cookie, or
// in the response body for bearer-header clients.
type SessionTransport struct {
	Mode       domain.TokenTransport
	CookieName string
	Secure     bool
}

type sessionResponse struct {
	Token     string             `json:"token,omitempty"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      *domain.PublicUser `json:"user"`
}

func (t SessionTransport) cookieName() string {
	if t.CookieName == "" {
		return "session"
	}
	return t.CookieName
}

func (t SessionTransport) usesCookie() bool {
	return t.Mode != domain.TransportHeader
}

// attach sets the cookie in cookie mode and builds the response body.
func (t SessionTransport) attach(c echo.Context, res *ports.LoginResult) sessionResponse {
	body := sessionResponse{User: res.User}
	if res.Claims != nil {
		body.ExpiresAt = res.Claims.ExpiresAt
	}

	if !t.usesCookie() {
		body.Token = res.Token
		return body
	}

	cookie := &http.Cookie{
		Name:     t.cookieName(),
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !body.ExpiresAt.IsZero() {
		cookie.Expires = body.ExpiresAt
		cookie.MaxAge = int(time.Until(body.ExpiresAt).Seconds())
	}
	c.SetCookie(cookie)
	return body
}

func (t SessionTransport) clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     t.cookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   t.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
