package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Identity is the authenticated caller resolved by the guard.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

const identityKey = "identity"

type identityCtxKey struct{}

// SetIdentity attaches id to c and to its request context.
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
	c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), identityCtxKey{}, id)))
}

// IdentityFrom returns the identity the guard attached to c.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// IdentityFromContext is IdentityFrom for code that only sees the request context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
