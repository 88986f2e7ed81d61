package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RBAC admits only identities whose role is listed. It must run after Guard.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
			}
			if _, ok := allowed[id.Role]; !ok {
				return c.JSON(http.StatusForbidden, errorBody("forbidden"))
			}
			return next(c)
		}
	}
}
