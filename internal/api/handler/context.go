package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/api/middleware"
)

// currentUserID returns the caller resolved by the guard. Its absence means
// the route was registered without the guard, so it fails closed with 401.
func currentUserID(c echo.Context) (string, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return id.UserID, nil
}
