package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

// UserHandler serves the signed-in user's account and the admin lookup.
type UserHandler struct {
	authService ports.AuthService
}

func NewUserHandler(authService ports.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

type setPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Me returns the current user.
//
// @Summary      Current user
// @Tags         account
// @Produce      json
// @Security     SessionCookie
// @Security     BearerAuth
// @Success      200  {object}  domain.PublicUser
// @Failure      401  {object}  errorResponse
// @Router       /api/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.authService.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// SetPassword sets or replaces the password, also for passwordless accounts.
//
// @Summary      Set password
// @Tags         account
// @Accept       json
// @Security     SessionCookie
// @Security     BearerAuth
// @Param        body  body  setPasswordRequest  true  "New password"
// @Success      204
// @Failure      422  {object}  errorResponse
// @Router       /api/me/password [post]
func (h *UserHandler) SetPassword(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.authService.SetPassword(c.Request().Context(), userID, req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CompleteOnboarding marks onboarding as finished.
//
// @Summary      Complete onboarding
// @Tags         account
// @Security     SessionCookie
// @Security     BearerAuth
// @Success      204
// @Router       /api/me/onboarding [post]
func (h *UserHandler) CompleteOnboarding(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.authService.CompleteOnboarding(c.Request().Context(), userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetUser returns any user by id. Admin only.
//
// @Summary      Look up a user
// @Tags         admin
// @Produce      json
// @Security     SessionCookie
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  domain.PublicUser
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/admin/users/{id} [get]
func (h *UserHandler) GetUser(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return domain.ErrInvalidInput
	}
	user, err := h.authService.Me(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
