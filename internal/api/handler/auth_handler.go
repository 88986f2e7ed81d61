package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sessionguard/authgate/internal/api/metrics"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

const homePath = "/"

type AuthHandler struct {
	authService ports.AuthService
	session     SessionTransport
}

func NewAuthHandler(authService ports.AuthService, session SessionTransport) *AuthHandler {
	return &AuthHandler{authService: authService, session: session}
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name"     validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type magicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type registerResponse struct {
	User *domain.PublicUser `json:"user"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// errorResponse documents the envelope written by api.NewHTTPErrorHandler.
type errorResponse struct {
	Error string `json:"error"`
}

// Register creates a password account with the default role.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	metrics.RegistrationsTotal.Inc()

	return c.JSON(http.StatusCreated, registerResponse{User: user})
}

// Login verifies email and password and starts a session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	metrics.ObserveLogin(metrics.MethodPassword, err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.session.attach(c, res))
}

// Logout clears the session cookie. Tokens are stateless, so header clients
// simply discard theirs.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if h.session.usesCookie() {
		h.session.clear(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestMagicLink sends a sign-in link. The response is the same whether or
// not the address belongs to an account.
//
// @Summary      Request a magic sign-in link
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      magicLinkRequest  true  "Recipient"
// @Success      202   {object}  statusResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/magic-link [post]
func (h *AuthHandler) RequestMagicLink(c echo.Context) error {
	var req magicLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.authService.RequestMagicLink(c.Request().Context(), req.Email); err != nil {
		return err
	}
	metrics.MagicLinksRequestedTotal.Inc()

	return c.JSON(http.StatusAccepted, statusResponse{Status: "if the address can sign in, a link is on its way"})
}

// VerifyMagicLink redeems a magic link. Cookie clients are redirected home
// with the session set; header clients receive the token.
//
// @Summary      Redeem a magic link
// @Tags         auth
// @Produce      json
// @Param        token  query     string  true  "Link token"
// @Success      200    {object}  sessionResponse
// @Success      303
// @Failure      401    {object}  errorResponse
// @Router       /auth/magic-link/verify [get]
func (h *AuthHandler) VerifyMagicLink(c echo.Context) error {
	res, err := h.authService.RedeemMagicLink(c.Request().Context(), c.QueryParam("token"))
	metrics.ObserveLogin(metrics.MethodMagicLink, err)
	if err != nil {
		return err
	}

	body := h.session.attach(c, res)
	if h.session.usesCookie() {
		return c.Redirect(http.StatusSeeOther, homePath)
	}
	return c.JSON(http.StatusOK, body)
}
