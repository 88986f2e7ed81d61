package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sessionguard/authgate/internal/api/metrics"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

const defaultOnboardingTimeout = 2 * time.Second

// GuardConfig is the static configuration of the route guard.
type GuardConfig struct {
	Routes            *domain.RouteClassifier
	Transport         domain.TokenTransport
	CookieName        string
	LoginPath         string
	OnboardingPath    string
	OnboardingPolicy  domain.OnboardingPolicy
	OnboardingTimeout time.Duration
	// OnboardingExempt lists extra paths (and their subtrees) that skip the
	// onboarding check, such as the endpoint that completes onboarding.
	OnboardingExempt []string
	// APIPrefixes mark requests that get status codes instead of redirects.
	APIPrefixes []string
}

type guard struct {
	cfg        GuardConfig
	codec      ports.SessionCodec
	users      ports.UserRepository
	onboarding ports.OnboardingChecker
	log        zerolog.Logger
}

// Guard authenticates every non-public request and enforces onboarding.
//
// Pages without a valid session are redirected to the login path with a
// "next" parameter; API requests get 401. A user that has not finished
// onboarding is sent to the onboarding path (pages) or gets 403 (API).
// onboarding may be nil when the policy is disabled.
func Guard(cfg GuardConfig, codec ports.SessionCodec, users ports.UserRepository, onboarding ports.OnboardingChecker, log zerolog.Logger) echo.MiddlewareFunc {
	if cfg.Routes == nil {
		cfg.Routes = domain.NewRouteClassifier(nil, nil)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.OnboardingTimeout <= 0 {
		cfg.OnboardingTimeout = defaultOnboardingTimeout
	}
	if onboarding == nil {
		cfg.OnboardingPolicy = domain.OnboardingDisabled
	}

	g := &guard{cfg: cfg, codec: codec, users: users, onboarding: onboarding, log: log}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			outcome, err := g.evaluate(c)
			metrics.GuardDecisionsTotal.WithLabelValues(string(outcome)).Inc()
			if err != nil || outcome != domain.OutcomeAllowed {
				return err
			}
			return next(c)
		}
	}
}

// evaluate writes the response itself for every outcome except allowed.
func (g *guard) evaluate(c echo.Context) (domain.GuardOutcome, error) {
	path := c.Request().URL.Path
	if g.cfg.Routes.IsPublic(path) {
		return domain.OutcomeAllowed, nil
	}

	token := g.extractToken(c.Request())
	if token == "" {
		return domain.OutcomeRejected, g.unauthenticated(c)
	}

	claims, err := g.codec.Decode(token)
	if err != nil {
		return domain.OutcomeRejected, g.unauthenticated(c)
	}

	ctx := c.Request().Context()
	user, err := g.users.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return domain.OutcomeRejected, g.unauthenticated(c)
	case err != nil:
		g.log.Error().Err(err).Str("path", path).Msg("guard: user lookup failed")
		return domain.OutcomeRejected, c.JSON(http.StatusServiceUnavailable, errorBody("service unavailable"))
	case user.Disabled:
		return domain.OutcomeRejected, g.unauthenticated(c)
	}

	SetIdentity(c, Identity{UserID: user.ID, Email: user.Email, Role: user.Role})

	if g.cfg.OnboardingPolicy == domain.OnboardingDisabled || g.onboardingExempt(path) {
		return domain.OutcomeAllowed, nil
	}

	completed, err := g.checkOnboarding(ctx, user)
	if err != nil {
		if g.cfg.OnboardingPolicy == domain.OnboardingFailOpen {
			g.log.Error().Err(err).Str("user_id", user.ID).Msg("guard: onboarding check failed, allowing")
			return domain.OutcomeAllowed, nil
		}
		g.log.Error().Err(err).Str("user_id", user.ID).Msg("guard: onboarding check failed, rejecting")
		if g.isAPI(path) {
			return domain.OutcomeRejected, c.JSON(http.StatusServiceUnavailable, errorBody("service unavailable"))
		}
		return domain.OutcomeRejected, g.redirectToLogin(c)
	}
	if !completed {
		if g.isAPI(path) {
			return domain.OutcomeRedirectedToOnboarding, c.JSON(http.StatusForbidden, errorBody("onboarding required"))
		}
		return domain.OutcomeRedirectedToOnboarding, c.Redirect(http.StatusFound, g.cfg.OnboardingPath)
	}
	return domain.OutcomeAllowed, nil
}

func (g *guard) checkOnboarding(ctx context.Context, user *domain.User) (bool, error) {
	start := time.Now()

	var (
		completed bool
		err       error
	)
	if rc, ok := g.onboarding.(ports.RecordOnboardingChecker); ok {
		completed = rc.CompletedFor(user)
	} else {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.OnboardingTimeout)
		completed, err = g.onboarding.Completed(ctx, user.ID)
		cancel()
	}

	result := "pending"
	switch {
	case err != nil:
		result = "error"
	case completed:
		result = "completed"
	}
	metrics.OnboardingCheckDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return completed, err
}

// extractToken reads only the configured transport; a bearer header is
// ignored in cookie mode and the reverse.
func (g *guard) extractToken(r *http.Request) string {
	if g.cfg.Transport == domain.TransportHeader {
		scheme, token, ok := strings.Cut(r.Header.Get(echo.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	cookie, err := r.Cookie(g.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (g *guard) unauthenticated(c echo.Context) error {
	if g.isAPI(c.Request().URL.Path) {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
	}
	return g.redirectToLogin(c)
}

func (g *guard) redirectToLogin(c echo.Context) error {
	target := g.cfg.LoginPath + "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
	return c.Redirect(http.StatusFound, target)
}

func (g *guard) isAPI(path string) bool {
	for _, prefix := range g.cfg.APIPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *guard) onboardingExempt(path string) bool {
	if underPath(path, g.cfg.OnboardingPath) {
		return true
	}
	for _, p := range g.cfg.OnboardingExempt {
		if underPath(path, p) {
			return true
		}
	}
	return false
}

func underPath(path, root string) bool {
	root = strings.TrimRight(root, "/")
	return root != "" && (path == root || strings.HasPrefix(path, root+"/"))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
