package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/sessionguard/authgate/docs"
	"github.com/sessionguard/authgate/internal/api/handler"
	"github.com/sessionguard/authgate/internal/api/middleware"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
	"github.com/sessionguard/authgate/internal/infrastructure/config"
	"github.com/sessionguard/authgate/internal/infrastructure/oauth"
)

const meOnboardingPath = "/api/me/onboarding"

// Dependencies are the wired services the router needs.
type Dependencies struct {
	Config      *config.Config
	AuthService ports.AuthService
	Codec       ports.SessionCodec
	Users       ports.UserRepository
	// Onboarding may be nil when the onboarding policy is disabled.
	Onboarding ports.OnboardingChecker
	OAuth      *oauth.Registry
	Pingers    []handler.Pinger
	Log        zerolog.Logger

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	cfg := deps.Config
	if deps.OAuth == nil {
		deps.OAuth = oauth.NewRegistry()
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "authgate",
		Registerer: deps.Registerer,
	}))
	e.Use(middleware.Guard(guardConfig(cfg, deps.OAuth), deps.Codec, deps.Users, deps.Onboarding, deps.Log))

	session := handler.SessionTransport{
		Mode:       cfg.Transport(),
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.CookieSecure,
	}
	authHandler := handler.NewAuthHandler(deps.AuthService, session)
	oauthHandler := handler.NewOAuthHandler(deps.AuthService, deps.OAuth, session)
	userHandler := handler.NewUserHandler(deps.AuthService)
	healthHandler := handler.NewHealthHandler(deps.Pingers...)

	// --- Auth routes (public) ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/logout", authHandler.Logout)
	e.POST("/auth/magic-link", authHandler.RequestMagicLink)
	e.GET("/auth/magic-link/verify", authHandler.VerifyMagicLink)
	e.GET("/auth/oauth/:provider/start", oauthHandler.Start)
	e.GET("/auth/oauth/:provider/callback", oauthHandler.Callback)

	// --- Account routes (guarded) ---
	e.GET("/api/me", userHandler.Me)
	e.POST("/api/me/password", userHandler.SetPassword)
	e.POST(meOnboardingPath, userHandler.CompleteOnboarding)

	admin := e.Group("/api/admin", middleware.RBAC(domain.RoleAdmin))
	admin.GET("/users/:id", userHandler.GetUser)

	// --- Operations ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// guardConfig adds the OAuth endpoints of configured providers to the public
// set; they are reached before any session exists.
func guardConfig(cfg *config.Config, providers *oauth.Registry) middleware.GuardConfig {
	public := append([]string(nil), cfg.Guard.PublicPaths...)
	for _, name := range providers.Names() {
		public = append(public, "/auth/oauth/"+name+"/start", "/auth/oauth/"+name+"/callback")
	}

	return middleware.GuardConfig{
		Routes:            domain.NewRouteClassifier(public, cfg.Guard.AssetPrefixes),
		Transport:         cfg.Transport(),
		CookieName:        cfg.Session.CookieName,
		LoginPath:         cfg.Guard.LoginPath,
		OnboardingPath:    cfg.Onboarding.Path,
		OnboardingPolicy:  cfg.Policy(),
		OnboardingTimeout: cfg.Onboarding.Timeout,
		OnboardingExempt:  []string{meOnboardingPath},
		APIPrefixes:       cfg.Guard.APIPrefixes,
	}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
