// Command api runs the authgate HTTP service.
//
//	@title						authgate API
//	@version					1.0
//	@description				Authentication and session guard service.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						session
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionguard/authgate/internal/api"
	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
	"github.com/sessionguard/authgate/internal/core/service"
	"github.com/sessionguard/authgate/internal/infrastructure/config"
	"github.com/sessionguard/authgate/internal/infrastructure/notify"
	"github.com/sessionguard/authgate/internal/infrastructure/oauth"
	"github.com/sessionguard/authgate/internal/infrastructure/onboarding"
	"github.com/sessionguard/authgate/internal/infrastructure/queue"
	"github.com/sessionguard/authgate/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fatalLog := logger.Init(logger.Options{})
		fatalLog.Fatal().Err(err).Msg("authgate stopped")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "authgate",
	})

	codec := service.NewSessionCodec(service.SessionCodecConfig{
		Secret: cfg.Session.Secret,
		TTL:    cfg.SessionTTL(),
		Issuer: cfg.Session.Issuer,
	})
	if codec.UsesDevSecret() {
		log.Warn().Msg("SESSION_SECRET is not set, signing sessions with the public development secret")
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	// Delivery outlives the HTTP server so that links requested during
	// shutdown still go out.
	deliveryCtx, stopDelivery := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.MagicLink.Workers, notify.NewLogSender(log), log)
	dispatcher.Start(deliveryCtx)
	defer func() {
		stopDelivery()
		dispatcher.Wait()
	}()

	auth := service.NewAuthService(st.users, st.links, codec, dispatcher, service.AuthConfig{
		MagicLinkTTL: cfg.MagicLink.TTL,
		MagicLinkURL: cfg.MagicLink.VerifyURL,
		AutoRegister: cfg.MagicLink.AutoRegister,
	}, log)

	if err := seedAdmin(ctx, cfg.Admin, auth, log); err != nil {
		return err
	}

	if st.sweeper != nil {
		go sweepExpiredLinks(ctx, st.sweeper, log)
	}

	providers := oauth.FromCredentials(cfg.OAuth.RedirectBaseURL,
		oauth.Credentials{ClientID: cfg.OAuth.GoogleClientID, ClientSecret: cfg.OAuth.GoogleClientSecret},
		oauth.Credentials{ClientID: cfg.OAuth.GitHubClientID, ClientSecret: cfg.OAuth.GitHubClientSecret},
	)
	log.Info().Strs("oauth_providers", providers.Names()).Msg("oauth providers configured")

	e := api.NewRouter(api.Dependencies{
		Config:      cfg,
		AuthService: auth,
		Codec:       codec,
		Users:       st.users,
		Onboarding:  onboardingChecker(cfg, st.users),
		OAuth:       providers,
		Pingers:     st.pingers,
		Log:         log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("transport", string(cfg.Transport())).
			Str("onboarding_policy", string(cfg.Policy())).
			Str("store", cfg.StoreBackend).
			Str("magic_links", cfg.MagicLinkBackend).
			Msg("authgate listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func onboardingChecker(cfg *config.Config, users ports.UserRepository) ports.OnboardingChecker {
	if cfg.Policy() == domain.OnboardingDisabled {
		return nil
	}
	if cfg.Onboarding.URL != "" {
		return onboarding.NewHTTPChecker(cfg.Onboarding.URL, cfg.Onboarding.Timeout, nil)
	}
	return onboarding.NewRepositoryChecker(users)
}

// seedAdmin registers the configured administrator once; an existing
// account with that email is left untouched.
func seedAdmin(ctx context.Context, admin config.AdminConfig, auth ports.AuthService, log zerolog.Logger) error {
	if admin.Email == "" || admin.Password == "" {
		return nil
	}
	user, err := auth.Register(ctx, ports.RegisterInput{
		Email:    admin.Email,
		Password: admin.Password,
		Name:     "Administrator",
		Role:     domain.RoleAdmin,
	})
	switch {
	case errors.Is(err, domain.ErrUserExists):
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("user_id", user.ID).Msg("administrator account created")
	return nil
}
