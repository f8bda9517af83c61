// Package server assembles and runs the authentication core: it opens the
// database, runs migrations, picks the challenge store backend, wires the
// services together, and serves the sidecar HTTP API until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/password"
	"github.com/dbelyaev/authcore/internal/server/api"
	"github.com/dbelyaev/authcore/internal/server/auth"
	"github.com/dbelyaev/authcore/internal/server/challenge"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/gateways"
	"github.com/dbelyaev/authcore/internal/server/metrics"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
	"github.com/dbelyaev/authcore/internal/server/services"
)

// Dependencies are the external collaborators the binary must provide.
// All three are required; dev builds pass the gateways package's dev
// implementations.
type Dependencies struct {
	Notifier gateways.NotificationGateway
	Provider gateways.ExternalOtpProvider
	Verifier gateways.FederatedIdentityVerifier
}

func (d Dependencies) validate() error {
	if d.Notifier == nil {
		return errors.New("notification gateway is required")
	}
	if d.Provider == nil {
		return errors.New("external otp provider is required")
	}
	if d.Verifier == nil {
		return errors.New("federated identity verifier is required")
	}
	return nil
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Auth           *services.AuthService
	Otp            *services.OtpService
	Identity       *services.IdentityService
	Sessions       *services.SessionService
	TrustedDevices *services.TrustedDeviceService
	Refresh        *services.RefreshService

	api *api.Server
}

func NewApp(ctx context.Context, cfg *config.Config, deps Dependencies) (*App, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := newChallengeStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewManager([]byte(cfg.SecretKey), cfg.TokenIssuer, cfg.AccessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("token manager init error: %w", err)
	}

	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, fmt.Errorf("password hasher init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	refresh := services.NewRefreshService(db, repos, cfg, logger, m)
	sessions := services.NewSessionService(db, repos, logger)
	trusted := services.NewTrustedDeviceService(db, repos, logger)
	authSvc := services.NewAuthService(db, repos, tokens, refresh, sessions, hasher, logger, m)
	otp := services.NewOtpService(db, repos, store, deps.Notifier, deps.Provider, authSvc, cfg, logger, m)
	identity := services.NewIdentityService(db, repos, deps.Verifier, deps.Notifier, authSvc, cfg, logger)

	return &App{
		config:         cfg,
		logger:         logger,
		db:             db,
		Auth:           authSvc,
		Otp:            otp,
		Identity:       identity,
		Sessions:       sessions,
		TrustedDevices: trusted,
		Refresh:        refresh,
		api:            api.NewServer(cfg.APIAddr, tokens, registry, logger),
	}, nil
}

// newChallengeStore picks redis when an address is configured so multiple
// instances share OTP state, and falls back to process-local memory for
// single-instance runs.
func newChallengeStore(ctx context.Context, cfg *config.Config) (challenge.Store, error) {
	if cfg.RedisAddr == "" {
		return challenge.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return challenge.NewRedisStore(client), nil
}

// Run serves until the context is cancelled or a termination signal
// arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.initSignalHandler(cancel)

	app.logger.Info(ctx, "starting authcore", "api_addr", app.config.APIAddr)

	err := app.api.Run(ctx)

	if closeErr := app.db.Close(); closeErr != nil {
		app.logger.Error(ctx, "db close error", "error", closeErr)
	}
	return err
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancel()
	}()
}
