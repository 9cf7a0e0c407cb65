package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-folio-auth"
	"github.com/goliatone/go-folio-auth/activitymap"
	"github.com/goliatone/go-folio-auth/config"
	"github.com/goliatone/go-folio-auth/persistence"
	"github.com/goliatone/go-folio-auth/registry"
	"github.com/goliatone/go-folio-auth/social/providers/firebase"
	"github.com/goliatone/go-folio-auth/social/providers/github"
	"github.com/goliatone/go-folio-auth/social/providers/google"
	"github.com/goliatone/go-folio-auth/social/providers/oidc"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
)

type App struct {
	config   *config.Config
	db       *bun.DB
	registry *registry.Redis
	metrics  *prometheus.Registry
	manager  *auth.SessionManager
	srv      router.Server[*fiber.App]
	fiberApp *fiber.App
	logger   *logrus.Logger
	closers  []func()
}

func main() {
	configPath := flag.String("config", os.Getenv("FOLIO_CONFIG"), "path to the YAML config file")
	flag.Parse()

	lgr := logrus.New()
	lgr.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		lgr.WithError(err).Fatal("failed to load config")
	}
	configureLogger(lgr, cfg.Log)

	app := &App{
		config:  cfg,
		logger:  lgr,
		metrics: prometheus.NewRegistry(),
	}
	defer app.Close()

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.WithError(err).Fatal("failed to init persistence")
	}

	if err := WithRegistry(ctx, app); err != nil {
		lgr.WithError(err).Fatal("failed to connect to redis")
	}

	if err := WithSessionManager(ctx, app); err != nil {
		lgr.WithError(err).Fatal("failed to init session manager")
	}

	WithHTTPServer(app)

	go func() {
		lgr.WithField("addr", cfg.Server.Addr).Info("folio auth listening")
		if err := app.srv.Serve(cfg.Server.Addr); err != nil {
			lgr.WithError(err).Error("server stopped")
		}
	}()

	sig := WaitExitSignal()
	lgr.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := app.fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		lgr.WithError(err).Error("graceful shutdown failed")
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	dbc := app.config.Database

	db, err := persistence.Open(ctx, dbc.Driver, dbc.DSN)
	if err != nil {
		return err
	}
	app.db = db
	app.closers = append(app.closers, func() { _ = db.Close() })

	if dbc.AutoMigrate {
		if err := auth.CreateSchema(ctx, db); err != nil {
			return err
		}
	}

	return nil
}

func WithRegistry(ctx context.Context, app *App) error {
	rc := app.config.Redis

	reg, err := registry.Connect(ctx, registry.Options{
		URL:       rc.URL,
		Password:  rc.Password,
		DB:        rc.DB,
		PoolSize:  rc.PoolSize,
		KeyPrefix: rc.KeyPrefix,
	})
	if err != nil {
		return err
	}
	app.registry = reg
	app.closers = append(app.closers, func() { _ = reg.Close() })

	return nil
}

func WithSessionManager(ctx context.Context, app *App) error {
	cfg := app.config
	logger := auth.NewLogrusLogger(app.logger)

	repo := auth.NewRepositoryManager(app.db)
	if err := repo.Validate(); err != nil {
		return err
	}

	sink, err := auth.NewPrometheusActivitySink(app.metrics)
	if err != nil {
		return err
	}

	fb, err := firebase.New(ctx, firebase.Config{
		ProjectID: cfg.Firebase.ProjectID,
		JWKSURL:   cfg.Firebase.JWKSURL,
		OnRefreshError: func(err error) {
			logger.Warn("firebase key refresh failed", "error", err)
		},
	})
	if err != nil {
		return err
	}
	app.closers = append(app.closers, fb.Close)

	opts := []auth.SessionManagerOption{
		auth.WithLogger(logger),
		auth.WithActivitySink(activitymap.Fanout(sink, activitymap.NewLogSink(logger))),
		auth.WithAssertionVerifier(fb),
		auth.WithOAuthProvider(github.New(github.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  cfg.GitHub.RedirectURI,
		})),
	}

	if cfg.Google.Enabled() {
		opts = append(opts, auth.WithOAuthProvider(google.New(google.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.Google.RedirectURI,
		})))
	}

	if cfg.OIDC.Enabled() {
		verifier, err := oidc.New(ctx, oidc.Config{
			Name:      cfg.OIDC.Name,
			IssuerURL: cfg.OIDC.IssuerURL,
			ClientID:  cfg.OIDC.ClientID,
			JWKSURL:   cfg.OIDC.JWKSURL,
		})
		if err != nil {
			return err
		}
		opts = append(opts, auth.WithAssertionVerifier(verifier))
	}

	tokens := auth.NewTokenService(cfg.Auth, auth.WithTokenLogger(logger))
	app.manager = auth.NewSessionManager(repo, tokens, app.registry, app.registry, cfg.Auth, opts...)

	oauthProviders, assertionProviders := app.manager.Providers()
	logger.Info("identity providers registered", "oauth", oauthProviders, "assertion", assertionProviders)

	return nil
}

func WithHTTPServer(app *App) {
	cfg := app.config.Server
	logger := auth.NewLogrusLogger(app.logger)

	app.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.srv = router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		a := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "folio-auth",
			ReadTimeout:  cfg.ReadTimeout.Std(),
			WriteTimeout: cfg.WriteTimeout.Std(),
			ErrorHandler: auth.NewHTTPErrorHandler(logger),
		}))

		a.Use(recover.New())
		a.Use(requestid.New())
		if cfg.RateLimit > 0 {
			a.Use("/auth", limiter.New(limiter.Config{
				Max:        cfg.RateLimit,
				Expiration: cfg.RateWindow.Std(),
			}))
		}
		a.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{})))

		app.fiberApp = a
		return a
	})

	app.srv.Router().Get("/healthz", func(c router.Context) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		if err := app.db.PingContext(ctx); err != nil {
			logger.Error("health check database ping failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "check": "database"})
		}
		if err := app.registry.Ping(ctx); err != nil {
			logger.Error("health check redis ping failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "check": "redis"})
		}
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	}).SetName("healthz")

	auth.NewHTTPController(app.manager, auth.WithControllerLogger(logger)).
		RegisterRoutes(app.srv.Router().Group("/auth"))
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func configureLogger(lgr *logrus.Logger, cfg config.LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		lgr.SetLevel(level)
	}
	if cfg.Format == "text" {
		lgr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
