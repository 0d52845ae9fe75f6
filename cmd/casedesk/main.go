package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/casedesk/pkg/api"
	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/cases"
	"github.com/arbiterhq/casedesk/pkg/config"
	"github.com/arbiterhq/casedesk/pkg/documents"
	"github.com/arbiterhq/casedesk/pkg/identity"
	"github.com/arbiterhq/casedesk/pkg/institutions"
	"github.com/arbiterhq/casedesk/pkg/middleware"
	"github.com/arbiterhq/casedesk/pkg/notify"
	"github.com/arbiterhq/casedesk/pkg/observability"
	"github.com/arbiterhq/casedesk/pkg/storage"
	"github.com/arbiterhq/casedesk/pkg/store"
	"github.com/arbiterhq/casedesk/pkg/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "casedesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	handlerLogger := logrus.New()
	handlerLogger.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	// Database. The service can start without one, serving only health
	// and metrics, so a fresh environment comes up before its database.
	db, err := store.Open(ctx, store.ConnectionConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		Timeout:  cfg.Database.Timeout,
	})
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		logger.Warn("No database configured, API routes are disabled")
	case err != nil:
		return fmt.Errorf("failed to open database: %w", err)
	default:
		shutdown.Register("database", func(ctx context.Context) error { return db.Close() })
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		shutdown.Register("redis", func(ctx context.Context) error { return redisClient.Close() })
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	deps := api.Dependencies{
		DefaultBucket: cfg.ObjectStore.Bucket,
		Logger:        handlerLogger,
		AppLogger:     logger,
		Metrics:       metrics,
	}

	objectStore, err := storage.NewS3Store(ctx, cfg.ObjectStore)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Warn("No object store configured, document routes are disabled")
	case err != nil:
		return fmt.Errorf("failed to initialize object store: %w", err)
	default:
		deps.ObjectStore = objectStore
	}

	var provider identity.Provider
	if cfg.Identity.IssuerURL != "" {
		oidcProvider, err := identity.NewOIDCProvider(ctx, cfg.Identity)
		if err != nil {
			return fmt.Errorf("failed to initialize identity provider: %w", err)
		}
		provider = oidcProvider
	} else {
		logger.Warn("No identity provider configured, profiles are provisioned locally")
	}

	if db != nil {
		recorder, err := audit.NewDBRecorder(db)
		if err != nil {
			return fmt.Errorf("failed to initialize audit recorder: %w", err)
		}
		deps.Audit = recorder

		profiles := users.NewPostgresRepository(db)
		deps.Profiles = profiles
		deps.Users = users.NewManager(profiles, provider, recorder, db, logger, metrics)
		deps.Institutions = institutions.NewPostgresService(db)
		deps.Cases = cases.NewPostgresService(db)

		if deps.ObjectStore != nil {
			pipeline := documents.NewPipeline(deps.ObjectStore, logger, metrics)
			deps.Documents = documents.NewManager(documents.NewPostgresRepository(db), deps.ObjectStore, pipeline, recorder, logger)
		}

		if provider != nil {
			deps.Auth = middleware.NewAuthMiddleware(provider, profiles, logger, false)
		} else {
			logger.Warn("Authentication middleware is disabled without an identity provider")
		}

		listener, err := notify.NewRoleChangeListener(cfg.Database.URL, func(event *audit.RoleChangeNotification) {
			logger.WithFields(map[string]interface{}{
				"user_id":  event.UserID,
				"new_role": event.NewRole,
			}).Info("Role change observed")
		}, nil, logger)
		if err != nil {
			logger.WithError(err).Warn("Role change listener failed to start")
		} else {
			shutdown.Register("role-listener", func(ctx context.Context) error { return listener.Close() })
		}
	}

	if redisClient != nil {
		rateLimit, err := middleware.NewRateLimitMiddleware(redisClient, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiting: %w", err)
		}
		deps.RateLimit = rateLimit
	}

	health := observability.NewHealthChecker(db, redisClient, logger)
	deps.Health = health

	server := api.NewServer(deps)
	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(server, "casedesk")
	}
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:     healthMux(health, metrics),
		ReadTimeout: 5 * time.Second,
	}
	shutdown.RegisterServer("api", apiServer)
	shutdown.RegisterServer("health", healthServer)

	if metrics != nil && db != nil {
		go collectDBStats(ctx, metrics, db)
	}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		health.SetReady(true)
		return shutdown.WaitForShutdown()
	})

	return group.Wait()
}

func healthMux(health *observability.HealthChecker, metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.LivenessHandler())
	mux.Handle("/readyz", health.ReadinessHandler())
	if metrics != nil {
		mux.Handle("/metrics", observability.MetricsHandler())
	}
	return mux
}

func collectDBStats(ctx context.Context, metrics *observability.Metrics, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CollectDBStats(db)
		}
	}
}
