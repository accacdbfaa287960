package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"doclocker/internal/cache"
	"doclocker/internal/config"
	"doclocker/internal/database"
	"doclocker/internal/database/migration"
	handlers "doclocker/internal/http/handler"
	"doclocker/internal/http/middleware"
	"doclocker/internal/logging"
	"doclocker/internal/metrics"
	"doclocker/internal/otel"
	"doclocker/internal/repository/postgres"
	"doclocker/internal/service"
	"doclocker/internal/storage"
)

const (
	shutdownTimeout = 15 * time.Second
	// Multipart framing and form fields on top of the file itself.
	bodyLimitSlack = 1 << 20
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Connect to PostgreSQL and object storage, apply pending migrations and serve the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	log, closeLog := logging.New(cfg.Log, time.Local)
	defer closeLog()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		return err
	}

	objStore, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	bindingCache, closeCache, err := newBindingCache(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeCache()

	domainMetrics, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, db); err != nil {
		return err
	}
	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	auth, err := middleware.NewAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}

	// Initialize repositories and services
	docRepo := postgres.NewDocumentPostgres(db)
	qrRepo := postgres.NewQRBindingPostgres(db)
	scanRepo := postgres.NewScanLogPostgres(db)

	opts := service.Options{
		DBTimeout:      cfg.Database.Timeout,
		PresignExpiry:  cfg.Storage.PresignExpiry,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		AllowedTypes:   cfg.Storage.AllowedTypes,
		PublicBaseURL:  cfg.PublicBaseURL,
		Logger:         log,
		Metrics:        domainMetrics,
	}

	scanLogSvc := service.NewScanLogService(scanRepo, opts)
	recorder := service.NewScanRecorder(scanLogSvc, service.RecorderConfig{
		Workers:     cfg.Scan.Workers,
		QueueSize:   cfg.Scan.QueueSize,
		MaxAttempts: cfg.Scan.MaxAttempts,
	}, log, domainMetrics)
	qrSvc := service.NewQRCodeService(service.QRCodeDeps{
		Bindings: qrRepo,
		Docs:     docRepo,
		ScanLogs: scanRepo,
		Store:    objStore,
		Cache:    bindingCache,
		Recorder: recorder,
	}, opts)
	docSvc := service.NewDocumentService(objStore, docRepo, qrSvc, opts)

	scanLimiter := middleware.NewRateLimiter(cfg.Scan.RateLimit, cfg.Scan.RateBurst)
	defer scanLimiter.Close()

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Storage.MaxUploadBytes) + bodyLimitSlack,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMW.Handler())

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:        db,
		Documents: docSvc,
		QRCodes:   qrSvc,
		ScanLogs:  scanLogSvc,
		Auth:      auth.Handler(),
		ScanLimit: scanLimiter.Handler(),
		Metrics:   promhttp.Handler(),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"event": "server_started", "addr": addr}).Info("listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.WithField("event", "server_stopping").Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// Drain queued scan log writes before the database pool closes.
	if err := recorder.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scan recorder: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.WithError(err).WithField("event", "server_stopped").Error("shutdown incomplete")
		return err
	}
	log.WithField("event", "server_stopped").Info("shutdown complete")
	return nil
}

// newBindingCache returns a Redis-backed cache when an address is
// configured and a no-op cache otherwise.
func newBindingCache(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) (cache.BindingCache, func(), error) {
	if cfg.Addr == "" {
		return cache.Noop{}, func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return cache.NewRedis(client, cfg.TTL, log), func() { _ = client.Close() }, nil
}
