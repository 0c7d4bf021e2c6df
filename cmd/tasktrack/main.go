package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Tasktrack/internal/adapter/gcs"
	cfhttp "github.com/Strob0t/Tasktrack/internal/adapter/http"
	"github.com/Strob0t/Tasktrack/internal/adapter/litellm"
	"github.com/Strob0t/Tasktrack/internal/adapter/localfs"
	cfnats "github.com/Strob0t/Tasktrack/internal/adapter/nats"
	"github.com/Strob0t/Tasktrack/internal/adapter/natskv"
	"github.com/Strob0t/Tasktrack/internal/adapter/otel"
	"github.com/Strob0t/Tasktrack/internal/adapter/postgres"
	"github.com/Strob0t/Tasktrack/internal/adapter/ristretto"
	"github.com/Strob0t/Tasktrack/internal/adapter/tiered"
	"github.com/Strob0t/Tasktrack/internal/config"
	"github.com/Strob0t/Tasktrack/internal/logger"
	"github.com/Strob0t/Tasktrack/internal/middleware"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
	"github.com/Strob0t/Tasktrack/internal/resilience"
	"github.com/Strob0t/Tasktrack/internal/secrets"
	"github.com/Strob0t/Tasktrack/internal/service"
)

const serviceName = "tasktrack"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Auth.Enabled,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := otel.Setup(ctx, cfg.OTEL, serviceName)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Secrets ---

	vault, err := secrets.NewVault(secretsLoader(holder))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache l1: %w", err)
	}
	defer l1.Close()
	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("cache l2: %w", err)
	}
	userCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.UserTTL)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}

	files, closeFiles, err := openFileStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	defer closeFiles()

	llm := litellm.NewClient(cfg.Summarizer.URL, cfg.Summarizer.MasterKey, cfg.Summarizer.Timeout)
	llm.SetKeySource(vault.Source(secrets.SummarizerMasterKey))
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.OnStateChange(func(from, to resilience.State) {
		slog.Warn("summarizer breaker state changed", "from", from, "to", to)
	})
	llm.SetBreaker(breaker)

	// --- Services ---

	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(&cfg.Auth)
	authSvc.SetSecretSource(vault.Source(secrets.JWTSecret))
	userSvc := service.NewUserService(store, userCache, cfg.Cache.UserTTL)
	docSvc := service.NewDocumentService(store, files, queue, metrics, cfg.Upload.MaxBytes)
	taskSvc := service.NewTaskService(store, userSvc, docSvc, queue, metrics)
	issueSvc := service.NewIssueService(store, userSvc, metrics)
	auditSvc := service.NewAuditService(store)

	worker := service.NewSummaryWorker(queue, files,
		litellm.NewSummarizer(llm, cfg.Summarizer.Model, cfg.Summarizer.MaxContent),
		cfg.Summarizer.MaxConcurrent, cfg.Summarizer.Timeout, metrics)
	stopWorker, err := worker.Start(ctx)
	if err != nil {
		return err
	}
	defer stopWorker()

	cancelSummarized, err := queue.Subscribe(ctx, messagequeue.SubjectDocumentSummarized, docSvc.HandleSummarized)
	if err != nil {
		return fmt.Errorf("summary result subscriber: %w", err)
	}
	defer cancelSummarized()

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return err
	}
	stopNotify, err := service.NewNotificationService(store, userSvc, notifiers, cfg.Notify.Events).Start(ctx, queue)
	if err != nil {
		return err
	}
	defer stopNotify()

	// --- HTTP ---

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &cfhttp.Handlers{
		Tasks:       taskSvc,
		Issues:      issueSvc,
		Users:       userSvc,
		Audit:       auditSvc,
		Checks:      readinessChecks(pool, queue, llm),
		UploadLimit: cfg.Upload.MaxBytes,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(otel.HTTPMiddleware(serviceName))
	r.Use(middleware.Auth(authSvc))
	r.Use(limiter.Handler)
	r.Use(middleware.Idempotency(natskv.New(idemKV), cfg.Idempotency.TTL))
	r.Use(chimw.Timeout(60 * time.Second))

	cfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchReload(ctx, hup, holder, vault, limiter)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// In-flight summaries still publish their results before NATS drains.
	stopWorker()
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}

// secretsLoader layers the current config values under an optional secrets
// file and the environment.
func secretsLoader(holder *config.Holder) secrets.Loader {
	fromConfig := func() (map[string]string, error) {
		cfg := holder.Get()
		return secrets.StaticLoader(map[string]string{
			secrets.JWTSecret:           cfg.Auth.JWTSecret,
			secrets.SummarizerMasterKey: cfg.Summarizer.MasterKey,
		})()
	}
	return secrets.Merge(
		fromConfig,
		secrets.FileLoader(os.Getenv("TASKTRACK_SECRETS_FILE")),
		secrets.EnvLoader(secrets.JWTSecret, secrets.SummarizerMasterKey),
	)
}

func openFileStore(ctx context.Context, cfg config.Storage) (filestore.Store, func(), error) {
	switch cfg.Backend {
	case "gcs":
		s, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := localfs.New(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func readinessChecks(pool *pgxpool.Pool, queue *cfnats.Queue, llm *litellm.Client) map[string]cfhttp.HealthCheck {
	return map[string]cfhttp.HealthCheck{
		"postgres": pool.Ping,
		"nats": func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
		"summarizer": func(ctx context.Context) error {
			_, err := llm.Health(ctx)
			return err
		},
	}
}

// watchReload applies config and secret changes on SIGHUP. Settings that
// need new connections (ports, DSNs, buckets) still require a restart.
func watchReload(ctx context.Context, hup <-chan os.Signal, holder *config.Holder, vault *secrets.Vault, limiter *middleware.RateLimiter) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		if err := holder.Reload(); err != nil {
			slog.Error("config reload failed", "error", err)
			continue
		}
		cfg := holder.Get()
		logger.SetLevel(cfg.Logging.Level)
		limiter.SetLimits(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
		if err := vault.Reload(); err != nil {
			slog.Error("secrets reload failed", "error", err)
		}
		slog.Info("config reloaded", "log_level", cfg.Logging.Level, "secrets", len(vault.Keys()))
	}
}
