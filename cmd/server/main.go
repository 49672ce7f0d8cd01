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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"unitysales/backend/internal/cache"
	"unitysales/backend/internal/config"
	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/httpapi"
	"unitysales/backend/internal/jobs"
	"unitysales/backend/internal/logging"
	"unitysales/backend/internal/metrics"
	"unitysales/backend/internal/service"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/store/memory"
	pgstore "unitysales/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", slog.Any("error", err))
			}
		}
	}()

	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied")
		}
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", slog.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", slog.String("backend", "memory"))
	}

	readCache := cache.Cache(cache.Noop{})
	redisReady := false
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL())
		if err := redisCache.Ping(startCtx); err != nil {
			logger.Warn("redis unavailable, using noop cache", slog.Any("error", err))
			_ = redisCache.Close()
		} else {
			readCache = redisCache
			redisReady = true
			closers = append(closers, redisCache.Close)
			logger.Info("cache ready", slog.String("backend", "redis"))
		}
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		Cache:          readCache,
		Metrics:        m,
		Logger:         logger,
		NearExpiryDays: cfg.NearExpiryDays,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	if err := seedAdmin(startCtx, auth, cfg, logger); err != nil {
		return err
	}

	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		Production:         cfg.IsProduction(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            m,
		Logger:             logger,
	})

	workerDone := make(chan struct{})
	if cfg.JobsEnabled && redisReady {
		go func() {
			defer close(workerDone)
			if err := runWorker(ctx, cfg, svc, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("job worker stopped", slog.Any("error", err))
			}
		}()
	} else {
		close(workerDone)
		if cfg.JobsEnabled {
			logger.Warn("JOBS_ENABLED is set but redis is unavailable; expiry scan disabled")
		}
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("unity sales backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}
	stop()
	<-workerDone

	logger.Info("server stopped")
	return nil
}

func runWorker(ctx context.Context, cfg config.Config, svc *service.Service, logger *slog.Logger) error {
	task, err := jobs.NewExpiryScanTask("cron")
	if err != nil {
		return err
	}
	scan := jobs.NewExpiryScanJob(svc, logger.With("component", "jobs"))
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger.With("component", "jobs"),
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskInventoryExpiryScan, Handler: scan.Handle}},
		Cron:      []jobs.CronRegistration{{Spec: cfg.ExpiryScanCron, Task: task}},
	})
	if err != nil {
		return fmt.Errorf("configure job worker: %w", err)
	}
	return worker.Run(ctx)
}

// seedAdmin creates the first admin account on an empty user table so a
// fresh database can be signed into.
func seedAdmin(ctx context.Context, auth *httpapi.AuthManager, cfg config.Config, logger *slog.Logger) error {
	if auth.HasUsers() {
		return nil
	}
	if cfg.SeedAdminPassword == "" {
		logger.Warn("no user accounts found; set SEED_ADMIN_PASSWORD to create the first admin")
		return nil
	}
	if _, err := auth.CreateUser(ctx, domain.UserCreateRequest{
		Username: "admin",
		Password: cfg.SeedAdminPassword,
		Role:     domain.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info("seeded admin account")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
