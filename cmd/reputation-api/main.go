package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/billing"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/handler"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/notifier"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/objectstore"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/repository"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/resilient"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/family"
	"github.com/fennsaji/call-shield-sub001/internal/platform/config"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
	"github.com/fennsaji/call-shield-sub001/internal/ratelimit"
	"github.com/fennsaji/call-shield-sub001/internal/reputation"
	"github.com/fennsaji/call-shield-sub001/internal/seed"
)

const rateWindow = time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("reputation-api failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Config)
	slog.SetDefault(log)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	repo := repository.NewPostgresRepository(dbPool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	limiters := newLimiterFactory(ctx, cfg, log)
	defer limiters.Close()

	reputationSvc := reputation.NewService(repo, reputation.Limits{
		Report:  limiters.New("report", cfg.ReportLimitPerHour),
		Correct: limiters.New("correct", cfg.CorrectLimitPerHour),
		Lookup:  limiters.New("lookup", cfg.LookupLimitPerHour),
	}, log)

	var alerts ports.AlertNotifier
	if cfg.SlackBotToken != "" {
		alerts = notifier.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackMentionTeam)
		log.Info("slack notifier enabled", "channel", cfg.SlackChannel)
	} else {
		log.Warn("slack notifier disabled (no SLACK_BOT_TOKEN)")
	}
	hardener := reputation.NewHardener(repo, alerts, reputation.DefaultHardeningConfig(), log)

	deps := handler.Deps{
		Reputation: reputationSvc,
		Hardener:   hardener,
		DB:         repo,
	}

	if cfg.MinioEndpoint != "" {
		publisher, err := objectstore.NewMinioPublisher(objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, log)
		if err != nil {
			return err
		}
		deps.Catalog = seed.NewCatalog(repo, publisher, cfg.SeedURLExpiry)
	} else {
		log.Warn("seed manifest endpoint disabled (no MINIO_ENDPOINT)")
	}

	if cfg.FamilyTokenSecret != "" && cfg.BillingVerifyURL != "" {
		verifier := billing.NewVerifier(cfg.BillingVerifyURL, cfg.BillingAPIKey, resilient.DefaultConfig("billing"), log)
		deps.Family = family.NewService(repo, verifier, family.NewTokens(cfg.FamilyTokenSecret),
			limiters.New("family", cfg.FamilyLimitPerHour), log)
		log.Info("family pairing enabled")
	} else {
		log.Warn("family pairing disabled (set FAMILY_TOKEN_SECRET and BILLING_VERIFY_URL)")
	}
	if cfg.AdminSecret == "" {
		log.Warn("reputation-harden endpoint disabled (no ADMIN_SECRET)")
	}

	scheduler, err := scheduleHardening(cfg.HardenSchedule, hardener, log)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	rest := handler.NewRestHandler(deps, log)
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: handler.NewRouter(rest, handler.RouterConfig{
			AdminSecret:   cfg.AdminSecret,
			AllowedOrigin: cfg.CORSOrigin,
		}, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var health *handler.HealthServer
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHealthAddr, err)
		}
		health = handler.NewHealthServer(repo, log)
		go func() {
			if err := health.Serve(lis); err != nil {
				log.Error("grpc health server stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("reputation API listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if health != nil {
		health.Drain()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if health != nil {
		health.Stop(shutdownCtx)
	}

	log.Info("server stopped gracefully")
	return nil
}

func scheduleHardening(spec string, hardener *reputation.Hardener, log *slog.Logger) (*cron.Cron, error) {
	if spec == "" {
		log.Warn("scheduled hardening disabled (empty HARDEN_SCHEDULE)")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := hardener.Run(ctx); err != nil {
			log.Error("scheduled hardening failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid HARDEN_SCHEDULE %q: %w", spec, err)
	}
	log.Info("scheduled hardening enabled", "schedule", spec)
	return c, nil
}

// limiterFactory hands out Redis-backed limiters when REDIS_ADDR is set and
// per-instance ones otherwise.
type limiterFactory struct {
	ctx    context.Context
	redis  *redis.Client
	logger *slog.Logger
}

func newLimiterFactory(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) *limiterFactory {
	f := &limiterFactory{ctx: ctx, logger: log}
	if cfg.RedisAddr == "" {
		log.Warn("rate limits are per instance (no REDIS_ADDR)")
		return f
	}

	f.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := f.redis.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, rate-limited endpoints will fail until it recovers", "addr", cfg.RedisAddr, "error", err)
	} else {
		log.Info("redis rate limiter enabled", "addr", cfg.RedisAddr)
	}
	return f
}

func (f *limiterFactory) New(name string, perHour int) ratelimit.Limiter {
	if f.redis != nil {
		return ratelimit.NewRedisSlidingWindow(f.redis, "callshield:rl:"+name, perHour, rateWindow, nil)
	}
	l := ratelimit.NewSlidingWindow(perHour, rateWindow, nil)
	go l.Run(f.ctx, 10*time.Minute)
	return l
}

func (f *limiterFactory) Close() {
	if f.redis != nil {
		f.redis.Close()
	}
}
