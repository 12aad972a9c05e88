package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/objectstore"
	"github.com/fennsaji/call-shield-sub001/internal/adapter/repository"
	"github.com/fennsaji/call-shield-sub001/internal/platform/config"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/fennsaji/call-shield-sub001/internal/seed"
)

func main() {
	if err := run(); err != nil {
		slog.Error("seed build failed", "error", err)
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

	if cfg.MinioEndpoint == "" {
		return errors.New("MINIO_ENDPOINT is required to publish the seed dataset")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	repo := repository.NewPostgresRepository(dbPool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

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
	if err := publisher.EnsureBucket(ctx); err != nil {
		return err
	}

	builder := seed.NewBuilder(repo, publisher, seed.BuilderConfig{
		MinScore:     cfg.SeedMinScore,
		MinReporters: cfg.SeedMinReporters,
	}, log)

	res, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	log.Info("seed build finished",
		"version", res.Manifest.Version,
		"published", res.Published,
		"sha256", res.Manifest.SHA256,
	)
	return nil
}
