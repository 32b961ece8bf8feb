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

	"github.com/gin-gonic/gin"

	"github.com/mmynk/estimator/internal/api"
	"github.com/mmynk/estimator/internal/auth"
	"github.com/mmynk/estimator/internal/config"
	"github.com/mmynk/estimator/internal/metrics"
	"github.com/mmynk/estimator/internal/service"
	"github.com/mmynk/estimator/internal/storage"
	"github.com/mmynk/estimator/internal/storage/dynamo"
	"github.com/mmynk/estimator/internal/storage/sqlite"
	"github.com/mmynk/estimator/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var m *metrics.Metrics
	svcCfg := service.Config{FallbackRoleName: cfg.FallbackCostRole}
	if cfg.MetricsEnabled {
		m = metrics.New()
		svcCfg.Metrics = m
	}
	svc := service.NewEstimateService(store, svcCfg)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		JWT:           auth.NewJWTManager(cfg.JWTSecret, auth.DefaultTokenDuration),
		Gate:          auth.NewGate(),
		Metrics:       m,
		AllowedOrigin: cfg.CORSOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoDBEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dynamodb client: %w", err)
		}
		store := dynamo.New(client, cfg.DynamoDBTablePrefix)
		if cfg.DynamoDBCreateTables {
			if err := store.CreateTables(ctx); err != nil {
				return nil, fmt.Errorf("failed to create dynamodb tables: %w", err)
			}
		}
		slog.Info("Storage initialized", "driver", cfg.StorageDriver, "region", cfg.AWSRegion, "table_prefix", cfg.DynamoDBTablePrefix)
		return store, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.StorageDriver, "database", cfg.DBPath)
		return store, nil
	}
}
