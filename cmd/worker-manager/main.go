// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"preset-workers/internal/common/camunda"
	"preset-workers/internal/common/config"
	"preset-workers/internal/common/database"
	"preset-workers/internal/common/generation"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/common/observability"
	"preset-workers/internal/common/templatestore"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"

	// Catalog workers
	lt "preset-workers/internal/workers/catalog/load-templates"
	rp "preset-workers/internal/workers/catalog/resolve-preset"

	// Access workers
	ca "preset-workers/internal/workers/access/check-access"
	ltr "preset-workers/internal/workers/access/lookup-tier"

	// Generation workers
	dg "preset-workers/internal/workers/generation/dispatch-generation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, zapLog)
	defer obs.Shutdown()
	if err := obs.EnableTracing(cfg.App.Name, cfg.App.Version, cfg.Tracing); err != nil {
		zapLog.Warn("tracing disabled", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Tool registry ---
	tools, err := registry.LoadRegistry(cfg.Catalog.RegistryPath)
	if err != nil {
		zapLog.Fatal("tool registry load failed", zap.Error(err))
	}
	zapLog.Info("Tool registry loaded", zap.Strings("tools", tools.Types()))

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.NewClient(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init PostgreSQL with retry (tier lookup only) ---
	var pg *database.PostgresClient
	if cfg.Database.Postgres.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Init Elasticsearch with retry (search template source only) ---
	var esClient *database.ElasticsearchClient
	if cfg.TemplateStore.Source == config.SourceElasticsearch {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Template catalog ---
	source, err := templatestore.New(cfg.TemplateStore, templatestore.Dependencies{
		Elasticsearch: esClient,
		Cache:         rdb.Cmdable(),
		Logger:        log,
	})
	if err != nil {
		zapLog.Fatal("template source init failed", zap.Error(err))
	}

	catalog := presets.NewCatalog(source, tools, log,
		presets.WithLoadTimeout(config.GetDuration(cfg.Catalog.LoadTimeout)),
	)
	warmTools := make([]presets.ToolType, 0, len(cfg.Catalog.WarmTools))
	for _, t := range cfg.Catalog.WarmTools {
		warmTools = append(warmTools, presets.ToolType(t))
	}
	if err := catalog.WarmUp(ctx, warmTools, cfg.Catalog.WarmLocales); err != nil {
		// Pairs that failed load again on first use.
		zapLog.Warn("catalog warm-up incomplete", zap.Error(err))
	}
	zapLog.Info("Catalog warmed", zap.Int("snapshots", catalog.Count()))
	go catalog.Refresh(ctx, time.Duration(cfg.Catalog.RefreshInterval)*time.Second)

	gate := presets.NewGateFromConfig(cfg.Access, tools)
	generator := generation.NewClient(cfg.Generation, nil, log)

	// --- Workers ---
	workers := camunda.NewWorkerSet(zeebe.GetClient(), zapLog)

	workers.Start(lt.TaskType, config.GetWorkerConfig(cfg, lt.TaskType),
		lt.NewHandler(lt.ConfigFromApp(cfg), catalog, obs, log))

	workers.Start(rp.TaskType, config.GetWorkerConfig(cfg, rp.TaskType),
		rp.NewHandler(rp.ConfigFromApp(cfg), catalog, gate, obs, log))

	workers.Start(ca.TaskType, config.GetWorkerConfig(cfg, ca.TaskType),
		ca.NewHandler(ca.ConfigFromApp(cfg), gate, tools, obs, log))

	workers.Start(dg.TaskType, config.GetWorkerConfig(cfg, dg.TaskType),
		dg.NewHandler(dg.ConfigFromApp(cfg), gate, tools, generator, obs, log))

	if pg != nil {
		workers.Start(ltr.TaskType, config.GetWorkerConfig(cfg, ltr.TaskType),
			ltr.NewHandler(ltr.ConfigFromApp(cfg), pg.DB, rdb.Cmdable(), obs, log))
	} else {
		zapLog.Info("worker disabled: no postgres configured", zap.String("taskType", ltr.TaskType))
	}

	zapLog.Info("Workers registered", zap.Int("count", workers.Count()))

	// --- Health & Metrics Server ---
	srv := newHealthServer(cfg.Server.Address, &readiness{
		catalog: catalog,
		zeebe:   zeebe,
		redis:   rdb,
		workers: workers,
	})
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stop()
	workers.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
