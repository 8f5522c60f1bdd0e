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

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"churn-workers/internal/api"
	"churn-workers/internal/churn/alert"
	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/churn/scoring"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/aws"
	"churn-workers/internal/common/camunda"
	"churn-workers/internal/common/config"
	"churn-workers/internal/common/database"
	"churn-workers/internal/common/logger"
	"churn-workers/internal/common/observability"

	pc "churn-workers/internal/workers/churn/predict-churn"
	sb "churn-workers/internal/workers/churn/score-batch"
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

	zapLog.Info("Starting churn worker manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("scoringBackend", cfg.Scoring.Backend),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer tracing.Shutdown()
		zapLog.Info("Tracing enabled", zap.String("endpoint", cfg.Tracing.JaegerEndpoint))
	}

	ctx := context.Background()
	opts := []predictor.Option{
		predictor.WithObservability(obs),
		predictor.WithParallelism(cfg.Batch.Parallelism),
	}
	var readiness []api.Option

	// --- PostgreSQL: prediction store ---
	var repo *store.Repository
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
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

		if err := database.RunMigrations(cfg.Database.Postgres.GetURL(), cfg.Database.Postgres.MigrationsPath); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		zapLog.Info("PostgreSQL connected and migrated")

		repo = store.NewRepository(pg.DB)
		opts = append(opts, predictor.WithStore(repo))
		readiness = append(readiness, api.WithLookup(repo), api.WithReadinessCheck("postgres", pg.Ping))
	}

	// --- Elasticsearch: prediction index ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		indexer := store.NewIndexer(esClient.Client, cfg.Database.Elasticsearch.Index)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected", zap.String("index", cfg.Database.Elasticsearch.Index))

		opts = append(opts, predictor.WithIndexer(indexer))
		readiness = append(readiness, api.WithReadinessCheck("elasticsearch", esClient.Ping))
	}

	// --- Redis: score cache ---
	var rdb redis.Cmdable
	if cfg.Scoring.Cache.Enabled {
		redisClient := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		zapLog.Info("Redis connected successfully")

		rdb = redisClient.Client
		readiness = append(readiness, api.WithReadinessCheck("redis", redisClient.Ping))
	}

	// --- SNS / SES: high-risk alerts ---
	if cfg.Alerts.Enabled {
		var channels alert.Fanout
		if cfg.Alerts.TopicARN != "" {
			snsClient, err := aws.NewSNSClient(ctx, cfg.Alerts.Region)
			if err != nil {
				zapLog.Fatal("sns client init failed", zap.Error(err))
			}
			channels = append(channels, alert.NewPublisher(snsClient, cfg.Alerts.TopicARN, cfg.Alerts.Threshold))
		}
		if len(cfg.Alerts.Email.To) > 0 {
			sesClient, err := aws.NewSESClient(ctx, cfg.Alerts.Region)
			if err != nil {
				zapLog.Fatal("ses client init failed", zap.Error(err))
			}
			channels = append(channels, alert.NewEmailer(sesClient, cfg.Alerts.Email.From, cfg.Alerts.Email.To, cfg.Alerts.Threshold))
		}
		opts = append(opts, predictor.WithAlerter(channels))
		zapLog.Info("Churn alerts enabled",
			zap.Float64("threshold", cfg.Alerts.Threshold),
			zap.Int("channels", len(channels)),
		)
	}

	policy, err := features.ParsePolicy(cfg.Batch.FailurePolicy)
	if err != nil {
		zapLog.Fatal("invalid batch failure policy", zap.Error(err))
	}
	opts = append(opts, predictor.WithFailurePolicy(policy))

	scorer, err := scoring.New(cfg.Scoring, rdb, log)
	if err != nil {
		zapLog.Fatal("scorer init failed", zap.Error(err))
	}
	service := predictor.NewService(scorer, log, opts...)

	// --- Zeebe workers ---
	var (
		zeebe   *camunda.Client
		workers []worker.JobWorker
	)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig: &camunda.RetryConfig{
				MaxRetries: 10,
				BaseDelay:  2 * time.Second,
				MaxDelay:   30 * time.Second,
			},
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		readiness = append(readiness, api.WithReadinessCheck("zeebe", zeebe.HealthCheck))

		if wcfg := config.GetWorkerConfig(cfg, pc.TaskType); wcfg.Enabled {
			handler := pc.NewHandler(&pc.Config{Timeout: config.GetDuration(wcfg.Timeout)}, service, obs, log)
			workers = append(workers, camunda.StartWorker(zeebe.GetClient(), pc.TaskType, wcfg, handler, log))
		}
		if wcfg := config.GetWorkerConfig(cfg, sb.TaskType); wcfg.Enabled {
			handler := sb.NewHandler(&sb.Config{
				Timeout: config.GetDuration(wcfg.Timeout),
				MaxRows: cfg.Batch.MaxRows,
			}, service, obs, log)
			workers = append(workers, camunda.StartWorker(zeebe.GetClient(), sb.TaskType, wcfg, handler, log))
		}
		zapLog.Info("Workers registered", zap.Int("count", len(workers)))
	}

	// --- HTTP API, health and metrics ---
	var httpServer *http.Server
	if cfg.Server.Enabled {
		server := api.NewServer(service, log, append(readiness, api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))...)
		httpServer = &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      server,
			ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
			WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}
