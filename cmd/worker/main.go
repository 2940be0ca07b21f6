package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/file-toolbox/internal/bootstrap"
	"github.com/kirillkom/file-toolbox/internal/config"
	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/observability/logging"
	"github.com/kirillkom/file-toolbox/internal/observability/metrics"
)

const service = "worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Events == nil && app.Ledger == nil {
		logger.Error("worker_has_nothing_to_do", "hint", "set NATS_URL or POSTGRES_DSN")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	var pending sync.WaitGroup
	if app.Ledger != nil {
		pending.Add(1)
		go func() {
			defer pending.Done()
			runSweeper(ctx, app, workerMetrics, logger)
		}()
	}

	if app.Events != nil {
		// Expire blocks until the TTL elapses, so each event gets its own goroutine.
		logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "ttl", cfg.ArtifactTTL().String())
		err = app.Events.SubscribeConversionCompleted(ctx, func(handlerCtx context.Context, event domain.ConversionCompleted) error {
			workerMetrics.StartExpiry()
			pending.Add(1)
			go func() {
				defer pending.Done()
				removed, err := app.ExpireUC.Expire(handlerCtx, event)
				workerMetrics.FinishExpiry(service, removed, err)
				workerMetrics.ObserveExpiryLag(service, time.Since(event.CreatedAt))
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("artifact_expiry_failed", "batch_id", event.BatchID, "filename", event.Filename, "error", err)
				}
			}()
			return nil
		})
		if err != nil {
			logger.Error("worker_subscribe_failed", "error", err)
			stop()
		}
	}

	<-ctx.Done()
	pending.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

// runSweeper expires recorded artifacts on an interval until ctx is cancelled.
func runSweeper(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, logger *slog.Logger) {
	interval := app.Config.SweepInterval()
	logger.Info("artifact_sweeper_started", "interval", interval.String(), "batch_size", app.Config.SweepBatchSize)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		start := time.Now()
		removed, err := app.ExpireUC.Sweep(ctx, app.Config.SweepBatchSize)
		workerMetrics.RecordSweep(service, removed, time.Since(start), err)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("artifact_sweep_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
