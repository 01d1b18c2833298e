package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/policykb/taxkb/internal/bootstrap"
	"github.com/policykb/taxkb/internal/config"
	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/observability/logging"
	"github.com/policykb/taxkb/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()

	errCh := make(chan error, 2)

	go func() {
		slog.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
		errCh <- app.Queue.SubscribeRawPolicies(ctx, func(handlerCtx context.Context, raw domain.RawPolicy) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
			defer cancel()

			workerMetrics.StartPolicy()
			if !raw.CrawledAt.IsZero() {
				workerMetrics.ObserveQueueLag(service, time.Since(raw.CrawledAt))
			}
			start := time.Now()
			doc, err := app.IngestUC.Process(processCtx, raw)
			workerMetrics.FinishPolicy(service, time.Since(start), err)
			if err != nil {
				return err
			}
			slog.Info("policy_processed", "policy_id", doc.ID, "level", doc.Level, "grade", doc.QualityGrade)
			return nil
		})
	}()

	go func() {
		slog.Info("worker_subscribed", "subject", cfg.NATSStageSubject)
		errCh <- app.Queue.SubscribeStageTriggers(ctx, func(handlerCtx context.Context, stage domain.PipelineStage, jobID string) error {
			stageCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Minute)
			defer cancel()

			start := time.Now()
			var err error
			switch stage {
			case domain.StageRelate:
				_, err = app.RelateUC.Run(stageCtx, jobID)
			case domain.StageValidate:
				_, err = app.ValidateUC.Run(stageCtx, jobID)
			default:
				slog.Warn("unknown_pipeline_stage", "stage", stage, "job_id", jobID)
				return nil
			}
			workerMetrics.FinishStage(service, string(stage), time.Since(start), err)
			return err
		})
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			slog.Error("worker_subscription_error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
