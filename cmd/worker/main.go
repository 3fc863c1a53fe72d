package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/lefse-processor/config"
	"github.com/feichai0017/lefse-processor/internal/service/analysis"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
	"github.com/feichai0017/lefse-processor/pkg/queue"
	"github.com/feichai0017/lefse-processor/pkg/worker"
)

func main() {
	cfg := config.GetWorkerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths(cfg.LogOutputs),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.GetQueue()
	if err != nil {
		log.Error("Failed to create task queue", logger.Error(err))
		os.Exit(1)
	}
	defer q.Close()

	svc, err := analysis.GetService(ctx, log, q)
	if err != nil {
		log.Error("Failed to create analysis service", logger.Error(err))
		os.Exit(1)
	}

	analysisWorker, err := worker.NewAnalysisWorker(&worker.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.Concurrency,
		Queues:        queue.Queues,
	}, svc, log)
	if err != nil {
		log.Error("Failed to create analysis worker", logger.Error(err))
		os.Exit(1)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return analysisWorker.Start(gctx)
	})
	g.Go(func() error {
		log.Info("Metrics server starting", logger.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(analysisWorker.Stop(), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
