package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/queue"
)

// Handler runs one decoded analysis task.
type Handler interface {
	HandleAnalysis(ctx context.Context, task *queue.Task) error
}

type AnalysisWorker struct {
	BaseWorker
	handler Handler
}

func NewAnalysisWorker(cfg *Config, handler Handler, log logger.Logger) (*AnalysisWorker, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = queue.Queues
	}

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
		},
	)

	w := &AnalysisWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler: handler,
	}

	w.registerHandlers()
	return w, nil
}

func (w *AnalysisWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeAnalysisRun, w.handleAnalysisRun)
}

// handleAnalysisRun never asks asynq to retry: a failed run has already
// reported its error to the portal.
func (w *AnalysisWorker) handleAnalysisRun(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Failed to decode task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	w.logger.Info("Processing analysis task",
		logger.String("taskId", task.ID),
		logger.Any("metadata", task.Metadata),
	)

	rw := t.ResultWriter()
	writeStatus(w.logger, rw, `{"status":"running","progress":0}`)

	if err := w.handler.HandleAnalysis(ctx, task); err != nil {
		writeStatus(w.logger, rw, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		return errors.Join(err, asynq.SkipRetry)
	}

	writeStatus(w.logger, rw, `{"status":"completed","progress":100}`)
	return nil
}

func writeStatus(log logger.Logger, rw *asynq.ResultWriter, status string) {
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(status)); err != nil {
		log.Error("Failed to write task status", logger.Error(err))
	}
}

func (w *AnalysisWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	w.logger.Info("Worker started")

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}
