package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/lefse-processor/config"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/portal"
	"github.com/feichai0017/lefse-processor/internal/preprocess"
	"github.com/feichai0017/lefse-processor/internal/results"
	"github.com/feichai0017/lefse-processor/internal/toolchain"
	"github.com/feichai0017/lefse-processor/internal/utils/validator"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
	"github.com/feichai0017/lefse-processor/pkg/queue"
	"github.com/feichai0017/lefse-processor/pkg/storage"
)

const (
	inputFileName   = "input_data.txt"
	mappingFileName = "column_name_mapping.json"

	successMessage = "LEfSe analysis completed successfully"

	defaultReportTimeout = 30 * time.Second
)

var errNoQueue = errors.New("task queue is not configured")

type AnalysisService struct {
	builder   Preprocessor
	toolchain ToolChain
	publisher Publisher
	queue     queue.Queue
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	WorkRoot      string
	KeepWorkDir   bool
	QueuePriority int
	// ReportTimeout bounds the error report sent after a failed run.
	ReportTimeout time.Duration
}

func NewService(
	builder Preprocessor,
	tc ToolChain,
	publisher Publisher,
	q queue.Queue,
	log logger.Logger,
	cfg *ServiceConfig,
) *AnalysisService {
	if cfg == nil {
		cfg = &ServiceConfig{WorkRoot: os.TempDir(), QueuePriority: 2}
	}
	return &AnalysisService{
		builder:   builder,
		toolchain: tc,
		publisher: publisher,
		queue:     q,
		logger:    log.Named("analysis"),
		config:    cfg,
	}
}

// GetService wires the pipeline from configuration. q may be nil for
// one-shot runs that never touch the task queue.
func GetService(ctx context.Context, log logger.Logger, q queue.Queue) (*AnalysisService, error) {
	portalCfg, err := config.ResolvePortalConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve portal config: %w", err)
	}
	tcCfg, err := config.GetToolchainConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load tool chain config: %w", err)
	}
	store, err := storage.NewStorage(ctx, storage.StorageType(config.GetWorkerConfig().StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client := portal.NewClient(portal.Config{
		BaseURL:    portalCfg.BaseURL,
		APIKey:     portalCfg.APIKey,
		Timeout:    portalCfg.Timeout,
		HTTPClient: &http.Client{Timeout: portalCfg.Timeout},
	}, log)

	return NewService(
		preprocess.NewBuilder(client, tcCfg.Params(), log),
		toolchain.NewOrchestrator(toolchain.NewExecRunner(), tcCfg.Orchestrator(), log),
		results.NewSubmitter(client, store, portalCfg.Env, log),
		q,
		log,
		&ServiceConfig{
			WorkRoot:      tcCfg.WorkRoot,
			KeepWorkDir:   tcCfg.KeepWorkDir,
			QueuePriority: 2,
			ReportTimeout: portalCfg.Timeout,
		},
	), nil
}

// Run executes one pipeline run and reports its outcome. Any failure after
// request validation is reported to the portal once; a failure of that report
// is only logged.
func (s *AnalysisService) Run(ctx context.Context, req models.AnalysisRequest) *models.RunReport {
	start := time.Now()
	ctx = logger.ContextWithRun(ctx, req.WorkspaceID, req.AnalysisID)
	log := logger.FromContext(ctx, s.logger)

	analysisID := req.AnalysisID
	if analysisID == "" {
		analysisID = "unknown"
	}

	if err := validator.ValidateRequest(req); err != nil {
		log.Error("Rejected analysis request", logger.Error(err))
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return &models.RunReport{StatusCode: http.StatusInternalServerError, AnalysisID: analysisID, Error: err.Error()}
	}

	log.Info("Starting LEfSe analysis")
	if err := s.execute(ctx, log, req); err != nil {
		log.Error("Analysis failed",
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)),
		)
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reportTimeout())
		defer cancel()
		if subErr := s.publisher.SubmitError(reportCtx, req, err.Error()); subErr != nil {
			log.Error("Failed to submit error", logger.Error(subErr))
		}
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return &models.RunReport{StatusCode: http.StatusInternalServerError, AnalysisID: analysisID, Error: err.Error()}
	}

	log.Info("Analysis completed", logger.Duration("elapsed", time.Since(start)))
	metrics.RunsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return &models.RunReport{StatusCode: http.StatusOK, AnalysisID: analysisID, Message: successMessage}
}

// reportTimeout is how long the error report may take. The run's own
// context may already be done when the report is sent.
func (s *AnalysisService) reportTimeout() time.Duration {
	if s.config.ReportTimeout > 0 {
		return s.config.ReportTimeout
	}
	return defaultReportTimeout
}

func (s *AnalysisService) execute(ctx context.Context, log logger.Logger, req models.AnalysisRequest) error {
	if err := os.MkdirAll(s.config.WorkRoot, 0755); err != nil {
		return fmt.Errorf("failed to prepare work root: %w", err)
	}
	workDir, err := os.MkdirTemp(s.config.WorkRoot, "lefse-")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	if s.config.KeepWorkDir {
		log.Info("Keeping working directory", logger.String("workDir", workDir))
	} else {
		defer os.RemoveAll(workDir)
	}

	out, err := s.builder.Build(ctx, req,
		filepath.Join(workDir, inputFileName),
		filepath.Join(workDir, mappingFileName),
	)
	if err != nil {
		return err
	}
	log.Info("Preprocessing finished",
		logger.Int("samples", out.Samples),
		logger.Int("features", out.Features),
	)

	art, err := s.toolchain.Run(ctx, workDir, out.InputFile, out.Params)
	if err != nil {
		return err
	}

	biomarkers, err := results.Translate(art.ResultFile, out.Mapping)
	if err != nil {
		return err
	}
	log.Info("Translated results", logger.Int("biomarkers", len(biomarkers)))

	return s.publisher.Submit(ctx, req, biomarkers, art.Images)
}

// Enqueue schedules a run on the task queue.
func (s *AnalysisService) Enqueue(ctx context.Context, req models.AnalysisRequest) (*models.ProcessingTask, error) {
	if s.queue == nil {
		return nil, errNoQueue
	}
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	qt, err := queue.NewTask(taskID, queue.TaskTypeAnalysisRun, s.config.QueuePriority, req)
	if err != nil {
		return nil, err
	}
	qt.Metadata = map[string]string{
		"workspace_id": req.WorkspaceID,
		"analysis_id":  req.AnalysisID,
	}

	if err := s.queue.Enqueue(ctx, qt); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    qt.ID,
		Status:    queue.StatusPending,
		StartedAt: qt.CreatedAt,
	}); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", qt.ID),
			logger.Error(err),
		)
	}

	s.logger.Info("Analysis task created",
		logger.String("taskId", qt.ID),
		logger.WorkspaceID(req.WorkspaceID),
		logger.AnalysisID(req.AnalysisID),
	)

	return &models.ProcessingTask{
		ID:          qt.ID,
		Status:      models.StatusPending,
		Type:        qt.Type,
		Priority:    qt.Priority,
		WorkspaceID: req.WorkspaceID,
		AnalysisID:  req.AnalysisID,
		CreatedAt:   qt.CreatedAt,
		UpdatedAt:   qt.CreatedAt,
	}, nil
}

// HandleAnalysis runs a queued task and records its final status.
func (s *AnalysisService) HandleAnalysis(ctx context.Context, task *queue.Task) error {
	if task == nil || len(task.Payload) == 0 {
		return fmt.Errorf("invalid task: missing required data")
	}
	var req models.AnalysisRequest
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return fmt.Errorf("invalid task payload: %w", err)
	}

	ctx = logger.ContextWithTask(ctx, task.ID)
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		Progress:  0.5,
		StartedAt: time.Now(),
	})

	started := time.Now()
	report := s.Run(ctx, req)

	final := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1.0,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if !report.Succeeded() {
		final.Status = queue.StatusFailed
		final.Error = report.Error
	}
	s.saveStatus(ctx, final)

	if !report.Succeeded() {
		return errors.New(report.Error)
	}
	return nil
}

func (s *AnalysisService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if s.queue == nil {
		return
	}
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.Error(err),
		)
	}
}

func (s *AnalysisService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if s.queue == nil {
		return nil, errNoQueue
	}
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case queue.StatusRunning, "active":
		taskStatus = models.StatusRunning
	case queue.StatusCompleted:
		taskStatus = models.StatusCompleted
	case queue.StatusFailed:
		taskStatus = models.StatusFailed
	case queue.StatusCancelled:
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    taskStatus,
		Type:      queue.TaskTypeAnalysisRun,
		Progress:  status.Progress,
		Error:     status.Error,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *AnalysisService) CancelTask(ctx context.Context, taskID string) error {
	if s.queue == nil {
		return errNoQueue
	}
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	s.logger.Info("Task cancelled",
		logger.String("taskId", taskID),
	)
	return nil
}
