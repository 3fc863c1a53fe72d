package analysis

import (
	"context"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/preprocess"
	"github.com/feichai0017/lefse-processor/internal/toolchain"
	"github.com/feichai0017/lefse-processor/pkg/queue"
)

type AnalysisProcessor interface {
	Enqueue(ctx context.Context, req models.AnalysisRequest) (*models.ProcessingTask, error)
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	CancelTask(ctx context.Context, taskID string) error
	HandleAnalysis(ctx context.Context, task *queue.Task) error
	Run(ctx context.Context, req models.AnalysisRequest) *models.RunReport
}

// Preprocessor writes the tool chain input for a run.
type Preprocessor interface {
	Build(ctx context.Context, req models.AnalysisRequest, inputFile, mappingFile string) (*preprocess.Output, error)
}

// ToolChain runs the external stages.
type ToolChain interface {
	Run(ctx context.Context, workDir, inputFile string, params models.ToolParams) (*toolchain.Artifacts, error)
}

// Publisher delivers results or errors to the portal.
type Publisher interface {
	Submit(ctx context.Context, req models.AnalysisRequest, biomarkers []models.BiomarkerResult, artifacts []string) error
	SubmitError(ctx context.Context, req models.AnalysisRequest, message string) error
}
