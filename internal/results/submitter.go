package results

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
	"github.com/feichai0017/lefse-processor/pkg/storage"
)

// Sink receives the final payloads.
type Sink interface {
	SubmitResult(ctx context.Context, workspaceID string, payload models.ResultPayload) error
	SubmitError(ctx context.Context, workspaceID string, payload models.ErrorPayload) error
}

type Submitter struct {
	sink   Sink
	store  storage.Storage
	env    string
	logger logger.Logger
}

func NewSubmitter(sink Sink, store storage.Storage, env string, log logger.Logger) *Submitter {
	return &Submitter{
		sink:   sink,
		store:  store,
		env:    env,
		logger: log.Named("submitter"),
	}
}

// Submit uploads every artifact and then sends one result payload. Nothing
// is submitted if any artifact fails verification or upload.
func (s *Submitter) Submit(ctx context.Context, req models.AnalysisRequest, biomarkers []models.BiomarkerResult, artifacts []string) error {
	log := logger.FromContext(ctx, s.logger)

	for _, a := range artifacts {
		if err := VerifyImage(a); err != nil {
			return &models.SubmissionError{Op: "verify " + filepath.Base(a), Err: err}
		}
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		uri, err := storage.Upload(ctx, s.store, a, storage.ArtifactKey(s.env, req.AnalysisID, a))
		if err != nil {
			metrics.ArtifactUploads.WithLabelValues(metrics.OutcomeFailed).Inc()
			return &models.SubmissionError{Op: "upload " + filepath.Base(a), Err: err}
		}
		metrics.ArtifactUploads.WithLabelValues(metrics.OutcomeOK).Inc()
		log.Info("Uploaded artifact", logger.String("uri", uri))
		paths = append(paths, uri)
	}

	if biomarkers == nil {
		biomarkers = []models.BiomarkerResult{}
	}
	payload := models.ResultPayload{
		AnalysisID: req.AnalysisID,
		Result: models.AnalysisResult{
			S3Paths: paths,
			Lefse:   biomarkers,
		},
	}
	if err := s.sink.SubmitResult(ctx, req.WorkspaceID, payload); err != nil {
		return &models.SubmissionError{Op: "submit_analysis_result", Err: err}
	}

	log.Info("Submitted results",
		logger.Int("biomarkers", len(biomarkers)),
		logger.Int("artifacts", len(paths)),
	)
	return nil
}

// SubmitError reports a failed run.
func (s *Submitter) SubmitError(ctx context.Context, req models.AnalysisRequest, message string) error {
	err := s.sink.SubmitError(ctx, req.WorkspaceID, models.ErrorPayload{
		AnalysisID: req.AnalysisID,
		Result:     models.ErrorResult{Error: message},
	})
	if err != nil {
		return fmt.Errorf("failed to submit error: %w", err)
	}
	return nil
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true}

// VerifyImage decodes image artifacts so a truncated plot is never
// published. Other files are not checked.
func VerifyImage(path string) error {
	if !imageExts[strings.ToLower(filepath.Ext(path))] {
		return nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("invalid image %s: %w", filepath.Base(path), err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("invalid image %s: empty", filepath.Base(path))
	}
	return nil
}
