package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lefse-processor/api/handlers"
	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/queue"
)

type fakeService struct {
	enqueued  []models.AnalysisRequest
	cancelled []string
	report    *models.RunReport
	err       error
}

func (f *fakeService) Enqueue(_ context.Context, req models.AnalysisRequest) (*models.ProcessingTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, req)
	return &models.ProcessingTask{
		ID:          "task-1",
		Status:      models.StatusPending,
		WorkspaceID: req.WorkspaceID,
		AnalysisID:  req.AnalysisID,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakeService) GetProcessingStatus(_ context.Context, taskID string) (*models.ProcessingTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProcessingTask{ID: taskID, Status: models.StatusRunning, Progress: 0.5}, nil
}

func (f *fakeService) CancelTask(_ context.Context, taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return f.err
}

func (f *fakeService) HandleAnalysis(context.Context, *queue.Task) error { return nil }

func (f *fakeService) Run(_ context.Context, req models.AnalysisRequest) *models.RunReport {
	return f.report
}

func newRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(svc, logger.NewTestLogger()))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEnqueueAnalysis(t *testing.T) {
	svc := &fakeService{}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/analyses", `{"workspace_id":"ws","analysis_id":"an"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{
		"taskId":"task-1","status":"pending","workspaceId":"ws","analysisId":"an",
		"createdAt":"2025-01-02T03:04:05Z"
	}`, w.Body.String())
	assert.Equal(t, []models.AnalysisRequest{{WorkspaceID: "ws", AnalysisID: "an"}}, svc.enqueued)
}

func TestEnqueueInvalidRequest(t *testing.T) {
	svc := &fakeService{err: &models.InvalidInputError{Reason: "missing required fields: workspace_id"}}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/analyses", `{"analysis_id":"an"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "workspace_id")

	w = do(newRouter(&fakeService{}), http.MethodPost, "/api/v1/analyses", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunMirrorsReportStatus(t *testing.T) {
	svc := &fakeService{report: &models.RunReport{StatusCode: 500, AnalysisID: "an", Error: "run_lefse failed: x"}}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/analyses/run", `{"workspace_id":"ws","analysis_id":"an"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"statusCode":500,"analysis_id":"an","error":"run_lefse failed: x"}`, w.Body.String())
}

func TestStatusAndCancel(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	w := do(r, http.MethodGet, "/api/v1/analyses/status/task-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"running"`)

	w = do(r, http.MethodDelete, "/api/v1/analyses/task/task-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"task-7"}, svc.cancelled)

	svc.err = errors.New("redis down")
	w = do(r, http.MethodGet, "/api/v1/analyses/status/task-7", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newRouter(&fakeService{})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "").Code)
}
