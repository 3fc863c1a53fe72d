package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/service/analysis"
	"github.com/feichai0017/lefse-processor/pkg/logger"
)

type AnalysisHandler struct {
	service analysis.AnalysisProcessor
	logger  logger.Logger
}

// EnqueueResponse is returned when a run is queued.
type EnqueueResponse struct {
	TaskID      string `json:"taskId"`
	Status      string `json:"status"`
	WorkspaceID string `json:"workspaceId"`
	AnalysisID  string `json:"analysisId"`
	CreatedAt   string `json:"createdAt"`
}

func NewAnalysisHandler(service analysis.AnalysisProcessor, log logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
		logger:  log.Named("api"),
	}
}

// Enqueue queues a run for the worker.
func (h *AnalysisHandler) Enqueue(c *gin.Context) {
	var req models.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.logger, statusFor(err), "Failed to enqueue analysis", err)
		return
	}

	c.JSON(http.StatusAccepted, EnqueueResponse{
		TaskID:      task.ID,
		Status:      string(task.Status),
		WorkspaceID: task.WorkspaceID,
		AnalysisID:  task.AnalysisID,
		CreatedAt:   task.CreatedAt.Format(time.RFC3339),
	})
}

// Run executes a run in the request and answers with its report. The HTTP
// status mirrors the report's statusCode.
func (h *AnalysisHandler) Run(c *gin.Context) {
	var req models.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report := h.service.Run(c.Request.Context(), req)
	c.JSON(report.StatusCode, report)
}

func (h *AnalysisHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		handleError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *AnalysisHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		handleError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}
