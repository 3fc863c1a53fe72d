package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/internal/service/analysis"
	"github.com/feichai0017/lefse-processor/pkg/logger"
)

type Handlers struct {
	Analysis *AnalysisHandler
}

func NewHandlers(
	analysisService analysis.AnalysisProcessor,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Analysis: NewAnalysisHandler(analysisService, logger),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	log.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}

// statusFor maps invalid requests to 400 and everything else to 500.
func statusFor(err error) int {
	var invalid *models.InvalidInputError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
