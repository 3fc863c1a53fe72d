package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/lefse-processor/api/handlers"
	"github.com/feichai0017/lefse-processor/api/middleware"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
)

// SetupRoutes registers every endpoint on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	analyses := v1.Group("/analyses")
	{
		analyses.POST("", h.Analysis.Enqueue)
		analyses.POST("/run", h.Analysis.Run)
		analyses.GET("/status/:taskId", h.Analysis.GetStatus)
		analyses.DELETE("/task/:taskId", h.Analysis.CancelTask)
	}
}
