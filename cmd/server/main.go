package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/lefse-processor/api/handlers"
	"github.com/feichai0017/lefse-processor/api/routes"
	"github.com/feichai0017/lefse-processor/config"
	"github.com/feichai0017/lefse-processor/internal/service/analysis"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/queue"
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
		log.Fatal("Failed to create task queue", logger.Error(err))
	}
	defer q.Close()

	svc, err := analysis.GetService(ctx, log, q)
	if err != nil {
		log.Fatal("Failed to create analysis service", logger.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, handlers.NewHandlers(svc, log))

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
	}
}
