package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/handlers"
	"github.com/batchpix/training-archive/internal/service"
	"github.com/batchpix/training-archive/server/routes"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize services
	cache := service.NewResultCache(cfg.Redis, logger)
	resizer := service.NewResizer(cfg.Resize, cache, logger)
	invoker := service.NewResizeInvoker(cfg.Resize, resizer, logger)
	downloader := service.NewDownloader(invoker, cfg.Archive, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Async jobs need both the broker and the job store; without Redis
	// there is nowhere to put results for polling.
	var queue *service.QueueService
	if cfg.Queue.URL != "" && cache != nil {
		queue, err = service.NewQueueService(cfg.Queue.URL, downloader, cache, logger)
		if err != nil {
			logger.Warn("Failed to initialize queue service", zap.Error(err))
			// Continue without async processing; the synchronous path
			// does not need the queue.
		} else {
			defer queue.Close()
			for workerID := 1; workerID <= 2; workerID++ {
				if err := queue.StartWorker(workerCtx, workerID); err != nil {
					logger.Error("Failed to start archive worker",
						zap.Int("worker_id", workerID), zap.Error(err))
				}
			}
		}
	}

	// Initialize handlers
	archiveHandler := handlers.NewArchiveHandler(downloader, resizer, queue, cache, logger)

	router := routes.NewRouter(archiveHandler, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	// Start server
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
