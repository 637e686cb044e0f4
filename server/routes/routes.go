package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/handlers"
	"github.com/batchpix/training-archive/internal/middleware"
)

type Router struct {
	archiveHandler *handlers.ArchiveHandler
	logger         *zap.Logger
}

func NewRouter(
	archiveHandler *handlers.ArchiveHandler,
	logger *zap.Logger,
) *Router {
	return &Router{
		archiveHandler: archiveHandler,
		logger:         logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	// API version 1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.archiveHandler.HealthCheck)

		archives := v1.Group("/archives")
		{
			archives.POST("", r.archiveHandler.CreateArchive)
			archives.POST("/jobs", r.archiveHandler.SubmitArchiveJob)
			archives.GET("/jobs/:id", r.archiveHandler.GetArchiveJob)
		}

		images := v1.Group("/images")
		{
			images.POST("/resize", r.archiveHandler.ResizeImage)
		}
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Training archive service is running",
		})
	})

	return router
}
