package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/models"
	"github.com/batchpix/training-archive/internal/service"
)

type ArchiveHandler struct {
	downloader *service.Downloader
	resizer    *service.Resizer
	queue      *service.QueueService
	cache      *service.ResultCache
	logger     *zap.Logger
}

func NewArchiveHandler(
	downloader *service.Downloader,
	resizer *service.Resizer,
	queue *service.QueueService,
	cache *service.ResultCache,
	logger *zap.Logger,
) *ArchiveHandler {
	return &ArchiveHandler{
		downloader: downloader,
		resizer:    resizer,
		queue:      queue,
		cache:      cache,
		logger:     logger,
	}
}

// CreateArchive handles the synchronous archive request: validate, fetch
// every image concurrently, zip, and return the encoded archive.
func (h *ArchiveHandler) CreateArchive(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	store, err := service.NewStoreClient(c.Request.Context(), req.ImageStore, h.logger)
	if err != nil {
		h.logger.Error("Failed to build store client", zap.Error(err))
		writeEnvelope(c, models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError,
				"Unable to download image from store (auth)")))
		return
	}

	resp := h.downloader.CreateArchive(c.Request.Context(), store, req.Locations)
	writeEnvelope(c, resp)
}

// ResizeImage exposes the resize transformer on its own, matching the
// contract remote workers implement.
func (h *ArchiveHandler) ResizeImage(c *gin.Context) {
	var req models.ResizeRequest
	// a malformed body is treated the same as a missing url
	_ = c.ShouldBindJSON(&req)

	resp := h.resizer.Resize(c.Request.Context(), req.URL)
	writeEnvelope(c, resp)
}

// SubmitArchiveJob enqueues an archive request for asynchronous
// processing and returns the job id to poll.
func (h *ArchiveHandler) SubmitArchiveJob(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Asynchronous processing is not available",
		})
		return
	}

	job := &models.ArchiveJob{
		ID:        uuid.New().String(),
		Request:   *req,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}

	if err := h.queue.PublishJob(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to publish archive job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue archive job",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetArchiveJob reports the status (and, once finished, the result) of a
// queued archive job.
func (h *ArchiveHandler) GetArchiveJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.cache.GetJob(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to look up job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job id"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// HealthCheck reports the status of the optional collaborators.
func (h *ArchiveHandler) HealthCheck(c *gin.Context) {
	services := map[string]string{
		"queue": h.queue.HealthCheck(),
		"redis": h.cache.HealthCheck(c.Request.Context()),
	}

	c.JSON(http.StatusOK, models.HealthCheck{
		Status:    "OK",
		Timestamp: time.Now(),
		Services:  services,
	})
}

// parseRequest decodes and validates an archive request. Any malformed
// payload, whatever its shape, gets the same all-or-nothing rejection.
func (h *ArchiveHandler) parseRequest(c *gin.Context) (*models.CreateZipRequest, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return nil, false
	}

	var req models.CreateZipRequest
	if err := json.Unmarshal(body, &req); err != nil || !req.IsValid() {
		h.logger.Info("Invalid archive request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return nil, false
	}
	return &req, true
}

// writeEnvelope maps a pipeline envelope onto the HTTP response. Success
// bodies are raw base64 text; error bodies are JSON.
func writeEnvelope(c *gin.Context, resp models.HTTPResponse) {
	contentType := ""
	for k, v := range resp.Headers {
		if k == "Content-Type" {
			contentType = v
			continue
		}
		c.Header(k, v)
	}

	if body, ok := resp.Body.(string); ok {
		if contentType == "" {
			contentType = "text/plain"
		}
		c.Data(resp.StatusCode, contentType, []byte(body))
		return
	}

	c.JSON(resp.StatusCode, resp.Body)
}
