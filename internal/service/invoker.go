package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/models"
)

// ResizeInvoker runs one resize call. The downloader does not care
// whether the work happens in-process or on a separately deployed
// resize worker.
type ResizeInvoker interface {
	Invoke(ctx context.Context, url string) models.HTTPResponse
}

// NewResizeInvoker picks the remote worker when one is configured and
// reachable, falling back to in-process execution otherwise.
func NewResizeInvoker(cfg config.ResizeConfig, resizer *Resizer, logger *zap.Logger) ResizeInvoker {
	if cfg.WorkerURL == "" {
		return &localInvoker{resizer: resizer}
	}

	remote := &remoteInvoker{
		workerURL: cfg.WorkerURL,
		client:    &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		logger:    logger,
	}
	if !remote.reachable() {
		logger.Warn("Resize worker unreachable, running resize in-process",
			zap.String("worker_url", cfg.WorkerURL))
		return &localInvoker{resizer: resizer}
	}

	logger.Info("Delegating resize to remote worker", zap.String("worker_url", cfg.WorkerURL))
	return remote
}

type localInvoker struct {
	resizer *Resizer
}

func (l *localInvoker) Invoke(ctx context.Context, url string) models.HTTPResponse {
	return l.resizer.Resize(ctx, url)
}

type remoteInvoker struct {
	workerURL string
	client    *http.Client
	logger    *zap.Logger
}

func (r *remoteInvoker) reachable() bool {
	req, err := http.NewRequest(http.MethodHead, r.workerURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (r *remoteInvoker) Invoke(ctx context.Context, url string) models.HTTPResponse {
	payload, err := json.Marshal(models.ResizeRequest{URL: url})
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.workerURL, bytes.NewReader(payload))
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Resize worker invocation failed", zap.Error(err))
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}

	if resp.StatusCode == http.StatusOK {
		return models.NewHTTPResponse(string(body), http.StatusOK, models.ContentTypePNG)
	}

	var cerr models.ClassifiedError
	if err := json.Unmarshal(body, &cerr); err != nil || cerr.Message == "" {
		cerr.Message = string(body)
	}
	cerr.StatusCode = resp.StatusCode
	return models.NewErrorResponse(&cerr)
}
