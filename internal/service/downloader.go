package service

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/models"
	"github.com/batchpix/training-archive/pkg/utils"
)

// Downloader orchestrates the archive pipeline: concurrent acquisition of
// every requested image, zip assembly, and the size check.
type Downloader struct {
	invoker ResizeInvoker
	cfg     config.ArchiveConfig
	logger  *zap.Logger
}

func NewDownloader(invoker ResizeInvoker, cfg config.ArchiveConfig, logger *zap.Logger) *Downloader {
	return &Downloader{
		invoker: invoker,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateArchive downloads the images in locations, writes them to a zip
// file, and returns an envelope carrying the base64-encoded zip. The
// batch is all-or-nothing: the first per-location failure aborts it and
// no partial archive is ever returned.
func (d *Downloader) CreateArchive(ctx context.Context, store *StoreClient, locations []models.Location) models.HTTPResponse {
	d.logger.Info("Fetching images", zap.Int("count", len(locations)))
	paths, cerr := d.fetchAll(ctx, store, locations)
	if cerr != nil {
		return models.NewErrorResponse(cerr)
	}
	defer d.removeAll(paths)

	d.logger.Info("Creating zip")
	zipPath, zipSize, err := createZip(paths)
	if err != nil {
		d.logger.Error("Failed to create zip", zap.Error(err))
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}
	defer os.Remove(zipPath)

	d.logger.Info("Checking zip", zap.Int64("size", zipSize))
	if cerr := checkZipSize(zipSize, d.cfg.MaxZipSize); cerr != nil {
		return models.NewErrorResponse(cerr)
	}

	zipData, err := os.ReadFile(zipPath)
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
	}

	return models.NewHTTPResponse(
		base64.StdEncoding.EncodeToString(zipData),
		http.StatusOK,
		models.ContentTypeZip)
}

// fetchAll dispatches one fetch per location, bounded by the configured
// concurrency cap. First failure wins; the group context is cancelled so
// unstarted work is skipped and in-flight transfers abort, and every
// already-fetched file is removed.
func (d *Downloader) fetchAll(ctx context.Context, store *StoreClient, locations []models.Location) ([]string, *models.ClassifiedError) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrent)

	paths := make([]string, len(locations))
	for i, location := range locations {
		i, location := i, location
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			var path string
			var cerr *models.ClassifiedError
			switch location.Type {
			case models.LocationTypeDownload:
				path, cerr = d.downloadImage(gctx, location)
			case models.LocationTypeRetrieve:
				path, cerr = d.retrieveImage(gctx, store, location)
			default:
				cerr = models.NewClassifiedError(http.StatusInternalServerError,
					"Unrecognized image type")
			}
			if cerr != nil {
				return cerr
			}
			paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		d.removeAll(paths)

		var cerr *models.ClassifiedError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}

	return paths, nil
}

// downloadImage runs one web location through the resize invoker and
// writes the normalized PNG to a temp file.
func (d *Downloader) downloadImage(ctx context.Context, location models.Location) (string, *models.ClassifiedError) {
	resp := d.invoker.Invoke(ctx, location.URL)
	if resp.StatusCode != http.StatusOK {
		return "", &models.ClassifiedError{
			Message:    errorMessage(resp),
			StatusCode: resp.StatusCode,
			Location:   &location,
		}
	}

	encoded, ok := resp.Body.(string)
	if !ok {
		return "", models.NewClassifiedError(http.StatusInternalServerError,
			"unexpected resize response body").WithLocation(location)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error()).
			WithLocation(location)
	}

	tmpPath, err := utils.TempFile("dl-", ".png")
	if err != nil {
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error()).
			WithLocation(location)
	}
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		os.Remove(tmpPath)
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error()).
			WithLocation(location)
	}
	return tmpPath, nil
}

func (d *Downloader) retrieveImage(ctx context.Context, store *StoreClient, location models.Location) (string, *models.ClassifiedError) {
	path, cerr := store.Retrieve(ctx, *location.Spec)
	if cerr != nil {
		return "", cerr.WithLocation(location)
	}
	return path, nil
}

// errorMessage extracts the human-readable message from a failure
// envelope regardless of how the resize ran (in-process or remote).
func errorMessage(resp models.HTTPResponse) string {
	switch body := resp.Body.(type) {
	case *models.ClassifiedError:
		return body.Message
	case string:
		return body
	default:
		return "Unable to download image"
	}
}

func (d *Downloader) removeAll(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("Failed to delete file", zap.String("path", path), zap.Error(err))
		}
	}
}
