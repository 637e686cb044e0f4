package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/models"
)

// stubInvoker serves canned envelopes per URL, standing in for the
// resize transformer.
type stubInvoker struct {
	responses map[string]models.HTTPResponse
	calls     atomic.Int32
}

func (s *stubInvoker) Invoke(ctx context.Context, url string) models.HTTPResponse {
	s.calls.Add(1)
	if resp, ok := s.responses[url]; ok {
		return resp
	}
	return models.NewErrorResponse(
		models.NewClassifiedError(http.StatusInternalServerError, "unexpected url "+url))
}

func okEnvelope(t *testing.T) models.HTTPResponse {
	t.Helper()
	return models.NewHTTPResponse(
		base64.StdEncoding.EncodeToString(pngBytes(t, TargetWidth, TargetHeight)),
		http.StatusOK,
		models.ContentTypePNG)
}

func downloadLocation(id, url string) models.Location {
	return models.Location{Type: models.LocationTypeDownload, ImageID: id, URL: url}
}

func testArchiveConfig() config.ArchiveConfig {
	return config.ArchiveConfig{
		MaxZipSize:    100000000,
		MaxConcurrent: 4,
	}
}

func TestCreateArchiveHappyPath(t *testing.T) {
	invoker := &stubInvoker{responses: map[string]models.HTTPResponse{
		"http://example.com/a.png": okEnvelope(t),
		"http://example.com/b.png": okEnvelope(t),
		"http://example.com/c.png": okEnvelope(t),
	}}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		downloadLocation("1", "http://example.com/a.png"),
		downloadLocation("2", "http://example.com/b.png"),
		downloadLocation("3", "http://example.com/c.png"),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ContentTypeZip, resp.Headers["Content-Type"])

	encoded, ok := resp.Body.(string)
	require.True(t, ok)
	zipData, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	require.NoError(t, err)
	assert.Len(t, reader.File, 3, "one archive entry per requested location")
}

func TestCreateArchiveFailsFast(t *testing.T) {
	badLocation := downloadLocation("2", "http://example.com/missing.png")
	invoker := &stubInvoker{responses: map[string]models.HTTPResponse{
		"http://example.com/a.png": okEnvelope(t),
		"http://example.com/missing.png": models.NewErrorResponse(&models.ClassifiedError{
			Message:    "Unable to download image from example.com",
			StatusCode: http.StatusBadRequest,
		}),
		"http://example.com/c.png": okEnvelope(t),
	}}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		downloadLocation("1", "http://example.com/a.png"),
		badLocation,
		downloadLocation("3", "http://example.com/c.png"),
	})

	// exactly one classified error referencing the offending location,
	// and no archive body
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	cerr, ok := resp.Body.(*models.ClassifiedError)
	require.True(t, ok)
	assert.Equal(t, "Unable to download image from example.com", cerr.Message)
	require.NotNil(t, cerr.Location)
	assert.Equal(t, badLocation.ImageID, cerr.Location.ImageID)
	assert.NotEmpty(t, resp.Headers[models.ErrorHeader])
}

func TestCreateArchiveRejectsUnknownLocationType(t *testing.T) {
	invoker := &stubInvoker{}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		{Type: "copy", ImageID: "1", URL: "http://example.com/a.png"},
	})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	cerr, ok := resp.Body.(*models.ClassifiedError)
	require.True(t, ok)
	assert.Equal(t, "Unrecognized image type", cerr.Message)
}

func TestCreateArchiveEnforcesSizeCeiling(t *testing.T) {
	invoker := &stubInvoker{responses: map[string]models.HTTPResponse{
		"http://example.com/a.png": okEnvelope(t),
	}}

	cfg := testArchiveConfig()
	cfg.MaxZipSize = 10 // anything real overflows
	downloader := NewDownloader(invoker, cfg, zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		downloadLocation("1", "http://example.com/a.png"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	cerr, ok := resp.Body.(*models.ClassifiedError)
	require.True(t, ok)
	assert.Equal(t, "Training data exceeds maximum limit (100 mb)", cerr.Message)
}

// tempLeftovers lists everything left behind in dir after a request.
func tempLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	return leftovers
}

func TestCreateArchiveDeletesTempFilesOnSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TMPDIR", tmpDir)

	invoker := &stubInvoker{responses: map[string]models.HTTPResponse{
		"http://example.com/a.png": okEnvelope(t),
		"http://example.com/b.png": okEnvelope(t),
	}}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		downloadLocation("1", "http://example.com/a.png"),
		downloadLocation("2", "http://example.com/b.png"),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, tempLeftovers(t, tmpDir),
		"no fetched file or archive may outlive the request")
}

func TestCreateArchiveDeletesTempFilesOnFailure(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TMPDIR", tmpDir)

	invoker := &stubInvoker{responses: map[string]models.HTTPResponse{
		"http://example.com/a.png": okEnvelope(t),
		"http://example.com/missing.png": models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from example.com")),
	}}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, []models.Location{
		downloadLocation("1", "http://example.com/a.png"),
		downloadLocation("2", "http://example.com/missing.png"),
	})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, tempLeftovers(t, tmpDir),
		"an aborted batch must not leave fetched files behind")
}

func TestCreateArchiveLargeBatch(t *testing.T) {
	responses := map[string]models.HTTPResponse{}
	var locations []models.Location
	for _, suffix := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		url := "http://example.com/" + suffix + ".png"
		responses[url] = okEnvelope(t)
		locations = append(locations, downloadLocation(suffix, url))
	}

	invoker := &stubInvoker{responses: responses}
	downloader := NewDownloader(invoker, testArchiveConfig(), zap.NewNop())

	resp := downloader.CreateArchive(context.Background(), nil, locations)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(len(locations)), invoker.calls.Load())
}

func TestErrorMessageExtraction(t *testing.T) {
	assert.Equal(t, "boom",
		errorMessage(models.NewErrorResponse(models.NewClassifiedError(500, "boom"))))
	assert.Equal(t, "raw text",
		errorMessage(models.NewHTTPResponse("raw text", 500, "")))
	assert.Equal(t, "Unable to download image",
		errorMessage(models.NewHTTPResponse(nil, 500, "")))
}
