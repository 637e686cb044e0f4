package service

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/batchpix/training-archive/internal/models"
	"github.com/batchpix/training-archive/pkg/utils"
)

// createZip streams the fetched files into a zip archive at maximum
// compression. Entries are named by base name only, never by temp path.
// Returns the zip path and its size in bytes.
func createZip(paths []string) (string, int64, error) {
	zipPath, err := utils.TempFile("archive-", ".zip")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create zip file: %w", err)
	}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		os.Remove(zipPath)
		return "", 0, fmt.Errorf("failed to open zip file: %w", err)
	}

	zw := zip.NewWriter(zipFile)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, path := range paths {
		if err := addZipEntry(zw, path); err != nil {
			zw.Close()
			zipFile.Close()
			os.Remove(zipPath)
			return "", 0, err
		}
	}

	if err := zw.Close(); err != nil {
		zipFile.Close()
		os.Remove(zipPath)
		return "", 0, fmt.Errorf("failed to finalize zip: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		os.Remove(zipPath)
		return "", 0, err
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		os.Remove(zipPath)
		return "", 0, err
	}
	return zipPath, info.Size(), nil
}

func addZipEntry(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to add zip entry: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write zip entry: %w", err)
	}
	return nil
}

// checkZipSize confirms the assembled archive fits under the service
// ceiling. The limit applies to the compressed output, which is why this
// runs strictly after zipping.
func checkZipSize(size, maxSize int64) *models.ClassifiedError {
	if size > maxSize {
		return models.NewClassifiedError(http.StatusBadRequest,
			"Training data exceeds maximum limit (100 mb)")
	}
	return nil
}
