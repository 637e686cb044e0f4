package utils

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SupportedImageTypes are the MIME types the training pipeline accepts.
var SupportedImageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
}

// IsValidImageType checks if content type is a supported image type.
func IsValidImageType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, validType := range SupportedImageTypes {
		if ct == validType {
			return true
		}
	}
	return false
}

// HostFromURL extracts the host from a URL for use in user-facing error
// messages. Falls back to the raw string when it does not parse.
func HostFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// TempFile creates an empty temp file with a unique name and returns its
// path. The caller owns the file and is responsible for deleting it.
func TempFile(prefix, suffix string) (string, error) {
	name := fmt.Sprintf("%s%s*%s", prefix, uuid.New().String()[:8], suffix)
	f, err := os.CreateTemp("", name)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
