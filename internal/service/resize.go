package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/config"
	"github.com/batchpix/training-archive/internal/models"
	"github.com/batchpix/training-archive/pkg/utils"
)

// Canonical dimensions required by the downstream training consumer.
// Source aspect ratio is deliberately ignored.
const (
	TargetWidth  = 224
	TargetHeight = 224
)

// googleImageHostRegex matches Google's image CDN hosts so error messages
// can name the provider instead of an opaque hostname.
var googleImageHostRegex = regexp.MustCompile(`^lh[1-9]\.google(?:usercontent)?\.com$`)

const googleLoginPrefix = "https://accounts.google.com/ServiceLogin?continue="

// Resizer downloads an image from a third-party URL and normalizes it to
// the canonical size, classifying the many ways arbitrary websites can
// fail or refuse.
type Resizer struct {
	client *http.Client
	cfg    config.ResizeConfig
	cache  *ResultCache
	logger *zap.Logger
}

func NewResizer(cfg config.ResizeConfig, cache *ResultCache, logger *zap.Logger) *Resizer {
	// Arbitrary third-party hosts are targeted, many with broken TLS;
	// certificate validation is relaxed on purpose.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Resizer{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cfg:    cfg,
		cache:  cache,
		logger: logger,
	}
}

// Resize downloads the image at url, scales it to the canonical size and
// returns a 200 envelope whose body is the base64-encoded PNG. Any
// failure is classified into a 400/500 envelope. A non-200 first attempt
// is retried exactly once.
func (r *Resizer) Resize(ctx context.Context, imageURL string) models.HTTPResponse {
	if imageURL == "" {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest, "url is a required parameter"))
	}

	if cached, ok := r.cache.GetResize(ctx, imageURL); ok {
		r.logger.Debug("Resize cache hit", zap.String("url", imageURL))
		return cached
	}

	resp := r.requestAndResize(ctx, imageURL)
	if resp.StatusCode != http.StatusOK && ctx.Err() == nil {
		r.logger.Info("Retrying image download", zap.String("url", imageURL))
		resp = r.requestAndResize(ctx, imageURL)
	}

	if resp.StatusCode == http.StatusOK {
		r.cache.SetResize(ctx, imageURL, resp)
	}
	return resp
}

func (r *Resizer) requestAndResize(ctx context.Context, imageURL string) models.HTTPResponse {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from "+utils.HostFromURL(imageURL)))
	}

	// Some websites block requests without a user-agent; some block
	// requests without an accept-language.
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "image/png,image/jpeg,image/*,*/*")
	req.Header.Set("Accept-Language", "*")

	resp, err := r.client.Do(req)
	if err != nil {
		return r.classifyTransportError(err, imageURL)
	}
	defer resp.Body.Close()

	if problem := r.recognizeCommonProblems(resp); problem != nil {
		r.logger.Info("Recognized download problem",
			zap.String("url", imageURL),
			zap.Int("status", problem.StatusCode))
		return *problem
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxDownloadSize+1))
	if err != nil {
		return r.classifyTransportError(err, imageURL)
	}

	return r.decodeAndResize(data)
}

func (r *Resizer) decodeAndResize(data []byte) models.HTTPResponse {
	if len(data) == 0 {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest, "Unsupported image file type"))
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest, "Unsupported image file type"))
	}

	resized := imaging.Resize(img, TargetWidth, TargetHeight, imaging.Lanczos)

	buffer := &bytes.Buffer{}
	if err := imaging.Encode(buffer, resized, imaging.PNG); err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError,
				fmt.Sprintf("failed to encode image: %v", err)))
	}

	return models.NewHTTPResponse(
		base64.StdEncoding.EncodeToString(buffer.Bytes()),
		http.StatusOK,
		models.ContentTypePNG)
}

// recognizeCommonProblems classifies a response before any pixels are
// decoded. Returns nil when the response looks usable.
func (r *Resizer) recognizeCommonProblems(resp *http.Response) *models.HTTPResponse {
	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	// Google redirects protected images to an HTML login page rather than
	// returning a plain 401.
	if resp.StatusCode == http.StatusBadRequest &&
		strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") &&
		strings.HasPrefix(finalURL, googleLoginPrefix) {
		errResp := models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Google would not allow this service to use that image"))
		return &errResp
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errResp := r.classifyErrorResponse(resp)
		return &errResp
	}

	if declared := resp.Header.Get("Content-Length"); declared != "" {
		if size, err := strconv.ParseInt(declared, 10, 64); err == nil && size > r.cfg.MaxDownloadSize {
			r.logger.Info("Download too big", zap.Int64("content_length", size))
			errResp := models.NewErrorResponse(
				models.NewClassifiedError(http.StatusBadRequest, "Image size exceeds maximum limit"))
			errResp.Headers["X-Declared-Content-Length"] = declared
			return &errResp
		}
	}

	return nil
}

func (r *Resizer) classifyErrorResponse(resp *http.Response) models.HTTPResponse {
	host := ""
	if resp.Request != nil && resp.Request.URL != nil {
		host = resp.Request.URL.Host
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusInternalServerError:
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from "+host))
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				friendlyHostName(host)+" would not allow this service to use that image"))
	default:
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError,
				"Unable to download image from "+host))
	}
}

func (r *Resizer) classifyTransportError(err error, imageURL string) models.HTTPResponse {
	r.logger.Info("Download transport error", zap.String("url", imageURL), zap.Error(err))

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from "+dnsErr.Name))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from the website"))
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusBadRequest,
				"Unable to download image from "+utils.HostFromURL(imageURL)))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return models.NewErrorResponse(
		models.NewClassifiedError(http.StatusInternalServerError, err.Error()))
}

// friendlyHostName maps well-known CDN hostnames to the provider name
// end users recognize.
func friendlyHostName(host string) string {
	if googleImageHostRegex.MatchString(host) {
		return "Google"
	}
	return host
}
