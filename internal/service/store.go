package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/models"
	"github.com/batchpix/training-archive/pkg/utils"
)

// StoreClient fetches training images from the S3-compatible object
// store. One client is built per request from the request's credentials;
// nothing is shared across requests.
type StoreClient struct {
	s3Client *s3.Client
	bucket   string
	logger   *zap.Logger
}

// NewStoreClient builds a store client from request-scoped credentials.
func NewStoreClient(ctx context.Context, info models.StoreInfo, logger *zap.Logger) (*StoreClient, error) {
	creds := credentials.NewStaticCredentialsProvider(
		info.Credentials.APIKeyID,
		info.Credentials.ServiceInstanceID,
		"")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion("us-standard"),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(info.Credentials.Endpoint)
		o.UsePathStyle = true
	})

	return &StoreClient{
		s3Client: client,
		bucket:   info.BucketID,
		logger:   logger,
	}, nil
}

// ObjectKey joins the location fields into the hierarchical object key.
// This is the sole addressing scheme for stored images.
func ObjectKey(spec models.StorageSpec) string {
	return strings.Join([]string{
		spec.ClassID,
		spec.UserID,
		spec.ProjectID,
		spec.ObjectID,
	}, "/")
}

// Retrieve downloads one stored object to a local temp file, sniffs its
// real file type, and normalizes it to the canonical size. Returns the
// path of the normalized file.
func (s *StoreClient) Retrieve(ctx context.Context, spec models.StorageSpec) (string, *models.ClassifiedError) {
	key := ObjectKey(spec)

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", s.classifyStoreError(err, key)
	}
	defer resp.Body.Close()

	// Stored metadata claims a file type, but it is only advisory: the
	// object is re-normalized here so the contents decide.
	if claimed, ok := resp.Metadata["filetype"]; ok &&
		!utils.IsValidImageType(claimed) && !utils.IsValidImageType("image/"+claimed) {
		s.logger.Info("Invalid filetype metadata",
			zap.String("key", key),
			zap.String("filetype", claimed))
	}

	tmpPath, err := utils.TempFile("dl-", "")
	if err != nil {
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}

	if err := writeStream(tmpPath, resp.Body); err != nil {
		os.Remove(tmpPath)
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}

	typedPath, cerr := s.renameFromContents(tmpPath, spec)
	if cerr != nil {
		os.Remove(tmpPath)
		return "", cerr
	}

	// Stored images may have been saved at original resolution;
	// normalization is enforced at read time, not assumed from write time.
	if err := normalizeFile(typedPath); err != nil {
		os.Remove(typedPath)
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}

	return typedPath, nil
}

// renameFromContents sniffs the real file type from magic bytes and tags
// the file with the matching extension. Only jpg and png survive.
func (s *StoreClient) renameFromContents(path string, spec models.StorageSpec) (string, *models.ClassifiedError) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}

	filetype := strings.TrimPrefix(mtype.Extension(), ".")
	if filetype != "jpg" && filetype != "png" {
		return "", models.NewClassifiedError(http.StatusInternalServerError,
			"Training data ("+spec.ObjectID+") has unsupported file type ("+filetype+")")
	}

	typedPath := path + "." + filetype
	if err := os.Rename(path, typedPath); err != nil {
		return "", models.NewClassifiedError(http.StatusInternalServerError, err.Error())
	}
	return typedPath, nil
}

func (s *StoreClient) classifyStoreError(err error, key string) *models.ClassifiedError {
	s.logger.Error("Object store error", zap.String("key", key), zap.Error(err))

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "CredentialsNotFound":
			return models.NewClassifiedError(http.StatusInternalServerError,
				"Unable to download image from store (auth)")
		}
	}
	return models.NewClassifiedError(http.StatusInternalServerError,
		"Unable to download image from store (unknown)")
}

func writeStream(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return err
	}
	return f.Sync()
}

// normalizeFile rewrites the image at path at the canonical dimensions.
func normalizeFile(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	resized := imaging.Resize(img, TargetWidth, TargetHeight, imaging.Lanczos)
	return imaging.Save(resized, path)
}
