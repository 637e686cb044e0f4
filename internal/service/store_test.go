package service

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/models"
)

func TestObjectKeyDeterminism(t *testing.T) {
	spec := models.StorageSpec{
		ClassID:   "c",
		UserID:    "u",
		ProjectID: "p",
		ObjectID:  "o",
	}

	assert.Equal(t, "c/u/p/o", ObjectKey(spec))
	// same spec, same key, every time
	assert.Equal(t, ObjectKey(spec), ObjectKey(spec))
}

func TestObjectKeyOrdering(t *testing.T) {
	spec := models.StorageSpec{
		ClassID:   "banana",
		UserID:    "auth0|5b296bce04e0e30bf72a6f0c",
		ProjectID: "f905f940-a4cd-11e9-b9e1-c157290d5ed7",
		ObjectID:  "db759615-c4a7-4d40-a0d6-5bab30283753",
	}

	assert.Equal(t,
		"banana/auth0|5b296bce04e0e30bf72a6f0c/"+
			"f905f940-a4cd-11e9-b9e1-c157290d5ed7/"+
			"db759615-c4a7-4d40-a0d6-5bab30283753",
		ObjectKey(spec))
}

func testStoreClient() *StoreClient {
	return &StoreClient{logger: zap.NewNop()}
}

func writeTempContent(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dl-test")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestRenameFromContentsTagsPNG(t *testing.T) {
	store := testStoreClient()
	path := writeTempContent(t, pngBytes(t, 16, 16))

	typedPath, cerr := store.renameFromContents(path, models.StorageSpec{ObjectID: "obj-1"})
	require.Nil(t, cerr)
	assert.Equal(t, path+".png", typedPath)

	_, err := os.Stat(typedPath)
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the untyped file should be gone")
}

func TestRenameFromContentsRejectsUnsupportedType(t *testing.T) {
	store := testStoreClient()
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	path := writeTempContent(t, svg)

	_, cerr := store.renameFromContents(path, models.StorageSpec{ObjectID: "obj-2"})
	require.NotNil(t, cerr)
	assert.Equal(t, http.StatusInternalServerError, cerr.StatusCode)
	assert.Equal(t, "Training data (obj-2) has unsupported file type (svg)", cerr.Message)
}

func TestClassifyStoreError(t *testing.T) {
	store := testStoreClient()

	authErr := store.classifyStoreError(&smithy.GenericAPIError{
		Code: "AccessDenied", Message: "Access Denied",
	}, "c/u/p/o")
	assert.Equal(t, http.StatusInternalServerError, authErr.StatusCode)
	assert.Equal(t, "Unable to download image from store (auth)", authErr.Message)

	keyErr := store.classifyStoreError(&smithy.GenericAPIError{
		Code: "NoSuchKey", Message: "The specified key does not exist",
	}, "c/u/p/o")
	assert.Equal(t, "Unable to download image from store (unknown)", keyErr.Message)

	plainErr := store.classifyStoreError(errors.New("connection refused"), "c/u/p/o")
	assert.Equal(t, "Unable to download image from store (unknown)", plainErr.Message)
}

func TestNormalizeFileResizesStoredImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stored.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 800, 600), 0o600))

	require.NoError(t, normalizeFile(path))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, TargetWidth, img.Bounds().Dx())
	assert.Equal(t, TargetHeight, img.Bounds().Dy())
}
