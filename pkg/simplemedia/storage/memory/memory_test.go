package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey("0123456789abcdef0123456789abcdef"), presigned.WithBaseURL("http://localhost"))
	backend := memorystorage.New(signer)
	ctx := context.Background()
	key := "media/owner/video/clip.mp4"
	data := "not really an mp4"

	t.Run("Upload", func(t *testing.T) {
		err := backend.Upload(ctx, key, strings.NewReader(data), simplemedia.UploadParams{MimeType: "video/mp4", Size: int64(len(data))})
		require.NoError(t, err)
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, meta.Key)
		assert.Equal(t, int64(len(data)), meta.Size)
		assert.Equal(t, "video/mp4", meta.MimeType)
		assert.NotEmpty(t, meta.ETag)
	})

	t.Run("Download", func(t *testing.T) {
		rc, err := backend.Download(ctx, key)
		require.NoError(t, err)
		defer rc.Close()

		_, seekable := rc.(io.ReadSeeker)
		assert.True(t, seekable)

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, data, string(got))
	})

	t.Run("GetDownloadURL", func(t *testing.T) {
		url, err := backend.GetDownloadURL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "http://localhost/blobs/media/owner/video/clip.mp4?signature="))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, key))

		_, err := backend.GetObjectMeta(ctx, key)
		assert.ErrorIs(t, err, simplemedia.ErrNotFound)

		err = backend.Delete(ctx, key)
		assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		_, err := backend.Download(ctx, "missing")
		assert.ErrorIs(t, err, simplemedia.ErrNotFound)
	})
}

func TestMemoryBackendWithoutSigner(t *testing.T) {
	backend := memorystorage.New(nil)
	_, err := backend.GetDownloadURL(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, presigned.ErrNoSecretKey)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestMemoryBackendFailedUploadLeavesNothing(t *testing.T) {
	backend := memorystorage.New(nil)
	err := backend.Upload(context.Background(), "k", failingReader{}, simplemedia.UploadParams{Size: -1})
	require.Error(t, err)
	assert.Empty(t, backend.Keys())
}
