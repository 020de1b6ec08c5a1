package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
)

type object struct {
	data      []byte
	mimeType  string
	etag      string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the simplemedia.BlobStore interface.
// Download URLs are signed by a presigned.Signer and served by presigned.Handler.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	signer  *presigned.Signer
}

// New creates a new in-memory storage backend. signer may be nil, in which
// case GetDownloadURL fails.
func New(signer *presigned.Signer) *Backend {
	return &Backend{
		objects: make(map[string]object),
		signer:  signer,
	}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, simplemedia.ErrObjectNotFound
	}

	return &simplemedia.ObjectMeta{
		Key:       key,
		Size:      int64(len(obj.data)),
		MimeType:  obj.mimeType,
		ETag:      obj.etag,
		UpdatedAt: obj.updatedAt,
	}, nil
}

// Upload reads the whole stream before storing it, so a failed read leaves nothing behind
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, params simplemedia.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{
		data:      data,
		mimeType:  mimeType,
		etag:      hex.EncodeToString(sum[:]),
		updatedAt: time.Now().UTC(),
	}
	return nil
}

// GetDownloadURL returns a signed URL served by presigned.Handler
func (b *Backend) GetDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.signer == nil {
		return "", presigned.ErrNoSecretKey
	}
	return b.signer.SignKey(key, ttl)
}

// Download returns a seekable reader over a snapshot of the object
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, simplemedia.ErrObjectNotFound
	}

	return readSeekNopCloser{bytes.NewReader(obj.data)}, nil
}

// Delete deletes an object
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return simplemedia.ErrObjectNotFound
	}

	delete(b.objects, key)
	return nil
}

// Keys returns the stored keys
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
