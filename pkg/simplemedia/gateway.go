package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Gateway fronts a single BlobStore and normalizes its failures: a missing
// object is ErrObjectNotFound, anything else is ErrStorage, both wrapped in a
// StorageError naming the backend and key.
type Gateway struct {
	backend string
	store   BlobStore
	now     func() time.Time
}

// NewGateway creates a Gateway over store. backend names the store in errors and logs.
func NewGateway(backend string, store BlobStore) *Gateway {
	return &Gateway{backend: backend, store: store, now: time.Now}
}

// Backend returns the configured backend name
func (g *Gateway) Backend() string {
	return g.backend
}

// Store returns the underlying BlobStore
func (g *Gateway) Store() BlobStore {
	return g.store
}

// Put streams upload to key. Nothing is readable under key if Put fails.
func (g *Gateway) Put(ctx context.Context, key string, upload Upload) error {
	if upload.Body == nil {
		return invalid("file", "no media supplied")
	}
	size := upload.Size
	if size <= 0 {
		size = -1
	}
	params := UploadParams{MimeType: upload.MimeType, Size: size}
	if err := g.store.Upload(ctx, key, upload.Body, params); err != nil {
		return g.wrap("put", key, err)
	}
	return nil
}

// Get opens key for reading
func (g *Gateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.store.Download(ctx, key)
	if err != nil {
		return nil, g.wrap("get", key, err)
	}
	return rc, nil
}

// Stat returns the stored attributes of key
func (g *Gateway) Stat(ctx context.Context, key string) (*ObjectMeta, error) {
	meta, err := g.store.GetObjectMeta(ctx, key)
	if err != nil {
		return nil, g.wrap("stat", key, err)
	}
	return meta, nil
}

// Delete removes key. Deleting an absent key succeeds.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return g.wrap("delete", key, err)
	}
	return nil
}

// Presign returns a URL granting read access to key until the returned
// instant. The object must exist.
func (g *Gateway) Presign(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("presign ttl must be positive: %w", ErrInvalidInput)
	}
	if _, err := g.Stat(ctx, key); err != nil {
		return "", time.Time{}, err
	}
	// Backends may round expiry up to the next second; report the earlier bound.
	expiresAt := g.now().Add(ttl).Truncate(time.Second)
	url, err := g.store.GetDownloadURL(ctx, key, ttl)
	if err != nil {
		return "", time.Time{}, g.wrap("presign", key, err)
	}
	return url, expiresAt, nil
}

// Ping checks the backend if it supports liveness checks
func (g *Gateway) Ping(ctx context.Context) error {
	if p, ok := g.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return g.wrap("ping", "", err)
		}
	}
	return nil
}

func (g *Gateway) wrap(op, key string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &StorageError{Backend: g.backend, Key: key, Op: op, Err: ErrObjectNotFound}
	}
	return &StorageError{Backend: g.backend, Key: key, Op: op, Err: fmt.Errorf("%w: %w", ErrStorage, err)}
}
