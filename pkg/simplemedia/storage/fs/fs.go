package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
)

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// Backend is a filesystem implementation of the simplemedia.BlobStore interface.
// Objects are written to a temporary file and renamed into place, so a key
// is either absent or complete.
type Backend struct {
	baseDir string
	signer  *presigned.Signer
}

// New creates a new filesystem storage backend
func New(config Config, signer *presigned.Signer) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: baseDir, signer: signer}, nil
}

func (b *Backend) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes base directory", key)
	}
	return p, nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplemedia.ObjectMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, simplemedia.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &simplemedia.ObjectMeta{
		Key:       key,
		Size:      info.Size(),
		MimeType:  detectMimeType(filePath),
		UpdatedAt: info.ModTime(),
	}, nil
}

func detectMimeType(filePath string) string {
	if mt := objectkey.MimeType(filepath.Ext(filePath)); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(filepath.Ext(filePath)); mt != "" {
		return mt
	}
	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}
	return contentType
}

// Upload writes the stream to a temporary file and renames it into place
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, params simplemedia.UploadParams) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: reader}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
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

// Download opens the file. The returned *os.File supports seeking.
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, simplemedia.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the file
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return simplemedia.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Ping checks that the base directory is reachable
func (b *Backend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.baseDir)
	}
	return nil
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
