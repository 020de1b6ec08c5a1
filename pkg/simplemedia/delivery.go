package simplemedia

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultDeliveryTTL is how long resolved delivery URLs stay valid
const DefaultDeliveryTTL = 15 * time.Minute

// DeliveryResolver turns content records into short-lived access to their
// bytes. It never writes.
type DeliveryResolver struct {
	repo    ContentRepository
	gateway *Gateway
	ttl     time.Duration
	logger  *slog.Logger
}

// DeliveryOption configures a DeliveryResolver
type DeliveryOption func(*DeliveryResolver)

// WithDeliveryTTL sets the lifetime of resolved URLs
func WithDeliveryTTL(ttl time.Duration) DeliveryOption {
	return func(r *DeliveryResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithDeliveryLogger sets the logger
func WithDeliveryLogger(logger *slog.Logger) DeliveryOption {
	return func(r *DeliveryResolver) {
		r.logger = logger
	}
}

// NewDeliveryResolver creates a DeliveryResolver
func NewDeliveryResolver(repo ContentRepository, gateway *Gateway, opts ...DeliveryOption) *DeliveryResolver {
	r := &DeliveryResolver{
		repo:    repo,
		gateway: gateway,
		ttl:     DefaultDeliveryTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the lifetime of resolved URLs
func (r *DeliveryResolver) TTL() time.Duration {
	return r.ttl
}

// Resolve returns a time-limited URL for the content's media. A thumbnail
// stored with the content is presigned too; a failure there only drops the
// thumbnail from the descriptor.
func (r *DeliveryResolver) Resolve(ctx context.Context, id uuid.UUID) (*DeliveryDescriptor, error) {
	content, err := r.repo.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "resolve", Err: classifyPersistence("get content", err)}
	}
	if content.StorageKey == "" {
		return nil, &ContentError{ContentID: id, Op: "resolve", Err: ErrObjectNotFound}
	}

	url, expiresAt, err := r.gateway.Presign(ctx, content.StorageKey, r.ttl)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Error("Content references a missing object", "content_id", id)
		}
		return nil, &ContentError{ContentID: id, Op: "resolve", Err: err}
	}

	desc := &DeliveryDescriptor{
		ContentID:    content.ID,
		URL:          url,
		ExpiresAt:    expiresAt,
		ContentType:  content.ContentType,
		MimeType:     content.MimeType,
		Duration:     content.Duration,
		ThumbnailURL: content.ThumbnailURL,
	}

	if content.ThumbnailKey != "" {
		thumbURL, _, err := r.gateway.Presign(ctx, content.ThumbnailKey, r.ttl)
		if err != nil {
			r.logger.Warn("Thumbnail presign failed", "content_id", id, "error", err)
		} else {
			desc.ThumbnailURL = thumbURL
		}
	}

	return desc, nil
}

// Open streams the content's media directly through the gateway
func (r *DeliveryResolver) Open(ctx context.Context, id uuid.UUID) (*DeliveryStream, error) {
	content, err := r.repo.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "open", Err: classifyPersistence("get content", err)}
	}
	if content.StorageKey == "" {
		return nil, &ContentError{ContentID: id, Op: "open", Err: ErrObjectNotFound}
	}

	body, err := r.gateway.Get(ctx, content.StorageKey)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "open", Err: err}
	}
	return &DeliveryStream{
		Body:        body,
		Size:        content.Size,
		MimeType:    content.MimeType,
		ContentType: content.ContentType,
		Duration:    content.Duration,
	}, nil
}
