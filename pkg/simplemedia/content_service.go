package simplemedia

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

const (
	// DefaultUploadTimeout bounds an upload once it has been detached from the caller
	DefaultUploadTimeout = 10 * time.Minute

	// DefaultListLimit is used when a listing request has no limit
	DefaultListLimit = 100
	// MaxListLimit caps listing page size
	MaxListLimit = 100

	cleanupTimeout = 30 * time.Second
)

// ContentService owns the content lifecycle. Objects are written before the
// record that references them and removed after it; a record is never left
// pointing at an object that was not written.
type ContentService struct {
	repo           ContentRepository
	gateway        *Gateway
	keys           KeyGenerator
	orphans        OrphanRecorder
	events         EventSink
	media          MediaPolicy
	thumbnailHosts ThumbnailHosts
	uploadTimeout  time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// ContentOption configures a ContentService
type ContentOption func(*ContentService) error

// WithKeyGenerator sets how object keys are named
func WithKeyGenerator(keys KeyGenerator) ContentOption {
	return func(s *ContentService) error {
		s.keys = keys
		return nil
	}
}

// WithOrphanRecorder sets where undeletable objects are reported
func WithOrphanRecorder(orphans OrphanRecorder) ContentOption {
	return func(s *ContentService) error {
		s.orphans = orphans
		return nil
	}
}

// WithEventSink sets the event sink
func WithEventSink(events EventSink) ContentOption {
	return func(s *ContentService) error {
		s.events = events
		return nil
	}
}

// WithMediaPolicy replaces DefaultMediaPolicy
func WithMediaPolicy(policy MediaPolicy) ContentOption {
	return func(s *ContentService) error {
		s.media = policy
		return nil
	}
}

// WithThumbnailHosts sets the hosts trusted for external thumbnail URLs
func WithThumbnailHosts(hosts ...string) ContentOption {
	return func(s *ContentService) error {
		s.thumbnailHosts = append(ThumbnailHosts(nil), hosts...)
		return nil
	}
}

// WithUploadTimeout bounds each upload
func WithUploadTimeout(d time.Duration) ContentOption {
	return func(s *ContentService) error {
		if d <= 0 {
			return errors.New("upload timeout must be positive")
		}
		s.uploadTimeout = d
		return nil
	}
}

// WithContentClock replaces the clock used for record timestamps
func WithContentClock(now func() time.Time) ContentOption {
	return func(s *ContentService) error {
		s.now = now
		return nil
	}
}

// WithContentLogger sets the logger
func WithContentLogger(logger *slog.Logger) ContentOption {
	return func(s *ContentService) error {
		s.logger = logger
		return nil
	}
}

// NewContentService creates a ContentService
func NewContentService(repo ContentRepository, gateway *Gateway, opts ...ContentOption) (*ContentService, error) {
	if repo == nil {
		return nil, errors.New("content repository is required")
	}
	if gateway == nil {
		return nil, errors.New("storage gateway is required")
	}

	s := &ContentService{
		repo:          repo,
		gateway:       gateway,
		keys:          objectkey.New(),
		events:        NoopEventSink{},
		media:         DefaultMediaPolicy(),
		uploadTimeout: DefaultUploadTimeout,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.orphans == nil {
		s.orphans = NewLogOrphanRecorder(s.logger)
	}
	return s, nil
}

// Create uploads the media (and thumbnail, if given) and then records the
// content. If recording fails the uploaded objects are deleted again.
func (s *ContentService) Create(ctx context.Context, req CreateContentRequest) (*Content, error) {
	if err := s.validateCreate(&req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	content := &Content{
		ID:           uuid.New(),
		OwnerID:      req.OwnerID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		ContentType:  req.ContentType,
		Duration:     req.Duration,
		ThumbnailURL: req.ThumbnailURL,
		MimeType:     NormalizeMimeType(req.Media.MimeType),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	writeCtx, cancel := s.detached(ctx)
	defer cancel()

	mediaKey, size, err := s.putMedia(writeCtx, content.OwnerID, content.ContentType, req.Media)
	if err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "create", Err: err}
	}
	content.StorageKey = mediaKey
	content.Size = size
	written := []string{mediaKey}

	if req.Thumbnail != nil {
		thumbKey, err := s.putThumbnail(writeCtx, content.OwnerID, *req.Thumbnail)
		if err != nil {
			s.removeObjects(ctx, content.ID, OrphanCreateRollback, written)
			return nil, &ContentError{ContentID: content.ID, Op: "create", Err: err}
		}
		content.ThumbnailKey = thumbKey
		written = append(written, thumbKey)
	}

	if err := s.repo.CreateContent(writeCtx, content); err != nil {
		s.removeObjects(ctx, content.ID, OrphanCreateRollback, written)
		return nil, &ContentError{ContentID: content.ID, Op: "create", Err: classifyPersistence("create content", err)}
	}

	s.logger.Info("Content created", "content_id", content.ID, "owner_id", content.OwnerID, "content_type", content.ContentType)
	s.publish(ctx, EventContentCreated, content)
	return content, nil
}

func (s *ContentService) validateCreate(req *CreateContentRequest) error {
	if req.OwnerID == uuid.Nil {
		return invalid("owner_id", "is required")
	}
	if err := validateTitle(req.Title); err != nil {
		return err
	}
	if !req.ContentType.Valid() {
		return invalid("content_type", "must be %q or %q", ContentTypeVideo, ContentTypeAudio)
	}
	if err := validateDuration(req.Duration); err != nil {
		return err
	}
	if req.Media.Body == nil {
		return invalid("file", "is required")
	}
	if err := s.media.checkMedia(req.ContentType, req.Media.MimeType); err != nil {
		return err
	}
	if req.Thumbnail != nil && req.ThumbnailURL != "" {
		return invalid("thumbnail", "supply either a thumbnail file or thumbnail_url, not both")
	}
	if req.Thumbnail != nil {
		if err := s.media.checkThumbnail(req.Thumbnail.MimeType); err != nil {
			return err
		}
	}
	if req.ThumbnailURL != "" {
		if err := s.thumbnailHosts.check(req.ThumbnailURL); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the content record for id
func (s *ContentService) Get(ctx context.Context, id uuid.UUID) (*Content, error) {
	content, err := s.repo.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "get", Err: classifyPersistence("get content", err)}
	}
	return content, nil
}

// List returns a page of content records, newest first
func (s *ContentService) List(ctx context.Context, req ListContentRequest) ([]*Content, error) {
	if req.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	if req.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = DefaultListLimit
	}
	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}
	if req.ContentType != "" && !req.ContentType.Valid() {
		return nil, invalid("content_type", "must be %q or %q", ContentTypeVideo, ContentTypeAudio)
	}

	contents, err := s.repo.ListContent(ctx, req)
	if err != nil {
		return nil, classifyPersistence("list content", err)
	}
	return contents, nil
}

// Update applies a partial update on behalf of the owner. New media is
// uploaded first, the record is swapped to reference it, and only then is
// the replaced object deleted.
func (s *ContentService) Update(ctx context.Context, req UpdateContentRequest) (*Content, error) {
	current, err := s.repo.GetContent(ctx, req.ID)
	if err != nil {
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: classifyPersistence("get content", err)}
	}
	if current.OwnerID != req.CallerID {
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: ErrNotOwner}
	}

	next := *current
	if err := s.applyPatch(&next, req); err != nil {
		return nil, err
	}

	writeCtx, cancel := s.detached(ctx)
	defer cancel()

	var written []string
	if req.Media != nil {
		key, size, err := s.putMedia(writeCtx, next.OwnerID, next.ContentType, *req.Media)
		if err != nil {
			return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
		}
		written = append(written, key)
		next.StorageKey = key
		next.Size = size
		next.MimeType = NormalizeMimeType(req.Media.MimeType)
	}
	if req.Thumbnail != nil {
		key, err := s.putThumbnail(writeCtx, next.OwnerID, *req.Thumbnail)
		if err != nil {
			s.removeObjects(ctx, req.ID, OrphanUpdateRollback, written)
			return nil, &ContentError{ContentID: req.ID, Op: "update", Err: err}
		}
		written = append(written, key)
		next.ThumbnailKey = key
		next.ThumbnailURL = ""
	}

	next.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateContent(writeCtx, &next, current.Version); err != nil {
		s.removeObjects(ctx, req.ID, OrphanUpdateRollback, written)
		return nil, &ContentError{ContentID: req.ID, Op: "update", Err: classifyPersistence("update content", err)}
	}

	var replaced []string
	if current.StorageKey != "" && current.StorageKey != next.StorageKey {
		replaced = append(replaced, current.StorageKey)
	}
	if current.ThumbnailKey != "" && current.ThumbnailKey != next.ThumbnailKey {
		replaced = append(replaced, current.ThumbnailKey)
	}
	s.removeObjects(ctx, req.ID, OrphanReplaced, replaced)

	s.logger.Info("Content updated", "content_id", next.ID, "version", next.Version, "media_replaced", req.Media != nil)
	s.publish(ctx, EventContentUpdated, &next)
	return &next, nil
}

func (s *ContentService) applyPatch(next *Content, req UpdateContentRequest) error {
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return err
		}
		next.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Duration != nil {
		if err := validateDuration(*req.Duration); err != nil {
			return err
		}
		next.Duration = *req.Duration
	}
	if req.ContentType != nil {
		if !req.ContentType.Valid() {
			return invalid("content_type", "must be %q or %q", ContentTypeVideo, ContentTypeAudio)
		}
		if *req.ContentType != next.ContentType && req.Media == nil {
			return invalid("content_type", "can only change together with new media")
		}
		next.ContentType = *req.ContentType
	}
	if req.Media != nil {
		if req.Media.Body == nil {
			return invalid("file", "is required")
		}
		if err := s.media.checkMedia(next.ContentType, req.Media.MimeType); err != nil {
			return err
		}
	}
	if req.Thumbnail != nil && req.ThumbnailURL != nil && *req.ThumbnailURL != "" {
		return invalid("thumbnail", "supply either a thumbnail file or thumbnail_url, not both")
	}
	if req.Thumbnail != nil {
		if err := s.media.checkThumbnail(req.Thumbnail.MimeType); err != nil {
			return err
		}
	}
	if req.ThumbnailURL != nil {
		if *req.ThumbnailURL != "" {
			if err := s.thumbnailHosts.check(*req.ThumbnailURL); err != nil {
				return err
			}
		}
		next.ThumbnailURL = *req.ThumbnailURL
		next.ThumbnailKey = ""
	}
	return nil
}

// Delete removes the record and then its objects. Only the owner may delete.
func (s *ContentService) Delete(ctx context.Context, id, callerID uuid.UUID) error {
	current, err := s.repo.GetContent(ctx, id)
	if err != nil {
		return &ContentError{ContentID: id, Op: "delete", Err: classifyPersistence("get content", err)}
	}
	if current.OwnerID != callerID {
		return &ContentError{ContentID: id, Op: "delete", Err: ErrNotOwner}
	}

	removed, err := s.repo.DeleteContent(ctx, id)
	if err != nil {
		return &ContentError{ContentID: id, Op: "delete", Err: classifyPersistence("delete content", err)}
	}

	var keys []string
	if removed.StorageKey != "" {
		keys = append(keys, removed.StorageKey)
	}
	if removed.ThumbnailKey != "" {
		keys = append(keys, removed.ThumbnailKey)
	}
	s.removeObjects(ctx, id, OrphanContentDeleted, keys)

	s.logger.Info("Content deleted", "content_id", id, "owner_id", removed.OwnerID)
	s.publish(ctx, EventContentDeleted, removed)
	return nil
}

func (s *ContentService) putMedia(ctx context.Context, ownerID uuid.UUID, ct ContentType, upload Upload) (string, int64, error) {
	ext := objectkey.Extension(upload.FileName, NormalizeMimeType(upload.MimeType))
	key := s.keys.MediaKey(ownerID, string(ct), ext)
	upload.MimeType = NormalizeMimeType(upload.MimeType)
	if err := s.gateway.Put(ctx, key, upload); err != nil {
		return "", 0, err
	}
	size := upload.Size
	if size <= 0 {
		if meta, err := s.gateway.Stat(ctx, key); err == nil {
			size = meta.Size
		}
	}
	return key, size, nil
}

func (s *ContentService) putThumbnail(ctx context.Context, ownerID uuid.UUID, upload Upload) (string, error) {
	ext := objectkey.Extension(upload.FileName, NormalizeMimeType(upload.MimeType))
	key := s.keys.ThumbnailKey(ownerID, ext)
	upload.MimeType = NormalizeMimeType(upload.MimeType)
	if err := s.gateway.Put(ctx, key, upload); err != nil {
		return "", err
	}
	return key, nil
}

// detached returns a context that survives the caller going away but still
// carries its values and is bounded by the upload timeout.
func (s *ContentService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.uploadTimeout)
}

// removeObjects deletes keys best-effort. Keys that cannot be deleted are
// handed to the orphan recorder.
func (s *ContentService) removeObjects(ctx context.Context, contentID uuid.UUID, reason string, keys []string) {
	if len(keys) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, key := range keys {
		err := s.gateway.Delete(cleanupCtx, key)
		if err == nil {
			continue
		}
		s.logger.Warn("Object delete failed, recording orphan", "content_id", contentID, "reason", reason, "error", err)
		orphan := Orphan{
			Key:        key,
			ContentID:  contentID,
			Reason:     reason,
			Error:      err.Error(),
			RecordedAt: s.now().UTC(),
		}
		if err := s.orphans.RecordOrphan(cleanupCtx, orphan); err != nil {
			s.logger.Error("Failed to record orphan", "content_id", contentID, "key", key, "error", err)
		}
	}
}

func (s *ContentService) publish(ctx context.Context, eventType EventType, content *Content) {
	event := Event{
		Type:        eventType,
		ContentID:   content.ID,
		OwnerID:     content.OwnerID,
		ContentType: content.ContentType,
		At:          s.now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Failed to publish event", "type", eventType, "content_id", content.ID, "error", err)
	}
}
