package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

const (
	// DefaultMaxUploadBytes caps a create or update request body
	DefaultMaxUploadBytes int64 = 2 << 30

	// multipart parts beyond this are spooled to temporary files
	multipartMemory = 32 << 20

	maxJSONPatchBody = 64 << 10
)

// CreateContentResponse is returned after a successful create
type CreateContentResponse struct {
	ContentID string               `json:"contentId"`
	Content   *simplemedia.Content `json:"content"`
}

// GetContentResponse pairs a record with a fresh delivery descriptor
type GetContentResponse struct {
	Content  *simplemedia.Content            `json:"content"`
	Delivery *simplemedia.DeliveryDescriptor `json:"delivery"`
}

// UpdateContentRequest is the JSON form of a metadata-only update
type UpdateContentRequest struct {
	Title        *string                  `json:"title"`
	Description  *string                  `json:"description"`
	ContentType  *simplemedia.ContentType `json:"content_type"`
	Duration     *float64                 `json:"duration"`
	ThumbnailURL *string                  `json:"thumbnail_url"`
}

// ContentHandler handles HTTP requests for content
type ContentHandler struct {
	content        *simplemedia.ContentService
	delivery       *simplemedia.DeliveryResolver
	verifier       TokenVerifier
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(content *simplemedia.ContentService, delivery *simplemedia.DeliveryResolver, verifier TokenVerifier, maxUploadBytes int64, logger *slog.Logger) *ContentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{
		content:        content,
		delivery:       delivery,
		verifier:       verifier,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes returns the routes for content
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListContent)
	r.Get("/{id}", h.GetContent)
	r.Get("/{id}/stream", h.StreamContent)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.verifier, h.logger))
		r.Post("/", h.CreateContent)
		r.Put("/{id}", h.UpdateContent)
		r.Patch("/{id}", h.UpdateContent)
		r.Delete("/{id}", h.DeleteContent)
	})

	return r
}

// CreateContent accepts a multipart form with the metadata fields, a "file"
// part and an optional "thumbnail" part.
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromContext(r.Context())

	form, err := h.parseMultipart(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer form.RemoveAll()

	req := simplemedia.CreateContentRequest{
		OwnerID:      callerID,
		Title:        formValue(form, "title"),
		Description:  formValue(form, "description"),
		ContentType:  simplemedia.ContentType(strings.ToLower(formValue(form, "content_type"))),
		ThumbnailURL: formValue(form, "thumbnail_url"),
	}
	if raw := formValue(form, "duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, r, h.logger, badRequest("duration", "must be a number of seconds"))
			return
		}
		req.Duration = d
	}

	media, closeMedia, err := formUpload(form, "file")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if media == nil {
		writeError(w, r, h.logger, badRequest("file", "is required"))
		return
	}
	defer closeMedia()
	req.Media = *media

	thumb, closeThumb, err := formUpload(form, "thumbnail")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if thumb != nil {
		defer closeThumb()
		req.Thumbnail = thumb
	}

	content, err := h.content.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateContentResponse{ContentID: content.ID.String(), Content: content})
}

// ListContent returns a page of content
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req simplemedia.ListContentRequest

	if raw := q.Get("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, h.logger, badRequest("owner_id", "must be a UUID"))
			return
		}
		req.OwnerID = &ownerID
	}
	req.ContentType = simplemedia.ContentType(strings.ToLower(q.Get("content_type")))

	var err error
	if req.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, r, h.logger, badRequest("limit", "must be an integer"))
		return
	}
	if req.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, r, h.logger, badRequest("offset", "must be an integer"))
		return
	}

	contents, err := h.content.List(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, contents)
}

// GetContent returns a content record and a presigned delivery URL
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	content, err := h.content.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	delivery, err := h.delivery.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, GetContentResponse{Content: content, Delivery: delivery})
}

// StreamContent redirects to a presigned URL for the media
func (h *ContentHandler) StreamContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	delivery, err := h.delivery.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, delivery.URL, http.StatusTemporaryRedirect)
}

// UpdateContent applies a partial update. Multipart bodies may carry new
// "file" and "thumbnail" parts; JSON bodies update metadata only.
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	callerID, _ := UserIDFromContext(r.Context())

	req := simplemedia.UpdateContentRequest{ID: id, CallerID: callerID}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		defer form.RemoveAll()

		req.Title = formPointer(form, "title")
		req.Description = formPointer(form, "description")
		req.ThumbnailURL = formPointer(form, "thumbnail_url")
		if raw := formPointer(form, "content_type"); raw != nil {
			ct := simplemedia.ContentType(strings.ToLower(*raw))
			req.ContentType = &ct
		}
		if raw := formPointer(form, "duration"); raw != nil {
			d, err := strconv.ParseFloat(*raw, 64)
			if err != nil {
				writeError(w, r, h.logger, badRequest("duration", "must be a number of seconds"))
				return
			}
			req.Duration = &d
		}

		media, closeMedia, err := formUpload(form, "file")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if media != nil {
			defer closeMedia()
			req.Media = media
		}
		thumb, closeThumb, err := formUpload(form, "thumbnail")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if thumb != nil {
			defer closeThumb()
			req.Thumbnail = thumb
		}
	} else {
		var body UpdateContentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONPatchBody)).Decode(&body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, r, h.logger, err)
				return
			}
			writeError(w, r, h.logger, badRequest("body", "must be a JSON object"))
			return
		}
		req.Title = body.Title
		req.Description = body.Description
		req.ContentType = body.ContentType
		req.Duration = body.Duration
		req.ThumbnailURL = body.ThumbnailURL
	}

	content, err := h.content.Update(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, content)
}

// DeleteContent removes a content record and its media
func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	callerID, _ := UserIDFromContext(r.Context())

	if err := h.content.Delete(r.Context(), id, callerID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// A malformed id can never name a record.
		writeError(w, r, h.logger, simplemedia.ErrContentNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *ContentHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, badRequest("body", "must be multipart/form-data")
	}
	return r.MultipartForm, nil
}

func formValue(form *multipart.Form, name string) string {
	if v := form.Value[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func formPointer(form *multipart.Form, name string) *string {
	v, ok := form.Value[name]
	if !ok || len(v) == 0 {
		return nil
	}
	s := strings.TrimSpace(v[0])
	return &s
}

// formUpload opens the named file part. It returns a nil Upload when the
// part is absent.
func formUpload(form *multipart.Form, name string) (*simplemedia.Upload, func(), error) {
	files := form.File[name]
	if len(files) == 0 {
		return nil, func() {}, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, nil, badRequest(name, "could not be read")
	}
	return &simplemedia.Upload{
		Body:     f,
		Size:     fh.Size,
		MimeType: partMimeType(fh),
		FileName: filepath.Base(fh.Filename),
	}, func() { closeQuietly(f) }, nil
}

// partMimeType trusts the part header unless it is missing or generic, in
// which case the file extension decides.
func partMimeType(fh *multipart.FileHeader) string {
	ct := simplemedia.NormalizeMimeType(fh.Header.Get("Content-Type"))
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := objectkey.MimeType(filepath.Ext(fh.Filename)); byExt != "" {
		return byExt
	}
	return ct
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
