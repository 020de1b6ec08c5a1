package presigned

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Handler serves objects from a BlobStore to holders of a signed URL.
// Range requests are honored when the store returns a seekable reader.
type Handler struct {
	signer *Signer
	store  simplemedia.BlobStore
	logger *slog.Logger
}

// NewHandler creates a Handler. Requests are rejected unless signer has a secret key.
func NewHandler(signer *Signer, store simplemedia.BlobStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{signer: signer, store: store, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "only GET and HEAD are supported")
		return
	}

	if err := h.signer.ValidateRequest(r); err != nil {
		h.logger.WarnContext(r.Context(), "Presigned URL rejected", "path", r.URL.Path, "error", err)
		status := rejectionStatus(err)
		writeError(w, r, status, "invalid_signature", "signed URL is missing, invalid or expired")
		return
	}

	key, err := h.signer.ExtractObjectKey(r.URL.Path)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_path", "object key is required in URL path")
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), key)
	if err != nil {
		if errors.Is(err, simplemedia.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "Presigned download stat failed", "key", key, "error", err)
		writeError(w, r, http.StatusBadGateway, "storage_error", "storage is unavailable")
		return
	}

	rc, err := h.store.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, simplemedia.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "Presigned download failed", "key", key, "error", err)
		writeError(w, r, http.StatusBadGateway, "storage_error", "storage is unavailable")
		return
	}
	defer rc.Close()

	if meta.MimeType != "" {
		w.Header().Set("Content-Type", meta.MimeType)
	}
	w.Header().Set("Cache-Control", "private, no-store")

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", meta.UpdatedAt, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "Presigned download copy error", "key", key, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]any{
		"error": map[string]string{
			"kind":    code,
			"message": message,
		},
	})
}
