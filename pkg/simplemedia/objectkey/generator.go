// Package objectkey names objects in blob storage.
package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator builds keys of the form
//
//	{prefix}media/{owner}/{content_type}/{object_id}{ext}
//	{prefix}thumbnails/{owner}/{object_id}{ext}
//
// The object ID is random, so every call yields a key no other call produced.
type Generator struct {
	// Prefix is prepended verbatim, e.g. "prod/". Optional.
	Prefix string
	// NewID returns the per-object identifier (default: uuid.New)
	NewID func() uuid.UUID
}

// New returns a Generator with no prefix
func New() *Generator {
	return &Generator{NewID: uuid.New}
}

// NewWithPrefix returns a Generator that places every key under prefix
func NewWithPrefix(prefix string) *Generator {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Generator{Prefix: prefix, NewID: uuid.New}
}

func (g *Generator) MediaKey(ownerID uuid.UUID, contentType, ext string) string {
	return fmt.Sprintf("%smedia/%s/%s/%s%s", g.Prefix, ownerID, sanitizePathComponent(contentType), g.id(), sanitizeExt(ext))
}

func (g *Generator) ThumbnailKey(ownerID uuid.UUID, ext string) string {
	return fmt.Sprintf("%sthumbnails/%s/%s%s", g.Prefix, ownerID, g.id(), sanitizeExt(ext))
}

func (g *Generator) id() uuid.UUID {
	if g.NewID == nil {
		return uuid.New()
	}
	return g.NewID()
}

var mimeExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/mpeg":      ".mpeg",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/ogg":       ".ogg",
	"audio/aac":       ".aac",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

var extensionMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// MimeType returns the media type keys with extension ext are written with,
// or "" if ext is not one this package produces.
func MimeType(ext string) string {
	return extensionMimeTypes[strings.ToLower(ext)]
}

// Extension picks the key extension for an upload: the file name's own
// extension when it has one, otherwise one derived from the MIME type.
func Extension(fileName, mimeType string) string {
	if ext := sanitizeExt(path.Ext(fileName)); ext != "" {
		return ext
	}
	return mimeExtensions[strings.ToLower(mimeType)]
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"..", "_",
	)
	return replacer.Replace(strings.ToLower(component))
}
