package simplemedia

import (
	"math"
	"mime"
	"net/url"
	"strings"
)

// MediaPolicy lists the MIME types accepted for each content type and for thumbnails.
type MediaPolicy struct {
	Allowed   map[ContentType][]string
	Thumbnail []string
}

// DefaultMediaPolicy accepts common video, audio and image formats
func DefaultMediaPolicy() MediaPolicy {
	return MediaPolicy{
		Allowed: map[ContentType][]string{
			ContentTypeVideo: {"video/mp4", "video/mpeg", "video/webm", "video/quicktime"},
			ContentTypeAudio: {"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/ogg", "audio/aac"},
		},
		Thumbnail: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

// NormalizeMimeType strips parameters and lower-cases a media type
func NormalizeMimeType(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func (p MediaPolicy) checkMedia(ct ContentType, mimeType string) error {
	mt := NormalizeMimeType(mimeType)
	for _, allowed := range p.Allowed[ct] {
		if mt == allowed {
			return nil
		}
	}
	return invalid("file", "media type %q is not accepted for %s content", mt, ct)
}

func (p MediaPolicy) checkThumbnail(mimeType string) error {
	mt := NormalizeMimeType(mimeType)
	for _, allowed := range p.Thumbnail {
		if mt == allowed {
			return nil
		}
	}
	return invalid("thumbnail", "media type %q is not accepted for thumbnails", mt)
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title", "must not be empty")
	}
	if len(title) > 255 {
		return invalid("title", "must be at most 255 bytes")
	}
	return nil
}

func validateDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return invalid("duration", "must be a non-negative number of seconds")
	}
	return nil
}

// ThumbnailHosts decides which externally hosted thumbnail URLs are trusted.
// An entry starting with "." matches any subdomain of the rest.
type ThumbnailHosts []string

func (h ThumbnailHosts) check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return invalid("thumbnail_url", "must be an absolute URL")
	}
	if u.Scheme != "https" {
		return invalid("thumbnail_url", "must use https")
	}
	if u.User != nil {
		return invalid("thumbnail_url", "must not carry credentials")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range h {
		allowed = strings.ToLower(allowed)
		if host == allowed || (strings.HasPrefix(allowed, ".") && strings.HasSuffix(host, allowed)) {
			return nil
		}
	}
	return invalid("thumbnail_url", "host %q is not trusted; upload the thumbnail instead", host)
}
