package objectkey

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGeneratorKeys(t *testing.T) {
	owner := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	objectID := uuid.MustParse("987fcdeb-51a2-43d1-9f12-345678901234")
	gen := &Generator{NewID: func() uuid.UUID { return objectID }}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "video media key",
			got:      gen.MediaKey(owner, "video", ".mp4"),
			expected: "media/123e4567-e89b-12d3-a456-426614174000/video/987fcdeb-51a2-43d1-9f12-345678901234.mp4",
		},
		{
			name:     "media key without extension",
			got:      gen.MediaKey(owner, "audio", ""),
			expected: "media/123e4567-e89b-12d3-a456-426614174000/audio/987fcdeb-51a2-43d1-9f12-345678901234",
		},
		{
			name:     "thumbnail key",
			got:      gen.ThumbnailKey(owner, "png"),
			expected: "thumbnails/123e4567-e89b-12d3-a456-426614174000/987fcdeb-51a2-43d1-9f12-345678901234.png",
		},
		{
			name:     "content type is sanitized",
			got:      gen.MediaKey(owner, "../Video", ".mp4"),
			expected: "media/123e4567-e89b-12d3-a456-426614174000/__video/987fcdeb-51a2-43d1-9f12-345678901234.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.got)
			}
		})
	}
}

func TestGeneratorPrefix(t *testing.T) {
	gen := NewWithPrefix("/prod/")
	key := gen.MediaKey(uuid.New(), "video", ".mp4")
	if !strings.HasPrefix(key, "prod/media/") {
		t.Errorf("expected prod/media/ prefix, got %s", key)
	}
}

func TestGeneratorFreshKeys(t *testing.T) {
	gen := New()
	owner := uuid.New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := gen.MediaKey(owner, "video", ".mp4")
		if seen[key] {
			t.Fatalf("duplicate key %s", key)
		}
		seen[key] = true
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		fileName string
		mimeType string
		expected string
	}{
		{"clip.MP4", "video/mp4", ".mp4"},
		{"clip", "video/mp4", ".mp4"},
		{"", "audio/mpeg", ".mp3"},
		{"song.wav", "", ".wav"},
		{"weird.<x>", "audio/wav", ".wav"},
		{"", "application/octet-stream", ""},
	}

	for _, tt := range tests {
		t.Run(tt.fileName+"|"+tt.mimeType, func(t *testing.T) {
			if got := Extension(tt.fileName, tt.mimeType); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	if got := MimeType(".MP3"); got != "audio/mpeg" {
		t.Errorf("expected audio/mpeg, got %q", got)
	}
	if got := MimeType(".exe"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
