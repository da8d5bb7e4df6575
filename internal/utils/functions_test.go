package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 MB", FormatBytes(1536*1024))
	assert.Equal(t, "2.00 GB", FormatBytes(2*1024*1024*1024))
}

func TestDetectSource(t *testing.T) {
	cases := map[string]string{
		"s3://bucket/videos/clip.mp4":             "s3",
		"https://cdn.example.com/clip.mp4":        "http",
		"https://cdn.example.com/clip.mp4?sig=ab": "http",
		"https://example.com/audio.flac#t=30":     "http",
		"https://www.youtube.com/watch?v=abc123":  "media",
		"https://example.com/watch/12345":         "media",
	}
	for url, want := range cases {
		assert.Equal(t, want, DetectSource(url), url)
	}
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	renewed := RenewOutputPath(path)
	assert.Equal(t, filepath.Join(dir, "video-(1).mp4"), renewed)

	require.NoError(t, os.WriteFile(renewed, []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "video-(2).mp4"), RenewOutputPath(path))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "a-b-c", SanitizeFileName("a/b\\c"))
	assert.Equal(t, "title", SanitizeFileName("  title?* "))
	assert.Equal(t, "download", SanitizeFileName("***"))
}
