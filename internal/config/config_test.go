package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 3, cfg.RetryLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 1024*1024, cfg.ChunkSize)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "en", cfg.AudioLanguage)
	assert.Empty(t, cfg.SubtitleLanguage)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"workers: 5\noutput_dir: /tmp/media\nsubtitle_language: de\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "/tmp/media", cfg.OutputDir)
	assert.Equal(t, "de", cfg.SubtitleLanguage)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.RetryLimit)
	assert.Equal(t, 30*time.Second, cfg.ChunkTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not a number"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRepairsOutOfRangeValues(t *testing.T) {
	cfg := Config{Workers: -1, ChunkSize: 0, OutputDir: ""}
	cfg.Normalize()
	def := Default()
	assert.Equal(t, def.Workers, cfg.Workers)
	assert.Equal(t, def.ChunkSize, cfg.ChunkSize)
	assert.Equal(t, def.OutputDir, cfg.OutputDir)
	assert.Equal(t, def.CodecPreference, cfg.CodecPreference)
}
