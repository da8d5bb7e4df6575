package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tuning surface of the download core. Zero values are
// replaced with the documented defaults by Normalize, so a partially filled
// struct (or YAML file) is always safe to use.
type Config struct {
	Workers          int           `yaml:"workers"`           // concurrent transfer slots
	RetryLimit       int           `yaml:"retry_limit"`       // transient retries per job
	BackoffBase      time.Duration `yaml:"backoff_base"`      // first retry delay, doubled per attempt
	ChunkSize        int           `yaml:"chunk_size"`        // bytes per read
	ChunkTimeout     time.Duration `yaml:"chunk_timeout"`     // per-chunk read deadline
	ProgressInterval time.Duration `yaml:"progress_interval"` // progress event coalescing window
	EventBuffer      int           `yaml:"event_buffer"`      // per-subscriber bus buffer
	KeepPartial      bool          `yaml:"keep_partial"`      // keep part files on cancel
	OutputDir        string        `yaml:"output_dir"`
	AudioLanguage    string        `yaml:"audio_language"`    // preferred audio track language
	SubtitleLanguage string        `yaml:"subtitle_language"` // empty means no subtitles
	CodecPreference  []string      `yaml:"codec_preference"`  // tie-break order for equal resolutions
}

func Default() Config {
	return Config{
		Workers:          3,
		RetryLimit:       3,
		BackoffBase:      500 * time.Millisecond,
		ChunkSize:        1024 * 1024,
		ChunkTimeout:     30 * time.Second,
		ProgressInterval: 300 * time.Millisecond,
		EventBuffer:      64,
		OutputDir:        ".",
		AudioLanguage:    "en",
		CodecPreference:  []string{"avc1", "h264", "vp9", "av01"},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize replaces out-of-range values with defaults.
func (c *Config) Normalize() {
	def := Default()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = def.RetryLimit
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = def.ChunkTimeout
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = def.ProgressInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if len(c.CodecPreference) == 0 {
		c.CodecPreference = def.CodecPreference
	}
}
