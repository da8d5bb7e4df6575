package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// RenewOutputPath returns a non-clashing variant of outputPath by appending
// an increasing -(n) suffix before the extension.
func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

var directExtensions = map[string]bool{
	"mp4": true, "mkv": true, "webm": true, "mov": true, "avi": true,
	"ts": true, "mp3": true, "m4a": true, "aac": true, "flac": true,
	"wav": true, "opus": true, "ogg": true, "srt": true, "vtt": true,
	"zip": true, "tar": true, "gz": true, "iso": true, "bin": true,
}

// DetectSource classifies a URL by which engine should serve it: "s3" for
// object storage, "http" for direct file links, "media" for everything that
// needs a site extractor.
func DetectSource(rawURL string) string {
	if strings.HasPrefix(rawURL, "s3://") {
		return "s3"
	}
	trimmed := rawURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.IndexByte(trimmed, '#'); i >= 0 {
		trimmed = trimmed[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(trimmed), "."))
	if directExtensions[ext] {
		return "http"
	}
	return "media"
}

// SanitizeFileName strips characters that are unsafe in destination paths
// derived from URLs or media titles.
func SanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "", "?", "",
		"\"", "", "<", "", ">", "", "|", "-",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "download"
	}
	return cleaned
}
