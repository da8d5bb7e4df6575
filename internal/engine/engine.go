package engine

import (
	"context"
	"io"
)

// RenditionKind classifies a selectable stream.
type RenditionKind string

const (
	KindVideo    RenditionKind = "video"
	KindAudio    RenditionKind = "audio"
	KindSubtitle RenditionKind = "subtitle"
)

// SizeUnknown marks a rendition whose byte size the engine could not determine.
const SizeUnknown int64 = -1

// Rendition describes one selectable stream of a source URL. Produced once
// during resolution and never mutated afterwards.
type Rendition struct {
	ID        string
	Kind      RenditionKind
	Height    int    // vertical resolution for video, 0 otherwise
	Bitrate   int    // kbps, 0 if unknown
	Container string // e.g. mp4, webm, m4a, vtt
	Codec     string
	Language  string // audio and subtitle tracks only
	Size      int64  // bytes, SizeUnknown if not reported
}

// PostProcessRequest asks the engine to finalize a job's downloaded streams
// into the destination file (mux, embed subtitles).
type PostProcessRequest struct {
	URL       string   // source the inputs were transferred from
	Inputs    []string // per-rendition part files, video first
	Subtitles []string // subtitle files to embed, may be empty
	Output    string
	Container string
}

// Engine is the external media engine capability the core depends on.
// Implementations must honor ctx cancellation on every call; OpenStream must
// serve bytes starting at startOffset so a partially transferred rendition
// can resume without re-fetching.
type Engine interface {
	ListRenditions(ctx context.Context, url string) ([]Rendition, error)
	OpenStream(ctx context.Context, url string, renditionID string, startOffset int64) (io.ReadCloser, error)
	PostProcess(ctx context.Context, req PostProcessRequest) error
}
