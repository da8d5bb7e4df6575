package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/utils"
)

// ResolutionErrorKind classifies why a URL could not be resolved.
type ResolutionErrorKind string

const (
	// Unreachable means the engine or network failed; worth retrying.
	Unreachable ResolutionErrorKind = "unreachable"
	// Unsupported means the URL is not recognized; fatal.
	Unsupported ResolutionErrorKind = "unsupported"
	// Empty means the source exists but offers no renditions; fatal.
	Empty ResolutionErrorKind = "empty"
)

type ResolutionError struct {
	Kind ResolutionErrorKind
	URL  string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *ResolutionError) Retryable() bool { return e.Kind == Unreachable }

// Resolver queries the media engine for a URL's rendition catalog and
// normalizes the answer. It has no side effects on the job model.
type Resolver struct {
	eng engine.Engine
	log zerolog.Logger
}

func NewResolver(eng engine.Engine) *Resolver {
	return &Resolver{eng: eng, log: utils.GetLogger("resolver")}
}

// Resolve returns the candidate renditions for url, sorted video first by
// descending height, then audio by descending bitrate, then subtitles by
// language. Context cancellation is passed through untouched so the caller
// can distinguish a cancelled job from a failed one.
func (r *Resolver) Resolve(ctx context.Context, url string) ([]engine.Rendition, error) {
	renditions, err := r.eng.ListRenditions(ctx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, classify(url, err)
	}
	renditions = normalize(renditions)
	if len(renditions) == 0 {
		return nil, &ResolutionError{Kind: Empty, URL: url, Err: engine.ErrEmpty}
	}
	r.log.Debug().Str("url", url).Int("renditions", len(renditions)).Msg("Catalog resolved")
	return renditions, nil
}

func classify(url string, err error) *ResolutionError {
	switch {
	case errors.Is(err, engine.ErrUnsupported):
		return &ResolutionError{Kind: Unsupported, URL: url, Err: err}
	case errors.Is(err, engine.ErrEmpty):
		return &ResolutionError{Kind: Empty, URL: url, Err: err}
	default:
		return &ResolutionError{Kind: Unreachable, URL: url, Err: err}
	}
}

func normalize(renditions []engine.Rendition) []engine.Rendition {
	out := make([]engine.Rendition, 0, len(renditions))
	for _, r := range renditions {
		if r.ID == "" {
			continue
		}
		switch r.Kind {
		case engine.KindVideo, engine.KindAudio, engine.KindSubtitle:
		default:
			continue
		}
		if r.Size == 0 {
			r.Size = engine.SizeUnknown
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return kindRank(a.Kind) < kindRank(b.Kind)
		}
		switch a.Kind {
		case engine.KindVideo:
			if a.Height != b.Height {
				return a.Height > b.Height
			}
			return a.Bitrate > b.Bitrate
		case engine.KindAudio:
			return a.Bitrate > b.Bitrate
		default:
			return a.Language < b.Language
		}
	})
	return out
}

func kindRank(k engine.RenditionKind) int {
	switch k {
	case engine.KindVideo:
		return 0
	case engine.KindAudio:
		return 1
	default:
		return 2
	}
}
