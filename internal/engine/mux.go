package engine

import (
	"context"
	"fmt"
	"io"
)

// Mux routes engine calls to the first registered engine whose matcher
// accepts the URL. It lets the CLI mix direct HTTP, S3 and yt-dlp sources in
// one manager.
type Mux struct {
	routes []route
}

type route struct {
	match func(url string) bool
	eng   Engine
}

func NewMux() *Mux { return &Mux{} }

// Register adds an engine for URLs accepted by match. Registration order is
// the routing precedence.
func (m *Mux) Register(match func(url string) bool, eng Engine) {
	m.routes = append(m.routes, route{match: match, eng: eng})
}

func (m *Mux) engineFor(url string) (Engine, error) {
	for _, r := range m.routes {
		if r.match(url) {
			return r.eng, nil
		}
	}
	return nil, fmt.Errorf("%w: no engine registered for %s", ErrUnsupported, url)
}

func (m *Mux) ListRenditions(ctx context.Context, url string) ([]Rendition, error) {
	eng, err := m.engineFor(url)
	if err != nil {
		return nil, err
	}
	return eng.ListRenditions(ctx, url)
}

func (m *Mux) OpenStream(ctx context.Context, url string, renditionID string, startOffset int64) (io.ReadCloser, error) {
	eng, err := m.engineFor(url)
	if err != nil {
		return nil, err
	}
	return eng.OpenStream(ctx, url, renditionID, startOffset)
}

func (m *Mux) PostProcess(ctx context.Context, req PostProcessRequest) error {
	eng, err := m.engineFor(req.URL)
	if err != nil {
		return err
	}
	return eng.PostProcess(ctx, req)
}
