// Package httpget serves plain file URLs through the media engine contract:
// one rendition per URL, sized by a HEAD request, streamed with ranged GETs
// so paused transfers resume where they stopped.
package httpget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/utils"
)

// FileRenditionID is the single rendition a direct URL offers.
const FileRenditionID = "file"

type Engine struct {
	client utils.HTTPDoer
	log    zerolog.Logger
}

func New(cfg utils.HTTPClientConfig) *Engine {
	return &Engine{
		client: utils.NewVidraHTTPClient(cfg),
		log:    utils.GetLogger("httpget"),
	}
}

func (e *Engine) ListRenditions(ctx context.Context, url string) ([]engine.Rendition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnsupported, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupported, url)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, engine.NewFatal(engine.ReasonPermissionDenied, fmt.Errorf("status %d for %s", resp.StatusCode, url))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, engine.NewTransient(engine.ReasonEngineBusy, fmt.Errorf("status %d for %s", resp.StatusCode, url))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	size := engine.SizeUnknown
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil && parsed > 0 {
			size = parsed
		}
	}
	kind, container := classifyContent(resp.Header.Get("Content-Type"), url)
	e.log.Debug().Str("url", url).Int64("size", size).Str("container", container).Msg("Probed file")
	return []engine.Rendition{{
		ID:        FileRenditionID,
		Kind:      kind,
		Container: container,
		Size:      size,
	}}, nil
}

func (e *Engine) OpenStream(ctx context.Context, url string, renditionID string, startOffset int64) (io.ReadCloser, error) {
	if renditionID != FileRenditionID {
		return nil, engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("unknown rendition %q", renditionID))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, engine.NewFatal(engine.ReasonUnsupported, err)
	}
	if startOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startOffset))
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyNetErr(err)
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, engine.NewTransient(engine.ReasonEngineBusy, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, engine.NewFatal(engine.ReasonPermissionDenied, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusPartialContent:
		return resp.Body, nil
	case resp.StatusCode == http.StatusOK:
		// Server ignored the Range header: discard up to the offset so the
		// caller still appends only new bytes.
		if startOffset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, startOffset); err != nil {
				resp.Body.Close()
				return nil, engine.NewTransient(engine.ReasonNetworkReset, err)
			}
		}
		return resp.Body, nil
	default:
		resp.Body.Close()
		return nil, engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

// PostProcess for direct files is a rename: there is exactly one stream and
// no muxing to do.
func (e *Engine) PostProcess(ctx context.Context, req engine.PostProcessRequest) error {
	if len(req.Inputs) != 1 {
		return engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("direct downloads produce one stream, got %d", len(req.Inputs)))
	}
	if _, err := os.Stat(req.Output); err == nil {
		return engine.NewFatal(engine.ReasonOutputConflict, fmt.Errorf("output already exists: %s", req.Output))
	}
	return os.Rename(req.Inputs[0], req.Output)
}

func classifyNetErr(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return engine.NewTransient(engine.ReasonTimeout, err)
	}
	return engine.NewTransient(engine.ReasonNetworkReset, err)
}

func classifyContent(contentType, url string) (engine.RenditionKind, string) {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	container := strings.TrimPrefix(path.Ext(url), ".")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasPrefix(mt, "audio/"):
			return engine.KindAudio, container
		case strings.HasPrefix(mt, "video/"):
			return engine.KindVideo, container
		}
	}
	// unknown content types are treated as a single video stream
	return engine.KindVideo, container
}
