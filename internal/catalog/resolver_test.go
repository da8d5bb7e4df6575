package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidra-dl/vidra/internal/engine"
)

// listEngine serves a fixed catalog or error and ignores everything else.
type listEngine struct {
	renditions []engine.Rendition
	err        error
}

func (e *listEngine) ListRenditions(ctx context.Context, url string) ([]engine.Rendition, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.renditions, nil
}

func (e *listEngine) OpenStream(ctx context.Context, url, renditionID string, startOffset int64) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (e *listEngine) PostProcess(ctx context.Context, req engine.PostProcessRequest) error {
	return errors.New("not implemented")
}

func TestResolveSortsCatalog(t *testing.T) {
	eng := &listEngine{renditions: []engine.Rendition{
		{ID: "sub-fr", Kind: engine.KindSubtitle, Language: "fr"},
		{ID: "a-low", Kind: engine.KindAudio, Bitrate: 64},
		{ID: "v-480", Kind: engine.KindVideo, Height: 480},
		{ID: "sub-en", Kind: engine.KindSubtitle, Language: "en"},
		{ID: "v-1080", Kind: engine.KindVideo, Height: 1080},
		{ID: "a-high", Kind: engine.KindAudio, Bitrate: 160},
	}}
	got, err := NewResolver(eng).Resolve(context.Background(), "https://example.com/v")
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"v-1080", "v-480", "a-high", "a-low", "sub-en", "sub-fr"}, ids)
}

func TestResolveDropsInvalidEntries(t *testing.T) {
	eng := &listEngine{renditions: []engine.Rendition{
		{ID: "", Kind: engine.KindVideo, Height: 720},
		{ID: "weird", Kind: engine.RenditionKind("hologram")},
		{ID: "v", Kind: engine.KindVideo, Height: 720},
	}}
	got, err := NewResolver(eng).Resolve(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0].ID)
	assert.Equal(t, engine.SizeUnknown, got[0].Size, "zero size normalized to unknown")
}

func TestResolveClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      ResolutionErrorKind
		retryable bool
	}{
		{"unsupported", fmt.Errorf("no extractor: %w", engine.ErrUnsupported), Unsupported, false},
		{"empty", engine.ErrEmpty, Empty, false},
		{"network", errors.New("connection refused"), Unreachable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver(&listEngine{err: tc.err}).Resolve(context.Background(), "https://example.com/v")
			var re *ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.kind, re.Kind)
			assert.Equal(t, tc.retryable, re.Retryable())
		})
	}
}

func TestResolveEmptyCatalogIsError(t *testing.T) {
	_, err := NewResolver(&listEngine{}).Resolve(context.Background(), "https://example.com/v")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Empty, re.Kind)
}

func TestResolvePassesThroughCancellation(t *testing.T) {
	_, err := NewResolver(&listEngine{err: context.Canceled}).Resolve(context.Background(), "https://example.com/v")
	assert.ErrorIs(t, err, context.Canceled)
	var re *ResolutionError
	assert.False(t, errors.As(err, &re), "cancellation must not be classified")
}
