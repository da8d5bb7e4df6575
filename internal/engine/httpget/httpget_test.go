package httpget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/utils"
)

func fileServer(t *testing.T, data []byte, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		if rng := r.Header.Get("Range"); rng != "" {
			var offset int64
			fmt.Sscanf(rng, "bytes=%d-", &offset)
			w.Header().Set("Content-Length", strconv.Itoa(len(data)-int(offset)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(data[offset:])
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListRenditions(t *testing.T) {
	data := []byte(strings.Repeat("x", 2048))
	srv := fileServer(t, data, "video/mp4")
	eng := New(utils.HTTPClientConfig{})

	renditions, err := eng.ListRenditions(context.Background(), srv.URL+"/clip.mp4?sig=abc")
	require.NoError(t, err)
	require.Len(t, renditions, 1)
	r := renditions[0]
	assert.Equal(t, FileRenditionID, r.ID)
	assert.Equal(t, engine.KindVideo, r.Kind)
	assert.Equal(t, "mp4", r.Container, "extension comes from the path, not the query string")
	assert.Equal(t, int64(2048), r.Size)
}

func TestListRenditionsAudioContentType(t *testing.T) {
	srv := fileServer(t, []byte("audio"), "audio/mpeg")
	eng := New(utils.HTTPClientConfig{})

	renditions, err := eng.ListRenditions(context.Background(), srv.URL+"/track.mp3")
	require.NoError(t, err)
	assert.Equal(t, engine.KindAudio, renditions[0].Kind)
}

func TestListRenditionsStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusNotFound, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, engine.ErrUnsupported)
		}},
		{http.StatusForbidden, func(t *testing.T, err error) {
			assert.False(t, engine.IsTransient(err))
		}},
		{http.StatusServiceUnavailable, func(t *testing.T, err error) {
			assert.True(t, engine.IsTransient(err))
		}},
		{http.StatusTooManyRequests, func(t *testing.T, err error) {
			assert.True(t, engine.IsTransient(err))
		}},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := New(utils.HTTPClientConfig{}).ListRenditions(context.Background(), srv.URL+"/x.mp4")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestOpenStreamResumesAtOffset(t *testing.T) {
	data := []byte("0123456789abcdef")
	srv := fileServer(t, data, "video/mp4")
	eng := New(utils.HTTPClientConfig{})

	stream, err := eng.OpenStream(context.Background(), srv.URL+"/clip.mp4", FileRenditionID, 10)
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func TestOpenStreamDiscardsWhenRangeIgnored(t *testing.T) {
	data := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a server that ignores Range and always sends the full body
		w.Write(data)
	}))
	defer srv.Close()

	stream, err := New(utils.HTTPClientConfig{}).OpenStream(context.Background(), srv.URL+"/clip.mp4", FileRenditionID, 10)
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func TestOpenStreamRejectsUnknownRendition(t *testing.T) {
	_, err := New(utils.HTTPClientConfig{}).OpenStream(context.Background(), "https://example.com/x.mp4", "1080p", 0)
	require.Error(t, err)
	assert.False(t, engine.IsTransient(err))
}

func TestPostProcessRenames(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "clip.mp4.video-file.part")
	require.NoError(t, os.WriteFile(part, []byte("data"), 0644))
	out := filepath.Join(dir, "clip.mp4")

	eng := New(utils.HTTPClientConfig{})
	require.NoError(t, eng.PostProcess(context.Background(), engine.PostProcessRequest{
		Inputs: []string{part},
		Output: out,
	}))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	// a second run must not clobber the finished file
	require.NoError(t, os.WriteFile(part, []byte("data"), 0644))
	err = eng.PostProcess(context.Background(), engine.PostProcessRequest{
		Inputs: []string{part},
		Output: out,
	})
	require.Error(t, err)
	assert.False(t, engine.IsTransient(err))
}
