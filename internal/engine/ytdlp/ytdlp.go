// Package ytdlp adapts a yt-dlp binary to the media engine contract.
// Rendition listing shells out to `yt-dlp -J`; transfers stream the selected
// format over stdout so the core's chunked reader and resume accounting stay
// in charge of the bytes.
package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/utils"
)

type Engine struct {
	binPath    string
	ffmpegPath string
	log        zerolog.Logger
}

// New locates yt-dlp (and ffmpeg for post-processing) in PATH or next to
// the executable.
func New() (*Engine, error) {
	bin := findBinary("yt-dlp")
	if bin == "" {
		return nil, fmt.Errorf("yt-dlp binary not found in PATH or alongside executable")
	}
	return &Engine{
		binPath:    bin,
		ffmpegPath: findBinary("ffmpeg"),
		log:        utils.GetLogger("ytdlp"),
	}, nil
}

func findBinary(name string) string {
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	if executable, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(executable), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(candidate + ".exe"); err == nil {
			return candidate + ".exe"
		}
	}
	return ""
}

// dumpInfo is the slice of `yt-dlp -J` output the adapter reads.
type dumpInfo struct {
	Title     string                `json:"title"`
	Formats   []dumpFormat          `json:"formats"`
	Subtitles map[string][]dumpSubs `json:"subtitles"`
}

type dumpFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Height   int     `json:"height"`
	TBR      float64 `json:"tbr"` // total bitrate, kbps
	Filesize int64   `json:"filesize"`
	Language string  `json:"language"`
}

type dumpSubs struct {
	Ext  string `json:"ext"`
	Name string `json:"name"`
}

func (e *Engine) ListRenditions(ctx context.Context, url string) ([]engine.Rendition, error) {
	cmd := exec.CommandContext(ctx, e.binPath, "-J", "--no-warnings", "--no-playlist", url)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ee, ok := err.(*exec.ExitError); ok {
			stderr := string(ee.Stderr)
			if strings.Contains(stderr, "Unsupported URL") || strings.Contains(stderr, "is not a valid URL") {
				return nil, fmt.Errorf("%w: %s", engine.ErrUnsupported, url)
			}
		}
		return nil, fmt.Errorf("yt-dlp listing failed: %w", err)
	}
	var info dumpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("error parsing yt-dlp output: %w", err)
	}

	var renditions []engine.Rendition
	for _, f := range info.Formats {
		size := f.Filesize
		if size == 0 {
			size = engine.SizeUnknown
		}
		switch {
		case f.VCodec != "" && f.VCodec != "none":
			renditions = append(renditions, engine.Rendition{
				ID:        f.FormatID,
				Kind:      engine.KindVideo,
				Height:    f.Height,
				Bitrate:   int(f.TBR),
				Container: f.Ext,
				Codec:     baseCodec(f.VCodec),
				Size:      size,
			})
		case f.ACodec != "" && f.ACodec != "none":
			renditions = append(renditions, engine.Rendition{
				ID:        f.FormatID,
				Kind:      engine.KindAudio,
				Bitrate:   int(f.TBR),
				Container: f.Ext,
				Codec:     baseCodec(f.ACodec),
				Language:  f.Language,
				Size:      size,
			})
		}
	}
	for lang, subs := range info.Subtitles {
		if len(subs) == 0 {
			continue
		}
		renditions = append(renditions, engine.Rendition{
			ID:        "sub-" + lang,
			Kind:      engine.KindSubtitle,
			Container: subs[0].Ext,
			Language:  lang,
			Size:      engine.SizeUnknown,
		})
	}
	if len(renditions) == 0 {
		return nil, engine.ErrEmpty
	}
	e.log.Debug().Str("url", url).Str("title", info.Title).Int("renditions", len(renditions)).Msg("Listed formats")
	return renditions, nil
}

// OpenStream pipes the selected format's bytes from yt-dlp stdout. yt-dlp
// cannot seek into a stream, so a resume offset is honored by discarding the
// leading bytes before handing the reader over.
func (e *Engine) OpenStream(ctx context.Context, url string, renditionID string, startOffset int64) (io.ReadCloser, error) {
	if lang, ok := strings.CutPrefix(renditionID, "sub-"); ok {
		return e.openSubtitle(ctx, url, lang, startOffset)
	}
	args := []string{"--no-warnings", "--no-playlist", "-o", "-", "-f", renditionID, url}
	cmd := exec.CommandContext(ctx, e.binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, engine.NewTransient(engine.ReasonEngineBusy, fmt.Errorf("error starting yt-dlp: %w", err))
	}
	reader := bufio.NewReader(stdout)
	if startOffset > 0 {
		if _, err := io.CopyN(io.Discard, reader, startOffset); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return nil, engine.NewTransient(engine.ReasonNetworkReset, fmt.Errorf("error skipping to offset %d: %w", startOffset, err))
		}
	}
	return &processStream{reader: reader, cmd: cmd}, nil
}

// openSubtitle fetches the subtitle track into a scratch directory and
// serves it from disk; yt-dlp has no stdout mode for subtitle files.
func (e *Engine) openSubtitle(ctx context.Context, url, lang string, startOffset int64) (io.ReadCloser, error) {
	dir, err := os.MkdirTemp("", "vidra-sub-")
	if err != nil {
		return nil, engine.NewFatal(engine.ReasonPermissionDenied, err)
	}
	cmd := exec.CommandContext(ctx, e.binPath,
		"--no-warnings", "--no-playlist", "--skip-download",
		"--write-subs", "--sub-langs", lang,
		"-o", filepath.Join(dir, "track"), url)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, engine.NewTransient(engine.ReasonEngineBusy, fmt.Errorf("subtitle fetch failed: %w: %s", err, tail(string(out), 200)))
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		os.RemoveAll(dir)
		return nil, engine.NewTransient(engine.ReasonEngineBusy, fmt.Errorf("no subtitle file produced for %s", lang))
	}
	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		os.RemoveAll(dir)
		return nil, engine.NewFatal(engine.ReasonPermissionDenied, err)
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			f.Close()
			os.RemoveAll(dir)
			return nil, err
		}
	}
	return &scratchStream{File: f, dir: dir}, nil
}

// scratchStream removes its scratch directory when the reader is closed.
type scratchStream struct {
	*os.File
	dir string
}

func (s *scratchStream) Close() error {
	err := s.File.Close()
	os.RemoveAll(s.dir)
	return err
}

// processStream ties the pipe's lifetime to the yt-dlp process.
type processStream struct {
	reader io.Reader
	cmd    *exec.Cmd
}

func (p *processStream) Read(b []byte) (int, error) { return p.reader.Read(b) }

func (p *processStream) Close() error {
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}

// PostProcess muxes the transferred parts into the destination container
// with ffmpeg, embedding subtitle tracks when present.
func (e *Engine) PostProcess(ctx context.Context, req engine.PostProcessRequest) error {
	if len(req.Inputs) == 0 {
		return fmt.Errorf("nothing to post-process")
	}
	if len(req.Inputs) == 1 && len(req.Subtitles) == 0 {
		return os.Rename(req.Inputs[0], req.Output)
	}
	if e.ffmpegPath == "" {
		return engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("ffmpeg not found, cannot mux %d streams", len(req.Inputs)))
	}
	args := []string{"-y"}
	total := len(req.Inputs) + len(req.Subtitles)
	for _, in := range append(append([]string{}, req.Inputs...), req.Subtitles...) {
		args = append(args, "-i", in)
	}
	for i := 0; i < total; i++ {
		args = append(args, "-map", strconv.Itoa(i))
	}
	args = append(args, "-c", "copy")
	if len(req.Subtitles) > 0 && req.Container == "mp4" {
		args = append(args, "-c:s", "mov_text")
	}
	args = append(args, req.Output)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg mux failed: %w: %s", err, tail(string(out), 300))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func baseCodec(codec string) string {
	if i := strings.IndexByte(codec, '.'); i > 0 {
		return codec[:i]
	}
	return codec
}
