package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vidra-dl/vidra/internal/bus"
	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/job"
)

// Control outcomes of a transfer attempt. Distinguished from transfer
// errors so the worker knows which terminal (or queued) state to enter.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
)

const (
	ctlRun int32 = iota
	ctlPause
	ctlCancel
)

// lease is one worker's exclusive right to transfer a job. The pause and
// cancel signals are cooperative: the worker checks them between chunks,
// and the context unblocks any in-flight read.
type lease struct {
	jobID    string
	queuePos int // dequeue position, restored if the job pauses
	flag     atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
}

func newLease(jobID string, parent context.Context) *lease {
	ctx, cancel := context.WithCancel(parent)
	return &lease{jobID: jobID, ctx: ctx, cancel: cancel}
}

func (l *lease) requestPause() {
	l.flag.CompareAndSwap(ctlRun, ctlPause)
	l.cancel()
}

func (l *lease) requestCancel() {
	// cancel wins over a pending pause
	l.flag.Store(ctlCancel)
	l.cancel()
}

// control maps the current signal to its sentinel error, nil when running.
func (l *lease) control() error {
	switch l.flag.Load() {
	case ctlPause:
		return errPauseRequested
	case ctlCancel:
		return errCancelRequested
	}
	if l.ctx.Err() != nil { // manager shutdown
		return errCancelRequested
	}
	return nil
}

// runWorker drives one leased job through the transfer protocol and settles
// its final state. Exactly one runWorker exists per Running job.
func (m *Manager) runWorker(j *job.Job, ls *lease) {
	defer m.wg.Done()
	log := m.log.With().Str("job", j.ID).Logger()

	err := m.transfer(j, ls)

	m.mu.Lock()
	switch {
	case err == nil:
		j.Move(job.StateCompleted)
		m.publishLocked(j, bus.EventCompleted)
		log.Info().Str("output", j.Selection.OutputPath).Msg("Job completed")
	case errors.Is(err, errPauseRequested):
		j.Move(job.StatePaused)
		// back behind the paused jobs it was dequeued from behind
		m.queue.EnqueueAt(j.ID, ls.queuePos)
		m.publishLocked(j, bus.EventPaused)
		log.Debug().Int64("transferred", j.Transferred).Msg("Job paused")
	case errors.Is(err, errCancelRequested):
		j.Move(job.StateCancelled)
		if !m.cfg.KeepPartial {
			m.removePartials(j)
		}
		m.publishLocked(j, bus.EventCancelled)
		log.Debug().Msg("Job cancelled")
	default:
		j.ErrDetail = err.Error()
		j.Move(job.StateFailed)
		m.publishLocked(j, bus.EventFailed)
		log.Error().Err(err).Msg("Job failed")
	}
	ls.cancel()
	delete(m.leases, j.ID)
	m.active--
	m.dispatchLocked()
	m.mu.Unlock()
}

// transfer runs the attempt loop: transient failures are retried with
// exponential backoff until the retry budget is spent, fatal failures and
// control signals end the job at once. Offsets survive across attempts so a
// retry never re-fetches completed bytes.
func (m *Manager) transfer(j *job.Job, ls *lease) error {
	for attempt := 0; ; attempt++ {
		err := m.transferOnce(j, ls)
		if err == nil {
			return nil
		}
		if errors.Is(err, errPauseRequested) || errors.Is(err, errCancelRequested) {
			return err
		}
		if ctl := ls.control(); ctl != nil {
			return ctl
		}
		if !engine.IsTransient(err) {
			return err
		}
		m.mu.Lock()
		if j.Retries >= m.cfg.RetryLimit {
			m.mu.Unlock()
			return err
		}
		j.Retries++
		m.mu.Unlock()

		backoff := m.cfg.BackoffBase << attempt
		m.log.Warn().Str("job", j.ID).Err(err).Dur("backoff", backoff).Msg("Transient failure, retrying")
		select {
		case <-time.After(backoff):
		case <-ls.ctx.Done():
			if ctl := ls.control(); ctl != nil {
				return ctl
			}
			return errCancelRequested
		}
	}
}

// transferOnce moves every selected rendition from its recorded offset to
// completion, then post-processes the parts into the destination file.
func (m *Manager) transferOnce(j *job.Job, ls *lease) error {
	dest := j.Selection.OutputPath
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return engine.NewFatal(engine.ReasonPermissionDenied, err)
	}

	var inputs, subtitles []string
	for _, id := range j.Selection.IDs() {
		r, ok := j.Rendition(id)
		if !ok {
			return engine.NewFatal(engine.ReasonUnsupported, fmt.Errorf("rendition %q not in catalog", id))
		}
		part := partPath(dest, r)
		if r.Kind == engine.KindSubtitle {
			subtitles = append(subtitles, part)
		} else {
			inputs = append(inputs, part)
		}
		if err := m.transferRendition(j, ls, r, part); err != nil {
			return err
		}
	}

	if err := m.eng.PostProcess(ls.ctx, engine.PostProcessRequest{
		URL:       j.URL,
		Inputs:    inputs,
		Subtitles: subtitles,
		Output:    dest,
		Container: j.Selection.Container,
	}); err != nil {
		if ctl := ls.control(); ctl != nil {
			return ctl
		}
		return err
	}
	for _, p := range append(inputs, subtitles...) {
		os.Remove(p)
	}
	return nil
}

// transferRendition streams one rendition into its part file, resuming from
// the bytes already on disk. The part file's size is the source of truth
// for the resume offset.
func (m *Manager) transferRendition(j *job.Job, ls *lease, r engine.Rendition, part string) error {
	offset := int64(0)
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}
	if r.Size >= 0 && offset >= r.Size {
		m.syncOffset(j, r.ID, offset)
		return nil
	}

	if ctl := ls.control(); ctl != nil {
		return ctl
	}
	stream, err := m.eng.OpenStream(ls.ctx, j.URL, r.ID, offset)
	if err != nil {
		if ctl := ls.control(); ctl != nil {
			return ctl
		}
		return err
	}
	defer stream.Close()

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return engine.NewFatal(engine.ReasonPermissionDenied, err)
	}
	defer f.Close()

	m.syncOffset(j, r.ID, offset)
	lastEmit := time.Now()
	lastBytes := offset
	for {
		if ctl := ls.control(); ctl != nil {
			return ctl
		}
		chunk, rerr := readChunk(ls.ctx, stream, m.cfg.ChunkSize, m.cfg.ChunkTimeout)
		if len(chunk) > 0 {
			if _, werr := f.Write(chunk); werr != nil {
				return classifyWriteError(werr)
			}
			offset += int64(len(chunk))
			m.advance(j, r.ID, int64(len(chunk)), &lastEmit, &lastBytes, offset)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			if ctl := ls.control(); ctl != nil {
				return ctl
			}
			if errors.Is(rerr, context.Canceled) {
				return errCancelRequested
			}
			return rerr
		}
	}
	if r.Size >= 0 && offset < r.Size {
		return engine.NewTransient(engine.ReasonNetworkReset,
			fmt.Errorf("stream ended at %d of %d bytes", offset, r.Size))
	}
	return nil
}

// advance records transferred bytes and emits a coalesced Progress event at
// most once per configured interval.
func (m *Manager) advance(j *job.Job, renditionID string, n int64, lastEmit *time.Time, lastBytes *int64, offset int64) {
	m.mu.Lock()
	j.Offsets[renditionID] = offset
	j.Transferred += n
	now := time.Now()
	elapsed := now.Sub(*lastEmit)
	if elapsed < m.cfg.ProgressInterval {
		m.mu.Unlock()
		return
	}
	j.Rate = float64(offset-*lastBytes) / elapsed.Seconds()
	ev := bus.Event{
		JobID: j.ID,
		Kind:  bus.EventProgress,
		Bytes: j.Transferred,
		Total: j.Total,
		Rate:  j.Rate,
	}
	m.mu.Unlock()
	*lastEmit = now
	*lastBytes = offset
	m.bus.Publish(ev)
}

func (m *Manager) syncOffset(j *job.Job, renditionID string, offset int64) {
	m.mu.Lock()
	prev := j.Offsets[renditionID]
	j.Offsets[renditionID] = offset
	if offset > prev {
		j.Transferred += offset - prev
	}
	m.mu.Unlock()
}

// removePartials deletes part files after a cancel. Caller holds m.mu.
func (m *Manager) removePartials(j *job.Job) {
	dest := j.Selection.OutputPath
	if dest == "" {
		return
	}
	for _, id := range j.Selection.IDs() {
		if r, ok := j.Rendition(id); ok {
			os.Remove(partPath(dest, r))
		}
	}
}

// partPath is the on-disk location of one rendition's in-progress bytes.
func partPath(dest string, r engine.Rendition) string {
	return fmt.Sprintf("%s.%s-%s.part", dest, r.Kind, r.ID)
}

type readResult struct {
	chunk []byte
	err   error
}

// readChunk reads up to size bytes with a deadline. The read itself cannot
// be interrupted, so it runs in a goroutine that owns the buffer; on
// timeout or cancellation the caller abandons it and closing the stream
// unblocks it.
func readChunk(ctx context.Context, r io.Reader, size int, timeout time.Duration) ([]byte, error) {
	resCh := make(chan readResult, 1)
	go func() {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		resCh <- readResult{chunk: buf[:n], err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resCh:
		return res.chunk, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, engine.NewTransient(engine.ReasonTimeout,
			fmt.Errorf("chunk read exceeded %s", timeout))
	}
}

func classifyWriteError(err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return engine.NewFatal(engine.ReasonPermissionDenied, err)
	default:
		// ENOSPC and friends: nothing a retry can fix
		return engine.NewFatal(engine.ReasonDiskFull, err)
	}
}
