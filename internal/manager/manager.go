// Package manager is the public entry point of the download core. It owns
// the job table, the queue, the worker slots and the progress bus, and is
// the only component that transitions job state on caller requests.
package manager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidra-dl/vidra/internal/bus"
	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/config"
	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/job"
	"github.com/vidra-dl/vidra/internal/queue"
	"github.com/vidra-dl/vidra/internal/utils"
)

// Errors returned synchronously to callers of manager operations. They never
// affect job state.
var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidState = errors.New("operation invalid for job state")
)

// Direction is a reorder request for a queued job.
type Direction string

const (
	MoveUp    Direction = "up"
	MoveDown  Direction = "down"
	MoveFront Direction = "front"
)

// Manager coordinates jobs through resolution, queuing, transfer and
// completion. All shared state lives behind one mutex so that queue removal
// and lease acquisition are a single indivisible step.
type Manager struct {
	cfg      config.Config
	eng      engine.Engine
	resolver *catalog.Resolver
	log      zerolog.Logger

	mu       sync.Mutex
	jobs     map[string]*job.Job
	leases   map[string]*lease
	resolves map[string]context.CancelFunc // in-flight resolutions
	submits  int
	limit    int
	active   int

	queue *queue.Queue
	bus   *bus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.Config, eng engine.Engine) *Manager {
	cfg.Normalize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		eng:      eng,
		resolver: catalog.NewResolver(eng),
		log:      utils.GetLogger("manager"),
		jobs:     make(map[string]*job.Job),
		leases:   make(map[string]*lease),
		resolves: make(map[string]context.CancelFunc),
		limit:    cfg.Workers,
		queue:    queue.New(),
		bus:      bus.New(cfg.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit registers a new job for url and starts resolving it. A nil
// selection requests automatic selection once renditions are known.
func (m *Manager) Submit(rawURL string, sel *catalog.Selection) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	m.mu.Lock()
	j := job.New(rawURL, m.submits)
	m.submits++
	if sel != nil {
		j.Selection = *sel
		// A selection with no rendition ids only overrides the output path
		// or container; renditions still come from auto-selection.
		j.Auto = len(sel.IDs()) == 0
	} else {
		j.Auto = true
	}
	m.jobs[j.ID] = j
	m.mu.Unlock()

	m.log.Debug().Str("job", j.ID).Str("url", rawURL).Msg("Job submitted")
	m.wg.Add(1)
	go m.resolveJob(j)
	return j.ID, nil
}

// resolveJob drives a job from Unresolved through resolution into the
// queue, retrying unreachable engines with the same backoff budget workers
// use for transfers.
func (m *Manager) resolveJob(j *job.Job) {
	defer m.wg.Done()

	m.mu.Lock()
	if j.State.Terminal() { // cancelled before resolution started
		m.mu.Unlock()
		return
	}
	if err := j.Move(job.StateResolving); err != nil {
		m.mu.Unlock()
		return
	}
	rctx, rcancel := context.WithCancel(m.ctx)
	m.resolves[j.ID] = rcancel
	m.mu.Unlock()
	defer func() {
		rcancel()
		m.mu.Lock()
		delete(m.resolves, j.ID)
		m.mu.Unlock()
	}()

	var renditions []engine.Rendition
	var err error
	for attempt := 0; ; attempt++ {
		renditions, err = m.resolver.Resolve(rctx, j.URL)
		if err == nil {
			break
		}
		var re *catalog.ResolutionError
		if errors.As(err, &re) && re.Retryable() && attempt < m.cfg.RetryLimit {
			m.log.Warn().Str("job", j.ID).Err(err).Int("attempt", attempt+1).Msg("Resolution failed, retrying")
			select {
			case <-time.After(m.cfg.BackoffBase << attempt):
				continue
			case <-rctx.Done():
			}
		}
		break
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if j.State.Terminal() {
		return
	}
	if rctx.Err() != nil {
		// Cancelled mid-resolution: terminal without ever entering the queue.
		j.Move(job.StateCancelled)
		m.publishLocked(j, bus.EventCancelled)
		return
	}
	if err != nil {
		j.ErrDetail = err.Error()
		j.Move(job.StateFailed)
		m.publishLocked(j, bus.EventFailed)
		return
	}

	j.Renditions = renditions
	if j.Auto {
		outPath, container := j.Selection.OutputPath, j.Selection.Container
		sel, serr := catalog.AutoSelect(renditions, catalog.SelectPolicy{
			AudioLanguage:    m.cfg.AudioLanguage,
			SubtitleLanguage: m.cfg.SubtitleLanguage,
			CodecPreference:  m.cfg.CodecPreference,
		})
		if serr != nil {
			j.ErrDetail = serr.Error()
			j.Move(job.StateFailed)
			m.publishLocked(j, bus.EventFailed)
			return
		}
		j.Selection = sel
		if outPath != "" {
			j.Selection.OutputPath = outPath
		}
		if container != "" {
			j.Selection.Container = container
		}
	} else if serr := j.Selection.Validate(renditions); serr != nil {
		j.ErrDetail = serr.Error()
		j.Move(job.StateFailed)
		m.publishLocked(j, bus.EventFailed)
		return
	}
	if j.Selection.OutputPath == "" {
		j.Selection.OutputPath = m.defaultOutputPath(j)
	}
	j.RecalcTotal()
	j.Move(job.StatePending)
	m.queue.Enqueue(j.ID)
	m.publishLocked(j, bus.EventResolved)
	m.dispatchLocked()
}

// Pause suspends a job. Running jobs stop cooperatively at the next chunk
// boundary and return to the queue at their prior position; queued jobs are
// marked in place. Pausing a job already paused is a no-op.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch j.State {
	case job.StatePaused:
		return nil
	case job.StateRunning:
		if ls, ok := m.leases[id]; ok {
			ls.requestPause()
		}
		return nil
	case job.StatePending:
		j.Move(job.StatePaused)
		m.publishLocked(j, bus.EventPaused)
		return nil
	default:
		return fmt.Errorf("%w: cannot pause %s job", ErrInvalidState, j.State)
	}
}

// Resume returns a paused job to Pending at its current queue position.
// Resuming a job that is Pending or Running is a no-op.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch j.State {
	case job.StatePending, job.StateRunning:
		return nil
	case job.StatePaused:
		j.Move(job.StatePending)
		if !m.queue.Contains(id) {
			m.queue.Enqueue(id)
		}
		m.publishLocked(j, bus.EventResumed)
		m.dispatchLocked()
		return nil
	default:
		return fmt.Errorf("%w: cannot resume %s job", ErrInvalidState, j.State)
	}
}

// Cancel aborts a job. Running transfers stop cooperatively; queued and
// resolving jobs are cancelled immediately and never scheduled again.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.State.Terminal() {
		return fmt.Errorf("%w: job already %s", ErrInvalidState, j.State)
	}
	switch j.State {
	case job.StateRunning:
		if ls, ok := m.leases[id]; ok {
			ls.requestCancel()
		}
		return nil
	case job.StateResolving:
		if rcancel, ok := m.resolves[id]; ok {
			rcancel()
		}
		return nil
	default: // Unresolved, Pending, Paused
		m.queue.Remove(id)
		j.Move(job.StateCancelled)
		if !m.cfg.KeepPartial {
			m.removePartials(j)
		}
		m.publishLocked(j, bus.EventCancelled)
		return nil
	}
}

// Remove destroys a job. Running jobs must be cancelled first so their
// lease can wind down.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.State == job.StateRunning || j.State == job.StateResolving {
		return fmt.Errorf("%w: cancel the %s job first", ErrInvalidState, j.State)
	}
	m.queue.Remove(id)
	delete(m.jobs, id)
	return nil
}

// Reorder changes a queued job's scheduling position. Running and terminal
// jobs cannot be reordered.
func (m *Manager) Reorder(id string, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.State.Queueable() {
		return fmt.Errorf("%w: cannot reorder %s job", ErrInvalidState, j.State)
	}
	switch dir {
	case MoveUp:
		m.queue.MoveUp(id)
	case MoveDown:
		m.queue.MoveDown(id)
	case MoveFront:
		m.queue.MoveToFront(id)
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
	return nil
}

// UpdateSelection replaces a queued job's selection before transfer starts.
// The selection is frozen once the job is running.
func (m *Manager) UpdateSelection(id string, sel catalog.Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.State.Queueable() {
		return fmt.Errorf("%w: cannot edit selection of %s job", ErrInvalidState, j.State)
	}
	if err := sel.Validate(j.Renditions); err != nil {
		return err
	}
	j.Selection = sel
	if j.Selection.OutputPath == "" {
		j.Selection.OutputPath = m.defaultOutputPath(j)
	}
	j.RecalcTotal()
	return nil
}

// SetConcurrencyLimit adjusts the number of transfer slots. Takes effect for
// newly scheduled slots; running jobs are not disturbed.
func (m *Manager) SetConcurrencyLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("concurrency limit must be positive, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = n
	m.dispatchLocked()
	return nil
}

// Subscribe attaches an observer to the progress bus.
func (m *Manager) Subscribe() *bus.Subscription {
	return m.bus.Subscribe()
}

// Snapshot returns every tracked job in submission order.
func (m *Manager) Snapshot() []job.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Summary, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Summarize(m.queue.IndexOf(j.ID)))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].SubmitIndex < out[k].SubmitIndex })
	return out
}

// Job returns a single job's summary.
func (m *Manager) Job(id string) (job.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.Summary{}, ErrNotFound
	}
	return j.Summarize(m.queue.IndexOf(id)), nil
}

// PauseAll pauses every pausable job.
func (m *Manager) PauseAll() {
	for _, s := range m.Snapshot() {
		if s.State == job.StateRunning || s.State == job.StatePending {
			m.Pause(s.ID)
		}
	}
}

// ResumeAll resumes every paused job.
func (m *Manager) ResumeAll() {
	for _, s := range m.Snapshot() {
		if s.State == job.StatePaused {
			m.Resume(s.ID)
		}
	}
}

// Shutdown cancels all in-flight work and waits for workers to wind down,
// up to ctx's deadline. The bus is closed once everything has stopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.bus.Close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLocked fills free transfer slots from the queue head. Must be
// called with m.mu held; dequeue and lease creation happen under the same
// lock so a job can never be leased twice.
func (m *Manager) dispatchLocked() {
	for m.active < m.limit && m.ctx.Err() == nil {
		id, pos, ok := m.queue.DequeueFirst(func(id string) bool {
			j, found := m.jobs[id]
			return found && j.State == job.StatePending
		})
		if !ok {
			return
		}
		j := m.jobs[id]
		if err := j.Move(job.StateRunning); err != nil {
			m.log.Error().Err(err).Str("job", id).Msg("Dispatch skipped job")
			continue
		}
		ls := newLease(id, m.ctx)
		ls.queuePos = pos
		m.leases[id] = ls
		m.active++
		m.publishLocked(j, bus.EventStarted)
		m.wg.Add(1)
		go m.runWorker(j, ls)
	}
}

// publishLocked emits a status event for j's current state. Progress events
// use publishProgress instead.
func (m *Manager) publishLocked(j *job.Job, kind bus.EventKind) {
	ev := bus.Event{
		JobID:      j.ID,
		Kind:       kind,
		Bytes:      j.Transferred,
		Total:      j.Total,
		Rate:       j.Rate,
		Renditions: len(j.Renditions),
	}
	if kind == bus.EventFailed {
		ev.ErrDetail = j.ErrDetail
	}
	m.bus.Publish(ev)
}

func (m *Manager) defaultOutputPath(j *job.Job) string {
	name := filepath.Base(j.URL)
	if u, err := url.Parse(j.URL); err == nil && u.Path != "" && u.Path != "/" {
		name = filepath.Base(u.Path)
	}
	name = utils.SanitizeFileName(name)
	if filepath.Ext(name) == "" && j.Selection.Container != "" {
		name += "." + j.Selection.Container
	}
	path := filepath.Join(m.cfg.OutputDir, name)
	if _, err := os.Stat(path); err == nil {
		// default-named outputs never overwrite an existing file; explicit
		// output paths surface a conflict from the engine instead
		path = utils.RenewOutputPath(path)
	}
	return path
}
