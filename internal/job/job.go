package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/engine"
)

// TotalUnknown marks jobs whose expected byte count cannot be determined.
const TotalUnknown int64 = -1

// Job is the unit of work: one URL, one rendition selection, one output
// file set. Owned by the download manager; all mutation happens under the
// manager's lock or by the worker holding the job's execution lease.
type Job struct {
	ID          string
	URL         string
	SubmitIndex int

	Renditions []engine.Rendition // nil until resolution completes
	Selection  catalog.Selection
	Auto       bool // apply automatic selection once resolved

	State       State
	Transferred int64 // bytes, monotonically non-decreasing while Running
	Total       int64 // expected bytes, TotalUnknown for some sources
	Rate        float64
	Offsets     map[string]int64 // renditionID -> resume offset
	ErrDetail   string
	Retries     int

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func New(url string, submitIndex int) *Job {
	return &Job{
		ID:          uuid.New().String(),
		URL:         url,
		SubmitIndex: submitIndex,
		State:       StateUnresolved,
		Total:       TotalUnknown,
		Offsets:     make(map[string]int64),
		CreatedAt:   time.Now(),
	}
}

// Move transitions the job to next, rejecting anything the state machine
// does not allow.
func (j *Job) Move(next State) error {
	if !j.State.CanMove(next) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.State, next, j.ID)
	}
	j.State = next
	switch next {
	case StateRunning:
		if j.StartedAt.IsZero() {
			j.StartedAt = time.Now()
		}
	case StateCompleted, StateFailed, StateCancelled:
		j.FinishedAt = time.Now()
	}
	return nil
}

// Rendition looks up a resolved rendition by id.
func (j *Job) Rendition(id string) (engine.Rendition, bool) {
	for _, r := range j.Renditions {
		if r.ID == id {
			return r, true
		}
	}
	return engine.Rendition{}, false
}

// RecalcTotal sums the selected renditions' sizes; any unknown size makes
// the whole total unknown.
func (j *Job) RecalcTotal() {
	total := int64(0)
	for _, id := range j.Selection.IDs() {
		r, ok := j.Rendition(id)
		if !ok || r.Size < 0 {
			j.Total = TotalUnknown
			return
		}
		total += r.Size
	}
	j.Total = total
}

// Summary is the read-only projection of a job handed to callers.
type Summary struct {
	ID          string
	URL         string
	SubmitIndex int
	State       State
	Transferred int64
	Total       int64
	Rate        float64
	ErrDetail   string
	Retries     int
	QueuePos    int // position among queued jobs, -1 if not queued
}

func (j *Job) Summarize(queuePos int) Summary {
	return Summary{
		ID:          j.ID,
		URL:         j.URL,
		SubmitIndex: j.SubmitIndex,
		State:       j.State,
		Transferred: j.Transferred,
		Total:       j.Total,
		Rate:        j.Rate,
		ErrDetail:   j.ErrDetail,
		Retries:     j.Retries,
		QueuePos:    queuePos,
	}
}
