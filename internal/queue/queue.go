package queue

import "sync"

// Queue is the ordered set of job ids eligible for scheduling. FIFO by
// submission, re-orderable by the caller. All operations are atomic with
// respect to each other; in particular DequeueFirst removes and returns its
// pick in one step so two workers can never lease the same job.
type Queue struct {
	mu  sync.Mutex
	ids []string
}

func New() *Queue { return &Queue{} }

// Enqueue appends id to the tail. A no-op if already present.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(id) >= 0 {
		return
	}
	q.ids = append(q.ids, id)
}

// EnqueueAt inserts id at pos (clamped to the current bounds), used to put a
// paused job back at its prior relative position.
func (q *Queue) EnqueueAt(id string, pos int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(id) >= 0 {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(q.ids) {
		pos = len(q.ids)
	}
	q.ids = append(q.ids, "")
	copy(q.ids[pos+1:], q.ids[pos:])
	q.ids[pos] = id
}

// DequeueNext pops the head of the queue.
func (q *Queue) DequeueNext() (string, bool) {
	id, _, ok := q.DequeueFirst(func(string) bool { return true })
	return id, ok
}

// DequeueFirst removes and returns the first id accepted by eligible, along
// with the position it was removed from. The scheduler uses it to skip
// paused jobs without disturbing their position; the removal index is what
// puts the job back behind them if it pauses again.
func (q *Queue) DequeueFirst(eligible func(id string) bool) (string, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.ids {
		if eligible(id) {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return id, i, true
		}
	}
	return "", -1, false
}

// Remove deletes id wherever it sits. Reports whether it was present.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.ids = append(q.ids[:i], q.ids[i+1:]...)
	return true
}

// MoveToFront makes id the next scheduling candidate.
func (q *Queue) MoveToFront(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	copy(q.ids[1:i+1], q.ids[:i])
	q.ids[0] = id
	return true
}

// MoveUp swaps id with its predecessor. A no-op at the front.
func (q *Queue) MoveUp(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	if i > 0 {
		q.ids[i-1], q.ids[i] = q.ids[i], q.ids[i-1]
	}
	return true
}

// MoveDown swaps id with its successor. A no-op at the tail.
func (q *Queue) MoveDown(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	if i < len(q.ids)-1 {
		q.ids[i+1], q.ids[i] = q.ids[i], q.ids[i+1]
	}
	return true
}

// IndexOf returns id's current position, -1 if absent.
func (q *Queue) IndexOf(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(id)
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	return q.IndexOf(id) >= 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Items returns a copy of the current ordering.
func (q *Queue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

func (q *Queue) indexOf(id string) int {
	for i, v := range q.ids {
		if v == id {
			return i
		}
	}
	return -1
}
