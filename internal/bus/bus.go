// Package bus carries progress events from workers to observers. It is a
// bounded-buffer broadcast: each subscriber gets every must-deliver event in
// emission order, while intermediate Progress events may be coalesced away
// when the subscriber cannot keep up.
package bus

import (
	"sync"
	"time"
)

// EventKind tags a job lifecycle event.
type EventKind string

const (
	EventResolved  EventKind = "Resolved"
	EventStarted   EventKind = "Started"
	EventProgress  EventKind = "Progress"
	EventPaused    EventKind = "Paused"
	EventResumed   EventKind = "Resumed"
	EventCompleted EventKind = "Completed"
	EventFailed    EventKind = "Failed"
	EventCancelled EventKind = "Cancelled"
)

// Coalescible reports whether an event of this kind may be dropped for a
// slow subscriber. Terminal and state-change events are always delivered.
func (k EventKind) Coalescible() bool { return k == EventProgress }

// Event is an immutable progress/status record for one job.
type Event struct {
	JobID      string
	Time       time.Time
	Kind       EventKind
	Bytes      int64   // bytes transferred so far
	Total      int64   // expected bytes, -1 if unknown
	Rate       float64 // bytes per second
	Renditions int     // catalog size, Resolved events only
	ErrDetail  string  // Failed events only
}

// Subscription is one observer's ordered view of the bus. Read from C;
// Close when done.
type Subscription struct {
	C <-chan Event

	bus    *Bus
	id     int
	ch     chan Event
	done   chan struct{}
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	limit  int
	closed bool
}

// Close detaches the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

// push appends ev to the buffer, evicting the oldest coalescible event when
// the buffer is full. Must-deliver events always fit; an incoming Progress
// event is dropped outright when nothing can be evicted.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.buf) >= s.limit {
		evicted := false
		for i, old := range s.buf {
			if old.Kind.Coalescible() {
				s.buf = append(s.buf[:i], s.buf[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted && ev.Kind.Coalescible() {
			return
		}
	}
	s.buf = append(s.buf, ev)
	s.cond.Signal()
}

// pump delivers buffered events to C in order, blocking on the reader. Slow
// readers only delay themselves; producers never block on a subscriber.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.buf) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.buf) == 0 && s.closed {
			s.mu.Unlock()
			close(s.ch)
			return
		}
		ev := s.buf[0]
		s.buf = s.buf[1:]
		s.mu.Unlock()
		select {
		case s.ch <- ev:
		case <-s.done:
			close(s.ch)
			return
		}
	}
}

// Bus is the single ordered broadcast channel between workers and the
// presentation layer.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	buffer int
}

// New creates a bus whose subscribers each buffer up to buffer events.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]*Subscription), buffer: buffer}
}

// Subscribe registers a new observer. Events published before Subscribe are
// not replayed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{
		bus:   b,
		id:    b.nextID,
		ch:    make(chan Event),
		done:  make(chan struct{}),
		limit: b.buffer,
	}
	s.C = s.ch
	s.cond = sync.NewCond(&s.mu)
	b.subs[b.nextID] = s
	b.nextID++
	go s.pump()
	return s
}

// Publish fans ev out to every subscriber. Never blocks on consumers.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.push(ev)
	}
}

// Close detaches every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
