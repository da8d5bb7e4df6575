package job

// State is a job's position in its lifecycle.
type State string

const (
	// StateUnresolved means the job was just submitted and the resolver has
	// not been invoked yet.
	StateUnresolved State = "Unresolved"

	// StateResolving means a resolver call is in flight; not in the queue.
	StateResolving State = "Resolving"

	// StatePending means renditions are known and the job sits in the queue
	// waiting for a free worker slot.
	StatePending State = "Pending"

	// StateRunning means a worker holds the execution lease and is
	// transferring bytes.
	StateRunning State = "Running"

	// StatePaused means transfer is suspended; the job stays queued at its
	// prior position until resumed.
	StatePaused State = "Paused"

	// StateCompleted means all selected renditions transferred and finalized.
	StateCompleted State = "Completed"

	// StateFailed means an unrecoverable error or an exhausted retry budget.
	StateFailed State = "Failed"

	// StateCancelled means the caller aborted before or during execution.
	StateCancelled State = "Cancelled"
)

func (s State) String() string { return string(s) }

// Terminal reports whether the state can never change again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Queueable reports whether a job in this state belongs in the queue.
func (s State) Queueable() bool {
	return s == StatePending || s == StatePaused
}

// transitions lists the legal state changes. Every state may move to
// Cancelled until it is terminal, so it is handled separately in CanMove.
var transitions = map[State][]State{
	StateUnresolved: {StateResolving},
	StateResolving:  {StatePending, StateFailed},
	StatePending:    {StateRunning, StatePaused},
	StateRunning:    {StatePaused, StateCompleted, StateFailed},
	StatePaused:     {StatePending},
}

// CanMove reports whether the transition from s to next is legal.
func (s State) CanMove(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateCancelled {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
