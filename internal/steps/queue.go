// Package steps keeps the session's append-only log of build actions.
package steps

import (
	"sync"

	"boltforge/internal/artifact"
)

// Status is the lifecycle state of a step. The only transition is
// pending → completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Step is an action tracked for session bookkeeping.
type Step struct {
	artifact.Action
	Status Status `json:"status"`
}

// Queue is the ordered step log of one session. Steps are never removed.
type Queue struct {
	mu    sync.RWMutex
	steps []Step
	index map[int64]int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[int64]int)}
}

// Append adds actions as pending steps and returns the added steps. Actions
// of an unknown kind are skipped.
func (q *Queue) Append(actions ...artifact.Action) []Step {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := make([]Step, 0, len(actions))
	for _, a := range actions {
		if !a.Kind.Valid() {
			continue
		}
		s := Step{Action: a, Status: StatusPending}
		q.index[a.ID] = len(q.steps)
		q.steps = append(q.steps, s)
		added = append(added, s)
	}
	return added
}

// Pending returns the pending steps in arrival order.
func (q *Queue) Pending() []Step {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []Step
	for _, s := range q.steps {
		if s.Status == StatusPending {
			out = append(out, s)
		}
	}
	return out
}

// Complete marks the given steps completed. Unknown ids and steps that are
// already completed are ignored. It returns how many steps changed state.
func (q *Queue) Complete(ids ...int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, id := range ids {
		i, ok := q.index[id]
		if !ok || q.steps[i].Status != StatusPending {
			continue
		}
		q.steps[i].Status = StatusCompleted
		n++
	}
	return n
}

// All returns a copy of every step in arrival order.
func (q *Queue) All() []Step {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Step, len(q.steps))
	copy(out, q.steps)
	return out
}

// Len returns the number of steps ever appended.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.steps)
}
