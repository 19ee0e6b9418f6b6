package coordinator

import (
	"sync"

	"rentview/internal/models"
)

type inflightKey struct {
	id     string
	action models.Action
}

// Tracker is the process-wide set of actions currently in flight.
type Tracker struct {
	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[inflightKey]struct{})}
}

// TryAcquire marks (id, action) as in flight. It returns false when it already is.
func (t *Tracker) TryAcquire(id string, action models.Action) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := inflightKey{id: id, action: action}
	if _, ok := t.inflight[k]; ok {
		return false
	}
	t.inflight[k] = struct{}{}
	return true
}

func (t *Tracker) Release(id string, action models.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, inflightKey{id: id, action: action})
}

// Busy reports whether any action on id is in flight.
func (t *Tracker) Busy(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.inflight {
		if k.id == id {
			return true
		}
	}
	return false
}

// Len returns the number of actions in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
