package daemon

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/apiforge-ai/apiforge/internal/domain"
	"github.com/apiforge-ai/apiforge/internal/errors"
)

// DispatchTracker records the outcome of upstream dispatches per deployed
// server. It implements contracts.DispatchMonitor and is safe for concurrent
// use.
// NewDispatchTracker should be used to create instances of DispatchTracker.
type DispatchTracker struct {
	mu       sync.RWMutex
	statuses map[string]domain.DispatchHealth
}

// NewDispatchTracker creates a tracker pre-seeded with the given server ids,
// each starting in the unknown state.
func NewDispatchTracker(serverIDs []string) *DispatchTracker {
	statuses := make(map[string]domain.DispatchHealth, len(serverIDs))
	for _, id := range serverIDs {
		statuses[id] = domain.DispatchHealth{ServerID: id, Status: domain.DispatchStatusUnknown}
	}
	return &DispatchTracker{
		statuses: statuses,
	}
}

// Status returns the dispatch telemetry for a single tracked server.
func (t *DispatchTracker) Status(serverID string) (domain.DispatchHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, ok := t.statuses[serverID]; ok {
		return health, nil
	}

	return domain.DispatchHealth{}, fmt.Errorf("%w: %s", errors.ErrDispatchNotTracked, serverID)
}

// List returns a copy of all known dispatch telemetry records, sorted by
// server id.
func (t *DispatchTracker) List() []domain.DispatchHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := slices.Collect(maps.Values(t.statuses))
	slices.SortFunc(out, func(a, b domain.DispatchHealth) int {
		return cmp.Compare(a.ServerID, b.ServerID)
	})

	return out
}

// Record notes the outcome of one upstream dispatch. The current time becomes
// LastDispatched; LastSuccessful only advances on an ok outcome. Records for
// unknown servers are dropped rather than erroring: dispatch outcomes can race
// with server removal.
func (t *DispatchTracker) Record(serverID string, status domain.DispatchStatus, latency *time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.statuses[serverID]
	if !ok {
		return
	}

	now := time.Now().UTC()

	lastSuccessful := prev.LastSuccessful
	if status == domain.DispatchStatusOK {
		lastSuccessful = &now
	}

	var recorded *time.Duration
	if latency != nil {
		d := *latency
		recorded = &d
	}

	t.statuses[serverID] = domain.DispatchHealth{
		ServerID:       serverID,
		Status:         status,
		Latency:        recorded,
		LastDispatched: &now,
		LastSuccessful: lastSuccessful,
	}
}

// Add starts tracking a server in the unknown state. Tracking an already
// tracked server resets its record.
func (t *DispatchTracker) Add(serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses[serverID] = domain.DispatchHealth{ServerID: serverID, Status: domain.DispatchStatusUnknown}
}

// Remove stops tracking a server.
func (t *DispatchTracker) Remove(serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.statuses, serverID)
}
