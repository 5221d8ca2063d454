// Package contracts defines the interfaces that decouple the API layer from
// the daemon's concrete component implementations.
package contracts

import (
	"time"

	"github.com/apiforge-ai/apiforge/internal/domain"
)

// DispatchMonitor tracks per-server upstream dispatch telemetry.
type DispatchMonitor interface {
	// Status returns the dispatch telemetry for a single tracked server.
	Status(serverID string) (domain.DispatchHealth, error)

	// List returns a copy of all known dispatch telemetry records.
	List() []domain.DispatchHealth

	// Record notes the outcome of one upstream dispatch for a tracked server.
	// Latency may be nil when the call never completed.
	Record(serverID string, status domain.DispatchStatus, latency *time.Duration)

	// Add starts tracking a server.
	Add(serverID string)

	// Remove stops tracking a server.
	Remove(serverID string)
}
