// Package domain holds shared domain types that cross package boundaries
// without dragging implementation dependencies with them.
package domain

import "time"

const (
	// DispatchStatusOK means the last upstream call completed with a 2xx.
	DispatchStatusOK DispatchStatus = "ok"

	// DispatchStatusUpstreamError means the upstream answered with a non-2xx.
	DispatchStatusUpstreamError DispatchStatus = "upstream-error"

	// DispatchStatusUnreachable means the upstream could not be reached.
	DispatchStatusUnreachable DispatchStatus = "unreachable"

	// DispatchStatusUnknown means no dispatch has been recorded yet.
	DispatchStatusUnknown DispatchStatus = "unknown"
)

// DispatchStatus classifies the outcome of the most recent upstream dispatch
// for a deployed server.
type DispatchStatus string

// DispatchHealth is the per-server dispatch telemetry record.
type DispatchHealth struct {
	ServerID       string         `json:"server_id"`
	Status         DispatchStatus `json:"status"`
	Latency        *time.Duration `json:"latency"`
	LastDispatched *time.Time     `json:"last_dispatched"`
	LastSuccessful *time.Time     `json:"last_successful"`
}
