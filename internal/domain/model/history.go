package model

import (
	"encoding/json"
	"time"
)

// LatencySample is an append-only latency observation for a dependency.
// Samples are recorded only when latency_ms > 0.
type LatencySample struct {
	ID           string
	DependencyID string
	LatencyMS    int64
	RecordedAt   time.Time
}

// ErrorHistoryEntry is a transition-only event in a dependency's error log.
// A row with nil Error and nil ErrorMessage is a recovery marker.
type ErrorHistoryEntry struct {
	ID           string
	DependencyID string
	Error        json.RawMessage // nil on recovery rows
	ErrorMessage *string         // nil on recovery rows
	RecordedAt   time.Time
}

// IsRecovery reports whether the entry marks a healthy-after-unhealthy
// transition.
func (e ErrorHistoryEntry) IsRecovery() bool {
	return e.Error == nil && e.ErrorMessage == nil
}

// ServicePollHistoryEntry is a transition-only event in a service's poll
// outcome log. A nil Error marks recovery.
type ServicePollHistoryEntry struct {
	ID         string
	ServiceID  string
	Error      *string
	RecordedAt time.Time
}

// IsRecovery reports whether the entry marks a successful poll after failures.
func (e ServicePollHistoryEntry) IsRecovery() bool {
	return e.Error == nil
}
