package model

import "time"

// StatusChange records a dependency's healthy flag flipping between polls.
type StatusChange struct {
	ServiceID       string
	ServiceName     string
	DependencyName  string
	PreviousHealthy *bool
	CurrentHealthy  bool
	Timestamp       time.Time
}

// PollResult is the outcome of a single poll attempt against one service.
type PollResult struct {
	ServiceID           string
	ServiceName         string
	Success             bool
	DependenciesUpdated int
	StatusChanges       []StatusChange
	Error               string // sanitized; empty on success
	LatencyMS           int64  // elapsed wall time for the whole poll
}
