package model

import (
	"encoding/json"
	"time"
)

// Dependency is one capability a service reports on, keyed by
// (service_id, name). The override columns are user-edited and never touched
// by the polling path.
type Dependency struct {
	ID            string
	ServiceID     string
	Name          string
	CanonicalName *string // resolved via aliases; nil when no alias exists
	Description   string
	Impact        string
	Type          DependencyType
	Healthy       *bool // tri-state: nil means never observed
	HealthState   HealthState
	HealthCode    int
	LatencyMS     int64
	CheckDetails  json.RawMessage // opaque
	Error         json.RawMessage // opaque
	ErrorMessage  string

	ContactOverride *string
	ImpactOverride  *string

	LastChecked      time.Time
	LastStatusChange time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DependencyStatus is a single parsed entry from a health-endpoint payload,
// normalized and ready for the upsert engine.
type DependencyStatus struct {
	Name         string
	Description  string
	Impact       string
	Type         DependencyType
	Healthy      bool
	HealthState  HealthState
	HealthCode   int
	LatencyMS    int64
	CheckDetails json.RawMessage
	Error        json.RawMessage
	ErrorMessage string
	LastChecked  time.Time
}

// DependencyAlias maps a reported dependency name to a canonical name used
// for cross-service grouping.
type DependencyAlias struct {
	ID            string
	Alias         string
	CanonicalName string
	CreatedAt     time.Time
}
