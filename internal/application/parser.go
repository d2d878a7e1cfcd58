package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// ParseError describes a malformed health payload. The message names the
// offending item index but never echoes payload text.
type ParseError struct {
	Index  int // -1 when the problem is the payload root
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid health payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid dependency at index %d: %s", e.Index, e.Reason)
}

// schemaConfig is the optional parser hint stored on the service row.
type schemaConfig struct {
	RootPath string `json:"rootPath"`
}

// rawHealth is the nested health triple shape.
type rawHealth struct {
	State   *int  `json:"state"`
	Code    int   `json:"code"`
	Latency int64 `json:"latency"`
}

// rawDependency is one item of the payload in either accepted shape.
type rawDependency struct {
	Name         *string         `json:"name"`
	Healthy      *bool           `json:"healthy"`
	Description  string          `json:"description"`
	Impact       string          `json:"impact"`
	Type         string          `json:"type"`
	CheckDetails json.RawMessage `json:"checkDetails"`
	Error        json.RawMessage `json:"error"`
	ErrorMessage string          `json:"errorMessage"`
	LastChecked  string          `json:"lastChecked"`

	Health     *rawHealth `json:"health"`
	HealthCode *int       `json:"healthCode"`
	LatencyMS  *int64     `json:"latencyMs"`
}

// DependencyParser converts raw health-endpoint payloads into canonical
// dependency statuses. It accepts an array of dependency objects at the root
// (or at a schema-config root path) or an object carrying a "dependencies"
// array.
type DependencyParser struct {
	now func() time.Time
}

// NewDependencyParser creates a parser.
func NewDependencyParser() *DependencyParser {
	return &DependencyParser{now: time.Now}
}

// Parse extracts dependency statuses from a payload body. rawSchemaConfig
// is the service's optional parser hint and may be nil.
func (p *DependencyParser) Parse(body []byte, rawSchemaConfig json.RawMessage) ([]model.DependencyStatus, error) {
	root, err := p.resolveRoot(body, rawSchemaConfig)
	if err != nil {
		return nil, err
	}

	var items []rawDependency
	if err := json.Unmarshal(root, &items); err != nil {
		return nil, &ParseError{Index: -1, Reason: "expected an array of dependencies"}
	}

	now := p.now().UTC()
	statuses := make([]model.DependencyStatus, 0, len(items))
	for i, item := range items {
		if item.Name == nil || *item.Name == "" {
			return nil, &ParseError{Index: i, Reason: "missing required field \"name\""}
		}
		if item.Healthy == nil {
			return nil, &ParseError{Index: i, Reason: "missing required field \"healthy\""}
		}

		status := model.DependencyStatus{
			Name:         *item.Name,
			Description:  item.Description,
			Impact:       item.Impact,
			Type:         model.NormalizeDependencyType(item.Type),
			Healthy:      *item.Healthy,
			CheckDetails: compactRaw(item.CheckDetails),
			Error:        compactRaw(item.Error),
			ErrorMessage: item.ErrorMessage,
			LastChecked:  now,
		}

		if item.Health != nil {
			// Nested triple: health.state / health.code / health.latency.
			if item.Health.State != nil {
				status.HealthState = model.HealthState(*item.Health.State)
			} else {
				status.HealthState = deriveState(*item.Healthy)
			}
			status.HealthCode = item.Health.Code
			status.LatencyMS = item.Health.Latency
		} else {
			// Flat triple: healthCode / latencyMs, state derived from healthy.
			status.HealthState = deriveState(*item.Healthy)
			if item.HealthCode != nil {
				status.HealthCode = *item.HealthCode
			}
			if item.LatencyMS != nil {
				status.LatencyMS = *item.LatencyMS
			}
		}

		if item.LastChecked != "" {
			if t, err := time.Parse(time.RFC3339, item.LastChecked); err == nil {
				status.LastChecked = t.UTC()
			}
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// resolveRoot locates the dependencies array: schema-config root path first,
// then array root, then the "dependencies" envelope.
func (p *DependencyParser) resolveRoot(body []byte, rawSchemaConfig json.RawMessage) (json.RawMessage, error) {
	root := json.RawMessage(body)

	if len(rawSchemaConfig) > 0 {
		var cfg schemaConfig
		if err := json.Unmarshal(rawSchemaConfig, &cfg); err == nil && cfg.RootPath != "" {
			for _, key := range strings.Split(cfg.RootPath, ".") {
				var obj map[string]json.RawMessage
				if err := json.Unmarshal(root, &obj); err != nil {
					return nil, &ParseError{Index: -1, Reason: fmt.Sprintf("root path segment %q not reachable", key)}
				}
				next, ok := obj[key]
				if !ok {
					return nil, &ParseError{Index: -1, Reason: fmt.Sprintf("root path segment %q not found", key)}
				}
				root = next
			}
			return root, nil
		}
	}

	trimmed := strings.TrimLeft(string(root), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		return root, nil
	}

	var envelope struct {
		Dependencies json.RawMessage `json:"dependencies"`
	}
	if err := json.Unmarshal(root, &envelope); err != nil || envelope.Dependencies == nil {
		return nil, &ParseError{Index: -1, Reason: "expected an array root or a \"dependencies\" array"}
	}
	return envelope.Dependencies, nil
}

func deriveState(healthy bool) model.HealthState {
	if healthy {
		return model.HealthStateOK
	}
	return model.HealthStateCritical
}

// compactRaw normalizes an opaque JSON blob: JSON null and empty input both
// become nil so the stored value is unambiguous.
func compactRaw(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.RawMessage(trimmed)
}
