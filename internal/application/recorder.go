package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// UnknownPollError substitutes for a poll failure that carries no message,
// so the service-level history still deduplicates by identity.
const UnknownPollError = "Unknown poll error"

// ErrorHistoryRecorder appends dependency-level error events with
// transition-only semantics: a row is written only when the observation
// differs from the last recorded entry. Identity is the JSON serialization
// of the error field; error_message accompanies it but does not by itself
// trigger records. The history is an event log of transitions, not of polls.
type ErrorHistoryRecorder struct{}

// NewErrorHistoryRecorder creates a recorder.
func NewErrorHistoryRecorder() *ErrorHistoryRecorder {
	return &ErrorHistoryRecorder{}
}

// Record applies the transition table to one observation. It returns whether
// a row was written. The store is passed per call so the recorder works
// against transaction-scoped stores.
func (r *ErrorHistoryRecorder) Record(
	ctx context.Context,
	store driven.ErrorHistoryStore,
	dependencyID string,
	healthy bool,
	errJSON json.RawMessage,
	errMessage string,
	now time.Time,
) (bool, error) {
	last, err := store.Latest(ctx, dependencyID)
	if err != nil {
		return false, fmt.Errorf("load latest error history: %w", err)
	}

	if healthy {
		// First-ever success is silent; a recovery row only follows an
		// unhealthy entry.
		if last == nil || last.IsRecovery() {
			return false, nil
		}
		entry := model.ErrorHistoryEntry{
			DependencyID: dependencyID,
			RecordedAt:   now,
		}
		if err := store.Append(ctx, entry); err != nil {
			return false, err
		}
		return true, nil
	}

	if last != nil && !last.IsRecovery() && jsonEqual(last.Error, errJSON) {
		return false, nil
	}

	// error_message is stored non-nil (possibly empty) on unhealthy rows so
	// they can never be mistaken for recovery markers.
	entry := model.ErrorHistoryEntry{
		DependencyID: dependencyID,
		Error:        errJSON,
		ErrorMessage: &errMessage,
		RecordedAt:   now,
	}
	if err := store.Append(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// jsonEqual compares two opaque JSON blobs by compacted serialization.
// Two nils are equal; nil never equals a value.
func jsonEqual(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&cb, b); err != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// ServicePollHistoryRecorder appends service-level poll outcomes with the
// same transition-only semantics, keyed by the error-message string.
type ServicePollHistoryRecorder struct{}

// NewServicePollHistoryRecorder creates a recorder.
func NewServicePollHistoryRecorder() *ServicePollHistoryRecorder {
	return &ServicePollHistoryRecorder{}
}

// Record applies the transition table to one poll outcome. A failure with an
// empty message records as UnknownPollError.
func (r *ServicePollHistoryRecorder) Record(
	ctx context.Context,
	store driven.PollHistoryStore,
	serviceID string,
	success bool,
	errMessage string,
	now time.Time,
) (bool, error) {
	last, err := store.Latest(ctx, serviceID)
	if err != nil {
		return false, fmt.Errorf("load latest poll history: %w", err)
	}

	if success {
		if last == nil || last.IsRecovery() {
			return false, nil
		}
		entry := model.ServicePollHistoryEntry{
			ServiceID:  serviceID,
			RecordedAt: now,
		}
		if err := store.Append(ctx, entry); err != nil {
			return false, err
		}
		return true, nil
	}

	if errMessage == "" {
		errMessage = UnknownPollError
	}

	if last != nil && !last.IsRecovery() && *last.Error == errMessage {
		return false, nil
	}

	entry := model.ServicePollHistoryEntry{
		ServiceID:  serviceID,
		Error:      &errMessage,
		RecordedAt: now,
	}
	if err := store.Append(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}
