package snapshot

import (
	"context"
	"fmt"
)

// Snapshot is a single reading of the observed process counters. Counters are kept raw as
// decoded from the wire; consumers must coerce them (see model.SafeCount).
type Snapshot struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	DOMNodes      any    `json:"domNodes,omitempty"`
	ResourceCount any    `json:"resourceCount,omitempty"`
	ErrorCount    any    `json:"errorCount,omitempty"`
	LongTaskCount any    `json:"longTaskCount,omitempty"`
}

// Provider reads counters from the observed process. A returned error means the process
// could not be reached; a reachable process reporting a failure returns a Snapshot with OK
// set to false.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (*Snapshot, error)

func (f ProviderFunc) Snapshot(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// CollectionError is a transport-level failure reaching the observed process.
type CollectionError struct {
	Err error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection failed: %v", e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// SnapshotError is reported by a reachable process that failed to measure itself.
type SnapshotError struct {
	Message string
}

func (e *SnapshotError) Error() string {
	if e.Message == "" {
		return "snapshot error: unknown snapshot error"
	}
	return "snapshot error: " + e.Message
}

// MalformedDataError lists counters that had to be coerced to a safe default.
type MalformedDataError struct {
	Fields []string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed counters coerced to 0: %v", e.Fields)
}
