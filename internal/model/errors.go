package model

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed caller input. No process was spawned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return "invalid " + e.Field + ": " + e.Reason
}

// SpawnError reports that the worker executable could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting worker %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// DuplicateTaskError reports that a task with the same correlation id is
// still running.
type DuplicateTaskError struct {
	CorrelationID string
}

func (e *DuplicateTaskError) Error() string {
	return "task " + strconv.Quote(e.CorrelationID) + " is already running"
}

// ProtocolError reports worker output that does not satisfy the contract
// of the task kind.
type ProtocolError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Detail {
		return fmt.Sprintf("%s: protocol error: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: protocol error: %s", e.Kind, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ProcessExitError reports a worker that exited unsuccessfully. Stderr is
// the captured diagnostic tail.
type ProcessExitError struct {
	Code   int
	Signal string
	Stderr string
	Err    error
}

func (e *ProcessExitError) Error() string {
	if e.Signal != "" {
		return "worker terminated by signal " + e.Signal
	}
	return "worker exited with code " + strconv.Itoa(e.Code)
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// CancelledError reports a task that ended because it was cancelled.
type CancelledError struct {
	CorrelationID string
}

func (e *CancelledError) Error() string {
	return "task " + strconv.Quote(e.CorrelationID) + " was cancelled"
}
