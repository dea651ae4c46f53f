// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
)

// ValidationError reports a bad constructor or setter argument. It is
// raised at the boundary, never deferred.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return errdefs.ErrInvalidArgument }

// StateError reports an illegal state transition attempted without the
// validation override.
type StateError struct {
	From State
	To   State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *StateError) Unwrap() error { return errdefs.ErrConflict }

// ConnError reports a transport connect or disconnect failure.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adb %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("adb %s failed", e.Op)
}

func (e *ConnError) Unwrap() []error {
	if e.Err != nil {
		return []error{errdefs.ErrUnavailable, e.Err}
	}
	return []error{errdefs.ErrUnavailable}
}

// WaitTimeoutError reports a polling loop that exceeded its bound.
type WaitTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *WaitTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// EmulatorError reports an emulator-specific hard failure, such as a
// missing player executable or a launch error.
type EmulatorError struct {
	Op  string
	Err error
}

func (e *EmulatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("emulator %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("emulator %s failed", e.Op)
}

func (e *EmulatorError) Unwrap() error { return e.Err }

// AppError reports an app-record failure such as a blank name or
// package identifier.
type AppError struct {
	Reason string
}

func (e *AppError) Error() string { return e.Reason }

func (e *AppError) Unwrap() error { return errdefs.ErrInvalidArgument }

// notFound wraps errdefs.ErrNotFound with a description.
func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, errdefs.ErrNotFound)
}
