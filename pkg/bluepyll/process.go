// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"io"
	"time"
)

// Process is a handle on a running OS process.
type Process interface {
	Kill() error
	// Wait blocks until the process exits or the timeout elapses.
	Wait(timeout time.Duration) error
}

// ProcessManager abstracts OS-level process enumeration and launch.
type ProcessManager interface {
	// FindProcess looks up a running process by executable name.
	FindProcess(name string) (Process, bool)
	// Launch starts the executable at path; process output is streamed
	// into w line by line.
	Launch(path string, w io.Writer) error
}

// WindowCapturer grabs a window's client area as PNG bytes. Used for
// the loading splash, which appears before the debug bridge is up.
type WindowCapturer interface {
	CaptureWindow(title string) ([]byte, error)
}
