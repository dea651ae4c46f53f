// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"fmt"
	"strings"
	"time"
)

// Transport is the debug-bridge client used to run shell commands
// against the emulator. The protocol implementation is an external
// collaborator; the controller only needs this narrow surface.
type Transport interface {
	Connect() error
	Close() error
	Available() bool
	Shell(command string, opts ShellOptions) ([]byte, error)
}

// ShellOptions carries the per-call timeouts for a shell round-trip.
// Timeouts are threaded through explicitly on every call; they are
// never left to a transport-global default.
type ShellOptions struct {
	Timeout          time.Duration
	ReadTimeout      time.Duration
	TransportTimeout time.Duration
}

func shellOpts(timeout time.Duration) ShellOptions {
	return ShellOptions{Timeout: timeout}
}

// Shell command strings, plain adb syntax.
const (
	cmdScreencap   = "screencap -p"
	cmdGoHome      = "input keyevent 3"
	cmdPressEsc    = "input keyevent 4"
	cmdPressEnter  = "input keyevent 66"
	cmdRecentApps  = "input keyevent KEYCODE_APP_SWITCH"
	cmdTypeTextFmt = "input text %s"
)

func monkeyLaunchCmd(pkg string) string {
	return fmt.Sprintf("monkey -p %s -v 1", pkg)
}

func forceStopCmd(pkg string) string {
	return fmt.Sprintf("am force-stop %s", pkg)
}

func focusProbeCmd(pkg string) string {
	return fmt.Sprintf("dumpsys window windows | grep -E 'mCurrentFocus' | grep %s", pkg)
}

// tapCmd batches `times` taps into a single shell invocation joined by
// a logical AND, one round-trip instead of one per tap.
func tapCmd(x, y, times int) string {
	tap := fmt.Sprintf("input tap %d %d", x, y)
	if times <= 1 {
		return tap
	}
	parts := make([]string, times)
	for i := range parts {
		parts[i] = tap
	}
	return strings.Join(parts, " && ")
}
