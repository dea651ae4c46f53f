// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTapCmdBatching(t *testing.T) {
	assert.Equal(t, "input tap 10 20", tapCmd(10, 20, 1))
	assert.Equal(t, "input tap 10 20", tapCmd(10, 20, 0))
	assert.Equal(t, "input tap 10 20 && input tap 10 20", tapCmd(10, 20, 2))
}

func TestCommandBuilders(t *testing.T) {
	assert.Equal(t, "monkey -p com.example.app -v 1", monkeyLaunchCmd("com.example.app"))
	assert.Equal(t, "am force-stop com.example.app", forceStopCmd("com.example.app"))
	assert.Equal(t,
		"dumpsys window windows | grep -E 'mCurrentFocus' | grep com.example.app",
		focusProbeCmd("com.example.app"))
}

func TestShellOptsSetsTimeoutOnly(t *testing.T) {
	opts := shellOpts(5 * time.Second)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Zero(t, opts.ReadTimeout)
	assert.Zero(t, opts.TransportTimeout)
}
