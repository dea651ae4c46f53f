// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package bluepyll provides a Go library for controlling the BlueStacks
Android emulator on a Windows host: launching the player, tracking its
lifecycle, locating UI elements on screen, and injecting input through
the Android debug bridge.

# Overview

The library models the emulator (and every managed Android app) as a
small state machine with three states: closed, loading and ready.
High-level actions are gated on those states, so a click or a keypress
issued before the emulator has finished booting degrades to a warning
instead of an error. Screen understanding is delegated to pluggable
collaborators: a template-matching Locator, an optional OCR TextReader,
a process manager and a window capturer.

# Quick Start

	import "github.com/IAmNo1Special/BluePyll/pkg/bluepyll"

	func main() {
		cfg := bluepyll.DetectConfig()
		ctrl, err := bluepyll.NewController(cfg, bluepyll.Deps{
			Transport: transport, // adb-over-TCP implementation
			Locator:   locator,   // template matcher
			Processes: processes, // OS process control
			Windows:   windows,   // OS window capture
		})
		if err != nil {
			log.Fatal(err)
		}

		// Boot and wait until ready
		if err := ctrl.OpenEmulator(0, 0, 0); err != nil {
			log.Fatal(err)
		}

		// Launch an app
		app, _ := bluepyll.NewApp("Clash of Clans", "com.supercell.clashofclans")
		if err := ctrl.OpenApp(app, 0, 0); err != nil {
			log.Fatal(err)
		}

		// Drive the UI
		ctrl.Elements().MyGamesButton.Click(1, nil, 3)
		ctrl.TypeText("hello")
		ctrl.PressEnter()

		// Tear down
		ctrl.CloseApp(app, 0, 0)
		ctrl.KillEmulator()
	}

# Key Concepts

**State machine**: Each emulator and app carries a StateMachine over
closed/loading/ready with a fixed adjacency. TransitionTo validates the
edge; Force bypasses validation. Per-state enter/exit handlers hook
custom behavior — the controller itself uses a loading-state enter
handler to block until boot completes.

**UI elements**: A UIElement pairs a template image (authored against a
reference resolution, 1920x1080 by default) with an optional search
region and a match confidence. Templates are rescaled to the live
screenshot resolution before matching, so elements keep working when
the player window is resized.

**Registry**: The controller ships a fixed registry of anchor elements
for known BlueStacks screens (loading splash, My Games, store search,
Play Store search). Labels match the historical template assets.

**Collaborators**: Transport, Locator, TextReader, ProcessManager and
WindowCapturer are interfaces. The library contains no OCR engine, no
template matcher and no adb implementation; callers wire their own.

# Environment Configuration

DetectConfig reads BLUEPYLL_* environment variables:
  - BLUEPYLL_IP, BLUEPYLL_PORT — adb endpoint (default 127.0.0.1:5555)
  - BLUEPYLL_REF_WIDTH, BLUEPYLL_REF_HEIGHT — reference resolution
  - BLUEPYLL_ASSETS_DIR — template image directory
  - BLUEPYLL_PLAYER_EXE — explicit HD-Player.exe path
  - BLUEPYLL_SEARCH_ROOT — root for player auto-detection
  - BLUEPYLL_MAX_RETRIES, BLUEPYLL_WAIT_INTERVAL, BLUEPYLL_TIMEOUT,
    BLUEPYLL_PROCESS_WAIT_TIMEOUT, BLUEPYLL_APP_START_TIMEOUT
  - BLUEPYLL_CORRELATION_ID — ties logs and spans to a workflow

# Thread Safety

Controller instances are single-threaded by design: waits are blocking
sleep-and-repoll loops on the calling goroutine and no internal locking
is provided. Create separate instances for concurrent use, or
synchronize access with a mutex.

# Requirements

- BlueStacks 5 (HD-Player.exe) on a Windows host
- adb reachable at the configured endpoint
- Template assets for the anchor elements

# License

AGPL-3.0-only

Copyright (C) 2025 Forkbomb B.V.
*/
package bluepyll
