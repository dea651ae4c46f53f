// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/IAmNo1Special/BluePyll/internal/telemetry"
)

// Deps are the controller's external collaborators. Transport, locator,
// process manager and window capturer are required; the OCR reader is
// optional.
type Deps struct {
	Transport Transport
	Locator   Locator
	Reader    TextReader
	Processes ProcessManager
	Windows   WindowCapturer
}

// Controller orchestrates the BlueStacks emulator lifecycle: launching
// the player, waiting for it to boot, driving the debug bridge, and
// exposing high-level input and app actions gated on emulator state.
//
// A Controller is single-threaded by design: every wait is a blocking
// sleep-and-repoll loop on the calling goroutine, and no internal
// locking is provided. Callers must serialize access.
type Controller struct {
	cfg      Config
	deps     Deps
	text     *TextChecker
	state    *StateMachine
	elements *ElementRegistry
	running  []*App
	refSize  Resolution
	exePath  string
}

// NewController builds a controller over the given collaborators. The
// player executable path is taken from the config when set (and must
// exist), otherwise auto-detection is attempted; a player that cannot
// be found yet is not an error until OpenEmulator.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Transport == nil {
		return nil, &ValidationError{Field: "transport", Reason: "must not be nil"}
	}
	if deps.Locator == nil {
		return nil, &ValidationError{Field: "locator", Reason: "must not be nil"}
	}
	if deps.Processes == nil {
		return nil, &ValidationError{Field: "process manager", Reason: "must not be nil"}
	}
	if deps.Windows == nil {
		return nil, &ValidationError{Field: "window capturer", Reason: "must not be nil"}
	}
	if cfg.RefWidth < 0 || cfg.RefHeight < 0 {
		return nil, &ValidationError{Field: "reference resolution", Reason: "width and height must be positive"}
	}
	if cfg.RefWidth == 0 {
		cfg.RefWidth = DefaultRefWidth
	}
	if cfg.RefHeight == 0 {
		cfg.RefHeight = DefaultRefHeight
	}
	if cfg.IP == "" {
		cfg.IP = DefaultIP
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = DefaultWaitInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProcessWaitTimeout <= 0 {
		cfg.ProcessWaitTimeout = DefaultProcessWaitTimeout
	}
	if cfg.AppStartTimeout <= 0 {
		cfg.AppStartTimeout = DefaultAppStartTimeout
	}

	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		refSize: Resolution{Width: cfg.RefWidth, Height: cfg.RefHeight},
	}
	if deps.Reader != nil {
		c.text = NewTextChecker(deps.Reader)
	}

	c.state = NewStateMachine(StateClosed, EmulatorTransitions())
	c.state.RegisterHandler(StateLoading, c.waitForLoad, nil)
	c.state.RegisterHandler(StateReady, func() error {
		c.ConnectADB()
		return nil
	}, nil)

	elements, err := newElementRegistry(c)
	if err != nil {
		return nil, err
	}
	c.elements = elements

	if cfg.PlayerExe != "" {
		if err := c.SetFilepath(cfg.PlayerExe); err != nil {
			return nil, err
		}
	} else if path, err := c.autosetFilepath(); err == nil {
		c.exePath = path
	}

	c.log("controller initialized", "ip", cfg.IP, "port", cfg.Port,
		"ref_width", cfg.RefWidth, "ref_height", cfg.RefHeight)
	return c, nil
}

func (c *Controller) log(msg string, fields ...any) {
	telemetry.LogEvent(c.cfg.CorrelationID, msg, fields...)
}

func (c *Controller) warn(msg string, fields ...any) {
	telemetry.LogWarn(c.cfg.CorrelationID, msg, fields...)
}

func (c *Controller) startSpan(name string, attrs ...attribute.KeyValue) trace.Span {
	_, span := telemetry.StartSpan(c.cfg.Context, name, c.cfg.CorrelationID, attrs...)
	return span
}

// EmulatorState returns the current emulator lifecycle state.
func (c *Controller) EmulatorState() State { return c.state.Current() }

// EmulatorStateMachine exposes the emulator state machine, mainly for
// handler registration by callers.
func (c *Controller) EmulatorStateMachine() *StateMachine { return c.state }

// Elements returns the anchor registry bound to this controller.
func (c *Controller) Elements() *ElementRegistry { return c.elements }

// TextChecker returns the OCR helper, or nil when no reader was wired.
func (c *Controller) TextChecker() *TextChecker { return c.text }

// RunningApps returns a copy of the currently tracked running apps.
func (c *Controller) RunningApps() []*App {
	out := make([]*App, len(c.running))
	copy(out, c.running)
	return out
}

// RefWindowSize returns the reference window resolution.
func (c *Controller) RefWindowSize() Resolution { return c.refSize }

// SetRefWindowSize updates the reference resolution. Both dimensions
// must be positive. Already-built registry elements keep the resolution
// they were constructed with.
func (c *Controller) SetRefWindowSize(width, height int) error {
	if width <= 0 {
		return &ValidationError{Field: "ref window width", Reason: "must be a positive integer"}
	}
	if height <= 0 {
		return &ValidationError{Field: "ref window height", Reason: "must be a positive integer"}
	}
	c.refSize = Resolution{Width: width, Height: height}
	c.log("ref window size set", "width", width, "height", height)
	return nil
}

// Filepath returns the player executable path, empty when undetected.
func (c *Controller) Filepath() string { return c.exePath }

// SetFilepath points the controller at an existing player executable.
func (c *Controller) SetFilepath(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &ValidationError{Field: "filepath", Reason: "provided filepath does not exist"}
	}
	c.exePath = path
	c.log("player filepath set", "path", path)
	return nil
}

var errFoundPlayer = fmt.Errorf("player found")

// autosetFilepath probes the known install locations, then falls back
// to a recursive walk under the configured search root.
func (c *Controller) autosetFilepath() (string, error) {
	for _, candidate := range playerSearchPaths() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			c.log("player executable found", "path", candidate)
			return candidate, nil
		}
	}

	var found string
	err := filepath.WalkDir(c.cfg.SearchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != playerExeName {
			return nil
		}
		if !strings.Contains(strings.ToLower(filepath.Dir(path)), "bluestacks") {
			return nil
		}
		found = path
		return errFoundPlayer
	})
	if err == errFoundPlayer {
		c.log("player executable found via walk", "path", found)
		return found, nil
	}
	return "", notFound("player executable " + playerExeName)
}

// OpenEmulator launches the player if the emulator is closed, then
// polls for its process until maxRetries attempts or timeout elapses,
// whichever comes first. Transitioning into loading blocks through the
// loading handler until the emulator is ready. No-op when already
// loading or ready. Non-positive parameters take the config defaults.
func (c *Controller) OpenEmulator(maxRetries int, waitInterval, timeout time.Duration) error {
	span := c.startSpan("bluepyll.OpenEmulator")
	defer span.End()

	if maxRetries <= 0 {
		maxRetries = c.cfg.MaxRetries
	}
	if waitInterval <= 0 {
		waitInterval = c.cfg.WaitInterval
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	switch c.state.Current() {
	case StateLoading:
		c.log("bluestacks is already open and currently loading")
		return nil
	case StateReady:
		c.log("bluestacks is already open and ready")
		return nil
	}

	if c.exePath == "" {
		path, err := c.autosetFilepath()
		if err != nil {
			telemetry.RecordError(span, err)
			return &EmulatorError{Op: "locate player executable", Err: err}
		}
		c.exePath = path
	}
	output := telemetry.NewLineWriter(c.cfg.CorrelationID, "player output", "exe", c.exePath)
	if err := c.deps.Processes.Launch(c.exePath, output); err != nil {
		telemetry.RecordError(span, err)
		return &EmulatorError{Op: "launch player", Err: err}
	}

	start := time.Now()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, ok := c.deps.Processes.FindProcess(playerExeName); ok {
			c.log("bluestacks opened successfully")
			_, err := c.state.TransitionTo(StateLoading)
			telemetry.RecordError(span, err)
			return err
		}
		if time.Since(start) > timeout {
			err := &WaitTimeoutError{Op: "wait for player process", Timeout: timeout}
			telemetry.RecordError(span, err)
			return err
		}
		c.warn("player process not found yet", "attempt", attempt+1, "max_retries", maxRetries)
		time.Sleep(waitInterval)
	}
	err := &WaitTimeoutError{Op: "wait for player process", Timeout: timeout}
	telemetry.RecordError(span, err)
	return err
}

// IsEmulatorLoading captures the screen and searches for the loading
// splash. A detected splash is authoritative: even from closed the
// machine moves to loading, which self-heals when the open sequence
// raced ahead of detection. A missing splash promotes loading to ready
// and leaves closed and ready alone.
func (c *Controller) IsEmulatorLoading() bool {
	_, found := c.elements.LoadingSplash.Where(nil, 2)
	if found {
		if c.state.Current() != StateLoading {
			if _, err := c.state.TransitionTo(StateLoading); err != nil {
				c.warn("loading transition failed", "error", err.Error())
			}
		}
		return true
	}
	switch c.state.Current() {
	case StateLoading:
		if _, err := c.state.TransitionTo(StateReady); err != nil {
			c.warn("ready transition failed", "error", err.Error())
		}
		c.log("bluestacks has finished loading")
	case StateReady:
	case StateClosed:
	}
	return false
}

// waitForLoad blocks until the emulator leaves the loading state. It is
// the loading-state enter handler, so entering loading does not return
// until the emulator is ready.
func (c *Controller) waitForLoad() error {
	c.log("waiting for bluestacks to load")
	for c.state.Current() == StateLoading {
		if c.IsEmulatorLoading() {
			time.Sleep(c.cfg.WaitInterval)
		}
	}
	c.log("bluestacks is loaded and ready")
	return nil
}

// KillEmulator terminates the player process. The transport is
// disconnected first; a disconnect failure aborts the kill rather than
// leaving a half-open socket behind a dead process. No-op when closed.
func (c *Controller) KillEmulator() error {
	span := c.startSpan("bluepyll.KillEmulator")
	defer span.End()

	if c.state.Current() == StateClosed {
		c.log("bluestacks is already closed")
		return nil
	}
	proc, ok := c.deps.Processes.FindProcess(playerExeName)
	if !ok {
		err := &EmulatorError{Op: "kill", Err: notFound("player process")}
		telemetry.RecordError(span, err)
		return err
	}
	if !c.DisconnectADB() {
		err := &ConnError{Op: "disconnect"}
		telemetry.RecordError(span, err)
		return err
	}
	if err := proc.Kill(); err != nil {
		telemetry.RecordError(span, err)
		return &EmulatorError{Op: "kill", Err: err}
	}
	if err := proc.Wait(c.cfg.ProcessWaitTimeout); err != nil {
		telemetry.RecordError(span, err)
		return &EmulatorError{Op: "wait for player exit", Err: err}
	}
	_, err := c.state.TransitionTo(StateClosed)
	telemetry.RecordError(span, err)
	c.log("bluestacks killed")
	return err
}

// OpenApp launches the app and polls until it is observed running or
// the timeout elapses. Safe to call speculatively: anything but a ready
// emulator is a warning and an early return.
func (c *Controller) OpenApp(app *App, timeout, waitInterval time.Duration) error {
	span := c.startSpan("bluepyll.OpenApp", attribute.String("app", app.Name))
	defer span.End()

	if c.state.Current() != StateReady {
		c.warn("cannot open app, bluestacks is not ready", "app", app.Name)
		return nil
	}
	if !c.ConnectADB() {
		c.warn("adb device could not connect, skipping open app", "app", app.Name)
		return nil
	}
	if timeout <= 0 {
		timeout = c.cfg.AppStartTimeout
	}
	if waitInterval <= 0 {
		waitInterval = c.cfg.WaitInterval
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		opts := ShellOptions{Timeout: timeout, ReadTimeout: timeout, TransportTimeout: timeout}
		if _, err := c.deps.Transport.Shell(monkeyLaunchCmd(app.Package), opts); err != nil {
			c.warn("app launch command failed", "app", app.Name, "error", err.Error())
		}
		if c.IsAppRunning(app, 3) {
			if _, err := app.State.TransitionTo(StateLoading); err != nil {
				telemetry.RecordError(span, err)
				return err
			}
			c.running = append(c.running, app)
			c.log("app opened", "app", app.Name, "package", app.Package)
			return nil
		}
		time.Sleep(waitInterval)
	}
	err := &WaitTimeoutError{Op: "open app " + app.Name, Timeout: timeout}
	telemetry.RecordError(span, err)
	c.warn("app did not start in time", "app", app.Name, "timeout", timeout.String())
	return err
}

// CloseApp force-stops the app and polls until it is no longer
// observed running, then moves its state machine to closed and drops it
// from the running-apps list. Same speculative-call semantics as
// OpenApp.
func (c *Controller) CloseApp(app *App, timeout, waitInterval time.Duration) error {
	span := c.startSpan("bluepyll.CloseApp", attribute.String("app", app.Name))
	defer span.End()

	if c.state.Current() != StateReady {
		c.warn("cannot close app, bluestacks is not ready", "app", app.Name)
		return nil
	}
	if !c.ConnectADB() {
		c.warn("adb device could not connect, skipping close app", "app", app.Name)
		return nil
	}
	if timeout <= 0 {
		timeout = c.cfg.AppStartTimeout
	}
	if waitInterval <= 0 {
		waitInterval = c.cfg.WaitInterval
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := c.deps.Transport.Shell(forceStopCmd(app.Package), shellOpts(c.cfg.Timeout)); err != nil {
			c.warn("force-stop command failed", "app", app.Name, "error", err.Error())
		}
		if !c.IsAppRunning(app, 3) {
			if _, err := app.State.TransitionTo(StateClosed); err != nil {
				telemetry.RecordError(span, err)
				return err
			}
			kept := c.running[:0]
			for _, existing := range c.running {
				if !existing.Equal(app) {
					kept = append(kept, existing)
				}
			}
			c.running = kept
			c.log("app closed", "app", app.Name, "package", app.Package)
			return nil
		}
		time.Sleep(waitInterval)
	}
	err := &WaitTimeoutError{Op: "close app " + app.Name, Timeout: timeout}
	telemetry.RecordError(span, err)
	c.warn("app did not close in time", "app", app.Name, "timeout", timeout.String())
	return err
}

// IsAppRunning probes the focused window for the app's package,
// retrying on empty output or shell errors with a fixed backoff.
func (c *Controller) IsAppRunning(app *App, maxRetries int) bool {
	if c.state.Current() != StateReady {
		c.warn("cannot check if app is running, bluestacks is not ready", "app", app.Name)
		return false
	}
	if !c.ConnectADB() {
		c.warn("adb device not connected, skipping running check", "app", app.Name)
		return false
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	for i := 0; i < maxRetries; i++ {
		out, err := c.deps.Transport.Shell(focusProbeCmd(app.Package), shellOpts(c.cfg.AppStartTimeout))
		if err != nil {
			c.warn("focus probe failed", "app", app.Name, "error", err.Error())
			time.Sleep(c.cfg.WaitInterval)
			continue
		}
		if len(strings.TrimSpace(string(out))) > 0 {
			return true
		}
		time.Sleep(c.cfg.WaitInterval)
	}
	return false
}

// ConnectADB establishes the transport connection if needed. Idempotent;
// returns whether a connection is available afterwards.
func (c *Controller) ConnectADB() bool {
	if c.deps.Transport.Available() {
		return true
	}
	if err := c.deps.Transport.Connect(); err != nil {
		c.warn("adb connect failed", "error", err.Error())
	}
	time.Sleep(c.cfg.WaitInterval)
	if c.deps.Transport.Available() {
		c.log("adb device connected")
		return true
	}
	c.warn("adb device could not connect")
	return false
}

// DisconnectADB tears the transport connection down if present.
// Idempotent; returns whether the transport ended up disconnected.
func (c *Controller) DisconnectADB() bool {
	if !c.deps.Transport.Available() {
		return true
	}
	if err := c.deps.Transport.Close(); err != nil {
		c.warn("adb close failed", "error", err.Error())
	}
	time.Sleep(c.cfg.WaitInterval)
	if c.deps.Transport.Available() {
		c.warn("adb device not disconnected")
		return false
	}
	c.log("adb device disconnected")
	return true
}

// readyAction issues one fixed shell command, gated on a ready emulator
// and an established connection. Premature calls warn and return.
func (c *Controller) readyAction(op, command string) {
	if c.state.Current() != StateReady {
		c.warn("cannot " + op + ", bluestacks is not ready")
		return
	}
	if !c.ConnectADB() {
		c.warn("adb device not connected, skipping " + op)
		return
	}
	if _, err := c.deps.Transport.Shell(command, shellOpts(c.cfg.Timeout)); err != nil {
		c.warn(op+" failed", "error", err.Error())
		return
	}
	c.log(op + " sent")
}

// TypeText sends the text through an input-text key injection.
func (c *Controller) TypeText(text string) {
	c.readyAction("type text", fmt.Sprintf(cmdTypeTextFmt, text))
}

// PressEnter sends the enter keyevent.
func (c *Controller) PressEnter() { c.readyAction("press enter", cmdPressEnter) }

// PressEsc sends the back/esc keyevent.
func (c *Controller) PressEsc() { c.readyAction("press esc", cmdPressEsc) }

// GoHome opens the home screen.
func (c *Controller) GoHome() { c.readyAction("go home", cmdGoHome) }

// ShowRecentApps opens the recent-apps drawer.
func (c *Controller) ShowRecentApps() { c.readyAction("show recent apps", cmdRecentApps) }

// CaptureScreenshot grabs the emulator screen over the debug bridge as
// raw PNG bytes, or nil when the emulator is not ready or the capture
// fails.
func (c *Controller) CaptureScreenshot() []byte {
	if c.state.Current() != StateReady {
		c.warn("cannot capture screenshot, bluestacks is not ready")
		return nil
	}
	if !c.ConnectADB() {
		c.warn("adb device could not connect, skipping screenshot")
		return nil
	}
	out, err := c.deps.Transport.Shell(cmdScreencap, shellOpts(c.cfg.Timeout))
	if err != nil {
		c.warn("error capturing screenshot", "error", err.Error())
		return nil
	}
	return out
}

// CaptureLoadingScreen grabs the player window through the OS window
// capturer. Used while the debug bridge is still unreachable.
func (c *Controller) CaptureLoadingScreen() []byte {
	// let the window settle before grabbing it
	time.Sleep(c.cfg.WaitInterval)
	b, err := c.deps.Windows.CaptureWindow(playerWindowTitle)
	if err != nil {
		c.warn("error capturing loading screen", "error", err.Error())
		return nil
	}
	return b
}

func (c *Controller) isLoadingSplash(e *UIElement) bool {
	return e.imagePath != "" && c.elements != nil &&
		e.imagePath == c.elements.LoadingSplash.imagePath
}

// WhereElements returns the first locatable element's center out of the
// candidates, in order.
func (c *Controller) WhereElements(elements []*UIElement, screenshot []byte, maxTries int) (image.Point, bool) {
	for _, e := range elements {
		if pt, ok := e.Where(screenshot, maxTries); ok {
			return pt, true
		}
	}
	return image.Point{}, false
}

// ClickElements clicks the first locatable element out of the
// candidates, in order.
func (c *Controller) ClickElements(elements []*UIElement, screenshot []byte, maxTries int) bool {
	for _, e := range elements {
		if e.Click(1, screenshot, maxTries) {
			return true
		}
	}
	return false
}
