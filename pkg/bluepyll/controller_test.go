// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes for the external collaborators, shared across the package tests.

type fakeTransport struct {
	connected    bool
	connectErr   error
	closeErr     error
	connectCalls int
	closeCalls   int
	commands     []string
	shell        func(command string, opts ShellOptions) ([]byte, error)
}

func (t *fakeTransport) Connect() error {
	t.connectCalls++
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeCalls++
	if t.closeErr != nil {
		return t.closeErr
	}
	t.connected = false
	return nil
}

func (t *fakeTransport) Available() bool { return t.connected }

func (t *fakeTransport) Shell(command string, opts ShellOptions) ([]byte, error) {
	t.commands = append(t.commands, command)
	if t.shell != nil {
		return t.shell(command, opts)
	}
	return nil, nil
}

type fakeLocator struct {
	box   image.Rectangle
	err   error
	calls int
	fn    func(needle, haystack image.Image, confidence float64, grayscale bool, region *image.Rectangle) (image.Rectangle, error)
}

func (l *fakeLocator) Locate(needle, haystack image.Image, confidence float64, grayscale bool, region *image.Rectangle) (image.Rectangle, error) {
	l.calls++
	if l.fn != nil {
		return l.fn(needle, haystack, confidence, grayscale, region)
	}
	if l.err != nil {
		return image.Rectangle{}, l.err
	}
	return l.box, nil
}

type fakeProcess struct {
	killErr error
	waitErr error
	killed  bool
}

func (p *fakeProcess) Kill() error {
	p.killed = true
	return p.killErr
}

func (p *fakeProcess) Wait(timeout time.Duration) error { return p.waitErr }

type fakeProcesses struct {
	proc      *fakeProcess
	present   bool
	launchErr error
	launched  []string
}

func (f *fakeProcesses) FindProcess(name string) (Process, bool) {
	if !f.present {
		return nil, false
	}
	return f.proc, true
}

func (f *fakeProcesses) Launch(path string, w io.Writer) error {
	f.launched = append(f.launched, path)
	return f.launchErr
}

type fakeWindows struct {
	img []byte
	err error
}

func (f *fakeWindows) CaptureWindow(title string) ([]byte, error) { return f.img, f.err }

type fakeReader struct {
	results []TextResult
	err     error
}

func (r *fakeReader) ReadText(img []byte) ([]TextResult, error) { return r.results, r.err }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		IP:                 DefaultIP,
		Port:               DefaultPort,
		RefWidth:           DefaultRefWidth,
		RefHeight:          DefaultRefHeight,
		AssetsDir:          t.TempDir(),
		SearchRoot:         t.TempDir(),
		MaxRetries:         3,
		WaitInterval:       time.Millisecond,
		Timeout:            100 * time.Millisecond,
		ProcessWaitTimeout: 50 * time.Millisecond,
		AppStartTimeout:    100 * time.Millisecond,
		Context:            context.Background(),
	}
}

func newTestController(t *testing.T, cfg Config, deps Deps) *Controller {
	t.Helper()
	if deps.Transport == nil {
		deps.Transport = &fakeTransport{}
	}
	if deps.Locator == nil {
		deps.Locator = &fakeLocator{err: notFound("no match")}
	}
	if deps.Processes == nil {
		deps.Processes = &fakeProcesses{}
	}
	if deps.Windows == nil {
		deps.Windows = &fakeWindows{}
	}
	c, err := NewController(cfg, deps)
	require.NoError(t, err)
	return c
}

func writePlayerExe(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "BlueStacks_nxt")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, playerExeName)
	require.NoError(t, os.WriteFile(path, []byte("exe"), 0o755))
	return path
}

func TestNewControllerValidatesDeps(t *testing.T) {
	cfg := testConfig(t)
	cases := []struct {
		name string
		deps Deps
	}{
		{"transport", Deps{Locator: &fakeLocator{}, Processes: &fakeProcesses{}, Windows: &fakeWindows{}}},
		{"locator", Deps{Transport: &fakeTransport{}, Processes: &fakeProcesses{}, Windows: &fakeWindows{}}},
		{"processes", Deps{Transport: &fakeTransport{}, Locator: &fakeLocator{}, Windows: &fakeWindows{}}},
		{"windows", Deps{Transport: &fakeTransport{}, Locator: &fakeLocator{}, Processes: &fakeProcesses{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewController(cfg, tc.deps)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestNewControllerAppliesDefaults(t *testing.T) {
	c := newTestController(t, Config{
		AssetsDir:  t.TempDir(),
		SearchRoot: t.TempDir(),
	}, Deps{})
	assert.Equal(t, Resolution{Width: DefaultRefWidth, Height: DefaultRefHeight}, c.RefWindowSize())
	assert.Equal(t, DefaultWaitInterval, c.cfg.WaitInterval)
	assert.Equal(t, DefaultMaxRetries, c.cfg.MaxRetries)
	assert.Equal(t, StateClosed, c.EmulatorState())
}

func TestNewControllerAutodetectsPlayerExe(t *testing.T) {
	cfg := testConfig(t)
	path := writePlayerExe(t, cfg.SearchRoot)
	c := newTestController(t, cfg, Deps{})
	assert.Equal(t, path, c.Filepath())
}

func TestSetFilepathRejectsMissing(t *testing.T) {
	c := newTestController(t, testConfig(t), Deps{})
	err := c.SetFilepath(filepath.Join(t.TempDir(), "nope.exe"))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "filepath", vErr.Field)
}

func TestSetRefWindowSizeValidation(t *testing.T) {
	c := newTestController(t, testConfig(t), Deps{})
	require.Error(t, c.SetRefWindowSize(0, 1080))
	require.Error(t, c.SetRefWindowSize(1920, -1))
	require.NoError(t, c.SetRefWindowSize(1280, 720))
	assert.Equal(t, Resolution{Width: 1280, Height: 720}, c.RefWindowSize())
}

func TestOpenEmulatorBootsToReady(t *testing.T) {
	cfg := testConfig(t)
	writePlayerExe(t, cfg.SearchRoot)
	tr := &fakeTransport{}
	procs := &fakeProcesses{present: true, proc: &fakeProcess{}}
	c := newTestController(t, cfg, Deps{Transport: tr, Processes: procs})

	err := c.OpenEmulator(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.EmulatorState())
	assert.Len(t, procs.launched, 1)
	assert.True(t, tr.Available(), "transport connects once the emulator is ready")
}

func TestOpenEmulatorNoopWhenAlreadyOpen(t *testing.T) {
	procs := &fakeProcesses{present: true, proc: &fakeProcess{}}
	c := newTestController(t, testConfig(t), Deps{Processes: procs})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)

	require.NoError(t, c.OpenEmulator(0, 0, 0))
	assert.Empty(t, procs.launched)
}

func TestOpenEmulatorTimesOut(t *testing.T) {
	cfg := testConfig(t)
	writePlayerExe(t, cfg.SearchRoot)
	procs := &fakeProcesses{present: false}
	c := newTestController(t, cfg, Deps{Processes: procs})

	err := c.OpenEmulator(2, time.Millisecond, time.Minute)
	var wErr *WaitTimeoutError
	require.ErrorAs(t, err, &wErr)
	assert.True(t, errdefs.IsDeadlineExceeded(err))
	assert.Equal(t, StateClosed, c.EmulatorState())
}

func TestOpenEmulatorFailsWithoutPlayerExe(t *testing.T) {
	c := newTestController(t, testConfig(t), Deps{})
	require.Empty(t, c.Filepath())

	err := c.OpenEmulator(0, 0, 0)
	var eErr *EmulatorError
	require.ErrorAs(t, err, &eErr)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestOpenEmulatorLaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	writePlayerExe(t, cfg.SearchRoot)
	procs := &fakeProcesses{launchErr: errors.New("access denied")}
	c := newTestController(t, cfg, Deps{Processes: procs})

	err := c.OpenEmulator(0, 0, 0)
	var eErr *EmulatorError
	require.ErrorAs(t, err, &eErr)
	assert.Equal(t, "launch player", eErr.Op)
}

func TestIsEmulatorLoadingPromotesToReadyWhenSplashGone(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{
		Transport: tr,
		Locator:   &fakeLocator{err: notFound("no match")},
		Windows:   &fakeWindows{err: errors.New("window not found")},
	})

	// entering loading blocks through the boot wait, which promotes to
	// ready as soon as the splash cannot be located
	_, err := c.state.Force(StateLoading)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.EmulatorState())
	assert.True(t, tr.Available())
}

func TestIsEmulatorLoadingClosedStaysClosed(t *testing.T) {
	c := newTestController(t, testConfig(t), Deps{})
	assert.False(t, c.IsEmulatorLoading())
	assert.Equal(t, StateClosed, c.EmulatorState())
}

func TestKillEmulatorClosedNoop(t *testing.T) {
	procs := &fakeProcesses{present: true, proc: &fakeProcess{}}
	c := newTestController(t, testConfig(t), Deps{Processes: procs})
	require.NoError(t, c.KillEmulator())
	assert.False(t, procs.proc.killed)
}

func TestKillEmulator(t *testing.T) {
	tr := &fakeTransport{}
	proc := &fakeProcess{}
	procs := &fakeProcesses{present: true, proc: proc}
	c := newTestController(t, testConfig(t), Deps{Transport: tr, Processes: procs})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	require.True(t, tr.Available())

	require.NoError(t, c.KillEmulator())
	assert.True(t, proc.killed)
	assert.False(t, tr.Available())
	assert.Equal(t, StateClosed, c.EmulatorState())
}

func TestKillEmulatorAbortsWhenDisconnectFails(t *testing.T) {
	tr := &fakeTransport{closeErr: errors.New("stuck")}
	proc := &fakeProcess{}
	procs := &fakeProcesses{present: true, proc: proc}
	c := newTestController(t, testConfig(t), Deps{Transport: tr, Processes: procs})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)

	err = c.KillEmulator()
	var cErr *ConnError
	require.ErrorAs(t, err, &cErr)
	assert.True(t, errdefs.IsUnavailable(err))
	assert.False(t, proc.killed, "kill must not proceed behind a live connection")
	assert.Equal(t, StateReady, c.EmulatorState())
}

func TestKillEmulatorMissingProcess(t *testing.T) {
	c := newTestController(t, testConfig(t), Deps{Processes: &fakeProcesses{present: false}})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)

	err = c.KillEmulator()
	var eErr *EmulatorError
	require.ErrorAs(t, err, &eErr)
	assert.True(t, errdefs.IsNotFound(err))
}

func appProbeTransport(runningOutput string) *fakeTransport {
	tr := &fakeTransport{}
	tr.shell = func(command string, opts ShellOptions) ([]byte, error) {
		if strings.Contains(command, "mCurrentFocus") {
			return []byte(runningOutput), nil
		}
		return nil, nil
	}
	return tr
}

func TestOpenAppWarnsWhenNotReady(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	app, err := NewApp("Some Game", "com.example.app")
	require.NoError(t, err)

	require.NoError(t, c.OpenApp(app, 0, 0))
	assert.Empty(t, tr.commands, "no shell traffic before the emulator is ready")
	assert.Equal(t, StateClosed, app.State.Current())
}

func TestOpenAppLaunchesAndTracks(t *testing.T) {
	tr := appProbeTransport("mCurrentFocus=Window{abc u0 com.example.app/.MainActivity}")
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	app, err := NewApp("Some Game", "com.example.app")
	require.NoError(t, err)

	require.NoError(t, c.OpenApp(app, 0, 0))
	assert.Equal(t, StateLoading, app.State.Current())
	assert.Len(t, c.RunningApps(), 1)
	assert.Contains(t, tr.commands, "monkey -p com.example.app -v 1")
}

func TestOpenAppTimesOut(t *testing.T) {
	tr := appProbeTransport("")
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	app, err := NewApp("Some Game", "com.example.app")
	require.NoError(t, err)

	err = c.OpenApp(app, 30*time.Millisecond, time.Millisecond)
	var wErr *WaitTimeoutError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, StateClosed, app.State.Current())
	assert.Empty(t, c.RunningApps())
}

func TestCloseApp(t *testing.T) {
	tr := appProbeTransport("")
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	app, err := NewApp("Some Game", "com.example.app")
	require.NoError(t, err)
	_, err = app.State.Force(StateLoading)
	require.NoError(t, err)
	c.running = append(c.running, app)

	require.NoError(t, c.CloseApp(app, 0, 0))
	assert.Equal(t, StateClosed, app.State.Current())
	assert.Empty(t, c.RunningApps())
	assert.Contains(t, tr.commands, "am force-stop com.example.app")
}

func TestIsAppRunningRetriesOnProbeError(t *testing.T) {
	attempts := 0
	tr := &fakeTransport{}
	tr.shell = func(command string, opts ShellOptions) ([]byte, error) {
		if !strings.Contains(command, "mCurrentFocus") {
			return nil, nil
		}
		attempts++
		if attempts < 3 {
			return nil, errors.New("device busy")
		}
		return []byte("mCurrentFocus=Window{abc u0 com.example.app/.MainActivity}"), nil
	}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	app, err := NewApp("Some Game", "com.example.app")
	require.NoError(t, err)

	assert.True(t, c.IsAppRunning(app, 3))
	assert.Equal(t, 3, attempts)
}

func TestConnectADBIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})

	assert.True(t, c.ConnectADB())
	assert.True(t, c.ConnectADB())
	assert.Equal(t, 1, tr.connectCalls)
}

func TestConnectADBFailure(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("refused")}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	assert.False(t, c.ConnectADB())
}

func TestDisconnectADBIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})

	assert.True(t, c.DisconnectADB())
	assert.Equal(t, 0, tr.closeCalls)

	require.True(t, c.ConnectADB())
	assert.True(t, c.DisconnectADB())
	assert.Equal(t, 1, tr.closeCalls)
}

func TestInputActionsRequireReady(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})

	c.TypeText("hello")
	c.PressEnter()
	c.PressEsc()
	c.GoHome()
	c.ShowRecentApps()
	assert.Empty(t, tr.commands)
}

func TestInputActionsSendExactCommands(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})
	_, err := c.state.Force(StateReady)
	require.NoError(t, err)

	c.TypeText("hello")
	c.PressEnter()
	c.PressEsc()
	c.GoHome()
	c.ShowRecentApps()

	assert.Equal(t, []string{
		"input text hello",
		"input keyevent 66",
		"input keyevent 4",
		"input keyevent 3",
		"input keyevent KEYCODE_APP_SWITCH",
	}, tr.commands)
}

func TestCaptureScreenshot(t *testing.T) {
	want := []byte{0x89, 'P', 'N', 'G'}
	tr := &fakeTransport{}
	tr.shell = func(command string, opts ShellOptions) ([]byte, error) {
		if command == "screencap -p" {
			return want, nil
		}
		return nil, nil
	}
	c := newTestController(t, testConfig(t), Deps{Transport: tr})

	assert.Nil(t, c.CaptureScreenshot(), "no screenshot before the emulator is ready")

	_, err := c.state.Force(StateReady)
	require.NoError(t, err)
	assert.Equal(t, want, c.CaptureScreenshot())
}

func TestCaptureLoadingScreen(t *testing.T) {
	want := []byte("window-png")
	c := newTestController(t, testConfig(t), Deps{Windows: &fakeWindows{img: want}})
	assert.Equal(t, want, c.CaptureLoadingScreen())

	failing := newTestController(t, testConfig(t), Deps{Windows: &fakeWindows{err: errors.New("no window")}})
	assert.Nil(t, failing.CaptureLoadingScreen())
}
