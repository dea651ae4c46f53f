// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Default tuning values for the BlueStacks player.
const (
	DefaultIP                 = "127.0.0.1"
	DefaultPort               = 5555
	DefaultRefWidth           = 1920
	DefaultRefHeight          = 1080
	DefaultMaxRetries         = 10
	DefaultWaitInterval       = 1 * time.Second
	DefaultTimeout            = 30 * time.Second
	DefaultProcessWaitTimeout = 10 * time.Second
	DefaultAppStartTimeout    = 60 * time.Second
)

const (
	playerExeName     = "HD-Player.exe"
	playerWindowTitle = "Bluestacks App Player"
)

// Resolution is a window size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Config holds the controller's tunables. DetectConfig populates it
// from BLUEPYLL_* environment variables with the defaults above.
type Config struct {
	IP                 string        `envconfig:"IP" default:"127.0.0.1"`
	Port               int           `envconfig:"PORT" default:"5555"`
	RefWidth           int           `envconfig:"REF_WIDTH" default:"1920"`
	RefHeight          int           `envconfig:"REF_HEIGHT" default:"1080"`
	AssetsDir          string        `envconfig:"ASSETS_DIR" default:"assets"`
	PlayerExe          string        `envconfig:"PLAYER_EXE"`
	SearchRoot         string        `envconfig:"SEARCH_ROOT" default:"C:\\"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" default:"10"`
	WaitInterval       time.Duration `envconfig:"WAIT_INTERVAL" default:"1s"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"30s"`
	ProcessWaitTimeout time.Duration `envconfig:"PROCESS_WAIT_TIMEOUT" default:"10s"`
	AppStartTimeout    time.Duration `envconfig:"APP_START_TIMEOUT" default:"60s"`
	// CorrelationID ties logs and spans to a specific workflow.
	CorrelationID string `envconfig:"CORRELATION_ID"`
	// Context parents OpenTelemetry spans.
	Context context.Context `ignored:"true"`
}

// DetectConfig builds a Config from the environment, falling back to
// defaults for anything unset.
func DetectConfig() Config {
	var cfg Config
	_ = envconfig.Process("bluepyll", &cfg)
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return cfg
}

// playerSearchPaths lists the known BlueStacks install locations, most
// common first. Empty environment roots are dropped.
func playerSearchPaths() []string {
	var paths []string
	for _, root := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)")} {
		if root == "" {
			continue
		}
		paths = append(paths,
			filepath.Join(root, "BlueStacks_nxt", playerExeName),
			filepath.Join(root, "BlueStacks", playerExeName),
		)
	}
	paths = append(paths,
		`C:\Program Files\BlueStacks_nxt\`+playerExeName,
		`C:\Program Files (x86)\BlueStacks_nxt\`+playerExeName,
		`C:\BlueStacks\`+playerExeName,
		`C:\BlueStacks_nxt\`+playerExeName,
	)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(cwd, "BlueStacks_nxt", playerExeName),
			filepath.Join(cwd, "BlueStacks", playerExeName),
		)
	}
	return paths
}
