// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"fmt"
	"strings"
)

// App is a lightweight record for an Android app driven through the
// controller. Each app carries its own lifecycle state machine,
// starting closed.
type App struct {
	Name    string
	Package string
	State   *StateMachine
}

// AppKey is the comparable identity of an App: name, package and
// current lifecycle state. Two records with the same name and package
// but divergent states have different keys.
type AppKey struct {
	Name    string
	Package string
	State   State
}

// NewApp creates an App record. Name and package identifier must be
// non-blank; the package identifier is the shell-command key.
func NewApp(name, pkg string) (*App, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &AppError{Reason: "app name must be a non-empty string"}
	}
	if strings.TrimSpace(pkg) == "" {
		return nil, &AppError{Reason: "package name must be a non-empty string"}
	}
	return &App{
		Name:    name,
		Package: pkg,
		State:   NewStateMachine(StateClosed, AppTransitions()),
	}, nil
}

// Key returns the app's hashable identity, including its current state.
func (a *App) Key() AppKey {
	return AppKey{Name: a.Name, Package: a.Package, State: a.State.Current()}
}

// Equal reports whether two records share name, package and current
// lifecycle state.
func (a *App) Equal(other *App) bool {
	if other == nil {
		return false
	}
	return a.Key() == other.Key()
}

func (a *App) String() string {
	return fmt.Sprintf("App(name=%s, package=%s, state=%s)", a.Name, a.Package, a.State.Current())
}
