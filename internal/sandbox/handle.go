// Package sandbox owns the single execution environment that runs the
// generated project: acquisition, mounting the tree, and the install/dev
// process lifecycle with readiness detection.
package sandbox

import (
	"context"
	"errors"
)

var (
	ErrNotIsolated   = errors.New("sandbox host is not isolated")
	ErrInstallFailed = errors.New("dependency install failed")
	ErrNotMounted    = errors.New("sandbox has no mounted project")
	ErrStarted       = errors.New("sandbox processes already started")
)

// Handle is a booted sandbox.
type Handle interface {
	// Mount loads tree into the sandbox filesystem, replacing the content of
	// overlapping paths.
	Mount(ctx context.Context, tree MountTree) error
	// Spawn starts a process inside the sandbox. ctx only bounds the start.
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
	// OnServerReady registers fn for server-ready notifications and returns
	// a function that removes it.
	OnServerReady(fn func(port int, url string)) (remove func())
	// URL returns the address of a server that is already listening, or "".
	URL() string
	// WorkDir is where the tree is mounted.
	WorkDir() string
}

// Process is a process running in the sandbox.
type Process interface {
	// Output delivers combined stdout/stderr lines and is closed when the
	// process output ends.
	Output() <-chan string
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	Kill()
}
