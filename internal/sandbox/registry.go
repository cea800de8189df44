package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SlotState describes the registry's single slot.
type SlotState string

const (
	SlotEmpty   SlotState = "empty"
	SlotBooting SlotState = "booting"
	SlotReady   SlotState = "ready"
)

// BootFunc boots a new sandbox.
type BootFunc func(ctx context.Context) (Handle, error)

// IsolationCheck returns an error when the host cannot run a sandbox.
type IsolationCheck func() error

// Registry holds the one sandbox handle of the process. Acquire is its only
// mutator.
type Registry struct {
	boot  BootFunc
	check IsolationCheck

	mu     sync.Mutex
	state  SlotState
	handle Handle

	// sf coalesces concurrent boots so every caller gets the same handle.
	sf singleflight.Group
}

// NewRegistry creates a registry. check may be nil.
func NewRegistry(boot BootFunc, check IsolationCheck) *Registry {
	return &Registry{
		boot:  boot,
		check: check,
		state: SlotEmpty,
	}
}

// Acquire returns the sandbox handle, booting it on first use. Concurrent
// callers share a single boot. A failed boot empties the slot again; nothing
// is retried automatically.
func (r *Registry) Acquire(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	if r.state == SlotReady {
		h := r.handle
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	if r.check != nil {
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotIsolated, err)
		}
	}

	v, err, _ := r.sf.Do("boot", func() (interface{}, error) {
		r.mu.Lock()
		if r.state == SlotReady {
			h := r.handle
			r.mu.Unlock()
			return h, nil
		}
		r.state = SlotBooting
		r.mu.Unlock()

		// The boot is shared, so one caller's cancellation must not abort it.
		h, err := r.boot(context.WithoutCancel(ctx))

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.state = SlotEmpty
			return nil, err
		}
		r.handle = h
		r.state = SlotReady
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("boot sandbox: %w", err)
	}
	return v.(Handle), nil
}

// State reports the slot state.
func (r *Registry) State() SlotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// DirIsolation requires root to be a dedicated directory: absolute, not the
// filesystem root, not the user's home, and not containing the server's
// working directory.
func DirIsolation(root string) IsolationCheck {
	return func() error {
		if root == "" {
			return fmt.Errorf("sandbox root is not configured")
		}
		if !filepath.IsAbs(root) {
			return fmt.Errorf("sandbox root %q must be absolute", root)
		}
		clean := filepath.Clean(root)
		if clean == string(filepath.Separator) || filepath.VolumeName(clean)+string(filepath.Separator) == clean {
			return fmt.Errorf("sandbox root cannot be the filesystem root")
		}
		if home, err := os.UserHomeDir(); err == nil && filepath.Clean(home) == clean {
			return fmt.Errorf("sandbox root cannot be the home directory")
		}
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(clean, cwd); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return fmt.Errorf("sandbox root %s contains the server working directory", clean)
			}
		}
		return nil
	}
}
