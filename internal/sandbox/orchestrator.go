package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"boltforge/internal/filetree"
)

// Phase is the lifecycle phase of the sandboxed project.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInstalling Phase = "installing"
	PhaseStarting   Phase = "starting"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
)

// Output stream names passed to an OutputSink.
const (
	StreamInstall = "install"
	StreamDev     = "dev"
)

var errSuperseded = errors.New("sandbox start superseded by reset")

// Command is a program and its arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a command line on whitespace. No quoting is supported.
func ParseCommand(s string) Command {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: fields[0], Args: fields[1:]}
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// OutputSink receives process output lines tagged with their stream.
type OutputSink func(stream, line string)

// InstallError reports a dependency install that exited nonzero.
type InstallError struct {
	Code int
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("dependency install exited with code %d", e.Code)
}

func (e *InstallError) Unwrap() error { return ErrInstallFailed }

// Orchestrator mounts the project into the shared sandbox and drives the
// install and dev server processes. Mount calls must be serialised by the
// caller.
type Orchestrator struct {
	reg     *Registry
	install Command
	dev     Command

	mu        sync.Mutex
	gen       int
	phase     Phase
	mounted   bool
	started   bool
	url       string
	err       error
	proc      Process
	removeFn  func()
	settled   chan struct{}
	onReady   []func(url string)
	onFailure []func(err error)
}

// NewOrchestrator creates an orchestrator over reg.
func NewOrchestrator(reg *Registry, install, dev Command) *Orchestrator {
	return &Orchestrator{
		reg:     reg,
		install: install,
		dev:     dev,
		phase:   PhaseIdle,
		settled: make(chan struct{}),
	}
}

// Mount acquires the sandbox and mounts the whole tree. first is true for the
// first successful mount since construction or the last Reset.
func (o *Orchestrator) Mount(ctx context.Context, tree filetree.Tree) (first bool, err error) {
	h, err := o.reg.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if err := h.Mount(ctx, ToMountTree(tree)); err != nil {
		return false, fmt.Errorf("mount project: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	first = !o.mounted
	o.mounted = true
	return first, nil
}

// Start installs dependencies and launches the dev server. It returns once
// the dev server has been spawned; readiness is reported through OnReady and
// WaitReady. A failed install is final: the dev server is never spawned and
// nothing is retried.
func (o *Orchestrator) Start(ctx context.Context, sink OutputSink) error {
	o.mu.Lock()
	if !o.mounted {
		o.mu.Unlock()
		return ErrNotMounted
	}
	if o.started {
		o.mu.Unlock()
		return ErrStarted
	}
	o.started = true
	o.phase = PhaseInstalling
	gen := o.gen
	o.mu.Unlock()

	if sink == nil {
		sink = func(string, string) {}
	}

	h, err := o.reg.Acquire(ctx)
	if err != nil {
		o.fail(gen, err)
		return err
	}

	log.Printf("sandbox: running %s", o.install)
	proc, err := h.Spawn(ctx, o.install.Name, o.install.Args...)
	if err != nil {
		err = fmt.Errorf("spawn install: %w", err)
		o.fail(gen, err)
		return err
	}
	if !o.track(gen, proc) {
		proc.Kill()
		return errSuperseded
	}

	for line := range proc.Output() {
		sink(StreamInstall, line)
	}
	code, err := proc.Wait()
	if err != nil {
		err = fmt.Errorf("wait for install: %w", err)
		o.fail(gen, err)
		return err
	}
	if code != 0 {
		err := &InstallError{Code: code}
		o.fail(gen, err)
		return err
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return errSuperseded
	}
	o.phase = PhaseStarting
	o.removeFn = h.OnServerReady(func(port int, url string) {
		o.markReady(gen, url)
	})
	o.mu.Unlock()

	log.Printf("sandbox: running %s", o.dev)
	devProc, err := h.Spawn(ctx, o.dev.Name, o.dev.Args...)
	if err != nil {
		o.mu.Lock()
		if o.gen == gen && o.removeFn != nil {
			o.removeFn()
			o.removeFn = nil
		}
		o.mu.Unlock()
		err = fmt.Errorf("spawn dev server: %w", err)
		o.fail(gen, err)
		return err
	}
	if !o.track(gen, devProc) {
		devProc.Kill()
		return errSuperseded
	}

	go func() {
		for line := range devProc.Output() {
			sink(StreamDev, line)
		}
		code, err := devProc.Wait()
		if err == nil {
			err = fmt.Errorf("dev server exited with code %d", code)
		}
		o.fail(gen, err)
	}()

	// The server may already have announced itself before the listener was
	// registered.
	if url := h.URL(); url != "" {
		o.markReady(gen, url)
	}
	return nil
}

func (o *Orchestrator) track(gen int, p Process) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	o.proc = p
	return true
}

// markReady records the preview URL. Only the first call per start has an
// effect.
func (o *Orchestrator) markReady(gen int, url string) {
	o.mu.Lock()
	if o.gen != gen || o.phase == PhaseReady || o.phase == PhaseFailed {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseReady
	o.url = url
	close(o.settled)
	fns := append([]func(string){}, o.onReady...)
	o.mu.Unlock()

	log.Printf("sandbox: dev server ready at %s", url)
	for _, fn := range fns {
		fn(url)
	}
}

func (o *Orchestrator) fail(gen int, err error) {
	o.mu.Lock()
	if o.gen != gen || o.phase == PhaseFailed {
		o.mu.Unlock()
		return
	}
	wasReady := o.phase == PhaseReady
	o.phase = PhaseFailed
	o.url = ""
	o.err = err
	if !wasReady {
		close(o.settled)
	}
	fns := append([]func(error){}, o.onFailure...)
	o.mu.Unlock()

	log.Printf("sandbox: %v", err)
	for _, fn := range fns {
		fn(err)
	}
}

// OnReady registers fn to receive the preview URL. fn runs immediately when
// the server is already ready.
func (o *Orchestrator) OnReady(fn func(url string)) {
	o.mu.Lock()
	if o.phase == PhaseReady {
		url := o.url
		o.mu.Unlock()
		fn(url)
		return
	}
	o.onReady = append(o.onReady, fn)
	o.mu.Unlock()
}

// OnFailure registers fn to receive install, spawn and dev server failures.
func (o *Orchestrator) OnFailure(fn func(err error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onFailure = append(o.onFailure, fn)
}

// WaitReady blocks until the dev server is ready or the start failed.
func (o *Orchestrator) WaitReady(ctx context.Context) (string, error) {
	o.mu.Lock()
	settled := o.settled
	o.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-settled:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	return o.url, nil
}

// Phase reports the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// ReadyURL returns the preview URL, or "" before readiness.
func (o *Orchestrator) ReadyURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.url
}

// Err returns the failure that ended the last start, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Reset forgets the current project so the next Mount counts as the first.
// Running processes are killed and registered callbacks are dropped; the
// sandbox handle itself is kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.gen++
	o.phase = PhaseIdle
	o.mounted = false
	o.started = false
	o.url = ""
	o.err = nil
	o.onReady = nil
	o.onFailure = nil
	o.settled = make(chan struct{})
	proc := o.proc
	o.proc = nil
	remove := o.removeFn
	o.removeFn = nil
	o.mu.Unlock()

	if remove != nil {
		remove()
	}
	if proc != nil {
		proc.Kill()
	}
}
