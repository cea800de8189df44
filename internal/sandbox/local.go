package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	defaultScannerBufSize  = 1024 * 1024 // 1 MB
	defaultOutputBufCap    = 256
	defaultGracefulTimeout = 5 * time.Second
	defaultDrainTimeout    = 2 * time.Second
)

var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	readyURLRe = regexp.MustCompile(`https?://(localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):(\d+)[^\s]*`)
)

// LocalConfig configures a directory-backed sandbox.
type LocalConfig struct {
	// Root is the directory the project is mounted into.
	Root string
	// Env is appended to the server's environment for spawned processes.
	Env []string
}

// Local is a sandbox backed by a host directory. Processes run with the
// directory as working directory; a server counts as ready once a process
// prints a local URL.
type Local struct {
	root string
	env  []string

	mu        sync.Mutex
	url       string
	urlOwner  string
	listeners map[int]func(port int, url string)
	nextID    int
	procs     map[string]*localProcess
}

// Boot prepares the root directory and returns a ready sandbox.
func Boot(ctx context.Context, cfg LocalConfig) (*Local, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}

	return &Local{
		root:      root,
		env:       cfg.Env,
		listeners: make(map[int]func(int, string)),
		procs:     make(map[string]*localProcess),
	}, nil
}

// WorkDir returns the sandbox root.
func (l *Local) WorkDir() string {
	return l.root
}

// Mount writes tree under the sandbox root.
func (l *Local) Mount(ctx context.Context, tree MountTree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeMount(l.root, tree)
}

// URL returns the URL announced by a running process, or "".
func (l *Local) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// OnServerReady registers fn to be called when a process announces a URL.
func (l *Local) OnServerReady(fn func(port int, url string)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

type localProcess struct {
	id     string
	local  *Local
	cmd    *exec.Cmd
	cancel context.CancelFunc
	output chan string
	done   chan struct{}

	code int
	err  error
}

func (p *localProcess) Output() <-chan string { return p.output }

func (p *localProcess) Wait() (int, error) {
	<-p.done
	return p.code, p.err
}

// Kill terminates the process group and force-kills it after a grace
// period. A URL announced by the process is released immediately.
func (p *localProcess) Kill() {
	p.local.releaseURL(p.id)

	select {
	case <-p.done:
		return
	default:
	}
	signalGroup(p.cmd, syscall.SIGTERM)
	go func() {
		select {
		case <-p.done:
		case <-time.After(defaultGracefulTimeout):
			p.cancel()
		}
	}()
}

// signalGroup sends sig to every process in the group led by cmd.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Spawn starts name with args in the sandbox root. The process is not tied to
// ctx and keeps running after the caller stops listening. It leads its own
// process group, so children it starts are stopped together with it.
func (l *Local) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binaryPath, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH", name)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, binaryPath, args...)
	cmd.Dir = l.root
	cmd.Env = append(os.Environ(), l.env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGKILL)
	}

	// Both streams share one pipe the process writes to directly, so Wait
	// returns as soon as the process exits even if a child still holds it.
	outR, outW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	p := &localProcess{
		id:     uuid.New().String(),
		local:  l,
		cmd:    cmd,
		cancel: cancel,
		output: make(chan string, defaultOutputBufCap),
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		cancel()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	outW.Close()

	l.mu.Lock()
	l.procs[p.id] = p
	l.mu.Unlock()

	scanned := make(chan struct{})
	go l.scanOutput(p, outR, scanned)
	go l.waitForExit(p, outR, scanned)

	return p, nil
}

// scanOutput forwards lines to the process output and watches for a
// listening server. Lines are dropped when nobody drains the output.
func (l *Local) scanOutput(p *localProcess, pipe io.Reader, scanned chan<- struct{}) {
	defer close(scanned)

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, defaultScannerBufSize), defaultScannerBufSize)

	for scanner.Scan() {
		line := scanner.Text()
		l.detectServer(p, line)

		select {
		case p.output <- line:
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("sandbox process %s: scanner error: %v", p.id, err)
		// Keep the writer from blocking on a full pipe.
		io.Copy(io.Discard, pipe)
	}
}

func (l *Local) detectServer(p *localProcess, line string) {
	m := readyURLRe.FindStringSubmatch(ansiRe.ReplaceAllString(line, ""))
	if m == nil {
		return
	}
	port, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	url := strings.Replace(m[0], "0.0.0.0", "localhost", 1)

	l.mu.Lock()
	if l.url != "" {
		l.mu.Unlock()
		return
	}
	l.url = url
	l.urlOwner = p.id
	fns := make([]func(int, string), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(port, url)
	}
}

func (l *Local) releaseURL(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.urlOwner == owner {
		l.url = ""
		l.urlOwner = ""
	}
}

// waitForExit records the exit code, stops whatever the process left running
// in its group and closes the output once it is drained. A process that
// announced the server URL takes it with it.
func (l *Local) waitForExit(p *localProcess, pipe *os.File, scanned <-chan struct{}) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		p.code = exitErr.ExitCode()
	default:
		p.code = -1
		p.err = err
	}

	if err := signalGroup(p.cmd, syscall.SIGKILL); err != nil {
		log.Printf("sandbox process %s: kill group: %v", p.id, err)
	}
	select {
	case <-scanned:
	case <-time.After(defaultDrainTimeout):
		// A descendant that left the group still holds the pipe.
		pipe.Close()
		<-scanned
	}
	pipe.Close()
	close(p.output)
	p.cancel()

	l.mu.Lock()
	delete(l.procs, p.id)
	l.mu.Unlock()
	l.releaseURL(p.id)

	close(p.done)
}

// Shutdown kills every running process. It is only used when the server
// itself exits.
func (l *Local) Shutdown() {
	l.mu.Lock()
	procs := make([]*localProcess, 0, len(l.procs))
	for _, p := range l.procs {
		procs = append(procs, p)
	}
	l.mu.Unlock()

	for _, p := range procs {
		p.Kill()
	}
	for _, p := range procs {
		p.Wait()
	}
}
