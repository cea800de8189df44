package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type fakeProcess struct {
	output chan string
	code   int
	exit   chan struct{}
	once   sync.Once
	killed bool
	mu     sync.Mutex
}

// newFakeProcess returns a process that has already printed lines. When
// running is false it has also exited with code.
func newFakeProcess(code int, running bool, lines ...string) *fakeProcess {
	p := &fakeProcess{
		output: make(chan string, len(lines)),
		code:   code,
		exit:   make(chan struct{}),
	}
	for _, l := range lines {
		p.output <- l
	}
	if !running {
		p.finish()
	}
	return p
}

func (p *fakeProcess) finish() {
	p.once.Do(func() {
		close(p.output)
		close(p.exit)
	})
}

func (p *fakeProcess) Output() <-chan string { return p.output }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exit
	return p.code, nil
}

func (p *fakeProcess) Kill() {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish()
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeHandle struct {
	mu        sync.Mutex
	procs     map[string]*fakeProcess
	spawned   []string
	mounts    []MountTree
	url       string
	listeners map[int]func(int, string)
	nextID    int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		procs:     make(map[string]*fakeProcess),
		listeners: make(map[int]func(int, string)),
	}
}

func (h *fakeHandle) Mount(ctx context.Context, tree MountTree) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mounts = append(h.mounts, tree)
	return nil
}

func (h *fakeHandle) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")

	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned = append(h.spawned, cmd)
	p, ok := h.procs[cmd]
	if !ok {
		return nil, fmt.Errorf("%s not found in PATH", name)
	}
	return p, nil
}

func (h *fakeHandle) OnServerReady(fn func(port int, url string)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *fakeHandle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

func (h *fakeHandle) WorkDir() string { return "/sandbox" }

func (h *fakeHandle) announce(port int, url string) {
	h.mu.Lock()
	h.url = url
	var fns []func(int, string)
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(port, url)
	}
}

func (h *fakeHandle) spawnedCommands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.spawned...)
}

func (h *fakeHandle) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
