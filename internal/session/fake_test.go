package session

import (
	"context"
	"errors"
	"sync"

	"boltforge/internal/filetree"
	"boltforge/internal/llm"
	"boltforge/internal/sandbox"
)

const todoReply = `Here is your app.
<boltArtifact id="todo" title="Todo App">
<boltAction type="file" filePath="package.json">{"name":"todo"}</boltAction>
<boltAction type="file" filePath="src/App.tsx">export default function App() {}</boltAction>
<boltAction type="shell">npm run dev</boltAction>
</boltArtifact>`

const darkModeReply = `<boltArtifact id="todo" title="Dark mode">
<boltAction type="file" filePath="src/App.tsx">export default function App() { return "dark" }</boltAction>
</boltArtifact>`

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]llm.Message
	replies []string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), msgs...))
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClassifier struct {
	mu    sync.Mutex
	label string
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.label, f.err
}

type fakeSandbox struct {
	mu        sync.Mutex
	mounts    []filetree.Tree
	mountErr  error
	mounted   bool
	started   chan struct{}
	resets    int
	phase     sandbox.Phase
	url       string
	onReady   []func(string)
	onFailure []func(error)
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{started: make(chan struct{}, 4), phase: sandbox.PhaseIdle}
}

func (f *fakeSandbox) Mount(ctx context.Context, tree filetree.Tree) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mountErr != nil {
		return false, f.mountErr
	}
	f.mounts = append(f.mounts, tree)
	first := !f.mounted
	f.mounted = true
	return first, nil
}

func (f *fakeSandbox) Start(ctx context.Context, sink sandbox.OutputSink) error {
	f.mu.Lock()
	f.phase = sandbox.PhaseInstalling
	f.mu.Unlock()
	sink(sandbox.StreamInstall, "added 1 package")
	f.started <- struct{}{}
	return nil
}

func (f *fakeSandbox) OnReady(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReady = append(f.onReady, fn)
}

func (f *fakeSandbox) OnFailure(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFailure = append(f.onFailure, fn)
}

func (f *fakeSandbox) Phase() sandbox.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeSandbox) ReadyURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeSandbox) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.mounted = false
	f.phase = sandbox.PhaseIdle
	f.url = ""
	f.onReady = nil
	f.onFailure = nil
}

func (f *fakeSandbox) ready(url string) {
	f.mu.Lock()
	f.phase = sandbox.PhaseReady
	f.url = url
	fns := append([]func(string){}, f.onReady...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(url)
	}
}

func (f *fakeSandbox) fail(err error) {
	f.mu.Lock()
	f.phase = sandbox.PhaseFailed
	fns := append([]func(error){}, f.onFailure...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (f *fakeSandbox) mountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mounts)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
