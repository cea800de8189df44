package realtime

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

type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

type fakeClassifier struct {
	label string
	err   error
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	return f.label, f.err
}

// fakeSandbox accepts mounts and never starts anything.
type fakeSandbox struct {
	mu      sync.Mutex
	mounted bool
}

func (f *fakeSandbox) Mount(ctx context.Context, tree filetree.Tree) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := !f.mounted
	f.mounted = true
	return first, nil
}

func (f *fakeSandbox) Start(ctx context.Context, sink sandbox.OutputSink) error {
	sink(sandbox.StreamInstall, "up to date")
	return nil
}

func (f *fakeSandbox) OnReady(fn func(url string))  {}
func (f *fakeSandbox) OnFailure(fn func(err error)) {}
func (f *fakeSandbox) Phase() sandbox.Phase         { return sandbox.PhaseInstalling }
func (f *fakeSandbox) ReadyURL() string             { return "" }

func (f *fakeSandbox) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = false
}
