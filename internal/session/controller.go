package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"boltforge/internal/artifact"
	"boltforge/internal/filetree"
	"boltforge/internal/llm"
	"boltforge/internal/protocol"
	"boltforge/internal/sandbox"
	"boltforge/internal/steps"
)

const maxLabelLen = 48

// Controller drives one build conversation: it asks the model for artifacts,
// folds them into the step log and file tree, and keeps the sandbox mounted.
type Controller struct {
	id        string
	createdAt time.Time

	completer  llm.Completer
	classifier llm.Classifier
	sandbox    Sandbox
	publish    func(Event)

	// turn serialises Start, Send and HandleReply so merges and mounts
	// happen one at a time.
	turn sync.Mutex

	mu         sync.RWMutex
	label      string
	prompt     string
	state      State
	history    []llm.Message
	queue      *steps.Queue
	tree       filetree.Tree
	selected   string
	lastErr    error
	terminated bool
}

// NewController creates a controller in the idle state. publish receives
// every event the session emits and must not block.
func NewController(id, label string, completer llm.Completer, classifier llm.Classifier, sb Sandbox, publish func(Event)) *Controller {
	if publish == nil {
		publish = func(Event) {}
	}
	c := &Controller{
		id:         id,
		createdAt:  time.Now().UTC(),
		completer:  completer,
		classifier: classifier,
		sandbox:    sb,
		publish:    publish,
		label:      label,
		state:      StateIdle,
		queue:      steps.NewQueue(),
	}
	sb.OnReady(c.sandboxReady)
	sb.OnFailure(c.sandboxFailed)
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Start begins the build from the user's first prompt: classify, pick the
// template, ask for the first artifact and apply it. On failure the session
// stays awaiting its first artifact and Start may be called again.
func (c *Controller) Start(ctx context.Context, prompt string) error {
	c.turn.Lock()
	defer c.turn.Unlock()

	c.mu.Lock()
	switch {
	case c.terminated:
		c.mu.Unlock()
		return ErrTerminated
	case c.state != StateIdle && c.state != StateAwaiting:
		c.mu.Unlock()
		return fmt.Errorf("%w: start in %s", ErrInvalidState, c.state)
	}
	c.state = StateAwaiting
	c.prompt = prompt
	c.lastErr = nil
	if c.label == "" {
		c.label = labelFromPrompt(prompt)
	}
	c.mu.Unlock()
	c.emitSession()
	c.emit(protocol.TypeChatMessage, protocol.ChatMessagePayload{SessionID: c.id, Role: string(llm.RoleUser), Content: prompt})

	label, err := c.classifier.Classify(ctx, prompt)
	if err != nil {
		return c.failTurn(fmt.Errorf("classify project: %w", err))
	}
	tmpl, err := llm.TemplateFor(label)
	if err != nil {
		return c.failTurn(err)
	}

	msgs := make([]llm.Message, 0, len(tmpl.Prompts)+1)
	for _, p := range tmpl.Prompts {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: p})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})

	reply, err := c.completer.Complete(ctx, msgs)
	if err != nil {
		return c.failTurn(fmt.Errorf("generate project: %w", err))
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return ErrTerminated
	}
	c.history = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply})
	c.state = StateActive
	c.mu.Unlock()
	c.emit(protocol.TypeChatMessage, protocol.ChatMessagePayload{SessionID: c.id, Role: string(llm.RoleAssistant), Content: reply})

	return c.handleReply(ctx, reply)
}

// Send continues an active conversation. The full history is replayed to the
// model with the new prompt appended.
func (c *Controller) Send(ctx context.Context, prompt string) error {
	c.turn.Lock()
	defer c.turn.Unlock()

	c.mu.Lock()
	switch {
	case c.terminated:
		c.mu.Unlock()
		return ErrTerminated
	case c.state != StateActive:
		c.mu.Unlock()
		return fmt.Errorf("%w: send in %s", ErrInvalidState, c.state)
	}
	userMsg := llm.Message{Role: llm.RoleUser, Content: prompt}
	msgs := make([]llm.Message, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, userMsg)
	c.lastErr = nil
	c.mu.Unlock()
	c.emit(protocol.TypeChatMessage, protocol.ChatMessagePayload{SessionID: c.id, Role: string(llm.RoleUser), Content: prompt})

	reply, err := c.completer.Complete(ctx, msgs)
	if err != nil {
		return c.failTurn(fmt.Errorf("generate changes: %w", err))
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return ErrTerminated
	}
	c.history = append(c.history, userMsg, llm.Message{Role: llm.RoleAssistant, Content: reply})
	c.mu.Unlock()
	c.emit(protocol.TypeChatMessage, protocol.ChatMessagePayload{SessionID: c.id, Role: string(llm.RoleAssistant), Content: reply})

	return c.handleReply(ctx, reply)
}

// HandleReply applies a model reply without going through the model.
func (c *Controller) HandleReply(ctx context.Context, text string) error {
	c.turn.Lock()
	defer c.turn.Unlock()

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return ErrTerminated
	}
	c.state = StateActive
	c.mu.Unlock()

	return c.handleReply(ctx, text)
}

func (c *Controller) handleReply(ctx context.Context, text string) error {
	actions := artifact.Parse(text, c.queue.Len()+1)
	c.queue.Append(actions...)

	c.mu.Lock()
	res := filetree.Merge(c.tree, c.queue.Pending())
	c.queue.Complete(res.Consumed...)
	c.tree = res.Tree
	if res.FirstNonEmpty && c.selected == "" {
		if f := filetree.FirstFile(res.Tree); f != nil {
			c.selected = f.Path
		}
	}
	tree := c.tree
	terminated := c.terminated
	c.mu.Unlock()

	c.emit(protocol.TypeStepsUpdate, protocol.StepsUpdatePayload{SessionID: c.id, Steps: c.queue.All()})
	c.emit(protocol.TypeFilesTree, protocol.FilesTreePayload{SessionID: c.id, Tree: tree})
	c.emitSession()

	if !res.Changed || terminated {
		return nil
	}

	first, err := c.sandbox.Mount(ctx, tree)
	if err != nil {
		return c.failTurn(fmt.Errorf("mount project: %w", err))
	}
	if first {
		// The install and dev server outlive the request that triggered them.
		go c.startSandbox()
	}
	return nil
}

func (c *Controller) startSandbox() {
	sink := func(stream, line string) {
		c.emit(protocol.TypeSandboxOutput, protocol.SandboxOutputPayload{SessionID: c.id, Stream: stream, Data: line})
	}
	c.emitSession()
	if err := c.sandbox.Start(context.Background(), sink); err != nil {
		log.Printf("session %s: sandbox start: %v", c.id, err)
	}
}

func (c *Controller) sandboxReady(url string) {
	c.emit(protocol.TypeSandboxReady, protocol.SandboxReadyPayload{SessionID: c.id, URL: url})
	c.emitSession()
}

func (c *Controller) sandboxFailed(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	payload := protocol.SandboxFailedPayload{SessionID: c.id, Message: err.Error()}
	var ie *sandbox.InstallError
	if errors.As(err, &ie) {
		payload.ExitCode = ie.Code
	}
	c.emit(protocol.TypeSandboxFailed, payload)
	c.emitSession()
}

// failTurn records err and reports it to subscribers.
func (c *Controller) failTurn(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	log.Printf("session %s: %v", c.id, err)
	c.emit(protocol.TypeError, protocol.ErrorPayload{Code: ErrorCode(err), Message: llm.NewErrorPayload(err).Message})
	c.emitSession()
	return err
}

// Terminate ends the session and releases the sandbox for the next one. The
// session stays readable.
func (c *Controller) Terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.state = StateTerminated
	c.mu.Unlock()

	c.emitSession()
	c.sandbox.Reset()
}

// Snapshot returns the session view.
func (c *Controller) Snapshot() Session {
	c.mu.RLock()
	s := Session{
		ID:           c.id,
		Label:        c.label,
		Prompt:       c.prompt,
		State:        c.state,
		Phase:        sandbox.PhaseIdle,
		SelectedFile: c.selected,
		StepCount:    c.queue.Len(),
		CreatedAt:    c.createdAt,
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	terminated := c.terminated
	c.mu.RUnlock()

	if !terminated {
		s.Phase = c.sandbox.Phase()
		s.PreviewURL = c.sandbox.ReadyURL()
	}
	return s
}

// State returns the conversation state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Steps returns the step log.
func (c *Controller) Steps() []steps.Step {
	return c.queue.All()
}

// Tree returns the current file tree. Trees are never modified in place, so
// the result is safe to read while the session continues.
func (c *Controller) Tree() filetree.Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree
}

// History returns a copy of the conversation sent to the model.
func (c *Controller) History() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]llm.Message(nil), c.history...)
}

// SelectedFile returns the path of the file shown in the editor.
func (c *Controller) SelectedFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// SelectFile changes the selected file and returns its content.
func (c *Controller) SelectFile(path string) (string, error) {
	c.mu.Lock()
	n := filetree.Find(c.tree, path)
	if n == nil || n.Type != filetree.TypeFile {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	c.selected = n.Path
	content := n.Content
	c.mu.Unlock()

	c.emitSession()
	return content, nil
}

// FileContent returns the content of the file at path.
func (c *Controller) FileContent(path string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := filetree.Find(c.tree, path)
	if n == nil || n.Type != filetree.TypeFile {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return n.Content, nil
}

// PreviewURL returns the dev server URL once ready.
func (c *Controller) PreviewURL() string {
	return c.Snapshot().PreviewURL
}

// Err returns the last failure of the session, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Controller) emit(msgType string, payload interface{}) {
	c.publish(Event{
		SessionID: c.id,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Controller) emitSession() {
	c.emit(protocol.TypeSessionUpdate, c.Snapshot().UpdatePayload())
}

func labelFromPrompt(prompt string) string {
	if utf8.RuneCountInString(prompt) <= maxLabelLen {
		return prompt
	}
	r := []rune(prompt)
	return string(r[:maxLabelLen]) + "…"
}
