package session

import (
	"context"
	"errors"
	"time"

	"boltforge/internal/filetree"
	"boltforge/internal/llm"
	"boltforge/internal/protocol"
	"boltforge/internal/sandbox"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateAwaiting   State = "awaiting_first_artifact"
	StateActive     State = "active"
	StateTerminated State = "terminated"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("operation not allowed in current session state")
	ErrTerminated      = errors.New("session terminated")
	ErrFileNotFound    = errors.New("file not found")
)

// Session is a point-in-time view of a session.
type Session struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	Prompt       string        `json:"prompt"`
	State        State         `json:"state"`
	Phase        sandbox.Phase `json:"phase"`
	PreviewURL   string        `json:"previewUrl,omitempty"`
	SelectedFile string        `json:"selectedFile,omitempty"`
	Error        string        `json:"error,omitempty"`
	StepCount    int           `json:"stepCount"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// UpdatePayload converts the view to its session.update payload.
func (s Session) UpdatePayload() protocol.SessionUpdatePayload {
	return protocol.SessionUpdatePayload{
		ID:           s.ID,
		State:        string(s.State),
		Label:        s.Label,
		Prompt:       s.Prompt,
		Phase:        string(s.Phase),
		PreviewURL:   s.PreviewURL,
		SelectedFile: s.SelectedFile,
		Error:        s.Error,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339Nano),
	}
}

// Event is something a session subscriber is told about. Type is one of the
// protocol server message types and Payload the matching protocol payload.
type Event struct {
	SessionID string      `json:"sessionId"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Sandbox is the part of the sandbox orchestrator a session drives.
type Sandbox interface {
	Mount(ctx context.Context, tree filetree.Tree) (first bool, err error)
	Start(ctx context.Context, sink sandbox.OutputSink) error
	OnReady(fn func(url string))
	OnFailure(fn func(err error))
	Phase() sandbox.Phase
	ReadyURL() string
	Reset()
}

// ErrorCode maps err to a protocol error code.
func ErrorCode(err error) string {
	var se *llm.ServiceError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return protocol.ErrSessionNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrTerminated):
		return protocol.ErrInvalidState
	case errors.Is(err, ErrFileNotFound):
		return protocol.ErrFileNotFound
	case errors.Is(err, llm.ErrInvalidProjectType):
		return protocol.ErrInvalidProjectType
	case errors.As(err, &se):
		return protocol.ErrServiceFailed
	case errors.Is(err, sandbox.ErrNotIsolated), errors.Is(err, sandbox.ErrInstallFailed):
		return protocol.ErrSandboxUnavailable
	default:
		return protocol.ErrSandboxUnavailable
	}
}
