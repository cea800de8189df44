package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"boltforge/internal/filetree"
	"boltforge/internal/steps"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeSessionUpdate = "session.update"
	TypeStepsUpdate   = "steps.update"
	TypeFilesTree     = "files.tree"
	TypeFilesContent  = "files.content"
	TypeFilesUpdate   = "files.update"
	TypeSandboxOutput = "sandbox.output"
	TypeSandboxReady  = "sandbox.ready"
	TypeSandboxFailed = "sandbox.failed"
	TypeChatMessage   = "chat.message"
	TypeError         = "error"
)

// Client → Server message types.
const (
	TypeSessionCreate    = "session.create"
	TypeSessionPrompt    = "session.prompt"
	TypeFilesRequestTree = "files.requestTree"
	TypeFilesSelect      = "files.select"
)

// Error codes.
const (
	ErrSessionNotFound    = "SESSION_NOT_FOUND"
	ErrInvalidMessage     = "INVALID_MESSAGE"
	ErrInvalidState       = "INVALID_STATE"
	ErrInvalidProjectType = "INVALID_PROJECT_TYPE"
	ErrServiceFailed      = "SERVICE_ERROR"
	ErrSandboxUnavailable = "SANDBOX_UNAVAILABLE"
	ErrFileNotFound       = "FILE_NOT_FOUND"
)

// Server → Client payloads.

type SessionUpdatePayload struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Label        string `json:"label"`
	Prompt       string `json:"prompt"`
	Phase        string `json:"phase"`
	PreviewURL   string `json:"previewUrl,omitempty"`
	SelectedFile string `json:"selectedFile,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

type StepsUpdatePayload struct {
	SessionID string       `json:"sessionId"`
	Steps     []steps.Step `json:"steps"`
}

type FilesTreePayload struct {
	SessionID string        `json:"sessionId"`
	Tree      filetree.Tree `json:"tree"`
}

type FilesContentPayload struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// FilesUpdatePayload reports how many files the sandbox directory holds on
// disk, dependencies excluded.
type FilesUpdatePayload struct {
	SessionID string `json:"sessionId"`
	FileCount int    `json:"fileCount"`
}

type SandboxOutputPayload struct {
	SessionID string `json:"sessionId"`
	Stream    string `json:"stream"` // "install" | "dev"
	Data      string `json:"data"`
}

type SandboxReadyPayload struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type SandboxFailedPayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ExitCode  int    `json:"exitCode,omitempty"`
}

type ChatMessagePayload struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type SessionCreatePayload struct {
	Prompt string `json:"prompt"`
	Label  string `json:"label"`
}

type SessionPromptPayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

type FilesSelectPayload struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

// DiskNode is a file or directory as found in the sandbox directory.
type DiskNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"isDir"`
	Children []DiskNode `json:"children,omitempty"`
	Size     int64      `json:"size,omitempty"`
}
