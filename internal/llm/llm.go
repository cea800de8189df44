// Package llm talks to the completion and classification services and holds
// the prompt templates a build starts from.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// Classifier labels a project description, e.g. "react" or "node".
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// ErrInvalidProjectType is returned for a classification label without a
// template.
var ErrInvalidProjectType = errors.New("Invalid project type")

// ServiceError reports a failed call to the completion or classification
// service.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ErrorPayload is the JSON body returned to clients on failure.
type ErrorPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// NewErrorPayload builds the failure body for err.
func NewErrorPayload(err error) ErrorPayload {
	msg := "An error occurred while processing your request"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	if errors.Is(err, ErrInvalidProjectType) {
		msg = ErrInvalidProjectType.Error()
	}
	return ErrorPayload{Error: true, Message: msg}
}
