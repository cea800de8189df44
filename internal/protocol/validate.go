package protocol

import (
	"encoding/json"
	"fmt"
)

// field is a required payload field: its JSON name and current value.
type field struct {
	name  string
	value string
}

// clientPayloads maps every allowed client→server message type to the
// required fields of its decoded payload.
var clientPayloads = map[string]func(raw json.RawMessage) ([]field, error){
	TypeSessionCreate: func(raw json.RawMessage) ([]field, error) {
		var p SessionCreatePayload
		err := json.Unmarshal(raw, &p)
		return []field{{"prompt", p.Prompt}}, err
	},
	TypeSessionPrompt: func(raw json.RawMessage) ([]field, error) {
		var p SessionPromptPayload
		err := json.Unmarshal(raw, &p)
		return []field{{"sessionId", p.SessionID}, {"prompt", p.Prompt}}, err
	},
	TypeFilesRequestTree: func(raw json.RawMessage) ([]field, error) {
		var p SessionIDPayload
		err := json.Unmarshal(raw, &p)
		return []field{{"sessionId", p.SessionID}}, err
	},
	TypeFilesSelect: func(raw json.RawMessage) ([]field, error) {
		var p FilesSelectPayload
		err := json.Unmarshal(raw, &p)
		return []field{{"sessionId", p.SessionID}, {"path", p.Path}}, err
	},
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	decode, ok := clientPayloads[msg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	fields, err := decode(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	for _, f := range fields {
		if f.value == "" {
			return nil, fmt.Errorf("missing required field '%s' in %s payload", f.name, msg.Type)
		}
	}

	return &msg, nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
