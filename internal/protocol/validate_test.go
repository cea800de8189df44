package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"boltforge/internal/artifact"
	"boltforge/internal/steps"
)

func clientMessage(t *testing.T, msgType string, payload map[string]interface{}) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestNewMessage(t *testing.T) {
	payload := SessionUpdatePayload{
		ID:    "test-id",
		State: "active",
		Phase: "ready",
	}

	msg, err := NewMessage(TypeSessionUpdate, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Type != TypeSessionUpdate {
		t.Errorf("expected type %s, got %s", TypeSessionUpdate, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p SessionUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ID != "test-id" || p.Phase != "ready" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestStepsUpdatePayloadShape(t *testing.T) {
	msg, err := NewMessage(TypeStepsUpdate, StepsUpdatePayload{
		SessionID: "s1",
		Steps: []steps.Step{{
			Action: artifact.Action{ID: 7, Kind: artifact.KindCreateFile, Title: "Create a.ts", Path: "a.ts", Code: "x"},
			Status: steps.StatusCompleted,
		}},
	})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	for _, want := range []string{`"id":7`, `"kind":"create_file"`, `"path":"a.ts"`, `"status":"completed"`} {
		if !strings.Contains(string(msg.Payload), want) {
			t.Errorf("expected %s in payload %s", want, msg.Payload)
		}
	}
}

func TestValidateClientMessage_Valid(t *testing.T) {
	tests := []struct {
		msgType string
		payload map[string]interface{}
	}{
		{TypeSessionCreate, map[string]interface{}{"prompt": "a todo app", "label": "todo"}},
		{TypeSessionPrompt, map[string]interface{}{"sessionId": "abc-123", "prompt": "add dark mode"}},
		{TypeFilesRequestTree, map[string]interface{}{"sessionId": "abc"}},
		{TypeFilesSelect, map[string]interface{}{"sessionId": "abc", "path": "/src/App.tsx"}},
	}

	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			result, err := ValidateClientMessage(clientMessage(t, tt.msgType, tt.payload))
			if err != nil {
				t.Fatalf("expected valid message, got error: %v", err)
			}
			if result.Type != tt.msgType {
				t.Errorf("expected type %s, got %s", tt.msgType, result.Type)
			}
		})
	}
}

func TestValidateClientMessage_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload map[string]interface{}
		field   string
	}{
		{"create without prompt", TypeSessionCreate, map[string]interface{}{"label": "x"}, "prompt"},
		{"prompt without session", TypeSessionPrompt, map[string]interface{}{"prompt": "hello"}, "sessionId"},
		{"prompt without prompt", TypeSessionPrompt, map[string]interface{}{"sessionId": "abc"}, "prompt"},
		{"tree without session", TypeFilesRequestTree, map[string]interface{}{}, "sessionId"},
		{"select without path", TypeFilesSelect, map[string]interface{}{"sessionId": "abc"}, "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateClientMessage(clientMessage(t, tt.msgType, tt.payload))
			if err == nil {
				t.Fatalf("expected error for missing %s", tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to name %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	if _, err := ValidateClientMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	if _, err := ValidateClientMessage(clientMessage(t, "", map[string]interface{}{})); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	if _, err := ValidateClientMessage(clientMessage(t, "session.kill", map[string]interface{}{"sessionId": "abc"})); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	data := []byte(`{"type":"session.create","timestamp":"2024-01-01T00:00:00.000Z"}`)
	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrInvalidProjectType, "Invalid project type")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrInvalidProjectType || p.Message != "Invalid project type" {
		t.Errorf("unexpected error payload: %+v", p)
	}
}
