package realtime

import (
	"encoding/json"
	"errors"
	"net/http"

	"boltforge/internal/filetree"
	"boltforge/internal/llm"
	"boltforge/internal/protocol"
	"boltforge/internal/sandbox"
	"boltforge/internal/session"
	"boltforge/internal/watcher"
)

type templateRequest struct {
	Prompt string `json:"prompt"`
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type createSessionRequest struct {
	Prompt string `json:"prompt"`
	Label  string `json:"label"`
}

type sendPromptRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSessionError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Code: session.ErrorCode(err)})
}

// statusFor maps a session or service error to an HTTP status.
func statusFor(err error) int {
	var se *llm.ServiceError
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrTerminated):
		return http.StatusConflict
	case errors.Is(err, llm.ErrInvalidProjectType):
		return http.StatusForbidden
	case errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleTemplate classifies a project description and returns the starting
// prompts for its project type.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, llm.ErrorPayload{Error: true, Message: "Prompt is required"})
		return
	}

	label, err := s.classifier.Classify(r.Context(), req.Prompt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, llm.NewErrorPayload(err))
		return
	}

	tmpl, err := llm.TemplateFor(label)
	if err != nil {
		writeJSON(w, http.StatusForbidden, llm.NewErrorPayload(err))
		return
	}

	writeJSON(w, http.StatusOK, tmpl)
}

// handleChat forwards a conversation to the completion service and returns
// the raw reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Messages == nil {
		writeJSON(w, http.StatusBadRequest, llm.ErrorPayload{Error: true, Message: "Messages array is required"})
		return
	}

	reply, err := s.completer.Complete(r.Context(), req.Messages)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, llm.NewErrorPayload(err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: protocol.ErrInvalidMessage})
		return
	}

	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt is required", Code: protocol.ErrInvalidMessage})
		return
	}

	ctrl, err := s.startSession(req.Prompt, req.Label, nil)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ctrl.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionMgr.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	ctrl.Terminate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

// handleSendPrompt runs one follow-up turn and answers once its artifact
// has been applied.
func (s *Server) handleSendPrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req sendPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: protocol.ErrInvalidMessage})
		return
	}

	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt is required", Code: protocol.ErrInvalidMessage})
		return
	}

	ctrl, err := s.sessionMgr.Get(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if err := ctrl.Send(r.Context(), req.Prompt); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ctrl.Steps())
}

func (s *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	tree := ctrl.Tree()
	if tree == nil {
		tree = filetree.Tree{}
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleGetFileContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "path is required", Code: protocol.ErrInvalidMessage})
		return
	}

	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	content, err := ctrl.FileContent(path)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.FilesContentPayload{
		SessionID: ctrl.ID(),
		Path:      path,
		Content:   content,
	})
}

// handleGetMount returns the session's files in the sandbox mount format.
func (s *Server) handleGetMount(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sandbox.ToMountTree(ctrl.Tree()))
}

// handleGetSandboxTree lists what is on disk in the sandbox. Only the live
// session owns the sandbox directory.
func (s *Server) handleGetSandboxTree(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.sessionMgr.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if ctrl.State() == session.StateTerminated {
		writeSessionError(w, session.ErrTerminated)
		return
	}

	nodes := watcher.BuildFileTree(s.sandboxDir, watcher.DefaultTreeDepth)
	if nodes == nil {
		nodes = []protocol.DiskNode{}
	}
	writeJSON(w, http.StatusOK, nodes)
}
