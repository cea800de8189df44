package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"boltforge/internal/llm"
	"boltforge/internal/protocol"
	"boltforge/internal/session"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	// turnTimeout bounds one model round trip started from a client request.
	turnTimeout = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server manages WebSocket connections and routes messages between
// clients and the session manager.
type Server struct {
	sessionMgr *session.Manager
	completer  llm.Completer
	classifier llm.Classifier
	sandboxDir string
	staticDir  string

	clients   map[*client]bool
	clientsMu sync.RWMutex

	// subscriptions tracks which event subscriptions exist per client.
	// key: client, value: map[sessionID]subscriptionID
	subscriptions   map[*client]map[string]string
	subscriptionsMu sync.Mutex
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	server *Server
}

// New creates a new realtime server. completer and classifier back the
// stateless /api endpoints; sandboxDir is where the live project is mounted.
func New(sessionMgr *session.Manager, completer llm.Completer, classifier llm.Classifier, sandboxDir, staticDir string) *Server {
	return &Server{
		sessionMgr:    sessionMgr,
		completer:     completer,
		classifier:    classifier,
		sandboxDir:    sandboxDir,
		staticDir:     staticDir,
		clients:       make(map[*client]bool),
		subscriptions: make(map[*client]map[string]string),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Stateless model endpoints.
	mux.HandleFunc("POST /api/template", s.handleTemplate)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	// Session endpoints.
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/prompt", s.handleSendPrompt)
	mux.HandleFunc("GET /sessions/{id}/steps", s.handleGetSteps)
	mux.HandleFunc("GET /sessions/{id}/files", s.handleGetFiles)
	mux.HandleFunc("GET /sessions/{id}/files/content", s.handleGetFileContent)
	mux.HandleFunc("GET /sessions/{id}/mount", s.handleGetMount)
	mux.HandleFunc("GET /sessions/{id}/sandbox/tree", s.handleGetSandboxTree)

	// Static file serving.
	if s.staticDir != "" {
		fileServer := http.FileServer(http.Dir(s.staticDir))
		mux.Handle("/", fileServer)
	}

	return corsMiddleware(isolationMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isolationMiddleware marks every response cross-origin isolated so the
// builder UI can embed the preview and use shared memory.
func isolationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.subscriptionsMu.Lock()
	s.subscriptions[c] = make(map[string]string)
	s.subscriptionsMu.Unlock()

	// Send current session list to new client.
	s.sendSessionList(c)

	// Subscribe the new client to the live session so it receives events
	// from a build that started before this connection.
	if ctrl, ok := s.sessionMgr.Active(); ok && ctrl.State() != session.StateTerminated {
		s.subscribeClient(c, ctrl.ID())
	}

	go c.writePump()
	go c.readPump()
}

// sendSessionList sends the current session state to a client.
func (s *Server) sendSessionList(c *client) {
	for _, sess := range s.sessionMgr.List() {
		msg, err := protocol.NewMessage(protocol.TypeSessionUpdate, sess.UpdatePayload())
		if err != nil {
			continue
		}
		c.sendMessage(msg)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands data to the write pump. Messages for a full or closed
// client are dropped.
func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, skip.
	}
}

func (c *client) sendMessage(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	// Unsubscribe from all session events.
	s.subscriptionsMu.Lock()
	subs := s.subscriptions[c]
	delete(s.subscriptions, c)
	s.subscriptionsMu.Unlock()

	for sessionID, subID := range subs {
		s.sessionMgr.Unsubscribe(sessionID, subID)
	}

	close(c.done)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeSessionCreate:
		s.handleWSCreateSession(c, msg)
	case protocol.TypeSessionPrompt:
		s.handleWSPrompt(c, msg)
	case protocol.TypeFilesRequestTree:
		s.handleWSFilesTree(c, msg)
	case protocol.TypeFilesSelect:
		s.handleWSFilesSelect(c, msg)
	}
}

func (s *Server) handleWSCreateSession(c *client, msg *protocol.Message) {
	var payload protocol.SessionCreatePayload
	json.Unmarshal(msg.Payload, &payload)

	ctrl, err := s.startSession(payload.Prompt, payload.Label, c)
	if err != nil {
		s.sendError(c, session.ErrorCode(err), err.Error())
		return
	}
	log.Printf("session %s created over websocket", ctrl.ID())
}

func (s *Server) handleWSPrompt(c *client, msg *protocol.Message) {
	var payload protocol.SessionPromptPayload
	json.Unmarshal(msg.Payload, &payload)

	ctrl, err := s.sessionMgr.Get(payload.SessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}
	s.subscribeClient(c, ctrl.ID())

	go s.runTurn(c, ctrl.ID(), func(ctx context.Context) error {
		return ctrl.Send(ctx, payload.Prompt)
	})
}

func (s *Server) handleWSFilesTree(c *client, msg *protocol.Message) {
	var payload protocol.SessionIDPayload
	json.Unmarshal(msg.Payload, &payload)

	ctrl, err := s.sessionMgr.Get(payload.SessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}

	resp, err := protocol.NewMessage(protocol.TypeFilesTree, protocol.FilesTreePayload{
		SessionID: ctrl.ID(),
		Tree:      ctrl.Tree(),
	})
	if err != nil {
		return
	}
	c.sendMessage(resp)
}

func (s *Server) handleWSFilesSelect(c *client, msg *protocol.Message) {
	var payload protocol.FilesSelectPayload
	json.Unmarshal(msg.Payload, &payload)

	ctrl, err := s.sessionMgr.Get(payload.SessionID)
	if err != nil {
		s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		return
	}

	content, err := ctrl.SelectFile(payload.Path)
	if err != nil {
		s.sendError(c, session.ErrorCode(err), err.Error())
		return
	}

	resp, err := protocol.NewMessage(protocol.TypeFilesContent, protocol.FilesContentPayload{
		SessionID: ctrl.ID(),
		Path:      payload.Path,
		Content:   content,
	})
	if err != nil {
		return
	}
	c.sendMessage(resp)
}

// startSession creates a session, subscribes every client to it and runs
// the first build turn in the background. origin, when set, is told about
// failures the session does not report itself.
func (s *Server) startSession(prompt, label string, origin *client) (*session.Controller, error) {
	ctrl, err := s.sessionMgr.Create(label)
	if err != nil {
		return nil, err
	}

	// Subscribe before the build starts so no client misses its events.
	s.subscribeAllClients(ctrl.ID())

	go s.runTurn(origin, ctrl.ID(), func(ctx context.Context) error {
		return ctrl.Start(ctx, prompt)
	})
	return ctrl, nil
}

// runTurn runs one model round trip. Service and sandbox failures reach
// subscribers as session events; state errors are only reported to origin.
func (s *Server) runTurn(origin *client, sessionID string, turn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	err := turn(ctx)
	if err == nil {
		return
	}
	log.Printf("session %s: turn failed: %v", sessionID, err)
	if origin != nil && (errors.Is(err, session.ErrInvalidState) || errors.Is(err, session.ErrTerminated)) {
		s.sendError(origin, session.ErrorCode(err), err.Error())
	}
}

// subscribeAllClients subscribes all connected clients to a session's events.
func (s *Server) subscribeAllClients(sessionID string) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.subscribeClient(c, sessionID)
	}
}

// subscribeClient subscribes a single client to a session's events.
func (s *Server) subscribeClient(c *client, sessionID string) {
	s.subscriptionsMu.Lock()
	subs, connected := s.subscriptions[c]
	if !connected {
		s.subscriptionsMu.Unlock()
		return
	}
	if _, exists := subs[sessionID]; exists {
		s.subscriptionsMu.Unlock()
		return // Already subscribed.
	}
	s.subscriptionsMu.Unlock()

	subID, ch, history, err := s.sessionMgr.Subscribe(sessionID)
	if err != nil {
		return
	}

	s.subscriptionsMu.Lock()
	subs, connected = s.subscriptions[c]
	if !connected {
		s.subscriptionsMu.Unlock()
		s.sessionMgr.Unsubscribe(sessionID, subID)
		return
	}
	subs[sessionID] = subID
	s.subscriptionsMu.Unlock()

	// Send history.
	for _, event := range history {
		s.sendEvent(c, event)
	}

	// Forward new events.
	go func() {
		for event := range ch {
			s.sendEvent(c, event)
		}
	}()
}

func (s *Server) sendEvent(c *client, event session.Event) {
	msg, err := protocol.NewMessage(event.Type, event.Payload)
	if err != nil {
		log.Printf("session %s: encode %s: %v", event.SessionID, event.Type, err)
		return
	}
	msg.Timestamp = event.Timestamp
	c.sendMessage(msg)
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	c.sendMessage(msg)
}
