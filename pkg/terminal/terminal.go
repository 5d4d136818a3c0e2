// Package terminal serves the Befunge engine over WebSocket connections.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/antibyte/retrofunge/pkg/auth"
	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/antibyte/retrofunge/pkg/runner"
	"github.com/antibyte/retrofunge/pkg/shared"
	"github.com/antibyte/retrofunge/pkg/store"

	"github.com/gorilla/websocket"
)

// ProgramStore is the program library used by save, open, list and delete
type ProgramStore interface {
	SaveProgram(owner, name, source string) (store.Program, error)
	GetProgram(id string) (store.Program, error)
	ListPrograms(owner string) ([]store.Program, error)
	DeleteProgram(owner, id string) error
}

// TerminalHandler manages WebSocket connections and their engine sessions
type TerminalHandler struct {
	programs      ProgramStore
	runner        *runner.Manager
	clientManager *ClientManager
	validator     *RequestValidator
	upgrader      websocket.Upgrader
}

// NewTerminalHandler creates a handler. programs may be nil, in which case
// the library requests fail.
func NewTerminalHandler(programs ProgramStore) *TerminalHandler {
	return &TerminalHandler{
		programs:      programs,
		runner:        runner.NewManager(),
		clientManager: NewClientManager(),
		validator:     NewRequestValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  configuration.GetInt("WebSocket", "read_buffer_size", 16384),
			WriteBufferSize: configuration.GetInt("WebSocket", "write_buffer_size", 16384),
			CheckOrigin:     checkOrigin,
		},
	}
}

// checkOrigin only accepts origins listed in [WebSocket] allowed_origins
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logger.SecurityWarn("WebSocket request without Origin header rejected")
		return false
	}

	allowedOriginsStr := configuration.GetString("WebSocket", "allowed_origins", "http://localhost:8080,http://127.0.0.1:8080")
	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if origin == strings.TrimSpace(allowed) {
			return true
		}
	}

	logger.SecurityWarn("WebSocket request from disallowed origin rejected: %s", origin)
	return false
}

// HandleWebSocket authenticates and upgrades a terminal connection
func (h *TerminalHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ipAddress := getClientIP(r)

	if h.clientManager.GetClientCount() >= MaxClientsDefault {
		logger.SecurityWarn("Maximum number of clients reached, rejecting %s", ipAddress)
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}
	if err := h.clientManager.CheckRateLimit(ipAddress); err != nil {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		logger.AuthWarn("WebSocket request without token from %s: %v", ipAddress, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		logger.AuthWarn("WebSocket request with invalid token from %s: %v", ipAddress, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WebSocketError("WebSocket upgrade failed for %s: %v", ipAddress, err)
		return
	}

	client := newClient(conn, h, ipAddress, claims)
	if previous := h.clientManager.AddClient(claims.SessionID, client); previous != nil {
		logger.Info(logger.AreaSession, "Session %s reconnected, closing previous connection", claims.SessionID)
		previous.close()
		h.runner.Stop(claims.SessionID)
	}

	go client.writePump()
	go client.readPump()

	logger.WebSocketInfo("Session %s connected from %s", claims.SessionID, ipAddress)
	client.sendMessage(shared.Message{
		Type:      shared.MessageTypeSession,
		SessionID: claims.SessionID,
		Username:  client.session.Username,
		Guest:     client.session.IsGuest(),
		Content:   "READY",
	})
}

// cleanupClient unregisters a client and stops its program
func (h *TerminalHandler) cleanupClient(c *Client) {
	if h.clientManager.RemoveClient(c) {
		if err := h.runner.Stop(c.SessionID()); err == nil {
			logger.Info(logger.AreaSession, "Stopped running program of disconnected session %s", c.SessionID())
		}
	}
	c.close()
}

// ClientCount returns the number of connected clients
func (h *TerminalHandler) ClientCount() int {
	return h.clientManager.GetClientCount()
}

// Shutdown disconnects all clients and cancels their programs
func (h *TerminalHandler) Shutdown() {
	h.runner.StopAll()
	h.clientManager.CloseAll()
}

// handleRequest dispatches one validated request. It is called from the
// client's read pump, so requests of one client are handled in order.
func (h *TerminalHandler) handleRequest(c *Client, req shared.Request) {
	s := c.session

	if s.running.Load() {
		switch req.Type {
		case shared.RequestStop:
			h.handleStop(c)
		case shared.RequestState:
			msg := shared.Message{Type: shared.MessageTypeStatus, Status: "running"}
			if stats, err := h.runner.Stats(s.ID); err == nil {
				msg.Steps, _ = stats["steps"].(int64)
			}
			c.sendMessage(msg)
		default:
			c.sendError("PROGRAM RUNNING")
		}
		return
	}

	switch req.Type {
	case shared.RequestLoad:
		h.handleLoad(c, req.Content, "untitled")
	case shared.RequestStep:
		h.handleStep(c, req.Count)
	case shared.RequestRun:
		h.handleRun(c)
	case shared.RequestStop:
		h.handleStop(c)
	case shared.RequestState:
		s.mu.Lock()
		snap := s.engine.Snapshot()
		s.mu.Unlock()
		c.sendMessage(shared.Message{Type: shared.MessageTypeState, State: &snap})
	case shared.RequestSave:
		h.handleSave(c, req)
	case shared.RequestOpen:
		h.handleOpen(c, req.ProgramID)
	case shared.RequestList:
		h.handleList(c)
	case shared.RequestDelete:
		h.handleDelete(c, req.ProgramID)
	}
}

func (h *TerminalHandler) handleLoad(c *Client, source, name string) {
	s := c.session
	s.mu.Lock()
	err := s.engine.LoadSource(source)
	var snap befunge.Snapshot
	var text string
	if err == nil {
		s.programName = name
		snap = s.engine.Snapshot()
		text = befunge.FormatGrid(s.engine.Program())
	}
	s.mu.Unlock()

	if err != nil {
		c.sendError(describeError(err))
		return
	}
	c.sendMessage(shared.Message{Type: shared.MessageTypeGrid, Content: text, State: &snap})
}

func (h *TerminalHandler) handleStep(c *Client, count int) {
	s := c.session
	s.mu.Lock()
	var status befunge.Status
	var err error
	var steps int64
	for i := 0; i < count; i++ {
		status, err = s.engine.Step()
		if status != befunge.StatusNotReady {
			steps++
		}
		if status != befunge.StatusContinuing || err != nil {
			break
		}
	}
	snap := s.engine.Snapshot()
	s.mu.Unlock()

	if err != nil {
		c.sendError(describeError(err))
	}
	c.sendMessage(shared.Message{Type: shared.MessageTypeStatus, Status: status.String(), Steps: steps, State: &snap})
}

func (h *TerminalHandler) handleRun(c *Client) {
	s := c.session
	execution, err := h.runner.Start(s.ID, s.programName)
	if err != nil {
		c.sendError(describeError(err))
		return
	}
	s.running.Store(true)

	go func() {
		s.mu.Lock()
		res, err := h.runner.Run(execution, s.engine, runner.DefaultLimits())
		snap := s.engine.Snapshot()
		s.mu.Unlock()
		// Cleared before the status goes out so the client's next request is accepted
		s.running.Store(false)

		if err != nil {
			c.sendError(describeError(err))
		}
		c.sendMessage(shared.Message{Type: shared.MessageTypeStatus, Status: res.Status.String(), Steps: res.Steps, State: &snap})
	}()
}

func (h *TerminalHandler) handleStop(c *Client) {
	if err := h.runner.Stop(c.session.ID); err != nil {
		c.sendError("NO PROGRAM RUNNING")
	}
}

func (h *TerminalHandler) handleSave(c *Client, req shared.Request) {
	s := c.session
	if !h.libraryAvailable(c) {
		return
	}

	source := req.Content
	if source == "" {
		s.mu.Lock()
		if s.engine.State() == befunge.NotLoaded {
			s.mu.Unlock()
			c.sendError("NOTHING TO SAVE")
			return
		}
		var err error
		source, err = befunge.FormatProgram(s.engine.Program())
		s.mu.Unlock()
		if err != nil {
			logger.Warn(logger.AreaTerminal, "Live grid of session %s is not saveable: %v", s.ID, err)
			c.sendError(describeError(err))
			return
		}
	}

	program, err := h.programs.SaveProgram(s.Username, req.Name, source)
	if err != nil {
		logger.DatabaseError("Saving %s for %s failed: %v", req.Name, s.Username, err)
		c.sendError(describeError(err))
		return
	}
	s.mu.Lock()
	s.programName = program.Name
	s.mu.Unlock()

	program.Source = ""
	c.sendMessage(shared.Message{Type: shared.MessageTypeSaved, Program: &program})
}

func (h *TerminalHandler) handleOpen(c *Client, id string) {
	s := c.session
	if !h.libraryAvailable(c) {
		return
	}
	program, err := h.programs.GetProgram(id)
	if err != nil || program.Owner != s.Username {
		c.sendError("PROGRAM NOT FOUND")
		return
	}
	h.handleLoad(c, program.Source, program.Name)
}

func (h *TerminalHandler) handleList(c *Client) {
	if !h.libraryAvailable(c) {
		return
	}
	programs, err := h.programs.ListPrograms(c.session.Username)
	if err != nil {
		logger.DatabaseError("Listing programs for %s failed: %v", c.session.Username, err)
		c.sendError("LIBRARY UNAVAILABLE")
		return
	}
	c.sendMessage(shared.Message{Type: shared.MessageTypePrograms, Programs: programs})
}

func (h *TerminalHandler) handleDelete(c *Client, id string) {
	if !h.libraryAvailable(c) {
		return
	}
	if err := h.programs.DeleteProgram(c.session.Username, id); err != nil {
		c.sendError(describeError(err))
		return
	}
	h.handleList(c)
}

// libraryAvailable reports whether the client may use the program library
// and answers with an error when it may not.
func (h *TerminalHandler) libraryAvailable(c *Client) bool {
	if c.session.IsGuest() {
		c.sendError("LOGIN REQUIRED")
		return false
	}
	if h.programs == nil {
		c.sendError("LIBRARY UNAVAILABLE")
		return false
	}
	return true
}

// HandleProgramList serves the program library of the authenticated user
// as JSON. It expects to run behind auth.RequireToken.
func (h *TerminalHandler) HandleProgramList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.IsGuest() {
		http.Error(w, "Login required", http.StatusForbidden)
		return
	}
	if h.programs == nil {
		http.Error(w, "Library unavailable", http.StatusServiceUnavailable)
		return
	}

	programs, err := h.programs.ListPrograms(claims.Username)
	if err != nil {
		logger.DatabaseError("Listing programs for %s failed: %v", claims.Username, err)
		http.Error(w, "Library unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(programs)
}

// describeError turns an error into a terminal message
func describeError(err error) string {
	var ee *befunge.EngineError
	switch {
	case errors.As(err, &ee):
		return ee.Error()
	case errors.Is(err, runner.ErrStepLimitExceeded):
		return "STEP LIMIT EXCEEDED"
	case errors.Is(err, runner.ErrAlreadyRunning):
		return "PROGRAM RUNNING"
	case errors.Is(err, context.Canceled):
		return "STOPPED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIME LIMIT EXCEEDED"
	case errors.Is(err, befunge.ErrNoProgramLoaded):
		return "NO PROGRAM LOADED"
	case errors.Is(err, befunge.ErrProgramNotRunning):
		return "PROGRAM ENDED - LOAD TO RESTART"
	case errors.Is(err, befunge.ErrGridNotText):
		return "GRID NOT SAVEABLE - SEND SOURCE"
	case errors.Is(err, store.ErrProgramNotFound):
		return "PROGRAM NOT FOUND"
	case errors.Is(err, store.ErrInvalidName):
		return "INVALID PROGRAM NAME"
	}
	return strings.ToUpper(err.Error())
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
