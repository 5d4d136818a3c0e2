package terminal

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/antibyte/retrofunge/pkg/auth"
	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/shared"
)

// Session owns the engine of one connected terminal
type Session struct {
	ID       string
	Username string // empty for guests

	mu          sync.Mutex // serialises all engine calls
	engine      *befunge.Engine
	programName string
	running     atomic.Bool
}

func newSession(claims *auth.Claims, out io.Writer) *Session {
	s := &Session{
		ID:     claims.SessionID,
		engine: befunge.NewEngine(out),
	}
	if !claims.IsGuest() {
		s.Username = claims.Username
	}
	s.engine.SetSessionID(s.ID)
	return s
}

// IsGuest reports whether the session has no logged-in user
func (s *Session) IsGuest() bool {
	return s.Username == ""
}

// outputWriter forwards engine output to the client, one text message per
// write so the client sees output in program order.
type outputWriter struct {
	client *Client
}

func (w *outputWriter) Write(p []byte) (int, error) {
	if err := w.client.sendMessage(shared.Message{Type: shared.MessageTypeText, Content: string(p)}); err != nil {
		return 0, err
	}
	return len(p), nil
}
