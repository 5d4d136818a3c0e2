package shared

import (
	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/store"
)

// MessageType identifies a server-to-client message on the terminal socket.
type MessageType int

const (
	MessageTypeText     MessageType = 0 // program output, one message per write
	MessageTypeStatus   MessageType = 1 // step or run outcome
	MessageTypeState    MessageType = 2 // engine snapshot
	MessageTypeError    MessageType = 3
	MessageTypePrograms MessageType = 4 // program listing
	MessageTypeSaved    MessageType = 5 // program stored
	MessageTypeSession  MessageType = 6 // session details after connect
	MessageTypeGrid     MessageType = 7 // program text after load/open
)

// Message is sent from the server to the client.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// For SESSION
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Guest     bool   `json:"guest,omitempty"`

	// For STATUS: status name, steps executed by the request
	Status string `json:"status,omitempty"`
	Steps  int64  `json:"steps,omitempty"`

	// For STATUS and STATE
	State *befunge.Snapshot `json:"state,omitempty"`

	// For PROGRAMS and SAVED
	Programs []store.Program `json:"programs,omitempty"`
	Program  *store.Program  `json:"program,omitempty"`
}

// RequestType identifies a client-to-server request.
type RequestType string

const (
	RequestLoad      RequestType = "load"
	RequestStep      RequestType = "step"
	RequestRun       RequestType = "run"
	RequestStop      RequestType = "stop"
	RequestState     RequestType = "state"
	RequestSave      RequestType = "save"
	RequestOpen      RequestType = "open"
	RequestList      RequestType = "list"
	RequestDelete    RequestType = "delete"
	RequestKeepalive RequestType = "keepalive"
)

// Request is sent from the client to the server.
type Request struct {
	Type      RequestType `json:"type"`
	Content   string      `json:"content,omitempty"`   // program text for load/save
	Count     int         `json:"count,omitempty"`     // instructions for step
	Name      string      `json:"name,omitempty"`      // program name for save
	ProgramID string      `json:"programId,omitempty"` // for open/delete
}
