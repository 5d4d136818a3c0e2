package terminal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/antibyte/retrofunge/pkg/auth"
	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/antibyte/retrofunge/pkg/shared"

	"github.com/gorilla/websocket"
)

// WebSocket settings come from the [Network] section

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64) * 1024)
}

func getMaxChannelBuffer() int {
	return configuration.GetInt("Network", "max_channel_buffer", 1024)
}

var (
	errClientClosed = errors.New("client connection closed")
	errSendTimeout  = errors.New("send timeout")
)

// Client is one connected terminal socket
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	handler   *TerminalHandler
	ipAddress string
	claims    *auth.Claims
	session   *Session

	done      chan struct{} // closed once when the client goes away
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, h *TerminalHandler, ipAddress string, claims *auth.Claims) *Client {
	c := &Client{
		conn:      conn,
		send:      make(chan []byte, getMaxChannelBuffer()),
		handler:   h,
		ipAddress: ipAddress,
		claims:    claims,
		done:      make(chan struct{}),
	}
	c.session = newSession(claims, &outputWriter{client: c})
	return c
}

// SessionID returns the session the client authenticated with
func (c *Client) SessionID() string {
	return c.claims.SessionID
}

// close signals both pumps to stop. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// sendMessage queues msg for the write pump. It blocks for at most the write
// timeout when the queue is full.
func (c *Client) sendMessage(msg shared.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	case <-time.After(getWriteWait()):
		logger.Warn(logger.AreaWebSocket, "Send timeout for session %s, closing client", c.SessionID())
		c.close()
		return errSendTimeout
	}
}

func (c *Client) sendError(text string) {
	c.sendMessage(shared.Message{Type: shared.MessageTypeError, Content: text})
}

// readPump reads requests until the connection fails or the client is closed
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			logger.WebSocketError("Panic in readPump for session %s: %v", c.SessionID(), r)
		}
		c.handler.cleanupClient(c)
	}()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				logger.WebSocketWarn("Unexpected close for session %s: %v", c.SessionID(), err)
			} else {
				logger.WebSocketDebug("Connection closed for session %s: %v", c.SessionID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		req, err := c.handler.validator.ParseRequest(message)
		if err != nil {
			logger.SecurityWarn("Rejected request from %s (session %s): %v", c.ipAddress, c.SessionID(), err)
			c.sendError("INVALID REQUEST: " + err.Error())
			continue
		}
		if req.Type == shared.RequestKeepalive {
			continue
		}
		c.handler.handleRequest(c, req)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.WebSocketDebug("Write failed for session %s: %v", c.SessionID(), err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WebSocketDebug("Failed to send ping to session %s: %v", c.SessionID(), err)
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
