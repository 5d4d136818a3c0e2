package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
)

// MaxClientsDefault caps concurrent terminal connections
const MaxClientsDefault = 100

// ClientManager tracks connected clients by session ID. A session has at
// most one client; a reconnect replaces the previous one.
type ClientManager struct {
	mu      sync.RWMutex
	clients map[string]*Client // sessionID -> Client
	limiter *connectionLimiter
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
		limiter: newConnectionLimiter(time.Minute),
	}
}

// AddClient registers client and returns the client it replaced, if any
func (cm *ClientManager) AddClient(sessionID string, client *Client) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	previous := cm.clients[sessionID]
	cm.clients[sessionID] = client
	logger.Debug(logger.AreaSession, "Client registered for session %s (replaced: %v)", sessionID, previous != nil)
	return previous
}

// RemoveClient unregisters client if it is still the one for its session
func (cm *ClientManager) RemoveClient(client *Client) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	sessionID := client.SessionID()
	if cm.clients[sessionID] != client {
		return false
	}
	delete(cm.clients, sessionID)
	logger.Debug(logger.AreaSession, "Client unregistered for session %s", sessionID)
	return true
}

// GetClientCount returns the number of connected clients
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CheckRateLimit counts a connection attempt from ipAddress against
// [WebSocket] max_connections_per_minute.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	limit := configuration.GetInt("WebSocket", "max_connections_per_minute", 30)
	if count := cm.limiter.hit(ipAddress, time.Now()); count > limit {
		logger.SecurityWarn("Rate limit exceeded for IP %s: %d connections in last minute", ipAddress, count)
		return fmt.Errorf("rate limit exceeded: too many connections from %s", ipAddress)
	}
	return nil
}

// CloseAll disconnects every client
func (cm *ClientManager) CloseAll() {
	cm.mu.Lock()
	clients := cm.clients
	cm.clients = make(map[string]*Client)
	cm.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// connectionLimiter counts attempts per key in fixed windows. Expired
// windows are dropped on the next hit so the map stays bounded by the
// number of recently active keys.
type connectionLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]*attemptWindow
	sweep   time.Time
}

type attemptWindow struct {
	start time.Time
	count int
}

func newConnectionLimiter(window time.Duration) *connectionLimiter {
	return &connectionLimiter{window: window, windows: make(map[string]*attemptWindow)}
}

// hit records an attempt at now and returns the attempts in the current window
func (cl *connectionLimiter) hit(key string, now time.Time) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if now.Sub(cl.sweep) > cl.window {
		for k, w := range cl.windows {
			if now.Sub(w.start) > cl.window {
				delete(cl.windows, k)
			}
		}
		cl.sweep = now
	}

	w, ok := cl.windows[key]
	if !ok || now.Sub(w.start) > cl.window {
		w = &attemptWindow{start: now}
		cl.windows[key] = w
	}
	w.count++
	return w.count
}
