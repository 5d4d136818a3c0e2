package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/google/uuid"
)

// Execution is one running program owned by a session.
type Execution struct {
	ID          string
	SessionID   string
	ProgramName string
	StartTime   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	steps  atomic.Int64
}

// Steps returns the number of instructions executed so far.
func (e *Execution) Steps() int64 {
	return e.steps.Load()
}

// Context is cancelled when the execution is stopped.
func (e *Execution) Context() context.Context {
	return e.ctx
}

// Manager tracks at most one execution per session.
type Manager struct {
	executions map[string]*Execution
	mu         sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		executions: make(map[string]*Execution),
	}
}

// Start registers a new execution for sessionID.
func (m *Manager) Start(sessionID, programName string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if execution, exists := m.executions[sessionID]; exists {
		return nil, fmt.Errorf("%w: session %s is running %s", ErrAlreadyRunning, sessionID, execution.ProgramName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	execution := &Execution{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		ProgramName: programName,
		StartTime:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	m.executions[sessionID] = execution

	logger.RunnerDebug("Execution %s started for session %s (%s)", execution.ID, sessionID, programName)
	return execution, nil
}

// Run drives eng under limits on behalf of execution and unregisters it when
// the run ends for any reason.
func (m *Manager) Run(execution *Execution, eng Stepper, limits Limits) (Result, error) {
	defer m.finish(execution)

	counted := StepperFunc(func() (befunge.Status, error) {
		status, err := eng.Step()
		if status != befunge.StatusNotReady {
			execution.steps.Add(1)
		}
		return status, err
	})

	res, err := Run(execution.ctx, counted, limits)
	if err != nil {
		logger.RunnerInfo("Execution %s for session %s ended after %d steps: %v", execution.ID, execution.SessionID, res.Steps, err)
	} else {
		logger.RunnerDebug("Execution %s for session %s terminated after %d steps in %v", execution.ID, execution.SessionID, res.Steps, res.Duration)
	}
	return res, err
}

func (m *Manager) finish(execution *Execution) {
	execution.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, exists := m.executions[execution.SessionID]; exists && current == execution {
		delete(m.executions, execution.SessionID)
	}
}

// Stop cancels the execution of sessionID. The running goroutine observes the
// cancellation at its next context check.
func (m *Manager) Stop(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	execution, exists := m.executions[sessionID]
	if !exists {
		return fmt.Errorf("%w for session %s", ErrNoExecution, sessionID)
	}

	execution.cancel()
	delete(m.executions, sessionID)

	logger.RunnerInfo("Execution %s stopped - Session: %s, Program: %s, Runtime: %v, Steps: %d",
		execution.ID, sessionID, execution.ProgramName, time.Since(execution.StartTime), execution.Steps())
	return nil
}

// Stats returns a summary of the execution of sessionID.
func (m *Manager) Stats(sessionID string) (map[string]interface{}, error) {
	m.mu.RLock()
	execution, exists := m.executions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w for session %s", ErrNoExecution, sessionID)
	}

	return map[string]interface{}{
		"id":         execution.ID,
		"session":    execution.SessionID,
		"program":    execution.ProgramName,
		"runtime_ms": time.Since(execution.StartTime).Milliseconds(),
		"steps":      execution.Steps(),
	}, nil
}

// Active returns the number of running executions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.executions)
}

// StopAll cancels every execution, used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sessionID, execution := range m.executions {
		execution.cancel()
		delete(m.executions, sessionID)
	}
}
