package befunge

import (
	"io"
	"math/rand"
	"time"

	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
)

// DefaultStackCapacity is the initial backing size of a fresh stack.
const DefaultStackCapacity = 64

// Engine owns one loaded program: grid, stack, instruction pointer and mode
// flags. It is not safe for concurrent use; drivers serialise calls.
type Engine struct {
	grid  Grid
	stack *Stack

	x, y       int
	dir        Direction
	bridge     int
	stringMode bool
	state      State
	steps      uint64

	out       io.Writer
	rng       *rand.Rand
	sessionID string
}

// Snapshot is a read-only view of the engine for drivers and diagnostics.
type Snapshot struct {
	SessionID  string   `json:"sessionId,omitempty"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Direction  string   `json:"direction"`
	StringMode bool     `json:"stringMode"`
	State      string   `json:"state"`
	Steps      uint64   `json:"steps"`
	Stack      []uint32 `json:"stack"`
	Current    string   `json:"current"`
}

// NewEngine creates an engine in the NotLoaded state writing program output to
// out. A nil writer discards output.
func NewEngine(out io.Writer) *Engine {
	if out == nil {
		out = io.Discard
	}
	seed := configuration.GetInt64("Engine", "random_seed", 0)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		stack:  NewStack(DefaultStackCapacity),
		dir:    Right,
		bridge: 1,
		state:  NotLoaded,
		out:    out,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetOutput replaces the output sink. A nil writer discards output.
func (e *Engine) SetOutput(out io.Writer) {
	if out == nil {
		out = io.Discard
	}
	e.out = out
}

// SetRand replaces the source used by the '?' instruction.
func (e *Engine) SetRand(r *rand.Rand) {
	if r != nil {
		e.rng = r
	}
}

// SetSessionID tags log lines and snapshots with the owning session.
func (e *Engine) SetSessionID(id string) {
	e.sessionID = id
}

// Load installs a row-major Width*Height program buffer and resets the pointer,
// stack and mode flags. On error the engine keeps its previous state.
func (e *Engine) Load(src []byte) error {
	if err := e.grid.Load(src); err != nil {
		return err
	}
	e.reset()
	e.state = Running
	logger.EngineDebug("Program loaded for session %s", e.sessionID)
	return nil
}

// LoadSource parses line-oriented program text and loads it.
func (e *Engine) LoadSource(text string) error {
	buf, err := ParseSource(text)
	if err != nil {
		return err
	}
	return e.Load(buf)
}

func (e *Engine) reset() {
	e.stack.Clear()
	e.x, e.y = 0, 0
	e.dir = Right
	e.bridge = 1
	e.stringMode = false
	e.steps = 0
}

// Step executes the instruction under the pointer and advances the pointer
// once. It never panics; every call returns a definite status.
func (e *Engine) Step() (Status, error) {
	switch e.state {
	case NotLoaded:
		return StatusNotReady, ErrNoProgramLoaded
	case Halted, Faulted:
		return StatusNotReady, ErrProgramNotRunning
	}

	e.steps++
	status, err := e.execute(e.grid.Read(e.x, e.y))
	if status == StatusTerminated {
		return status, nil
	}
	e.advance()
	return status, err
}

func (e *Engine) execute(c byte) (Status, error) {
	if c == '"' {
		e.stringMode = !e.stringMode
		return StatusContinuing, nil
	}
	if e.stringMode {
		e.stack.Push(uint32(c))
		return StatusContinuing, nil
	}
	if c >= '0' && c <= '9' {
		e.stack.Push(uint32(c - '0'))
		return StatusContinuing, nil
	}

	handler := instructionHandlers[c]
	if handler == nil {
		e.state = Faulted
		logger.EngineWarn("Unknown instruction %q at %d,%d (session %s)", rune(c), e.x, e.y, e.sessionID)
		return StatusDecodeError, newDecodeError(c, e.x, e.y)
	}
	return handler(e)
}

// advance moves the pointer by the pending bridge along the current heading
// and wraps it onto the torus.
func (e *Engine) advance() {
	dx, dy := e.dir.delta()
	e.x = wrap(e.x+dx*e.bridge, Width)
	e.y = wrap(e.y+dy*e.bridge, Height)
	e.bridge = 1
}

// Position returns the current pointer coordinates.
func (e *Engine) Position() (x, y int) {
	return e.x, e.y
}

// Direction returns the current heading.
func (e *Engine) Direction() Direction {
	return e.dir
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Runnable reports whether Step would execute an instruction.
func (e *Engine) Runnable() bool {
	return e.state == Running
}

// StringMode reports whether string mode is active.
func (e *Engine) StringMode() bool {
	return e.stringMode
}

// Steps returns the number of instructions executed since the last load.
func (e *Engine) Steps() uint64 {
	return e.steps
}

// Stack returns a copy of the stack, bottom first.
func (e *Engine) Stack() []uint32 {
	return e.stack.Values()
}

// Depth returns the stack depth.
func (e *Engine) Depth() int {
	return e.stack.Len()
}

// Cell reads the live grid at wrapped coordinates.
func (e *Engine) Cell(x, y int) byte {
	return e.grid.Read(x, y)
}

// Program returns the live grid, including p modifications, row-major.
func (e *Engine) Program() []byte {
	return e.grid.Bytes()
}

// Snapshot captures the observable engine state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		SessionID:  e.sessionID,
		X:          e.x,
		Y:          e.y,
		Direction:  e.dir.String(),
		StringMode: e.stringMode,
		State:      e.state.String(),
		Steps:      e.steps,
		Stack:      e.stack.Values(),
		Current:    string(rune(e.grid.Read(e.x, e.y))),
	}
}
