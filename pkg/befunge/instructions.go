package befunge

import (
	"strconv"

	"github.com/antibyte/retrofunge/pkg/logger"
)

// instructionHandler executes one decoded instruction.
type instructionHandler func(*Engine) (Status, error)

// instructionHandlers is a jump table indexed by cell byte.
// Digits and the quote are decoded before dispatch; nil entries are decode errors.
var instructionHandlers = [256]instructionHandler{
	' ':  (*Engine).opNop,
	0:    (*Engine).opNop,
	'+':  (*Engine).opAdd,
	'-':  (*Engine).opSub,
	'*':  (*Engine).opMul,
	'/':  (*Engine).opDiv,
	'%':  (*Engine).opMod,
	'!':  (*Engine).opNot,
	'`':  (*Engine).opGreater,
	'>':  (*Engine).opRight,
	'<':  (*Engine).opLeft,
	'^':  (*Engine).opUp,
	'v':  (*Engine).opDown,
	'?':  (*Engine).opRandom,
	'_':  (*Engine).opHorizontalIf,
	'|':  (*Engine).opVerticalIf,
	':':  (*Engine).opDup,
	'\\': (*Engine).opSwap,
	'$':  (*Engine).opDiscard,
	'.':  (*Engine).opOutputInt,
	',':  (*Engine).opOutputChar,
	'#':  (*Engine).opBridge,
	'g':  (*Engine).opGet,
	'p':  (*Engine).opPut,
	'@':  (*Engine).opEnd,
}

func (e *Engine) opNop() (Status, error) {
	return StatusContinuing, nil
}

func (e *Engine) opAdd() (Status, error) {
	a, b := e.stack.Pop2()
	e.stack.Push(a + b)
	return StatusContinuing, nil
}

func (e *Engine) opSub() (Status, error) {
	a, b := e.stack.Pop2()
	e.stack.Push(b - a)
	return StatusContinuing, nil
}

func (e *Engine) opMul() (Status, error) {
	a, b := e.stack.Pop2()
	e.stack.Push(b * a)
	return StatusContinuing, nil
}

// opDiv pushes 0 for a zero divisor.
func (e *Engine) opDiv() (Status, error) {
	a, b := e.stack.Pop2()
	if a == 0 {
		e.warnZeroDivisor('/')
		e.stack.Push(0)
		return StatusContinuing, nil
	}
	e.stack.Push(b / a)
	return StatusContinuing, nil
}

// opMod pushes 0 for a zero divisor.
func (e *Engine) opMod() (Status, error) {
	a, b := e.stack.Pop2()
	if a == 0 {
		e.warnZeroDivisor('%')
		e.stack.Push(0)
		return StatusContinuing, nil
	}
	e.stack.Push(b % a)
	return StatusContinuing, nil
}

func (e *Engine) warnZeroDivisor(op byte) {
	logger.EngineWarn("Zero divisor for %q at %d,%d (session %s), pushing 0", rune(op), e.x, e.y, e.sessionID)
}

func (e *Engine) opNot() (Status, error) {
	if e.stack.Pop() == 0 {
		e.stack.Push(1)
	} else {
		e.stack.Push(0)
	}
	return StatusContinuing, nil
}

func (e *Engine) opGreater() (Status, error) {
	a, b := e.stack.Pop2()
	if b > a {
		e.stack.Push(1)
	} else {
		e.stack.Push(0)
	}
	return StatusContinuing, nil
}

func (e *Engine) opRight() (Status, error) {
	e.dir = Right
	return StatusContinuing, nil
}

func (e *Engine) opLeft() (Status, error) {
	e.dir = Left
	return StatusContinuing, nil
}

func (e *Engine) opUp() (Status, error) {
	e.dir = Up
	return StatusContinuing, nil
}

func (e *Engine) opDown() (Status, error) {
	e.dir = Down
	return StatusContinuing, nil
}

func (e *Engine) opRandom() (Status, error) {
	e.dir = Direction(e.rng.Intn(4))
	return StatusContinuing, nil
}

func (e *Engine) opHorizontalIf() (Status, error) {
	if e.stack.Pop() == 0 {
		e.dir = Right
	} else {
		e.dir = Left
	}
	return StatusContinuing, nil
}

func (e *Engine) opVerticalIf() (Status, error) {
	if e.stack.Pop() == 0 {
		e.dir = Down
	} else {
		e.dir = Up
	}
	return StatusContinuing, nil
}

func (e *Engine) opDup() (Status, error) {
	a := e.stack.Pop()
	e.stack.Push(a)
	e.stack.Push(a)
	return StatusContinuing, nil
}

// opSwap pops a then b and pushes b then a, so a ends on top again.
// Missing operands come back as zeros.
func (e *Engine) opSwap() (Status, error) {
	a, b := e.stack.Pop2()
	e.stack.Push(b)
	e.stack.Push(a)
	return StatusContinuing, nil
}

func (e *Engine) opDiscard() (Status, error) {
	e.stack.Pop()
	return StatusContinuing, nil
}

// opOutputInt writes the value as a signed 32-bit decimal.
func (e *Engine) opOutputInt() (Status, error) {
	a := e.stack.Pop()
	return e.emit([]byte(strconv.FormatInt(int64(int32(a)), 10)))
}

func (e *Engine) opOutputChar() (Status, error) {
	a := e.stack.Pop()
	return e.emit([]byte{byte(a)})
}

func (e *Engine) emit(p []byte) (Status, error) {
	if _, err := e.out.Write(p); err != nil {
		return StatusContinuing, newOutputError(err, e.x, e.y)
	}
	return StatusContinuing, nil
}

func (e *Engine) opBridge() (Status, error) {
	e.bridge = 2
	return StatusContinuing, nil
}

// Stack coordinates are signed and wrap like pointer movement.
func (e *Engine) opGet() (Status, error) {
	a, b := e.stack.Pop2()
	e.stack.Push(uint32(e.grid.Read(int(int32(a)), int(int32(b)))))
	return StatusContinuing, nil
}

func (e *Engine) opPut() (Status, error) {
	a, b, c := e.stack.Pop3()
	e.grid.Write(int(int32(a)), int(int32(b)), byte(c))
	return StatusContinuing, nil
}

func (e *Engine) opEnd() (Status, error) {
	e.x, e.y = 0, 0
	e.state = Halted
	logger.EngineDebug("Program halted after %d steps (session %s)", e.steps, e.sessionID)
	return StatusTerminated, nil
}
