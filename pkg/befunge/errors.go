// Package befunge implements a Befunge-93 execution engine on a fixed 80x25 torus.
package befunge

import (
	"errors"
	"fmt"
)

// Error definitions specific to engine operations.
var (
	ErrNoProgramLoaded    = errors.New("no program loaded")
	ErrProgramNotRunning  = errors.New("program not running")
	ErrInvalidProgramSize = errors.New("invalid program size")
	ErrSourceTooLarge     = errors.New("source does not fit the playfield")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrOutputFailed       = errors.New("output write failed")
	ErrGridNotText        = errors.New("grid holds cells that are not printable text")
)

// Error categories
const (
	// ErrCategoryDecode marks an unrecognized instruction character.
	ErrCategoryDecode = "DECODE ERROR"
	// ErrCategoryLoad marks a program buffer or source that cannot be loaded.
	ErrCategoryLoad = "LOAD ERROR"
	// ErrCategoryIO marks a failing output sink.
	ErrCategoryIO = "I/O ERROR"
)

// FriendlyErrorTexts map detail codes to user-facing messages.
var FriendlyErrorTexts = map[string]map[string]string{
	ErrCategoryDecode: {
		"UNKNOWN_INSTRUCTION": "INSTRUCTION NOT RECOGNIZED",
		"INPUT_UNSUPPORTED":   "INPUT INSTRUCTIONS ARE NOT SUPPORTED",
	},
	ErrCategoryLoad: {
		"INVALID_SIZE":  "PROGRAM MUST BE EXACTLY 80x25 CELLS",
		"LINE_TOO_LONG": "SOURCE LINE EXCEEDS 80 COLUMNS",
		"TOO_MANY_ROWS": "SOURCE EXCEEDS 25 ROWS",
	},
	ErrCategoryIO: {
		"OUTPUT_FAILED": "OUTPUT COULD NOT BE WRITTEN",
	},
}

// GetFriendlyErrorText returns the user-facing text for a category/detail pair,
// falling back to the detail code itself.
func GetFriendlyErrorText(category, detail string) string {
	if texts, ok := FriendlyErrorTexts[category]; ok {
		if text, ok := texts[detail]; ok {
			return text
		}
	}
	return detail
}

// EngineError is a structured engine failure carrying the pointer position it
// happened at.
type EngineError struct {
	Category string // e.g. "DECODE ERROR"
	Detail   string // detail code, see FriendlyErrorTexts
	X, Y     int    // pointer position, -1 when not applicable
	Char     byte   // offending cell for decode errors
	Err      error  // sentinel or underlying cause
}

// InstructionError is the error returned by Step on a decode failure.
type InstructionError = EngineError

// Error implements the error interface
func (ee *EngineError) Error() string {
	msg := ee.Category + ": " + GetFriendlyErrorText(ee.Category, ee.Detail)
	if ee.Category == ErrCategoryDecode {
		msg += fmt.Sprintf(" %q", rune(ee.Char))
	}
	if ee.X >= 0 && ee.Y >= 0 {
		msg += fmt.Sprintf(" AT %d,%d", ee.X, ee.Y)
	}
	if ee.Err != nil && ee.Category == ErrCategoryIO {
		msg += ": " + ee.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel so callers can use errors.Is.
func (ee *EngineError) Unwrap() error {
	return ee.Err
}

func newDecodeError(c byte, x, y int) *EngineError {
	detail := "UNKNOWN_INSTRUCTION"
	if c == '&' || c == '~' {
		detail = "INPUT_UNSUPPORTED"
	}
	return &EngineError{
		Category: ErrCategoryDecode,
		Detail:   detail,
		X:        x,
		Y:        y,
		Char:     c,
		Err:      ErrUnknownInstruction,
	}
}

func newLoadError(detail string, err error) *EngineError {
	return &EngineError{Category: ErrCategoryLoad, Detail: detail, X: -1, Y: -1, Err: err}
}

func newOutputError(cause error, x, y int) *EngineError {
	return &EngineError{
		Category: ErrCategoryIO,
		Detail:   "OUTPUT_FAILED",
		X:        x,
		Y:        y,
		Err:      fmt.Errorf("%w: %w", ErrOutputFailed, cause),
	}
}
