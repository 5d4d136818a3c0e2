package befunge

import (
	"fmt"
	"strings"
)

// Playfield dimensions.
const (
	Width    = 80
	Height   = 25
	GridSize = Width * Height
)

// Grid is the fixed 80x25 program store, indexed [x][y].
// A zero cell is the empty sentinel and executes as a no-op.
type Grid struct {
	cells [Width][Height]byte
}

// wrap reduces v into [0,n) with true modulo.
func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Load copies a row-major buffer of exactly Width*Height bytes into the grid:
// src[row*Width+col] becomes cell (col,row). The grid is untouched on error.
func (g *Grid) Load(src []byte) error {
	if len(src) != GridSize {
		return newLoadError("INVALID_SIZE", ErrInvalidProgramSize)
	}
	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			g.cells[col][row] = src[row*Width+col]
		}
	}
	return nil
}

// Read returns the cell at the torus-wrapped coordinates.
func (g *Grid) Read(x, y int) byte {
	return g.cells[wrap(x, Width)][wrap(y, Height)]
}

// Write overwrites the cell at the torus-wrapped coordinates.
func (g *Grid) Write(x, y int, v byte) {
	g.cells[wrap(x, Width)][wrap(y, Height)] = v
}

// Bytes returns the grid in the same row-major layout Load accepts.
func (g *Grid) Bytes() []byte {
	out := make([]byte, GridSize)
	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			out[row*Width+col] = g.cells[col][row]
		}
	}
	return out
}

// ParseSource turns line-oriented program text into a Load buffer. Lines are
// padded with spaces to Width, missing rows are blank. Trailing blanks and CR
// are ignored when measuring, anything else beyond the playfield is an error.
func ParseSource(text string) ([]byte, error) {
	lines := strings.Split(text, "\n")
	// Trailing empty lines do not count against the row limit.
	for len(lines) > 0 && strings.TrimRight(lines[len(lines)-1], " \t\r") == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > Height {
		return nil, newLoadError("TOO_MANY_ROWS", ErrSourceTooLarge)
	}

	buf := make([]byte, GridSize)
	for i := range buf {
		buf[i] = ' '
	}
	for row, line := range lines {
		line = strings.TrimRight(line, "\r")
		if len(strings.TrimRight(line, " ")) > Width {
			return nil, newLoadError("LINE_TOO_LONG", ErrSourceTooLarge)
		}
		if len(line) > Width {
			line = line[:Width]
		}
		copy(buf[row*Width:], line)
	}
	return buf, nil
}

// FormatGrid renders a row-major buffer back into text, one line per row with
// trailing blanks and NUL cells trimmed and trailing empty rows dropped.
func FormatGrid(buf []byte) string {
	if len(buf) != GridSize {
		return ""
	}
	rows := make([]string, Height)
	last := -1
	for row := 0; row < Height; row++ {
		line := append([]byte(nil), buf[row*Width:(row+1)*Width]...)
		for i, c := range line {
			if c == 0 {
				line[i] = ' '
			}
		}
		rows[row] = strings.TrimRight(string(line), " ")
		if rows[row] != "" {
			last = row
		}
	}
	return strings.Join(rows[:last+1], "\n")
}

// FormatProgram is FormatGrid for buffers that must survive ParseSource
// unchanged. Every cell has to be printable ASCII; anything else (NUL, line
// breaks, bytes written by p) is rejected with ErrGridNotText.
func FormatProgram(buf []byte) (string, error) {
	if len(buf) != GridSize {
		return "", ErrInvalidProgramSize
	}
	for i, c := range buf {
		if c < ' ' || c > '~' {
			return "", fmt.Errorf("%w: cell %d,%d is %d", ErrGridNotText, i%Width, i/Width, c)
		}
	}
	return FormatGrid(buf), nil
}
