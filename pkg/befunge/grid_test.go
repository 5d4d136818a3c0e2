package befunge

import (
	"errors"
	"strings"
	"testing"
)

func TestGridLoadRowMajor(t *testing.T) {
	buf := make([]byte, GridSize)
	buf[0] = 'a'
	buf[Width-1] = 'b'
	buf[Width] = 'c'
	buf[GridSize-1] = 'd'

	var g Grid
	if err := g.Load(buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		x, y int
		want byte
	}{
		{0, 0, 'a'},
		{Width - 1, 0, 'b'},
		{0, 1, 'c'},
		{Width - 1, Height - 1, 'd'},
		{-1, -1, 'd'},
		{Width, Height, 'a'},
		{-Width, 1, 'c'},
	}
	for _, tt := range tests {
		if got := g.Read(tt.x, tt.y); got != tt.want {
			t.Errorf("Read(%d,%d): expected %q, got %q", tt.x, tt.y, tt.want, got)
		}
	}

	if string(g.Bytes()) != string(buf) {
		t.Errorf("Expected Bytes to return the loaded buffer")
	}
}

func TestGridLoadKeepsContentsOnError(t *testing.T) {
	var g Grid
	g.Write(2, 2, 'x')
	err := g.Load([]byte("short"))
	if !errors.Is(err, ErrInvalidProgramSize) {
		t.Fatalf("Expected ErrInvalidProgramSize, got %v", err)
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Category != ErrCategoryLoad {
		t.Errorf("Expected load EngineError, got %v", err)
	}
	if g.Read(2, 2) != 'x' {
		t.Errorf("Expected grid untouched after failed load")
	}
}

func TestWrap(t *testing.T) {
	tests := []struct{ v, n, want int }{
		{0, 80, 0},
		{79, 80, 79},
		{80, 80, 0},
		{-1, 80, 79},
		{-81, 80, 79},
		{-2147483648, 25, 2},
		{2147483647, 25, 22},
	}
	for _, tt := range tests {
		if got := wrap(tt.v, tt.n); got != tt.want {
			t.Errorf("wrap(%d,%d): expected %d, got %d", tt.v, tt.n, tt.want, got)
		}
	}
}

func TestParseSource(t *testing.T) {
	buf, err := ParseSource("ab\r\ncd  \n\n\n")
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	if len(buf) != GridSize {
		t.Fatalf("Expected %d bytes, got %d", GridSize, len(buf))
	}
	if string(buf[:2]) != "ab" || string(buf[Width:Width+2]) != "cd" {
		t.Errorf("Unexpected row contents")
	}
	if buf[2] != ' ' || buf[GridSize-1] != ' ' {
		t.Errorf("Expected space padding")
	}
}

func TestParseSourceLimits(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		detail string
	}{
		{"line too long", strings.Repeat("1", Width+1), "LINE_TOO_LONG"},
		{"too many rows", strings.Repeat("@\n", Height+1), "TOO_MANY_ROWS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSource(tt.text)
			if !errors.Is(err, ErrSourceTooLarge) {
				t.Fatalf("Expected ErrSourceTooLarge, got %v", err)
			}
			var ee *EngineError
			if !errors.As(err, &ee) || ee.Detail != tt.detail {
				t.Errorf("Expected detail %s, got %v", tt.detail, err)
			}
		})
	}

	// trailing blanks past the edge are tolerated
	if _, err := ParseSource(strings.Repeat("1", Width) + "   "); err != nil {
		t.Errorf("Expected trailing spaces to be ignored, got %v", err)
	}
	if _, err := ParseSource(strings.Repeat("@\n", Height) + "\n\n"); err != nil {
		t.Errorf("Expected trailing empty lines to be ignored, got %v", err)
	}
}

func TestFormatGrid(t *testing.T) {
	src := "3>:.1-:v\n ^     _@"
	buf, err := ParseSource(src)
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	buf[Width+20] = 0
	if got := FormatGrid(buf); got != src {
		t.Errorf("Expected %q, got %q", src, got)
	}
	if FormatGrid([]byte("x")) != "" {
		t.Errorf("Expected empty text for wrong-size buffer")
	}
}

func TestFormatProgramRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"untouched program", "3>:.1-:v\n ^     _@", false},
		{"put printable cell", "\"A\"09p@", false},
		{"put line break", "55+09p@", true},
		{"put zero cell", "009p@", true},
		{"put high byte", "88*2*09p@", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newLoadedEngine(t, tt.source)
			if status := runProgram(t, e, 100); status != StatusTerminated {
				t.Fatalf("Expected program to terminate, got %v", status)
			}
			live := e.Program()

			text, err := FormatProgram(live)
			if tt.wantErr {
				if !errors.Is(err, ErrGridNotText) {
					t.Errorf("Expected ErrGridNotText, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FormatProgram failed: %v", err)
			}
			parsed, err := ParseSource(text)
			if err != nil {
				t.Fatalf("ParseSource failed: %v", err)
			}
			if string(parsed) != string(live) {
				t.Errorf("Expected formatted grid to parse back to the live grid")
			}
		})
	}

	if _, err := FormatProgram([]byte("x")); !errors.Is(err, ErrInvalidProgramSize) {
		t.Errorf("Expected ErrInvalidProgramSize for wrong-size buffer, got %v", err)
	}
}

func TestEngineErrorText(t *testing.T) {
	err := newDecodeError('x', 3, 4)
	if got := err.Error(); got != `DECODE ERROR: INSTRUCTION NOT RECOGNIZED 'x' AT 3,4` {
		t.Errorf("Unexpected message: %s", got)
	}
	if got := newLoadError("INVALID_SIZE", ErrInvalidProgramSize).Error(); got != "LOAD ERROR: PROGRAM MUST BE EXACTLY 80x25 CELLS" {
		t.Errorf("Unexpected message: %s", got)
	}
	if got := GetFriendlyErrorText("NOPE", "CODE"); got != "CODE" {
		t.Errorf("Expected fallback to detail code, got %s", got)
	}
}
