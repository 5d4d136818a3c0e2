package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antibyte/retrofunge/pkg/runner"
)

// notifyWriter records writes and signals once want bytes have arrived
type notifyWriter struct {
	mu   sync.Mutex
	buf  []byte
	want int
	full chan struct{}
}

func (w *notifyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	before := len(w.buf)
	w.buf = append(w.buf, p...)
	if before < w.want && len(w.buf) >= w.want {
		close(w.full)
	}
	return len(p), nil
}

func (w *notifyWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

func TestRunOutputIsNotHeldBack(t *testing.T) {
	out := &notifyWriter{want: 5, full: make(chan struct{})}
	eng, err := newProgramEngine(out, []byte("\"olleH\",,,,,>v\n            ^<"), 0)
	if err != nil {
		t.Fatalf("newProgramEngine failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, eng, runner.Limits{})
		done <- err
	}()

	select {
	case <-out.full:
	case err := <-done:
		t.Fatalf("Run returned before output arrived: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Expected output while running, got %q", out.String())
	}
	if got := out.String(); got != "Hello" {
		t.Errorf("Expected %q, got %q", "Hello", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewProgramEngineRejectsOversizedSource(t *testing.T) {
	long := make([]byte, 81)
	for i := range long {
		long[i] = '1'
	}
	if _, err := newProgramEngine(nil, long, 1); err == nil {
		t.Error("Expected error for a line wider than the playfield")
	}
}
