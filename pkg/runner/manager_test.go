package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antibyte/retrofunge/pkg/befunge"
)

func TestManagerSingleExecutionPerSession(t *testing.T) {
	m := NewManager()
	execution, err := m.Start("s1", "loop")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if execution.ID == "" {
		t.Errorf("Expected execution ID")
	}
	if _, err := m.Start("s1", "other"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := m.Start("s2", "other"); err != nil {
		t.Errorf("Expected second session to start, got %v", err)
	}
	if m.Active() != 2 {
		t.Errorf("Expected 2 active executions, got %d", m.Active())
	}
	m.StopAll()
	if m.Active() != 0 {
		t.Errorf("Expected no executions after StopAll, got %d", m.Active())
	}
}

func TestManagerRunUnregisters(t *testing.T) {
	m := NewManager()
	eng, out := loadEngine(t, "12+.@")
	execution, err := m.Start("s1", "sum")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := m.Run(execution, eng, Limits{MaxSteps: 100})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != befunge.StatusTerminated || out.String() != "3" {
		t.Errorf("Unexpected result %+v output %q", res, out.String())
	}
	if execution.Steps() != 5 {
		t.Errorf("Expected 5 counted steps, got %d", execution.Steps())
	}
	if m.Active() != 0 {
		t.Errorf("Expected execution to be unregistered")
	}
	if _, err := m.Stats("s1"); !errors.Is(err, ErrNoExecution) {
		t.Errorf("Expected ErrNoExecution, got %v", err)
	}
}

func TestManagerStopInterruptsRun(t *testing.T) {
	m := NewManager()
	eng, _ := loadEngine(t, ">v\n^<")
	execution, err := m.Start("s1", "loop")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Run(execution, eng, Limits{YieldEvery: 32})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for execution.Steps() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stats, err := m.Stats("s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["program"] != "loop" {
		t.Errorf("Expected program name in stats, got %v", stats["program"])
	}

	if err := m.Stop("s1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if err := m.Stop("s1"); !errors.Is(err, ErrNoExecution) {
		t.Errorf("Expected ErrNoExecution on second stop, got %v", err)
	}
}
