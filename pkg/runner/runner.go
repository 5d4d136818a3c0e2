// Package runner drives an engine to completion under step and time limits.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/antibyte/retrofunge/pkg/befunge"
	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
)

var (
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrAlreadyRunning    = errors.New("program already running")
	ErrNoExecution       = errors.New("no running program")
)

// Stepper is anything that executes one instruction per call.
type Stepper interface {
	Step() (befunge.Status, error)
}

// StepperFunc adapts a function to the Stepper interface.
type StepperFunc func() (befunge.Status, error)

func (f StepperFunc) Step() (befunge.Status, error) { return f() }

// Limits bound a single run. Zero values disable the respective limit;
// YieldEvery <= 0 checks the context on every step.
type Limits struct {
	MaxSteps   int64
	MaxRunTime time.Duration
	YieldEvery int64
}

// DefaultLimits reads the [Runner] section.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:   configuration.GetInt64("Runner", "max_steps", 10000000),
		MaxRunTime: configuration.GetDuration("Runner", "max_run_time", 30*time.Second),
		YieldEvery: configuration.GetInt64("Runner", "yield_every", 4096),
	}
}

// Result summarises a finished run.
type Result struct {
	Status   befunge.Status
	Steps    int64
	Duration time.Duration
}

// Run steps eng until it terminates, faults, or a limit or ctx stops it.
// A clean termination returns a nil error.
func Run(ctx context.Context, eng Stepper, limits Limits) (Result, error) {
	if limits.MaxRunTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.MaxRunTime)
		defer cancel()
	}
	yieldEvery := limits.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = 1
	}

	start := time.Now()
	res := Result{Status: befunge.StatusContinuing}
	finish := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		return res, err
	}

	for {
		if res.Steps%yieldEvery == 0 {
			select {
			case <-ctx.Done():
				return finish(fmt.Errorf("run interrupted after %d steps: %w", res.Steps, ctx.Err()))
			default:
			}
			if res.Steps > 0 {
				runtime.Gosched()
			}
		}
		if limits.MaxSteps > 0 && res.Steps >= limits.MaxSteps {
			logger.RunnerWarn("Step limit %d reached", limits.MaxSteps)
			return finish(fmt.Errorf("%w: %d", ErrStepLimitExceeded, limits.MaxSteps))
		}

		status, err := eng.Step()
		res.Status = status
		if status != befunge.StatusNotReady {
			res.Steps++
		}

		switch status {
		case befunge.StatusTerminated:
			return finish(nil)
		case befunge.StatusDecodeError, befunge.StatusNotReady:
			return finish(err)
		}
		if err != nil {
			return finish(err)
		}
	}
}
