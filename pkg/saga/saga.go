// Package saga runs an ordered list of steps and, when one fails, undoes the
// steps that already ran in reverse order.
package saga

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shutterdesk-backend/pkg/logger"
	"go.uber.org/multierr"
)

// Step pairs an action with the compensation that reverses it. A nil Action
// marks a step that was applied before the saga started (uploads that already
// landed in storage, for example); it is never re-run but is still compensated.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is not safe for concurrent use.
type Saga struct {
	name  string
	steps []Step
	logg  *logger.Logger
}

// Error is returned when a step fails. Unwrap yields the step's error;
// Compensation holds the combined compensation failures, if any.
type Error struct {
	Saga         string
	Step         string
	Cause        error
	Compensation error
}

func (e *Error) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("saga %s: step %s: %v (compensation: %v)", e.Saga, e.Step, e.Cause, e.Compensation)
	}
	return fmt.Sprintf("saga %s: step %s: %v", e.Saga, e.Step, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Compensated reports whether every compensation succeeded.
func (e *Error) Compensated() bool { return e.Compensation == nil }

func New(name string, logg *logger.Logger) *Saga {
	return &Saga{name: name, logg: logg}
}

// Add appends a step.
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Run executes the steps in order. On the first failing step the failing step
// and every earlier step are compensated, last to first. Compensations run on
// a context detached from cancellation so a dropped request still cleans up.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if step.Action == nil {
			continue
		}
		if err := step.Action(ctx); err != nil {
			compErr := s.compensate(context.WithoutCancel(ctx), i)
			return &Error{Saga: s.name, Step: step.Name, Cause: err, Compensation: compErr}
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, failed int) error {
	var errs error
	for i := failed; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{"saga": s.name, "step": step.Name})
				s.logg.Warn(logCtx, "saga.compensation_failed")
			}
		}
	}
	return errs
}
