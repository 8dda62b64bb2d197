// Package saga runs multi-step workflows that span the database and external
// systems, undoing completed steps when a later one fails.
package saga

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Step is a single step in a saga with execute and compensate actions.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga orchestrates a sequence of steps with compensating actions on failure.
type Saga struct {
	name   string
	steps  []Step
	logger *zap.Logger
}

// New creates a new saga orchestrator.
func New(name string, logger *zap.Logger) *Saga {
	return &Saga{name: name, logger: logger}
}

// AddStep appends a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs all steps in order. On failure it compensates executed steps in
// reverse order and returns the step error. Compensation runs on a context
// detached from ctx's cancellation so a timed-out request still refunds.
func (s *Saga) Execute(ctx context.Context) error {
	executed := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		s.logger.Debug("executing saga step", zap.String("saga", s.name), zap.String("step", step.Name))

		err := step.Execute(ctx)
		if err == nil {
			executed = append(executed, step)
			continue
		}

		s.logger.Warn("saga step failed, starting compensation",
			zap.String("saga", s.name),
			zap.String("step", step.Name),
			zap.Error(err),
		)

		compCtx := context.WithoutCancel(ctx)
		var compErrs []error
		for i := len(executed) - 1; i >= 0; i-- {
			done := executed[i]
			if done.Compensate == nil {
				continue
			}
			if compErr := done.Compensate(compCtx); compErr != nil {
				s.logger.Error("compensation failed",
					zap.String("saga", s.name),
					zap.String("step", done.Name),
					zap.Error(compErr),
				)
				compErrs = append(compErrs, fmt.Errorf("compensate %s: %w", done.Name, compErr))
			}
		}

		if len(compErrs) > 0 {
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, errors.Join(append([]error{err}, compErrs...)...))
		}
		return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
	}

	s.logger.Debug("saga completed", zap.String("saga", s.name))
	return nil
}
