package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// sagaStep is one write of a multi-store change. Undo may be nil for the
// last step or for steps with nothing to revert.
type sagaStep struct {
	name string
	do   func(context.Context) error
	undo func(context.Context) error
}

// Saga applies steps in order. When a step fails, the undo of every
// completed step runs newest first and the step's error is returned.
type Saga struct {
	name   string
	steps  []sagaStep
	logger *zap.Logger
}

func NewSaga(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{name: name, logger: logger}
}

func (s *Saga) Step(name string, do, undo func(context.Context) error) *Saga {
	s.steps = append(s.steps, sagaStep{name: name, do: do, undo: undo})
	return s
}

func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.do(ctx); err != nil {
			s.compensate(ctx, s.steps[:i])
			return fmt.Errorf("%s: step %s: %w", s.name, step.name, err)
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []sagaStep) {
	// Undo runs even when ctx is already cancelled.
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.undo == nil {
			continue
		}
		if err := step.undo(ctx); err != nil {
			s.logger.Error("saga undo failed, data may be inconsistent",
				zap.String("saga", s.name),
				zap.String("step", step.name),
				zap.Error(err),
			)
		}
	}
}
