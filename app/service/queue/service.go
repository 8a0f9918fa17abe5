package queue

import (
	"context"
	"log/slog"
	"z3mcp/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
)

// Service bounds the number of solver checks running at once. Requests over
// the limit wait for a free slot or for their context to end.
type Service struct {
	slots chan struct{}
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return NewService(cfg.Solver.MaxConcurrent), nil
}

func NewService(size int) *Service {
	return &Service{
		slots: make(chan struct{}, max(size, 1)),
	}
}

// Acquire takes a slot and returns the function that gives it back. A nil
// Service admits everything.
func (s *Service) Acquire(ctx context.Context) (func(), error) {
	if s == nil {
		return func() {}, nil
	}

	select {
	case s.slots <- struct{}{}:
		return s.release, nil
	default:
	}

	slog.Warn("Solver queue is full, waiting for a free slot", "size", cap(s.slots))

	select {
	case s.slots <- struct{}{}:
		return s.release, nil
	case <-ctx.Done():
		return nil, oops.
			Code("solver_error").
			Wrapf(context.Cause(ctx), "gave up waiting for a free solver slot")
	}
}

func (s *Service) release() {
	<-s.slots
}

// Busy reports the number of slots in use.
func (s *Service) Busy() int {
	if s == nil {
		return 0
	}
	return len(s.slots)
}
