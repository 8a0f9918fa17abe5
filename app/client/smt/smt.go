// Package smt runs sorted expressions through a satisfiability engine. Every
// request opens its own Session, so sessions never share solver state.
package smt

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"z3mcp/app/config"
	"z3mcp/app/expr"

	"github.com/samber/do"
	"github.com/samber/mo"
	"github.com/samber/oops"
)

type Status string

const (
	StatusSat     Status = "sat"
	StatusUnsat   Status = "unsat"
	StatusUnknown Status = "unknown"
)

// ErrUnavailable is returned when the z3 engine was not compiled in.
var ErrUnavailable = errors.New("z3 engine is not available in this build")

type Options struct {
	// Timeout bounds every Check call; zero or negative means no limit.
	Timeout time.Duration
}

type Engine interface {
	Name() string
	NewSession(opts Options) (Session, error)
}

type Session interface {
	// Declare introduces a free variable.
	Declare(name string, sort expr.Sort) error
	// DeclareDomain introduces a finite entity domain and binary relations
	// over it. Entities are pairwise distinct.
	DeclareDomain(entities, relations []string) error
	// Assert adds a tracked assertion. The label is reported in UnsatCore.
	Assert(label string, e *expr.Expr) error
	Check(ctx context.Context) (Status, error)
	// CheckAssuming checks the assertions together with e. The extra
	// assumption does not persist.
	CheckAssuming(ctx context.Context, e *expr.Expr) (Status, error)
	// Value reads a declared variable from the last satisfying model.
	Value(name string) mo.Option[any]
	// UnsatCore lists the labels of an unsatisfiable subset of assertions
	// after Check returned unsat.
	UnsatCore() []string
	ReasonUnknown() string
	Close()
}

// New picks the engine named in the solver config.
func New(di *do.Injector) (Engine, error) {
	cfg := do.MustInvoke[*config.Config](di)

	engine, err := Select(cfg.Solver.Engine)
	if err != nil {
		return nil, err
	}

	slog.Info("Solver engine selected",
		slog.String("requested", cfg.Solver.Engine),
		slog.String("engine", engine.Name()),
	)

	return engine, nil
}

func Select(name string) (Engine, error) {
	switch name {
	case "auto", "":
		if Z3Available() {
			return NewZ3(), nil
		}
		return NewSAT(), nil
	case "z3":
		if !Z3Available() {
			return nil, oops.Code("unsupported").Wrap(ErrUnavailable)
		}
		return NewZ3(), nil
	case "sat":
		return NewSAT(), nil
	default:
		return nil, oops.Code("invalid_input").With("engine", name).Errorf("unknown solver engine %q", name)
	}
}

func unsupported(format string, args ...any) error {
	return oops.Code("unsupported").Errorf(format, args...)
}

func solverError(format string, args ...any) error {
	return oops.Code("solver_error").Errorf(format, args...)
}

// deadline returns the effective time limit of a check, or zero for none.
func deadline(ctx context.Context, timeout time.Duration) time.Duration {
	limit := time.Duration(0)
	if timeout > 0 {
		limit = timeout
	}
	if d, ok := ctx.Deadline(); ok {
		left := time.Until(d)
		if left <= 0 {
			left = time.Millisecond
		}
		if limit == 0 || left < limit {
			limit = left
		}
	}
	return limit
}
