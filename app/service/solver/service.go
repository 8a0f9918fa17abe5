package solver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/expr"
	"z3mcp/app/service/queue"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
	"github.com/samber/do"
	"github.com/samber/mo"
	"github.com/samber/oops"
)

var sorts = map[VariableType]expr.Sort{
	TypeInteger: expr.SortInt,
	TypeReal:    expr.SortReal,
	TypeBoolean: expr.SortBool,
	TypeString:  expr.SortString,
}

type Service struct {
	cfg      *config.Config
	engine   smt.Engine
	validate *validator.Validate
	queue    *queue.Service
}

func New(di *do.Injector) (*Service, error) {
	s := NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[smt.Engine](di),
	)
	s.queue = do.MustInvoke[*queue.Service](di)
	return s, nil
}

func NewService(cfg *config.Config, engine smt.Engine) *Service {
	return &Service{
		cfg:      cfg,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Solve decides the problem's constraints and, when satisfiable, reports a
// model. Unsatisfiable and unknown outcomes are successful results; only
// malformed input and engine failures are errors.
func (s *Service) Solve(ctx context.Context, p Problem) mo.Result[*Solution] {
	start := time.Now()

	res := mo.TupleToResult(s.solve(ctx, p))
	if res.IsError() {
		slog.Debug("Problem rejected", "error", res.Error())
		return res
	}

	solution := res.MustGet()
	slog.Info("Problem solved",
		"status", solution.Status,
		"variables", len(p.Variables),
		"constraints", len(p.Constraints),
		"took", time.Since(start),
	)

	return res
}

func (s *Service) solve(ctx context.Context, p Problem) (*Solution, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}

	scope, err := declare(p.Variables)
	if err != nil {
		return nil, err
	}
	scope.LimitLength(s.cfg.Solver.MaxExpressionLength)

	constraints := make([]*expr.Expr, len(p.Constraints))
	for i, c := range p.Constraints {
		e, err := expr.CompileBool(c.Expression, scope)
		if err != nil {
			return nil, oops.
				Code("parse_error").
				With("index", i).
				Wrapf(err, "error parsing constraint '%s'", c.Expression)
		}
		constraints[i] = e
	}

	release, err := s.queue.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.engine.NewSession(smt.Options{Timeout: s.cfg.Solver.Timeout})
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error creating solver")
	}
	defer session.Close()

	for _, v := range p.Variables {
		if err = session.Declare(v.Name, sorts[v.Type]); err != nil {
			return nil, err
		}
	}

	for i, e := range constraints {
		if err = session.Assert(Label(i, p.Constraints[i]), e); err != nil {
			return nil, err
		}
	}

	status, err := session.Check(ctx)
	if err != nil {
		return nil, oops.Code("solver_error").Wrapf(err, "error solving constraints")
	}

	solution := &Solution{
		Values:        make(map[string]any),
		IsSatisfiable: status == smt.StatusSat,
		Status:        string(status),
	}

	switch status {
	case smt.StatusSat:
		for _, v := range p.Variables {
			if value, ok := session.Value(v.Name).Get(); ok {
				solution.Values[v.Name] = value
			}
		}
	case smt.StatusUnsat:
		solution.UnsatCore = session.UnsatCore()
	default:
		solution.Reason = session.ReasonUnknown()
	}

	return solution, nil
}

func (s *Service) check(p Problem) error {
	if limit := s.cfg.Solver.MaxVariables; limit > 0 && len(p.Variables) > limit {
		return oops.Code("invalid_input").Errorf("too many variables: %d, at most %d allowed", len(p.Variables), limit)
	}
	if limit := s.cfg.Solver.MaxConstraints; limit > 0 && len(p.Constraints) > limit {
		return oops.Code("invalid_input").Errorf("too many constraints: %d, at most %d allowed", len(p.Constraints), limit)
	}

	for _, v := range p.Variables {
		if _, ok := sorts[v.Type]; v.Type != "" && !ok {
			return InvalidTypeError(string(v.Type))
		}
	}

	if err := s.validate.Struct(p); err != nil {
		return oops.Code("invalid_input").Wrapf(err, "invalid problem")
	}
	return nil
}

func declare(variables []Variable) (*expr.Scope, error) {
	scope := expr.NewScope()
	for _, v := range variables {
		if err := scope.Declare(v.Name, sorts[v.Type]); err != nil {
			return nil, err
		}
	}
	return scope, nil
}

// InvalidTypeError reports a variable type outside VariableTypes.
func InvalidTypeError(t string) error {
	names := pie.Map(VariableTypes, func(v VariableType) string {
		return string(v)
	})
	return oops.
		Code("invalid_input").
		With("type", t).
		Errorf("Invalid variable type: %s. Must be one of: %s", t, strings.Join(names, ", "))
}

// Label names a constraint in unsat cores.
func Label(i int, c Constraint) string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("#%d: %s", i, c.Expression)
}
