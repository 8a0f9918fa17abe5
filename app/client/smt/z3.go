//go:build cgo && !noz3

package smt

import (
	"context"
	"fmt"
	"time"
	"z3mcp/app/expr"

	z3 "github.com/Z3Prover/z3/src/api/go"
	"github.com/samber/mo"
)

const entitySortName = "Entity"

func Z3Available() bool {
	return true
}

type z3Engine struct{}

// NewZ3 returns the engine backed by the Z3 C library.
func NewZ3() Engine {
	return z3Engine{}
}

func (z3Engine) Name() string {
	return "z3"
}

func (z3Engine) NewSession(opts Options) (Session, error) {
	ctx := z3.NewContext()

	return &z3Session{
		opts:      opts,
		ctx:       ctx,
		solver:    ctx.NewSolver(),
		vars:      make(map[string]*z3.Expr),
		sorts:     make(map[string]expr.Sort),
		entities:  make(map[string]*z3.Expr),
		relations: make(map[string]*z3.FuncDecl),
		bound:     make(map[string]*z3.Expr),
	}, nil
}

type z3Track struct {
	label string
	lit   *z3.Expr
}

type z3Session struct {
	opts   Options
	ctx    *z3.Context
	solver *z3.Solver

	vars       map[string]*z3.Expr
	sorts      map[string]expr.Sort
	entitySort *z3.Sort
	entities   map[string]*z3.Expr
	relations  map[string]*z3.FuncDecl
	bound      map[string]*z3.Expr

	tracks []z3Track
	fresh  int

	model  *z3.Model
	core   []string
	reason string
}

func (s *z3Session) sort(sort expr.Sort) (*z3.Sort, error) {
	switch sort {
	case expr.SortBool:
		return s.ctx.MkBoolSort(), nil
	case expr.SortInt:
		return s.ctx.MkIntSort(), nil
	case expr.SortReal:
		return s.ctx.MkRealSort(), nil
	case expr.SortString:
		return s.ctx.MkStringSort(), nil
	}
	return nil, unsupported("cannot declare a variable of sort %s", sort)
}

func (s *z3Session) Declare(name string, sort expr.Sort) error {
	if _, ok := s.vars[name]; ok {
		return solverError("variable %q declared twice", name)
	}

	zs, err := s.sort(sort)
	if err != nil {
		return err
	}

	s.vars[name] = s.ctx.MkConst(s.ctx.MkStringSymbol(name), zs)
	s.sorts[name] = sort
	return nil
}

// DeclareDomain models entities as the constants of an enumeration sort, so
// distinct names denote distinct individuals.
func (s *z3Session) DeclareDomain(entities, relations []string) error {
	if len(entities) == 0 {
		if len(relations) > 0 {
			return solverError("relations declared over an empty entity domain")
		}
		return nil
	}
	if len(s.entities) > 0 {
		return solverError("entity domain declared twice")
	}

	entitySort, consts, _ := s.ctx.MkEnumSort(entitySortName, entities)
	s.entitySort = entitySort
	for i, name := range entities {
		s.entities[name] = s.ctx.MkApp(consts[i])
	}

	domain := []*z3.Sort{entitySort, entitySort}
	for _, r := range relations {
		s.relations[r] = s.ctx.MkFuncDecl(s.ctx.MkStringSymbol(r), domain, s.ctx.MkBoolSort())
	}
	return nil
}

func (s *z3Session) Assert(label string, e *expr.Expr) error {
	constraint, err := s.assertion(e)
	if err != nil {
		return err
	}

	track := s.ctx.MkBoolConst(fmt.Sprintf("track!%d", len(s.tracks)))
	s.solver.AssertAndTrack(constraint, track)
	s.tracks = append(s.tracks, z3Track{label: label, lit: track})
	return nil
}

// assertion translates a boolean expression together with the side
// conditions that define its If terms.
func (s *z3Session) assertion(e *expr.Expr) (*z3.Expr, error) {
	if !e.IsBool() {
		return nil, solverError("assertion must be boolean, got %s", e.Sort)
	}

	var side []*z3.Expr
	t, err := s.translate(e, &side, false)
	if err != nil {
		return nil, err
	}
	return s.ctx.MkAnd(append(side, t)...), nil
}

func (s *z3Session) Check(ctx context.Context) (Status, error) {
	return s.run(ctx), nil
}

func (s *z3Session) CheckAssuming(ctx context.Context, e *expr.Expr) (Status, error) {
	constraint, err := s.assertion(e)
	if err != nil {
		return StatusUnknown, err
	}

	s.solver.Push()
	defer s.solver.Pop(1)

	s.solver.Assert(constraint)
	return s.run(ctx), nil
}

func (s *z3Session) run(ctx context.Context) Status {
	s.model, s.core, s.reason = nil, nil, ""

	if err := ctx.Err(); err != nil {
		s.reason = "canceled"
		return StatusUnknown
	}

	if limit := deadline(ctx, s.opts.Timeout); limit > 0 {
		params := s.ctx.MkParams()
		params.SetUint("timeout", uint(max(limit, time.Millisecond).Milliseconds()))
		s.solver.SetParams(params)
	}

	// The watcher is joined before returning, so no Interrupt outlives the check.
	solver := s.solver
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			solver.Interrupt()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-exited
	}()

	switch solver.Check() {
	case z3.Satisfiable:
		s.model = solver.Model()
		return StatusSat
	case z3.Unsatisfiable:
		s.core = s.explain(solver.UnsatCore())
		return StatusUnsat
	default:
		s.reason = solver.ReasonUnknown()
		if ctx.Err() != nil {
			s.reason = "canceled"
		}
		return StatusUnknown
	}
}

func (s *z3Session) explain(core []*z3.Expr) []string {
	var labels []string
	for _, t := range s.tracks {
		for _, c := range core {
			if t.lit.Equal(c) {
				labels = append(labels, t.label)
				break
			}
		}
	}
	return labels
}

func (s *z3Session) Value(name string) mo.Option[any] {
	v, ok := s.vars[name]
	if !ok || s.model == nil {
		return mo.None[any]()
	}

	val, ok := s.model.Eval(v, true)
	if !ok {
		return mo.None[any]()
	}
	return mo.Some(parseValue(s.sorts[name], val.String()))
}

func (s *z3Session) UnsatCore() []string {
	return s.core
}

func (s *z3Session) ReasonUnknown() string {
	return s.reason
}

// Close drops the references held by the session. Z3 objects are released
// by their finalizers.
func (s *z3Session) Close() {
	s.model = nil
	s.tracks = nil
	s.vars = nil
	s.entities = nil
	s.relations = nil
	s.solver = nil
}

// translate lowers e into a Z3 term. If over non-boolean sorts becomes a
// fresh constant whose defining equalities are appended to side; that is not
// sound under a quantifier, so it is rejected there.
func (s *z3Session) translate(e *expr.Expr, side *[]*z3.Expr, quantified bool) (*z3.Expr, error) {
	switch e.Op {
	case expr.OpConst:
		return s.constant(e)

	case expr.OpVar:
		if v, ok := s.bound[e.Name]; ok {
			return v, nil
		}
		v, ok := s.vars[e.Name]
		if !ok {
			return nil, solverError("undeclared variable %q", e.Name)
		}
		return v, nil

	case expr.OpEntity:
		v, ok := s.entities[e.Name]
		if !ok {
			return nil, solverError("undeclared entity %q", e.Name)
		}
		return v, nil

	case expr.OpApply:
		decl, ok := s.relations[e.Name]
		if !ok {
			return nil, solverError("undeclared relation %q", e.Name)
		}
		args, err := s.translateAll(e.Args, side, quantified)
		if err != nil {
			return nil, err
		}
		return s.ctx.MkApp(decl, args...), nil

	case expr.OpForAll, expr.OpExists:
		return s.quantifier(e, side)

	case expr.OpIte:
		return s.ite(e, side, quantified)
	}

	args, err := s.translateAll(e.Args, side, quantified)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case expr.OpNeg:
		return s.ctx.MkSub(args[0]), nil
	case expr.OpAdd:
		return s.ctx.MkAdd(args...), nil
	case expr.OpSub:
		return s.ctx.MkSub(args...), nil
	case expr.OpMul:
		return s.ctx.MkMul(args...), nil
	case expr.OpDiv:
		return s.ctx.MkDiv(args[0], args[1]), nil
	case expr.OpMod:
		return s.ctx.MkMod(args[0], args[1]), nil
	case expr.OpEq:
		return s.ctx.MkEq(args[0], args[1]), nil
	case expr.OpNe:
		return s.ctx.MkNot(s.ctx.MkEq(args[0], args[1])), nil
	case expr.OpLt:
		return s.ctx.MkLt(args[0], args[1]), nil
	case expr.OpLe:
		return s.ctx.MkLe(args[0], args[1]), nil
	case expr.OpGt:
		return s.ctx.MkGt(args[0], args[1]), nil
	case expr.OpGe:
		return s.ctx.MkGe(args[0], args[1]), nil
	case expr.OpNot:
		return s.ctx.MkNot(args[0]), nil
	case expr.OpAnd:
		return s.ctx.MkAnd(args...), nil
	case expr.OpOr:
		return s.ctx.MkOr(args...), nil
	case expr.OpImplies:
		return s.ctx.MkImplies(args[0], args[1]), nil
	case expr.OpXor:
		return s.ctx.MkXor(args[0], args[1]), nil
	case expr.OpDistinct:
		return s.ctx.MkDistinct(args...), nil
	case expr.OpConcat:
		return s.ctx.MkSeqConcat(args...), nil
	case expr.OpLength:
		return s.ctx.MkSeqLength(args[0]), nil
	case expr.OpContains:
		return s.ctx.MkSeqContains(args[0], args[1]), nil
	case expr.OpPrefixOf:
		return s.ctx.MkSeqPrefix(args[0], args[1]), nil
	case expr.OpSuffixOf:
		return s.ctx.MkSeqSuffix(args[0], args[1]), nil
	}

	return nil, unsupported("operator %s is not supported by the z3 engine", e.Op)
}

// quantifier binds entity variables to fresh constants of the entity sort
// while translating the body. Other bound variables reuse their declaration.
func (s *z3Session) quantifier(e *expr.Expr, side *[]*z3.Expr) (*z3.Expr, error) {
	bound := make([]*z3.Expr, len(e.Bound))
	for i, v := range e.Bound {
		if v.Sort != expr.SortEntity {
			t, err := s.translate(v, side, true)
			if err != nil {
				return nil, err
			}
			bound[i] = t
			continue
		}

		if s.entitySort == nil {
			return nil, solverError("entity variable %q used without an entity domain", v.Name)
		}
		outer, shadowed := s.bound[v.Name]
		defer func() {
			if shadowed {
				s.bound[v.Name] = outer
			} else {
				delete(s.bound, v.Name)
			}
		}()
		bound[i] = s.ctx.MkConst(s.ctx.MkStringSymbol(v.Name), s.entitySort)
		s.bound[v.Name] = bound[i]
	}

	body, err := s.translate(e.Args[0], side, true)
	if err != nil {
		return nil, err
	}
	if e.Op == expr.OpForAll {
		return s.ctx.MkForall(bound, body), nil
	}
	return s.ctx.MkExists(bound, body), nil
}

func (s *z3Session) translateAll(es []*expr.Expr, side *[]*z3.Expr, quantified bool) ([]*z3.Expr, error) {
	out := make([]*z3.Expr, len(es))
	for i, e := range es {
		t, err := s.translate(e, side, quantified)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (s *z3Session) constant(e *expr.Expr) (*z3.Expr, error) {
	switch e.Sort {
	case expr.SortBool:
		return s.ctx.MkBool(e.Value == "true"), nil
	case expr.SortString:
		return s.ctx.MkString(e.Value), nil
	case expr.SortInt, expr.SortReal:
		zs, err := s.sort(e.Sort)
		if err != nil {
			return nil, err
		}
		if len(e.Value) > 1 && e.Value[0] == '-' {
			return s.ctx.MkSub(s.ctx.MkNumeral(e.Value[1:], zs)), nil
		}
		return s.ctx.MkNumeral(e.Value, zs), nil
	}
	return nil, unsupported("constant of sort %s", e.Sort)
}

func (s *z3Session) ite(e *expr.Expr, side *[]*z3.Expr, quantified bool) (*z3.Expr, error) {
	args, err := s.translateAll(e.Args, side, quantified)
	if err != nil {
		return nil, err
	}
	cond, then, els := args[0], args[1], args[2]

	if e.Sort == expr.SortBool {
		return s.ctx.MkOr(
			s.ctx.MkAnd(cond, then),
			s.ctx.MkAnd(s.ctx.MkNot(cond), els),
		), nil
	}

	if quantified {
		return nil, unsupported("If over %s values cannot be used inside ForAll/Exists", e.Sort)
	}

	zs, err := s.sort(e.Sort)
	if err != nil {
		return nil, err
	}

	s.fresh++
	v := s.ctx.MkConst(s.ctx.MkStringSymbol(fmt.Sprintf("ite!%d", s.fresh)), zs)
	*side = append(*side,
		s.ctx.MkImplies(cond, s.ctx.MkEq(v, then)),
		s.ctx.MkImplies(s.ctx.MkNot(cond), s.ctx.MkEq(v, els)),
	)
	return v, nil
}
