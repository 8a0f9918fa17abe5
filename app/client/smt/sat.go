package smt

import (
	"context"
	"time"
	"z3mcp/app/expr"

	"github.com/elliotchance/pie/v2"
	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/samber/mo"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// maxExpansion caps the quantifier instances a session may expand in total.
// Nested quantifiers multiply, so the cost is computed before translating.
const maxExpansion = 1 << 19

type satEngine struct{}

// NewSAT returns the pure Go engine. It decides boolean problems, including
// relationship domains, by bit-blasting into a gini circuit.
func NewSAT() Engine {
	return satEngine{}
}

func (satEngine) Name() string {
	return "sat"
}

func (satEngine) NewSession(opts Options) (Session, error) {
	return &satSession{
		opts:      opts,
		c:         logic.NewC(),
		vars:      make(map[string]z.Lit),
		entities:  make(map[string]bool),
		relations: make(map[string]bool),
		atoms:     make(map[atom]z.Lit),
	}, nil
}

type atom struct {
	relation string
	a, b     string
}

type satAssertion struct {
	label string
	lit   z.Lit
}

type satSession struct {
	opts Options
	c    *logic.C

	vars      map[string]z.Lit
	order     []string
	entities  map[string]bool
	domain    []string
	relations map[string]bool
	atoms     map[atom]z.Lit

	assertions []satAssertion
	expanded   int
	steps      int
	until      time.Time

	model  map[string]bool
	core   []string
	reason string
}

func (s *satSession) Declare(name string, sort expr.Sort) error {
	if sort != expr.SortBool {
		return unsupported("the sat engine only supports boolean variables, %q is %s", name, sort)
	}
	if _, ok := s.vars[name]; ok {
		return solverError("variable %q declared twice", name)
	}

	s.vars[name] = s.c.Lit()
	s.order = append(s.order, name)
	return nil
}

func (s *satSession) DeclareDomain(entities, relations []string) error {
	for _, e := range entities {
		if !s.entities[e] {
			s.entities[e] = true
			s.domain = append(s.domain, e)
		}
	}
	for _, r := range relations {
		s.relations[r] = true
	}
	return nil
}

func (s *satSession) Assert(label string, e *expr.Expr) error {
	lit, err := s.expand(e)
	if err != nil {
		return err
	}

	s.assertions = append(s.assertions, satAssertion{label: label, lit: lit})
	return nil
}

func (s *satSession) Check(ctx context.Context) (Status, error) {
	return s.check(ctx, z.LitNull)
}

func (s *satSession) CheckAssuming(ctx context.Context, e *expr.Expr) (Status, error) {
	lit, err := s.expand(e)
	if err != nil {
		return StatusUnknown, err
	}
	return s.check(ctx, lit)
}

func (s *satSession) check(ctx context.Context, extra z.Lit) (Status, error) {
	s.model, s.core, s.reason = nil, nil, ""

	if err := ctx.Err(); err != nil {
		s.reason = "canceled"
		return StatusUnknown, nil
	}

	// A fresh solver per check keeps assumptions from leaking between calls.
	g := gini.New()
	s.c.ToCnf(g)
	g.Add(s.c.T)
	g.Add(z.LitNull)

	for _, name := range s.order {
		s.touch(g, s.vars[name])
	}
	for _, lit := range s.atoms {
		s.touch(g, lit)
	}

	for _, a := range s.assertions {
		s.touch(g, a.lit)
		g.Assume(a.lit)
	}
	if extra != z.LitNull {
		s.touch(g, extra)
		g.Assume(extra)
	}

	switch s.solve(ctx, g) {
	case satisfiable:
		s.model = make(map[string]bool, len(s.order))
		for _, name := range s.order {
			s.model[name] = g.Value(s.vars[name])
		}
		return StatusSat, nil
	case unsatisfiable:
		s.core = s.explain(g.Why(nil))
		return StatusUnsat, nil
	default:
		if s.reason == "" {
			s.reason = "incomplete"
		}
		return StatusUnknown, nil
	}
}

// touch makes the solver aware of a variable that may not occur in any
// gate, so that assuming or reading it stays in range.
func (s *satSession) touch(g inter.Adder, lit z.Lit) {
	if lit == s.c.T || lit == s.c.F {
		return
	}
	g.Add(lit)
	g.Add(s.c.T)
	g.Add(z.LitNull)
}

func (s *satSession) solve(ctx context.Context, g inter.S) int {
	limit := deadline(ctx, s.opts.Timeout)
	if limit == 0 && ctx.Done() == nil {
		return g.Solve()
	}

	run := g.GoSolve()

	var expired <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if res, done := run.Test(); done {
			return res
		}

		select {
		case <-ctx.Done():
			s.reason = "canceled"
			return run.Stop()
		case <-expired:
			s.reason = "timeout"
			return run.Stop()
		case <-ticker.C:
		}
	}
}

// explain maps failed assumptions back to assertion labels.
func (s *satSession) explain(failed []z.Lit) []string {
	var core []string
	seen := make(map[string]bool)
	for _, a := range s.assertions {
		if pie.Contains(failed, a.lit) && !seen[a.label] {
			seen[a.label] = true
			core = append(core, a.label)
		}
	}
	return core
}

func (s *satSession) Value(name string) mo.Option[any] {
	v, ok := s.model[name]
	if !ok {
		return mo.None[any]()
	}
	return mo.Some[any](v)
}

func (s *satSession) UnsatCore() []string {
	return s.core
}

func (s *satSession) ReasonUnknown() string {
	return s.reason
}

func (s *satSession) Close() {}

// bindings maps quantified variables: booleans to constants, entity
// variables to entity names.
type bindings struct {
	bools    map[string]z.Lit
	entities map[string]string
}

func (b bindings) clone() bindings {
	inner := bindings{
		bools:    make(map[string]z.Lit, len(b.bools)+1),
		entities: make(map[string]string, len(b.entities)+1),
	}
	for k, lit := range b.bools {
		inner.bools[k] = lit
	}
	for k, name := range b.entities {
		inner.entities[k] = name
	}
	return inner
}

// expand charges the quantifier instances of e against the session budget
// and translates it.
func (s *satSession) expand(e *expr.Expr) (z.Lit, error) {
	cost := s.expansion(e)
	if s.expanded+cost > maxExpansion {
		return z.LitNull, unsupported("quantifiers expand into more than %d instances, the sat engine cannot decide them", maxExpansion)
	}
	s.expanded += cost

	s.until = time.Time{}
	if s.opts.Timeout > 0 {
		s.until = time.Now().Add(s.opts.Timeout)
	}
	return s.translate(e, bindings{})
}

// expansion counts the quantifier instances translating e would produce,
// saturating above the budget.
func (s *satSession) expansion(e *expr.Expr) int {
	total := 0
	if e.Op == expr.OpForAll || e.Op == expr.OpExists {
		total = 1
		for _, v := range e.Bound {
			total *= s.domainSize(v)
			if total > maxExpansion {
				return maxExpansion + 1
			}
		}
		total *= max(1, s.expansion(e.Args[0]))
		return min(total, maxExpansion+1)
	}

	for _, a := range e.Args {
		total = min(total+s.expansion(a), maxExpansion+1)
	}
	return total
}

func (s *satSession) domainSize(v *expr.Expr) int {
	if v.Sort == expr.SortEntity {
		return len(s.domain)
	}
	return 2
}

// translate builds the circuit literal of a boolean expression.
func (s *satSession) translate(e *expr.Expr, env bindings) (z.Lit, error) {
	if !e.IsBool() {
		return z.LitNull, unsupported("the sat engine cannot reason about %s terms: %s", e.Sort, e)
	}

	switch e.Op {
	case expr.OpConst:
		if e.Value == "true" {
			return s.c.T, nil
		}
		return s.c.F, nil

	case expr.OpVar:
		if lit, ok := env.bools[e.Name]; ok {
			return lit, nil
		}
		lit, ok := s.vars[e.Name]
		if !ok {
			return z.LitNull, solverError("undeclared variable %q", e.Name)
		}
		return lit, nil

	case expr.OpApply:
		return s.atom(e, env)

	case expr.OpNot:
		lit, err := s.translate(e.Args[0], env)
		return lit.Not(), err

	case expr.OpAnd, expr.OpOr:
		lits, err := s.translateAll(e.Args, env)
		if err != nil {
			return z.LitNull, err
		}
		if e.Op == expr.OpAnd {
			return s.ands(lits), nil
		}
		return s.ors(lits), nil

	case expr.OpImplies:
		lits, err := s.translateAll(e.Args, env)
		if err != nil {
			return z.LitNull, err
		}
		return s.c.Or(lits[0].Not(), lits[1]), nil

	case expr.OpXor:
		lits, err := s.translateAll(e.Args, env)
		if err != nil {
			return z.LitNull, err
		}
		return s.iff(lits[0], lits[1]).Not(), nil

	case expr.OpIte:
		lits, err := s.translateAll(e.Args, env)
		if err != nil {
			return z.LitNull, err
		}
		return s.c.Or(s.c.And(lits[0], lits[1]), s.c.And(lits[0].Not(), lits[2])), nil

	case expr.OpEq, expr.OpNe, expr.OpDistinct:
		return s.equality(e, env)

	case expr.OpForAll, expr.OpExists:
		return s.quantifier(e, env)
	}

	return z.LitNull, unsupported("the sat engine does not support %s", e.Op)
}

func (s *satSession) translateAll(args []*expr.Expr, env bindings) ([]z.Lit, error) {
	lits := make([]z.Lit, len(args))
	for i, a := range args {
		lit, err := s.translate(a, env)
		if err != nil {
			return nil, err
		}
		lits[i] = lit
	}
	return lits, nil
}

func (s *satSession) ands(lits []z.Lit) z.Lit {
	if len(lits) == 0 {
		return s.c.T
	}
	return s.c.Ands(lits...)
}

func (s *satSession) ors(lits []z.Lit) z.Lit {
	if len(lits) == 0 {
		return s.c.F
	}
	return s.c.Ors(lits...)
}

func (s *satSession) iff(a, b z.Lit) z.Lit {
	return s.c.Or(s.c.And(a, b), s.c.And(a.Not(), b.Not()))
}

// equality handles ==, != and Distinct over booleans and entities. Entities
// are distinct constants, so their comparisons fold at translation time.
func (s *satSession) equality(e *expr.Expr, env bindings) (z.Lit, error) {
	var pairs []z.Lit
	for i := 0; i < len(e.Args); i++ {
		for j := i + 1; j < len(e.Args); j++ {
			lit, err := s.equal(e.Args[i], e.Args[j], env)
			if err != nil {
				return z.LitNull, err
			}
			pairs = append(pairs, lit)
		}
	}

	if e.Op == expr.OpEq {
		return s.ands(pairs), nil
	}

	distinct := make([]z.Lit, len(pairs))
	for i, p := range pairs {
		distinct[i] = p.Not()
	}
	return s.ands(distinct), nil
}

func (s *satSession) equal(a, b *expr.Expr, env bindings) (z.Lit, error) {
	switch {
	case a.Sort == expr.SortEntity && b.Sort == expr.SortEntity:
		x, err := s.entity(a, env)
		if err != nil {
			return z.LitNull, err
		}
		y, err := s.entity(b, env)
		if err != nil {
			return z.LitNull, err
		}
		if x == y {
			return s.c.T, nil
		}
		return s.c.F, nil
	case a.IsBool() && b.IsBool():
		x, err := s.translate(a, env)
		if err != nil {
			return z.LitNull, err
		}
		y, err := s.translate(b, env)
		if err != nil {
			return z.LitNull, err
		}
		return s.iff(x, y), nil
	}
	return z.LitNull, unsupported("the sat engine cannot compare %s terms: %s", a.Sort, a)
}

// quantifier expands e over every assignment of its bound variables:
// booleans range over true and false, entities over the declared domain.
func (s *satSession) quantifier(e *expr.Expr, outer bindings) (z.Lit, error) {
	domains := make([][]string, len(e.Bound))
	for i, v := range e.Bound {
		switch v.Sort {
		case expr.SortBool:
			domains[i] = []string{"false", "true"}
		case expr.SortEntity:
			domains[i] = s.domain
		default:
			return z.LitNull, unsupported("the sat engine only quantifies over booleans and entities, %s is %s", v.Name, v.Sort)
		}
		if len(domains[i]) == 0 {
			return s.vacuous(e.Op), nil
		}
	}

	inner := outer.clone()
	pos := make([]int, len(e.Bound))
	var instances []z.Lit

	for {
		for i, v := range e.Bound {
			value := domains[i][pos[i]]
			if v.Sort == expr.SortEntity {
				inner.entities[v.Name] = value
				delete(inner.bools, v.Name)
			} else {
				inner.bools[v.Name] = s.c.F
				if value == "true" {
					inner.bools[v.Name] = s.c.T
				}
				delete(inner.entities, v.Name)
			}
		}

		lit, err := s.translate(e.Args[0], inner)
		if err != nil {
			return z.LitNull, err
		}
		instances = append(instances, lit)

		s.steps++
		if s.steps%1024 == 0 && !s.until.IsZero() && time.Now().After(s.until) {
			return z.LitNull, solverError("timed out expanding quantifiers after %s", s.opts.Timeout)
		}

		i := 0
		for ; i < len(pos); i++ {
			pos[i]++
			if pos[i] < len(domains[i]) {
				break
			}
			pos[i] = 0
		}
		if i == len(pos) {
			break
		}
	}

	if e.Op == expr.OpForAll {
		return s.ands(instances), nil
	}
	return s.ors(instances), nil
}

// vacuous is the value of a quantifier over an empty domain.
func (s *satSession) vacuous(op expr.Op) z.Lit {
	if op == expr.OpForAll {
		return s.c.T
	}
	return s.c.F
}

// entity resolves an entity constant or a bound entity variable to its name.
func (s *satSession) entity(e *expr.Expr, env bindings) (string, error) {
	name := e.Name
	if e.Op == expr.OpVar {
		bound, ok := env.entities[e.Name]
		if !ok {
			return "", solverError("unbound entity variable %q", e.Name)
		}
		name = bound
	} else if e.Op != expr.OpEntity {
		return "", solverError("not an entity: %s", e)
	}
	if !s.entities[name] {
		return "", solverError("undeclared entity %s", name)
	}
	return name, nil
}

func (s *satSession) atom(e *expr.Expr, env bindings) (z.Lit, error) {
	if !s.relations[e.Name] {
		return z.LitNull, solverError("undeclared relation %q", e.Name)
	}
	a, err := s.entity(e.Args[0], env)
	if err != nil {
		return z.LitNull, err
	}
	b, err := s.entity(e.Args[1], env)
	if err != nil {
		return z.LitNull, err
	}

	key := atom{relation: e.Name, a: a, b: b}
	lit, ok := s.atoms[key]
	if !ok {
		lit = s.c.Lit()
		s.atoms[key] = lit
	}
	return lit, nil
}
