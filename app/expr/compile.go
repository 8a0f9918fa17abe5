package expr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

// Scope holds the names an expression may reference. Relationship queries
// additionally declare entities and relations.
type Scope struct {
	vars      map[string]Sort
	order     []string
	entities  map[string]bool
	relations map[string]bool
	maxLength int
}

func NewScope() *Scope {
	return &Scope{
		vars:      make(map[string]Sort),
		entities:  make(map[string]bool),
		relations: make(map[string]bool),
	}
}

func (s *Scope) Declare(name string, sort Sort) error {
	if !isIdent(name) {
		return oops.Code("invalid_input").With("variable", name).Errorf("invalid variable name %q", name)
	}
	if _, ok := builtins[name]; ok || isBoolLiteral(name) || isKeyword(name) {
		return oops.Code("invalid_input").With("variable", name).Errorf("variable name %q is reserved", name)
	}
	if _, ok := s.vars[name]; ok {
		return oops.Code("invalid_input").With("variable", name).Errorf("duplicate variable %q", name)
	}
	s.vars[name] = sort
	s.order = append(s.order, name)
	return nil
}

// LimitLength caps the source length of expressions compiled in this scope.
// Zero or negative selects DefaultMaxLength.
func (s *Scope) LimitLength(n int) {
	s.maxLength = n
}

func (s *Scope) DeclareEntity(name string) {
	s.entities[name] = true
}

func (s *Scope) DeclareRelation(name string) {
	s.relations[name] = true
}

func (s *Scope) Lookup(name string) (Sort, bool) {
	sort, ok := s.vars[name]
	return sort, ok
}

// Variables returns the declared variable names in declaration order.
func (s *Scope) Variables() []string {
	return append([]string(nil), s.order...)
}

func (s *Scope) relational() bool {
	return len(s.relations) > 0
}

// Compile parses src and type-checks it against scope.
func Compile(src string, scope *Scope) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, oops.Code("parse_error").Errorf("empty expression")
	}
	if err := checkLength(src, scope.maxLength); err != nil {
		return nil, err
	}
	if err := checkDepth(src); err != nil {
		return nil, err
	}

	tree, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, oops.Code("parse_error").With("expression", src).Wrapf(err, "syntax error")
	}

	c := &compiler{scope: scope}
	return c.impl(tree)
}

// CompileBool is Compile for expressions used as assertions.
func CompileBool(src string, scope *Scope) (*Expr, error) {
	e, err := Compile(src, scope)
	if err != nil {
		return nil, err
	}
	if !e.IsBool() {
		return nil, oops.Code("parse_error").
			With("expression", src).
			Errorf("expression must be boolean, got %s", e.Sort)
	}
	return e, nil
}

type compiler struct {
	scope *Scope
}

func (c *compiler) errorf(pos lexer.Position, format string, args ...any) error {
	return oops.Code("parse_error").
		With("line", pos.Line, "column", pos.Column).
		Errorf("%d:%d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...))
}

func (c *compiler) impl(n *implExpr) (*Expr, error) {
	left, err := c.or(n.Left)
	if err != nil || n.Right == nil {
		return left, err
	}

	right, err := c.impl(n.Right)
	if err != nil {
		return nil, err
	}
	if !left.IsBool() || !right.IsBool() {
		return nil, oops.Code("parse_error").Errorf("operator ==> expects Bool operands, got %s and %s", left.Sort, right.Sort)
	}

	return Implies(left, right), nil
}

func (c *compiler) or(n *orExpr) (*Expr, error) {
	left, err := c.and(n.Left)
	if err != nil || len(n.Rest) == 0 {
		return left, err
	}

	args := []*Expr{left}
	for _, r := range n.Rest {
		e, err := c.and(r)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}

	if err = requireBool("or", args); err != nil {
		return nil, err
	}
	return Or(args...), nil
}

func (c *compiler) and(n *andExpr) (*Expr, error) {
	left, err := c.not(n.Left)
	if err != nil || len(n.Rest) == 0 {
		return left, err
	}

	args := []*Expr{left}
	for _, r := range n.Rest {
		e, err := c.not(r)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}

	if err = requireBool("and", args); err != nil {
		return nil, err
	}
	return And(args...), nil
}

func (c *compiler) not(n *notExpr) (*Expr, error) {
	if n.Not == nil {
		return c.cmp(n.Cmp)
	}

	x, err := c.not(n.Not)
	if err != nil {
		return nil, err
	}
	if !x.IsBool() {
		return nil, c.errorf(n.Pos, "operator not expects Bool, got %s", x.Sort)
	}
	return Not(x), nil
}

func (c *compiler) cmp(n *cmpExpr) (*Expr, error) {
	left, err := c.add(n.Left)
	if err != nil || len(n.Rest) == 0 {
		return left, err
	}

	// a < b < c means a < b and b < c
	var conj []*Expr
	prev := left
	for _, op := range n.Rest {
		right, err := c.add(op.Right)
		if err != nil {
			return nil, err
		}

		e, err := c.compare(op.Pos, op.Op, prev, right)
		if err != nil {
			return nil, err
		}
		conj = append(conj, e)
		prev = right
	}

	if len(conj) == 1 {
		return conj[0], nil
	}
	return And(conj...), nil
}

var comparisons = map[string]Op{
	"==": OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

func (c *compiler) compare(pos lexer.Position, op string, l, r *Expr) (*Expr, error) {
	l, r, sort, err := unify(l, r)
	if err != nil {
		return nil, c.errorf(pos, "operator %s: %s", op, err)
	}

	kind := comparisons[op]
	if kind != OpEq && kind != OpNe && !sort.Numeric() {
		return nil, c.errorf(pos, "operator %s expects numbers, got %s", op, sort)
	}

	return &Expr{Op: kind, Sort: SortBool, Args: []*Expr{l, r}}, nil
}

func (c *compiler) add(n *addExpr) (*Expr, error) {
	left, err := c.mul(n.Left)
	if err != nil {
		return nil, err
	}

	for _, op := range n.Rest {
		right, err := c.mul(op.Right)
		if err != nil {
			return nil, err
		}
		if left, err = c.arith(op.Pos, op.Op, left, right); err != nil {
			return nil, err
		}
	}

	return left, nil
}

func (c *compiler) mul(n *mulExpr) (*Expr, error) {
	left, err := c.unary(n.Left)
	if err != nil {
		return nil, err
	}

	for _, op := range n.Rest {
		right, err := c.unary(op.Right)
		if err != nil {
			return nil, err
		}
		if left, err = c.arith(op.Pos, op.Op, left, right); err != nil {
			return nil, err
		}
	}

	return left, nil
}

var arithmetic = map[string]Op{
	"+": OpAdd,
	"-": OpSub,
	"*": OpMul,
	"/": OpDiv,
	"%": OpMod,
}

func (c *compiler) arith(pos lexer.Position, op string, l, r *Expr) (*Expr, error) {
	if op == "+" && l.Sort == SortString && r.Sort == SortString {
		return flatten(OpConcat, SortString, l, r), nil
	}

	l, r, sort, err := unify(l, r)
	if err != nil {
		return nil, c.errorf(pos, "operator %s: %s", op, err)
	}
	if !sort.Numeric() {
		return nil, c.errorf(pos, "operator %s expects numbers, got %s", op, sort)
	}
	if op == "%" && sort != SortInt {
		return nil, c.errorf(pos, "operator %% expects integers, got %s", sort)
	}

	kind := arithmetic[op]
	if kind == OpAdd || kind == OpMul {
		return flatten(kind, sort, l, r), nil
	}
	return &Expr{Op: kind, Sort: sort, Args: []*Expr{l, r}}, nil
}

func flatten(op Op, sort Sort, l, r *Expr) *Expr {
	if l.Op == op && l.Sort == sort {
		args := append(append([]*Expr(nil), l.Args...), r)
		return &Expr{Op: op, Sort: sort, Args: args}
	}
	return &Expr{Op: op, Sort: sort, Args: []*Expr{l, r}}
}

func (c *compiler) unary(n *unaryExpr) (*Expr, error) {
	if n.Neg == nil {
		return c.primary(n.Primary)
	}

	x, err := c.unary(n.Neg)
	if err != nil {
		return nil, err
	}
	if !x.Sort.Numeric() {
		return nil, c.errorf(n.Pos, "unary - expects a number, got %s", x.Sort)
	}

	if x.Op == OpConst {
		v, _ := new(big.Rat).SetString(x.Value)
		return numeral(v.Neg(v), x.Sort), nil
	}
	return &Expr{Op: OpNeg, Sort: x.Sort, Args: []*Expr{x}}, nil
}

func (c *compiler) primary(n *primary) (*Expr, error) {
	switch {
	case n.Int != nil:
		v, ok := new(big.Rat).SetString(*n.Int)
		if !ok {
			return nil, c.errorf(n.Pos, "invalid integer %q", *n.Int)
		}
		return numeral(v, SortInt), nil
	case n.Float != nil:
		v, ok := new(big.Rat).SetString(*n.Float)
		if !ok {
			return nil, c.errorf(n.Pos, "invalid number %q", *n.Float)
		}
		return numeral(v, SortReal), nil
	case n.Str != nil:
		s, err := strconv.Unquote(*n.Str)
		if err != nil {
			return nil, c.errorf(n.Pos, "invalid string literal %s", *n.Str)
		}
		return &Expr{Op: OpConst, Sort: SortString, Value: s}, nil
	case n.Sub != nil:
		return c.impl(n.Sub)
	default:
		return c.ref(n.Ref)
	}
}

func numeral(v *big.Rat, sort Sort) *Expr {
	if sort == SortInt {
		return &Expr{Op: OpConst, Sort: SortInt, Value: v.Num().String()}
	}
	return &Expr{Op: OpConst, Sort: SortReal, Value: v.RatString()}
}

func (c *compiler) ref(n *ref) (*Expr, error) {
	if n.Call != nil {
		return c.call(n)
	}

	if sort, ok := c.scope.vars[n.Name]; ok {
		return Var(n.Name, sort), nil
	}
	if c.scope.entities[n.Name] {
		return Entity(n.Name), nil
	}
	switch n.Name {
	case "true", "True":
		return Bool(true), nil
	case "false", "False":
		return Bool(false), nil
	}

	if c.scope.relational() {
		return nil, c.errorf(n.Pos, "unknown entity: %s", n.Name)
	}
	return nil, c.errorf(n.Pos, "undefined variable %q", n.Name)
}

func (c *compiler) call(n *ref) (*Expr, error) {
	if c.scope.relations[n.Name] {
		return c.relation(n)
	}

	build, ok := builtins[n.Name]
	if !ok {
		if c.scope.relational() {
			return nil, c.errorf(n.Pos, "unknown relation: %s", n.Name)
		}
		return nil, c.errorf(n.Pos, "unknown function %q", n.Name)
	}

	if n.Name == "ForAll" || n.Name == "Exists" {
		return c.quantifier(n)
	}

	args := make([]*Expr, 0, len(n.Call.Args))
	for _, a := range n.Call.Args {
		if a.Bound != nil {
			return nil, c.errorf(a.Pos, "list literal is only allowed as the first argument of ForAll/Exists")
		}
		e, err := c.impl(a.Expr)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}

	e, err := build(args)
	if err != nil {
		return nil, c.errorf(n.Pos, "%s: %s", n.Name, err)
	}
	return e, nil
}

func (c *compiler) quantifier(n *ref) (*Expr, error) {
	args := n.Call.Args
	if len(args) != 2 || args[0].Bound == nil || args[1].Expr == nil {
		return nil, c.errorf(n.Pos, "%s expects a variable list and a body, e.g. %s([x, y], x + y > 0)", n.Name, n.Name)
	}

	seen := make(map[string]bool)
	bound := make([]*Expr, 0, len(args[0].Bound))
	for _, name := range args[0].Bound {
		sort, ok := c.scope.vars[name]
		if !ok {
			return nil, c.errorf(args[0].Pos, "undefined variable %q", name)
		}
		if seen[name] {
			return nil, c.errorf(args[0].Pos, "variable %q bound twice", name)
		}
		seen[name] = true
		bound = append(bound, Var(name, sort))
	}

	body, err := c.impl(args[1].Expr)
	if err != nil {
		return nil, err
	}
	if !body.IsBool() {
		return nil, c.errorf(n.Pos, "%s body must be Bool, got %s", n.Name, body.Sort)
	}

	op := OpForAll
	if n.Name == "Exists" {
		op = OpExists
	}
	return &Expr{Op: op, Sort: SortBool, Bound: bound, Args: []*Expr{body}}, nil
}

func (c *compiler) relation(n *ref) (*Expr, error) {
	if len(n.Call.Args) != 2 {
		return nil, c.errorf(n.Pos, "relation %s expects exactly two entities, got %d", n.Name, len(n.Call.Args))
	}

	var entities [2]*Expr
	for i, a := range n.Call.Args {
		name, ok := a.name()
		if !ok {
			return nil, c.errorf(a.Pos, "relation %s: argument %d must be an entity name", n.Name, i+1)
		}
		if !c.scope.entities[name] {
			return nil, c.errorf(a.Pos, "unknown entity: %s", name)
		}
		entities[i] = Entity(name)
	}

	return Apply(n.Name, entities[0], entities[1]), nil
}

// name returns the identifier or string literal an argument consists of.
func (a *arg) name() (string, bool) {
	if a.Expr == nil {
		return "", false
	}
	p := a.Expr.atom()
	if p == nil {
		return "", false
	}
	switch {
	case p.Ref != nil && p.Ref.Call == nil:
		return p.Ref.Name, true
	case p.Str != nil:
		s, err := strconv.Unquote(*p.Str)
		return s, err == nil
	case p.Sub != nil:
		return (&arg{Expr: p.Sub}).name()
	}
	return "", false
}

func (n *implExpr) atom() *primary {
	if n.Right != nil || len(n.Left.Rest) > 0 || len(n.Left.Left.Rest) > 0 {
		return nil
	}
	not := n.Left.Left.Left
	if not.Not != nil || len(not.Cmp.Rest) > 0 || len(not.Cmp.Left.Rest) > 0 || len(not.Cmp.Left.Left.Rest) > 0 {
		return nil
	}
	return not.Cmp.Left.Left.Left.Primary
}

// unify brings two operands to a common sort. Integer literals adapt to a
// real context; other integer terms never mix with reals.
func unify(l, r *Expr) (*Expr, *Expr, Sort, error) {
	if l.Sort == r.Sort {
		return l, r, l.Sort, nil
	}

	if l.Sort.Numeric() && r.Sort.Numeric() {
		if l.Sort == SortInt {
			if p, ok := promote(l); ok {
				return p, r, SortReal, nil
			}
			return nil, nil, 0, fmt.Errorf("cannot mix Int term %s with Real term %s; declare the variables as real", l, r)
		}
		if p, ok := promote(r); ok {
			return l, p, SortReal, nil
		}
		return nil, nil, 0, fmt.Errorf("cannot mix Real term %s with Int term %s; declare the variables as real", l, r)
	}

	return nil, nil, 0, fmt.Errorf("mismatched operands %s and %s", l.Sort, r.Sort)
}

// promote rewrites an integer expression built only from literals as a real.
func promote(e *Expr) (*Expr, bool) {
	switch e.Op {
	case OpConst:
		return &Expr{Op: OpConst, Sort: SortReal, Value: e.Value}, true
	case OpNeg, OpAdd, OpSub, OpMul, OpDiv:
		args := make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			p, ok := promote(a)
			if !ok {
				return nil, false
			}
			args[i] = p
		}
		return &Expr{Op: e.Op, Sort: SortReal, Args: args}, true
	default:
		return nil, false
	}
}

func requireBool(op string, args []*Expr) error {
	for _, a := range args {
		if !a.IsBool() {
			return oops.Code("parse_error").Errorf("operator %s expects Bool operands, got %s in %s", op, a.Sort, a)
		}
	}
	return nil
}

func isBoolLiteral(name string) bool {
	switch name {
	case "true", "True", "false", "False":
		return true
	}
	return false
}

func isKeyword(name string) bool {
	switch name {
	case "and", "or", "not":
		return true
	}
	return false
}

func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
