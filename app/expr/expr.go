// Package expr parses and type-checks the constraint language accepted by the
// solver tools. Expressions follow the z3py surface syntax (And, Or, If,
// Distinct, ForAll, ...) plus Python-style operators, and compile into a small
// sorted tree that the solver engines translate.
package expr

import (
	"fmt"
	"strings"
)

type Sort int

const (
	SortBool Sort = iota + 1
	SortInt
	SortReal
	SortString
	SortEntity
)

func (s Sort) String() string {
	switch s {
	case SortBool:
		return "Bool"
	case SortInt:
		return "Int"
	case SortReal:
		return "Real"
	case SortString:
		return "String"
	case SortEntity:
		return "Entity"
	default:
		return "Unknown"
	}
}

func (s Sort) Numeric() bool {
	return s == SortInt || s == SortReal
}

type Op int

const (
	OpConst Op = iota + 1
	OpVar
	OpEntity
	OpApply

	OpNeg
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	OpNot
	OpAnd
	OpOr
	OpImplies
	OpXor
	OpIte
	OpDistinct
	OpForAll
	OpExists

	OpConcat
	OpLength
	OpContains
	OpPrefixOf
	OpSuffixOf
)

var opNames = map[Op]string{
	OpConst:    "const",
	OpVar:      "var",
	OpEntity:   "entity",
	OpApply:    "apply",
	OpNeg:      "-",
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpEq:       "==",
	OpNe:       "!=",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpNot:      "Not",
	OpAnd:      "And",
	OpOr:       "Or",
	OpImplies:  "Implies",
	OpXor:      "Xor",
	OpIte:      "If",
	OpDistinct: "Distinct",
	OpForAll:   "ForAll",
	OpExists:   "Exists",
	OpConcat:   "Concat",
	OpLength:   "Length",
	OpContains: "Contains",
	OpPrefixOf: "PrefixOf",
	OpSuffixOf: "SuffixOf",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Expr is a sorted expression node. Constants keep their literal text in
// Value: decimal integers, rationals as "num/den", "true"/"false", or the raw
// string contents.
type Expr struct {
	Op    Op
	Sort  Sort
	Name  string
	Value string
	Args  []*Expr
	Bound []*Expr
}

func Bool(v bool) *Expr {
	return &Expr{Op: OpConst, Sort: SortBool, Value: fmt.Sprint(v)}
}

func Var(name string, sort Sort) *Expr {
	return &Expr{Op: OpVar, Sort: sort, Name: name}
}

func Entity(name string) *Expr {
	return &Expr{Op: OpEntity, Sort: SortEntity, Name: name}
}

// Apply builds the application of a binary relation to two entities.
func Apply(relation string, a, b *Expr) *Expr {
	return &Expr{Op: OpApply, Sort: SortBool, Name: relation, Args: []*Expr{a, b}}
}

func Not(e *Expr) *Expr {
	return &Expr{Op: OpNot, Sort: SortBool, Args: []*Expr{e}}
}

func And(es ...*Expr) *Expr {
	return &Expr{Op: OpAnd, Sort: SortBool, Args: es}
}

func Or(es ...*Expr) *Expr {
	return &Expr{Op: OpOr, Sort: SortBool, Args: es}
}

func Implies(a, b *Expr) *Expr {
	return &Expr{Op: OpImplies, Sort: SortBool, Args: []*Expr{a, b}}
}

// ForAll quantifies body over the bound variables.
func ForAll(bound []*Expr, body *Expr) *Expr {
	return &Expr{Op: OpForAll, Sort: SortBool, Bound: bound, Args: []*Expr{body}}
}

func (e *Expr) IsBool() bool {
	return e != nil && e.Sort == SortBool
}

// String renders the expression in the same surface syntax it was parsed from.
func (e *Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Expr) write(b *strings.Builder) {
	switch e.Op {
	case OpConst:
		if e.Sort == SortString {
			fmt.Fprintf(b, "%q", e.Value)
			return
		}
		b.WriteString(e.Value)
	case OpVar, OpEntity:
		b.WriteString(e.Name)
	case OpApply:
		b.WriteString(e.Name)
		writeArgs(b, e.Args)
	case OpNeg:
		b.WriteString("-")
		e.Args[0].write(b)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		b.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				fmt.Fprintf(b, " %s ", e.Op)
			}
			a.write(b)
		}
		b.WriteString(")")
	case OpForAll, OpExists:
		b.WriteString(e.Op.String())
		b.WriteString("([")
		for i, v := range e.Bound {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.Name)
		}
		b.WriteString("], ")
		e.Args[0].write(b)
		b.WriteString(")")
	default:
		b.WriteString(e.Op.String())
		writeArgs(b, e.Args)
	}
}

func writeArgs(b *strings.Builder, args []*Expr) {
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b)
	}
	b.WriteString(")")
}

// Walk visits e and its descendants depth-first until fn returns false.
func Walk(e *Expr, fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, v := range e.Bound {
		Walk(v, fn)
	}
	for _, a := range e.Args {
		Walk(a, fn)
	}
}
