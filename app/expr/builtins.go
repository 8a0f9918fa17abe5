package expr

import (
	"errors"
	"fmt"
)

type builtin func(args []*Expr) (*Expr, error)

// builtins lists the z3py-style functions. ForAll and Exists are handled by
// the compiler since their first argument is a binder list.
var builtins = map[string]builtin{
	"And":      variadicBool(OpAnd),
	"Or":       variadicBool(OpOr),
	"Not":      buildNot,
	"Implies":  binaryBool(OpImplies),
	"Xor":      binaryBool(OpXor),
	"If":       buildIf,
	"Distinct": buildDistinct,
	"Abs":      buildAbs,
	"Sum":      buildSum,
	"ForAll":   nil,
	"Exists":   nil,
	"Length":   buildLength,
	"Contains": stringPredicate(OpContains),
	"PrefixOf": stringPredicate(OpPrefixOf),
	"SuffixOf": stringPredicate(OpSuffixOf),
	"Concat":   buildConcat,
}

func variadicBool(op Op) builtin {
	return func(args []*Expr) (*Expr, error) {
		if err := requireBool(op.String(), args); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return Bool(op == OpAnd), nil
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return &Expr{Op: op, Sort: SortBool, Args: args}, nil
	}
}

func binaryBool(op Op) builtin {
	return func(args []*Expr) (*Expr, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
		}
		if err := requireBool(op.String(), args); err != nil {
			return nil, err
		}
		return &Expr{Op: op, Sort: SortBool, Args: args}, nil
	}
}

func buildNot(args []*Expr) (*Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	if err := requireBool("Not", args); err != nil {
		return nil, err
	}
	return Not(args[0]), nil
}

func buildIf(args []*Expr) (*Expr, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("expects 3 arguments, got %d", len(args))
	}
	if !args[0].IsBool() {
		return nil, fmt.Errorf("condition must be Bool, got %s", args[0].Sort)
	}

	then, els, sort, err := unify(args[1], args[2])
	if err != nil {
		return nil, err
	}
	return &Expr{Op: OpIte, Sort: sort, Args: []*Expr{args[0], then, els}}, nil
}

func buildDistinct(args []*Expr) (*Expr, error) {
	if len(args) == 0 {
		return nil, errors.New("expects at least 1 argument")
	}

	unified, _, err := unifyAll(args)
	if err != nil {
		return nil, err
	}
	if len(unified) == 1 {
		return Bool(true), nil
	}
	return &Expr{Op: OpDistinct, Sort: SortBool, Args: unified}, nil
}

func buildAbs(args []*Expr) (*Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}

	x := args[0]
	if !x.Sort.Numeric() {
		return nil, fmt.Errorf("expects a number, got %s", x.Sort)
	}

	zero := &Expr{Op: OpConst, Sort: x.Sort, Value: "0"}
	cond := &Expr{Op: OpGe, Sort: SortBool, Args: []*Expr{x, zero}}
	neg := &Expr{Op: OpNeg, Sort: x.Sort, Args: []*Expr{x}}
	return &Expr{Op: OpIte, Sort: x.Sort, Args: []*Expr{cond, x, neg}}, nil
}

func buildSum(args []*Expr) (*Expr, error) {
	if len(args) == 0 {
		return &Expr{Op: OpConst, Sort: SortInt, Value: "0"}, nil
	}

	unified, sort, err := unifyAll(args)
	if err != nil {
		return nil, err
	}
	if !sort.Numeric() {
		return nil, fmt.Errorf("expects numbers, got %s", sort)
	}
	if len(unified) == 1 {
		return unified[0], nil
	}
	return &Expr{Op: OpAdd, Sort: sort, Args: unified}, nil
}

func buildLength(args []*Expr) (*Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	if args[0].Sort != SortString {
		return nil, fmt.Errorf("expects a String, got %s", args[0].Sort)
	}
	return &Expr{Op: OpLength, Sort: SortInt, Args: args}, nil
}

func stringPredicate(op Op) builtin {
	return func(args []*Expr) (*Expr, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
		}
		for _, a := range args {
			if a.Sort != SortString {
				return nil, fmt.Errorf("expects String arguments, got %s", a.Sort)
			}
		}
		return &Expr{Op: op, Sort: SortBool, Args: args}, nil
	}
}

func buildConcat(args []*Expr) (*Expr, error) {
	if len(args) == 0 {
		return nil, errors.New("expects at least 1 argument")
	}
	for _, a := range args {
		if a.Sort != SortString {
			return nil, fmt.Errorf("expects String arguments, got %s", a.Sort)
		}
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return &Expr{Op: OpConcat, Sort: SortString, Args: args}, nil
}

// unifyAll brings every argument to the widest sort among them.
func unifyAll(args []*Expr) ([]*Expr, Sort, error) {
	sort := args[0].Sort
	for _, a := range args[1:] {
		if a.Sort == SortReal && sort == SortInt {
			sort = SortReal
		}
	}

	out := make([]*Expr, len(args))
	for i, a := range args {
		switch {
		case a.Sort == sort:
			out[i] = a
		case a.Sort == SortInt && sort == SortReal:
			p, ok := promote(a)
			if !ok {
				return nil, 0, fmt.Errorf("cannot mix Int term %s with Real terms; declare the variables as real", a)
			}
			out[i] = p
		default:
			return nil, 0, fmt.Errorf("mismatched arguments %s and %s", sort, a.Sort)
		}
	}
	return out, sort, nil
}
