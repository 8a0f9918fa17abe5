//go:build cgo && !noz3

package solver

import (
	"context"
	"testing"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func z3Service() *Service {
	return NewService(config.Default(), smt.NewZ3())
}

func intProblem(constraints ...string) Problem {
	p := Problem{
		Variables: []Variable{
			{Name: "x", Type: TypeInteger},
			{Name: "y", Type: TypeInteger},
		},
	}
	for _, c := range constraints {
		p.Constraints = append(p.Constraints, Constraint{Expression: c})
	}
	return p
}

func TestZ3SolveAssignmentSatisfiesConstraints(t *testing.T) {
	res := z3Service().Solve(context.Background(), intProblem("x + y == 10", "x <= 5", "y <= 5"))
	require.NoError(t, res.Error())

	solution := res.MustGet()
	require.True(t, solution.IsSatisfiable)
	assert.Equal(t, "sat", solution.Status)

	x := solution.Values["x"].(int64)
	y := solution.Values["y"].(int64)
	assert.Equal(t, int64(10), x+y)
	assert.LessOrEqual(t, x, int64(5))
	assert.LessOrEqual(t, y, int64(5))
}

func TestZ3SolveUnsat(t *testing.T) {
	res := z3Service().Solve(context.Background(), intProblem("x == 1", "x == 2"))
	require.NoError(t, res.Error())

	solution := res.MustGet()
	assert.False(t, solution.IsSatisfiable)
	assert.Equal(t, "unsat", solution.Status)
	assert.Empty(t, solution.Values)
	assert.ElementsMatch(t, []string{"#0: x == 1", "#1: x == 2"}, solution.UnsatCore)
}

func TestZ3SolveMixedTypes(t *testing.T) {
	res := z3Service().Solve(context.Background(), Problem{
		Variables: []Variable{
			{Name: "price", Type: TypeReal},
			{Name: "qty", Type: TypeInteger},
			{Name: "vip", Type: TypeBoolean},
			{Name: "code", Type: TypeString},
		},
		Constraints: []Constraint{
			{Expression: "price == 2.5"},
			{Expression: "qty == If(vip, 10, 1)"},
			{Expression: "vip"},
			{Expression: `code == "A" + "7"`},
			{Expression: "Distinct(qty, 3, 4)"},
		},
	})
	require.NoError(t, res.Error())

	solution := res.MustGet()
	require.True(t, solution.IsSatisfiable)
	assert.Equal(t, 2.5, solution.Values["price"])
	assert.Equal(t, int64(10), solution.Values["qty"])
	assert.Equal(t, true, solution.Values["vip"])
	assert.Equal(t, "A7", solution.Values["code"])
}

func TestZ3SolveMixingIntAndReal(t *testing.T) {
	res := z3Service().Solve(context.Background(), Problem{
		Variables: []Variable{
			{Name: "n", Type: TypeInteger},
			{Name: "r", Type: TypeReal},
		},
		Constraints: []Constraint{{Expression: "n + r > 1"}},
	})
	assert.ErrorContains(t, res.Error(), "cannot mix Int term n with Real term r")
}
