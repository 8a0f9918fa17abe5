//go:build cgo && !noz3

package smt

import (
	"context"
	"testing"
	"time"
	"z3mcp/app/expr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func z3Session(t *testing.T, vars map[string]expr.Sort) (Session, *expr.Scope) {
	t.Helper()

	session, err := NewZ3().NewSession(Options{})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	scope := expr.NewScope()
	for name, sort := range vars {
		require.NoError(t, scope.Declare(name, sort))
		require.NoError(t, session.Declare(name, sort))
	}
	return session, scope
}

func TestZ3IntegerModel(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt, "y": expr.SortInt})
	mustAssert(t, session, scope, "sum", "x + y == 10")
	mustAssert(t, session, scope, "x", "x <= 5")
	mustAssert(t, session, scope, "y", "y <= 5")

	status, err := session.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSat, status)

	assert.Equal(t, int64(5), session.Value("x").MustGet())
	assert.Equal(t, int64(5), session.Value("y").MustGet())
}

func TestZ3UnsatCore(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt})
	mustAssert(t, session, scope, "one", "x == 1")
	mustAssert(t, session, scope, "positive", "x > 0")
	mustAssert(t, session, scope, "two", "x == 2")

	status, err := session.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusUnsat, status)

	core := session.UnsatCore()
	assert.Contains(t, core, "one")
	assert.Contains(t, core, "two")
	assert.True(t, session.Value("x").IsAbsent())
}

func TestZ3Values(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{
		"r": expr.SortReal,
		"b": expr.SortBool,
		"s": expr.SortString,
		"n": expr.SortInt,
	})
	mustAssert(t, session, scope, "r", "r * 4 == 1")
	mustAssert(t, session, scope, "b", "Not(b)")
	mustAssert(t, session, scope, "s", `s == "hello"`)
	mustAssert(t, session, scope, "n", "n == If(b, 1, -3)")

	status, err := session.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSat, status)

	assert.Equal(t, 0.25, session.Value("r").MustGet())
	assert.Equal(t, false, session.Value("b").MustGet())
	assert.Equal(t, "hello", session.Value("s").MustGet())
	assert.Equal(t, int64(-3), session.Value("n").MustGet())
}

func TestZ3Quantifier(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt, "y": expr.SortInt})
	mustAssert(t, session, scope, "q", "ForAll([x], x + y >= x - 1)")

	status, err := session.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSat, status)

	y := session.Value("y").MustGet().(int64)
	assert.GreaterOrEqual(t, y, int64(-1))
}

func TestZ3IteUnderQuantifier(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt})

	e, err := expr.CompileBool("ForAll([x], If(x > 0, x, 0) >= 0)", scope)
	require.NoError(t, err)
	assert.ErrorContains(t, session.Assert("q", e), "cannot be used inside ForAll")
}

func TestZ3Relations(t *testing.T) {
	session, err := NewZ3().NewSession(Options{})
	require.NoError(t, err)
	defer session.Close()

	entities := []string{"Alice", "Bob"}
	require.NoError(t, session.DeclareDomain(entities, []string{"parent"}))

	scope := expr.NewScope()
	for _, e := range entities {
		scope.DeclareEntity(e)
	}
	scope.DeclareRelation("parent")

	mustAssert(t, session, scope, "fact", "parent(Alice, Bob)")

	query, err := expr.CompileBool("parent(Alice, Bob)", scope)
	require.NoError(t, err)

	status, err := session.CheckAssuming(context.Background(), expr.Not(query))
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, status)

	status, err = session.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSat, status)

	same, err := expr.CompileBool("Alice == Bob", scope)
	require.NoError(t, err)
	status, err = session.CheckAssuming(context.Background(), same)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, status)
}

func TestZ3EntityQuantifier(t *testing.T) {
	session, err := NewZ3().NewSession(Options{})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.DeclareDomain([]string{"Alice", "Bob", "Carol"}, []string{"before"}))

	alice, bob, carol := expr.Entity("Alice"), expr.Entity("Bob"), expr.Entity("Carol")
	require.NoError(t, session.Assert("ab", expr.Apply("before", alice, bob)))
	require.NoError(t, session.Assert("bc", expr.Apply("before", bob, carol)))
	require.NoError(t, session.Assert("transitive", transitive("before")))

	status, err := session.CheckAssuming(context.Background(), expr.Not(expr.Apply("before", alice, carol)))
	require.NoError(t, err)
	assert.Equal(t, StatusUnsat, status)

	status, err = session.CheckAssuming(context.Background(), expr.Not(expr.Apply("before", carol, alice)))
	require.NoError(t, err)
	assert.Equal(t, StatusSat, status)
}

func TestZ3CancelRacesClose(t *testing.T) {
	for i := range 50 {
		session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt})
		mustAssert(t, session, scope, "x", "x * x == 49")

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(time.Duration(i%5) * 100 * time.Microsecond)
			cancel()
		}()

		_, err := session.Check(ctx)
		require.NoError(t, err)
		session.Close()
		cancel()
	}
}

func TestZ3CanceledBeforeCheck(t *testing.T) {
	session, scope := z3Session(t, map[string]expr.Sort{"x": expr.SortInt})
	mustAssert(t, session, scope, "x", "x > 0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := session.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
	assert.Equal(t, "canceled", session.ReasonUnknown())
}
