package tools

import (
	"context"
	"encoding/json"
	"testing"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *Service {
	cfg := config.Default()
	engine := smt.NewSAT()
	return NewService(cfg, solver.NewService(cfg, engine), relationship.NewService(cfg, engine))
}

func call(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestSolveConstraintProblem(t *testing.T) {
	svc := newService()

	text, isError := call(t, svc.solveConstraintProblem, map[string]any{
		"problem": map[string]any{
			"variables": []any{
				map[string]any{"name": "p", "type": "boolean"},
				map[string]any{"name": "q", "type": "boolean"},
			},
			"constraints": []any{
				map[string]any{"expression": "p or q"},
				map[string]any{"expression": "not p"},
			},
		},
	})
	require.False(t, isError, text)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, true, got["is_satisfiable"])
	assert.Equal(t, "sat", got["status"])
	assert.Equal(t, map[string]any{"p": false, "q": true}, got["values"])
}

func TestSolveConstraintProblemErrors(t *testing.T) {
	svc := newService()

	text, isError := call(t, svc.solveConstraintProblem, map[string]any{})
	assert.True(t, isError)
	assert.Equal(t, "Error solving problem: missing required argument: problem", text)

	text, isError = call(t, svc.solveConstraintProblem, map[string]any{
		"problem": map[string]any{
			"variables":   []any{map[string]any{"name": "p", "type": "boolean"}},
			"constraints": []any{map[string]any{"expression": "p and"}},
		},
	})
	assert.True(t, isError)
	assert.Contains(t, text, "Error solving problem: ")
	assert.Contains(t, text, "error parsing constraint 'p and'")
}

func TestSimpleConstraintSolver(t *testing.T) {
	svc := newService()

	text, isError := call(t, svc.simpleConstraintSolver, map[string]any{
		"variables": []any{
			map[string]any{"name": "a", "type": "boolean"},
			map[string]any{"name": "b", "type": "boolean"},
		},
		"constraints": []any{"Xor(a, b)", "a"},
		"description": "exclusive",
	})
	require.False(t, isError, text)
	assert.JSONEq(t, `{"values":{"a":true,"b":false},"is_satisfiable":true,"status":"sat"}`, text)

	text, isError = call(t, svc.simpleConstraintSolver, map[string]any{
		"variables":   []any{map[string]any{"name": "a", "type": "boolean"}},
		"constraints": []any{"a", "not a"},
	})
	require.False(t, isError, text)

	var got solver.Solution
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.False(t, got.IsSatisfiable)
	assert.Equal(t, "unsat", got.Status)
	assert.ElementsMatch(t, []string{"#0: a", "#1: not a"}, got.UnsatCore)
}

func TestSimpleConstraintSolverErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "missing type",
			args: map[string]any{
				"variables":   []any{map[string]any{"name": "x"}},
				"constraints": []any{"x"},
			},
			want: "Each variable must have 'name' and 'type' fields",
		},
		{
			name: "null name",
			args: map[string]any{
				"variables":   []any{map[string]any{"name": nil, "type": "boolean"}},
				"constraints": []any{"true"},
			},
			want: "Each variable must have 'name' and 'type' fields",
		},
		{
			name: "numeric name",
			args: map[string]any{
				"variables":   []any{map[string]any{"name": 1, "type": "integer"}},
				"constraints": []any{"true"},
			},
			want: "Each variable must have 'name' and 'type' fields",
		},
		{
			name: "invalid type",
			args: map[string]any{
				"variables":   []any{map[string]any{"name": "x", "type": "float"}},
				"constraints": []any{"x > 0"},
			},
			want: "Invalid variable type: float. Must be one of: integer, real, boolean, string",
		},
		{
			name: "undefined variable",
			args: map[string]any{
				"variables":   []any{map[string]any{"name": "x", "type": "boolean"}},
				"constraints": []any{"x or z"},
			},
			want: `Error solving problem: error parsing constraint 'x or z'`,
		},
	}

	svc := newService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := call(t, svc.simpleConstraintSolver, tt.args)
			assert.True(t, isError)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestAnalyzeRelationships(t *testing.T) {
	svc := newService()

	text, isError := call(t, svc.analyzeRelationships, map[string]any{
		"query": map[string]any{
			"relationships": []any{
				map[string]any{"person1": "Alice", "person2": "Bob", "relation": "parent"},
				map[string]any{"person1": "Bob", "person2": "Carol", "relation": "parent"},
			},
			"query":      "grandparent(Alice, Carol)",
			"properties": map[string]any{"parent": []any{"irreflexive"}},
		},
	})
	assert.True(t, isError)
	assert.Contains(t, text, "Error analyzing relationships: ")
	assert.Contains(t, text, "unknown relation: grandparent")

	text, isError = call(t, svc.analyzeRelationships, map[string]any{
		"query": map[string]any{
			"relationships": []any{
				map[string]any{"person1": "Alice", "person2": "Bob", "relation": "ancestor"},
				map[string]any{"person1": "Bob", "person2": "Carol", "relation": "ancestor"},
			},
			"query": "ancestor(Alice, Carol)",
		},
	})
	require.False(t, isError, text)

	var got relationship.RelationshipResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.True(t, got.Result)
	assert.True(t, got.IsSatisfiable)
	assert.Equal(t, relationship.Entailed, got.Verdict)
	assert.Equal(t, "The relationship is confirmed by the given facts.", got.Explanation)
}

func TestSimpleRelationshipAnalyzer(t *testing.T) {
	svc := newService()

	text, isError := call(t, svc.simpleRelationshipAnalyzer, map[string]any{
		"relationships": []any{
			map[string]any{"person1": "Alice", "person2": "Bob", "relation": "parent", "value": false},
		},
		"query": "parent(Alice, Bob)",
	})
	require.False(t, isError, text)

	var got relationship.RelationshipResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.False(t, got.Result)
	assert.Equal(t, relationship.Contradicted, got.Verdict)

	text, isError = call(t, svc.simpleRelationshipAnalyzer, map[string]any{
		"relationships": []any{map[string]any{"person1": "Alice", "relation": "parent"}},
		"query":         "parent(Alice, Alice)",
	})
	assert.True(t, isError)
	assert.Equal(t, "Each relationship must have 'person1', 'person2', and 'relation' fields", text)

	text, isError = call(t, svc.simpleRelationshipAnalyzer, map[string]any{
		"relationships": []any{map[string]any{"person1": "Alice", "person2": 7, "relation": "parent"}},
		"query":         "parent(Alice, Alice)",
	})
	assert.True(t, isError)
	assert.Equal(t, "Each relationship must have 'person1', 'person2', and 'relation' fields", text)

	text, isError = call(t, svc.simpleRelationshipAnalyzer, map[string]any{
		"relationships": []any{
			map[string]any{"person1": "Alice", "person2": "Bob", "relation": "parent", "value": "yes"},
		},
		"query": "parent(Alice, Bob)",
	})
	assert.True(t, isError)
	assert.Equal(t, "Relationship value must be a boolean, got: yes", text)
}

func TestListTools(t *testing.T) {
	tools := newService().Server().ListTools()

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"solve_constraint_problem",
		"analyze_relationships",
		"simple_constraint_solver",
		"simple_relationship_analyzer",
	}, names)
}
