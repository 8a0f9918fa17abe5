package relationship

import (
	"context"
	"fmt"
	"testing"
	"time"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func satService() *Service {
	return NewService(config.Default(), smt.NewSAT())
}

func rel(a, relation, b string) Relationship {
	return Relationship{Person1: a, Person2: b, Relation: relation}
}

func notRel(a, relation, b string) Relationship {
	r := rel(a, relation, b)
	r.Value = new(bool)
	return r
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name  string
		query RelationshipQuery
		want  Verdict
	}{
		{
			name: "stated fact",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Bob")},
				Query:         "parent(Alice, Bob)",
			},
			want: Entailed,
		},
		{
			name: "transitive by default",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "ancestor", "Bob"),
					rel("Bob", "ancestor", "Carol"),
				},
				Query: "ancestor(Alice, Carol)",
			},
			want: Entailed,
		},
		{
			name: "symmetric by default",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "sibling", "Bob")},
				Query:         "sibling(Bob, Alice)",
			},
			want: Entailed,
		},
		{
			name: "no axioms for unknown relations",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Bob")},
				Query:         "parent(Bob, Alice)",
			},
			want: Undetermined,
		},
		{
			name: "negative fact",
			query: RelationshipQuery{
				Relationships: []Relationship{notRel("Alice", "parent", "Bob")},
				Query:         "parent(Alice, Bob)",
			},
			want: Contradicted,
		},
		{
			name: "asymmetric on request",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Bob")},
				Query:         "parent(Bob, Alice)",
				Properties:    map[string][]Property{"parent": {Asymmetric}},
			},
			want: Contradicted,
		},
		{
			name: "reflexive on request",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "knows", "Bob")},
				Query:         "knows(Bob, Bob)",
				Properties:    map[string][]Property{"knows": {Reflexive}},
			},
			want: Entailed,
		},
		{
			name: "boolean combination",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "sibling", "Bob"),
					rel("Alice", "parent", "Carol"),
				},
				Query: "sibling(Bob, Alice) and not parent(Carol, Carol) or parent(Bob, Carol)",
			},
			want: Undetermined,
		},
		{
			name: "implication",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "parent", "Bob"),
					rel("Bob", "sibling", "Carol"),
				},
				Query: "Implies(parent(Bob, Carol), parent(Alice, Bob))",
			},
			want: Entailed,
		},
		{
			name: "conflicting facts",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "parent", "Bob"),
					notRel("Alice", "parent", "Bob"),
					rel("Bob", "parent", "Carol"),
				},
				Query: "parent(Bob, Carol)",
			},
			want: Inconsistent,
		},
		{
			name: "conflict through symmetry",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "spouse", "Bob"),
					notRel("Bob", "spouse", "Alice"),
				},
				Query: "spouse(Alice, Bob)",
			},
			want: Inconsistent,
		},
		{
			name: "irreflexive conflict",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Alice")},
				Query:         "parent(Alice, Alice)",
				Properties:    map[string][]Property{"parent": {Irreflexive}},
			},
			want: Inconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := satService().Analyze(context.Background(), tt.query)
			require.NoError(t, res.Error())

			got := res.MustGet()
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.want == Entailed, got.Result)
			assert.Equal(t, tt.want != Inconsistent, got.IsSatisfiable)
			assert.NotEmpty(t, got.Explanation)
		})
	}
}

func TestAnalyzeExplanations(t *testing.T) {
	svc := satService()
	facts := []Relationship{rel("Alice", "parent", "Bob")}

	res := svc.Analyze(context.Background(), RelationshipQuery{Relationships: facts, Query: "parent(Alice, Bob)"})
	require.NoError(t, res.Error())
	assert.Equal(t, "The relationship is confirmed by the given facts.", res.MustGet().Explanation)

	res = svc.Analyze(context.Background(), RelationshipQuery{Relationships: facts, Query: "parent(Bob, Alice)"})
	require.NoError(t, res.Error())
	assert.Equal(t, "The relationship is possible but not confirmed by the given facts.", res.MustGet().Explanation)
}

func TestAnalyzeCustomDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Relationships.Transitive = []string{"taller"}

	svc := NewService(cfg, smt.NewSAT())
	res := svc.Analyze(context.Background(), RelationshipQuery{
		Relationships: []Relationship{
			rel("Alice", "taller", "Bob"),
			rel("Bob", "taller", "Carol"),
			rel("Alice", "ancestor", "Bob"),
			rel("Bob", "ancestor", "Carol"),
		},
		Query: "taller(Alice, Carol) and not ancestor(Alice, Carol)",
	})
	require.NoError(t, res.Error())
	assert.Equal(t, Undetermined, res.MustGet().Verdict)
}

func TestAnalyzeErrors(t *testing.T) {
	facts := []Relationship{rel("Alice", "parent", "Bob")}

	tests := []struct {
		name    string
		query   RelationshipQuery
		wantErr string
	}{
		{
			name:    "empty query",
			query:   RelationshipQuery{Relationships: facts},
			wantErr: "invalid relationship query",
		},
		{
			name:    "missing person",
			query:   RelationshipQuery{Relationships: []Relationship{{Person1: "Alice", Relation: "parent"}}, Query: "parent(Alice, Alice)"},
			wantErr: "invalid relationship query",
		},
		{
			name:    "unknown entity",
			query:   RelationshipQuery{Relationships: facts, Query: "parent(Alice, Zed)"},
			wantErr: "unknown entity: Zed",
		},
		{
			name:    "unknown relation",
			query:   RelationshipQuery{Relationships: facts, Query: "friend(Alice, Bob)"},
			wantErr: "unknown relation: friend",
		},
		{
			name:    "wrong arity",
			query:   RelationshipQuery{Relationships: facts, Query: "parent(Alice)"},
			wantErr: "expects exactly two entities",
		},
		{
			name:    "syntax error",
			query:   RelationshipQuery{Relationships: facts, Query: "parent(Alice,"},
			wantErr: "error parsing query",
		},
		{
			name: "unknown property",
			query: RelationshipQuery{
				Relationships: facts,
				Query:         "parent(Alice, Bob)",
				Properties:    map[string][]Property{"parent": {"circular"}},
			},
			wantErr: "unknown relation property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := satService().Analyze(context.Background(), tt.query)
			require.Error(t, res.Error())
			assert.Contains(t, res.Error().Error(), tt.wantErr)
		})
	}
}

func TestDomain(t *testing.T) {
	entities, relations := domain([]Relationship{
		rel("Carol", "parent", "Alice"),
		rel("Alice", "sibling", "Bob"),
		rel("Bob", "parent", "Carol"),
	})
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, entities)
	assert.Equal(t, []string{"parent", "sibling"}, relations)
}

func chain(relation string, n int) []Relationship {
	facts := make([]Relationship, n)
	for i := range facts {
		facts[i] = rel(fmt.Sprintf("E%d", i), relation, fmt.Sprintf("E%d", i+1))
	}
	return facts
}

func TestAnalyzeEntityLimit(t *testing.T) {
	start := time.Now()
	res := satService().Analyze(context.Background(), RelationshipQuery{
		Relationships: chain("before", 200),
		Query:         "before(E0, E200)",
	})
	require.Error(t, res.Error())
	assert.Contains(t, res.Error().Error(), "too many entities: 201, the limit is 40")
	assert.Less(t, time.Since(start), time.Second)

	o, ok := oops.AsOops(res.Error())
	require.True(t, ok)
	assert.Equal(t, "invalid_input", o.Code())

	cfg := config.Default()
	cfg.Relationships.MaxEntities = 5
	res = NewService(cfg, smt.NewSAT()).Analyze(context.Background(), RelationshipQuery{
		Relationships: chain("parent", 5),
		Query:         "parent(E0, E1)",
	})
	require.Error(t, res.Error())
	assert.Contains(t, res.Error().Error(), "too many entities: 6, the limit is 5")
}

func TestAnalyzeChainAtLimit(t *testing.T) {
	limit := config.Default().Relationships.MaxEntities
	facts := chain("before", limit-1)

	res := satService().Analyze(context.Background(), RelationshipQuery{
		Relationships: facts,
		Query:         fmt.Sprintf("before(E0, E%d)", limit-1),
	})
	require.NoError(t, res.Error())
	assert.Equal(t, Entailed, res.MustGet().Verdict)
}

func TestAnalyzeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := satService().Analyze(ctx, RelationshipQuery{
		Relationships: chain("before", 3),
		Query:         "before(E0, E3)",
	})
	require.Error(t, res.Error())
	assert.Contains(t, res.Error().Error(), "canceled")
}

func TestAxiom(t *testing.T) {
	tests := map[Property]string{
		Reflexive:   "ForAll([e!a], knows(e!a, e!a))",
		Irreflexive: "ForAll([e!a], Not(knows(e!a, e!a)))",
		Symmetric:   "ForAll([e!a, e!b], Implies(knows(e!a, e!b), knows(e!b, e!a)))",
		Asymmetric:  "ForAll([e!a, e!b], Implies(knows(e!a, e!b), Not(knows(e!b, e!a))))",
		Transitive:  "ForAll([e!a, e!b, e!c], Implies(And(knows(e!a, e!b), knows(e!b, e!c)), knows(e!a, e!c)))",
	}

	for p, want := range tests {
		t.Run(string(p), func(t *testing.T) {
			assert.Equal(t, want, axiom("knows", p).String())
		})
	}
}
