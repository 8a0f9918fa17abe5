//go:build cgo && !noz3

package relationship

import (
	"context"
	"testing"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeZ3(t *testing.T) {
	svc := NewService(config.Default(), smt.NewZ3())

	tests := []struct {
		name  string
		query RelationshipQuery
		want  Verdict
	}{
		{
			name: "sibling symmetry",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "sibling", "Bob")},
				Query:         "sibling(Bob, Alice)",
			},
			want: Entailed,
		},
		{
			name: "temporal transitivity",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Event1", "before", "Event2"),
					rel("Event2", "before", "Event3"),
					rel("Event3", "before", "Event4"),
				},
				Query: "before(Event1, Event4)",
			},
			want: Entailed,
		},
		{
			name: "contradicted",
			query: RelationshipQuery{
				Relationships: []Relationship{notRel("Alice", "parent", "Bob")},
				Query:         "parent(Alice, Bob)",
			},
			want: Contradicted,
		},
		{
			name: "open",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Bob")},
				Query:         "parent(Bob, Alice)",
			},
			want: Undetermined,
		},
		{
			name: "entities are distinct",
			query: RelationshipQuery{
				Relationships: []Relationship{rel("Alice", "parent", "Bob")},
				Query:         "Alice != Bob",
			},
			want: Entailed,
		},
		{
			name: "inconsistent",
			query: RelationshipQuery{
				Relationships: []Relationship{
					rel("Alice", "parent", "Bob"),
					notRel("Alice", "parent", "Bob"),
				},
				Query: "parent(Alice, Bob)",
			},
			want: Inconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Analyze(context.Background(), tt.query)
			require.NoError(t, res.Error())
			assert.Equal(t, tt.want, res.MustGet().Verdict)
		})
	}
}
