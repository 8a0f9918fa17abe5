package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"z3mcp/app/client/mcptool"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"

	"github.com/elliotchance/pie/v2"
)

const queens = 8

type example struct {
	title string
	about string
	run   func(ctx context.Context, toolkit *mcptool.Toolkit) error
}

var examples = []example{
	{
		title: "Example 1: N-Queens Problem (8-Queens)",
		about: "Place 8 queens on a chessboard so that no queen can attack another.",
		run:   runQueens,
	},
	{
		title: "Example 2: Family Relationship Inference",
		about: "Sibling and spouse relations are symmetric; the query follows from the stated facts.",
		run: relationshipExample(relationship.RelationshipQuery{
			Relationships: []relationship.Relationship{
				{Person1: "Alice", Person2: "Bob", Relation: "parent"},
				{Person1: "Alice", Person2: "Charlie", Relation: "parent"},
				{Person1: "David", Person2: "Eve", Relation: "parent"},
				{Person1: "David", Person2: "Frank", Relation: "parent"},
				{Person1: "Bob", Person2: "Grace", Relation: "parent"},
				{Person1: "Charlie", Person2: "Hannah", Relation: "parent"},
				{Person1: "Eve", Person2: "Isaac", Relation: "parent"},
				{Person1: "Grace", Person2: "Jacob", Relation: "parent"},
				{Person1: "Alice", Person2: "David", Relation: "spouse"},
				{Person1: "Bob", Person2: "Charlie", Relation: "sibling"},
				{Person1: "Eve", Person2: "Frank", Relation: "sibling"},
				{Person1: "Hannah", Person2: "Isaac", Relation: "cousin"},
			},
			Query: "cousin(Isaac, Hannah) and spouse(David, Alice)",
		}),
	},
	{
		title: "Example 3: Temporal Ordering",
		about: "\"before\" is transitive, so Event1 precedes Event7 without stating it.",
		run: relationshipExample(relationship.RelationshipQuery{
			Relationships: []relationship.Relationship{
				{Person1: "Event1", Person2: "Event2", Relation: "before"},
				{Person1: "Event2", Person2: "Event3", Relation: "before"},
				{Person1: "Event4", Person2: "Event5", Relation: "before"},
				{Person1: "Event6", Person2: "Event7", Relation: "before"},
				{Person1: "Event1", Person2: "Event4", Relation: "causes"},
				{Person1: "Event3", Person2: "Event6", Relation: "causes"},
				{Person1: "Event5", Person2: "Event7", Relation: "mutually_exclusive"},
				{Person1: "Event2", Person2: "Event5", Relation: "enables"},
				{Person1: "Event3", Person2: "Event7", Relation: "before"},
			},
			Query: "before(Event1, Event7)",
			Properties: map[string][]relationship.Property{
				"before": {relationship.Irreflexive},
			},
		}),
	},
	{
		title: "Example 4: Cryptarithmetic Puzzle (SEND + MORE = MONEY)",
		about: "Find distinct digits for the letters so that SEND + MORE = MONEY.",
		run:   runSendMoreMoney,
	},
}

func runQueens(ctx context.Context, toolkit *mcptool.Toolkit) error {
	var p solver.Problem
	p.Description = fmt.Sprintf("Place %d queens on an %dx%d chessboard", queens, queens, queens)

	for i := range queens {
		q := fmt.Sprintf("q%d", i)
		p.Variables = append(p.Variables, solver.Variable{Name: q, Type: solver.TypeInteger})
		p.Constraints = append(p.Constraints, solver.Constraint{
			Expression:  fmt.Sprintf("0 <= %s < %d", q, queens),
			Description: fmt.Sprintf("queen %d is on the board", i),
		})
	}

	for i := range queens {
		for j := i + 1; j < queens; j++ {
			p.Constraints = append(p.Constraints,
				solver.Constraint{Expression: fmt.Sprintf("q%d != q%d", i, j)},
				solver.Constraint{Expression: fmt.Sprintf("Abs(q%d - q%d) != %d", i, j, j-i)},
			)
		}
	}

	solution, err := solve(ctx, toolkit, p)
	if err != nil {
		return err
	}
	printSolution(solution)
	if !solution.IsSatisfiable {
		return nil
	}

	header := make([]string, queens)
	for col := range queens {
		header[col] = fmt.Sprint(col)
	}
	fmt.Println("  " + strings.Join(header, " "))
	for row := range queens {
		cells := make([]string, queens)
		for col := range queens {
			cells[col] = "."
			if v, ok := solution.Values[fmt.Sprintf("q%d", col)].(float64); ok && int(v) == row {
				cells[col] = "Q"
			}
		}
		fmt.Printf("%d %s\n", row, strings.Join(cells, " "))
	}
	return nil
}

func runSendMoreMoney(ctx context.Context, toolkit *mcptool.Toolkit) error {
	letters := []string{"S", "E", "N", "D", "M", "O", "R", "Y"}

	p := solver.Problem{Description: "SEND + MORE = MONEY"}
	for _, l := range letters {
		p.Variables = append(p.Variables, solver.Variable{Name: l, Type: solver.TypeInteger})
		p.Constraints = append(p.Constraints, solver.Constraint{Expression: fmt.Sprintf("0 <= %s <= 9", l)})
	}
	p.Constraints = append(p.Constraints,
		solver.Constraint{
			Expression:  "1000*S + 100*E + 10*N + D + 1000*M + 100*O + 10*R + E == 10000*M + 1000*O + 100*N + 10*E + Y",
			Description: "the sum",
		},
		solver.Constraint{Expression: "Distinct(S, E, N, D, M, O, R, Y)", Description: "letters are different digits"},
		solver.Constraint{Expression: "S > 0 and M > 0", Description: "no leading zeros"},
	)

	solution, err := solve(ctx, toolkit, p)
	if err != nil {
		return err
	}
	printSolution(solution)
	if !solution.IsSatisfiable {
		return nil
	}

	digit := func(word string) int {
		n := 0
		for _, c := range word {
			v, _ := solution.Values[string(c)].(float64)
			n = n*10 + int(v)
		}
		return n
	}
	fmt.Printf("  %d + %d = %d\n", digit("SEND"), digit("MORE"), digit("MONEY"))
	return nil
}

func relationshipExample(q relationship.RelationshipQuery) func(context.Context, *mcptool.Toolkit) error {
	return func(ctx context.Context, toolkit *mcptool.Toolkit) error {
		var result relationship.RelationshipResult
		if err := call(ctx, toolkit, "analyze_relationships", map[string]any{"query": q}, &result); err != nil {
			return err
		}

		fmt.Printf("Query: %s\nQuery result: %t\nExplanation: %s\n", q.Query, result.Result, result.Explanation)
		return nil
	}
}

func solve(ctx context.Context, toolkit *mcptool.Toolkit, p solver.Problem) (*solver.Solution, error) {
	var solution solver.Solution
	if err := call(ctx, toolkit, "solve_constraint_problem", map[string]any{"problem": p}, &solution); err != nil {
		return nil, err
	}
	return &solution, nil
}

func call(ctx context.Context, toolkit *mcptool.Toolkit, name string, args, result any) error {
	tool, ok := toolkit.Tool(name).Get()
	if !ok {
		return fmt.Errorf("server does not offer %s", name)
	}

	input, err := json.Marshal(args)
	if err != nil {
		return err
	}

	out, err := tool.Call(ctx, string(input))
	if err != nil {
		return err
	}

	if err = json.Unmarshal([]byte(out), result); err != nil {
		return fmt.Errorf("unexpected %s output %q: %w", name, out, err)
	}
	return nil
}

func printSolution(s *solver.Solution) {
	if !s.IsSatisfiable {
		fmt.Printf("No solution exists. Status: %s\n", s.Status)
		if len(s.UnsatCore) > 0 {
			fmt.Printf("Conflicting constraints: %s\n", strings.Join(s.UnsatCore, "; "))
		}
		if s.Reason != "" {
			fmt.Printf("Reason: %s\n", s.Reason)
		}
		return
	}

	parts := pie.Map(pie.Sort(pie.Keys(s.Values)), func(name string) string {
		return fmt.Sprintf("%s = %v", name, s.Values[name])
	})
	fmt.Printf("Solution: %s (Satisfiable: %t)\n", strings.Join(parts, ", "), s.IsSatisfiable)
}
