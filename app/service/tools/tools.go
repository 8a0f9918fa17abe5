package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"

	"github.com/elliotchance/pie/v2"
	"github.com/mark3labs/mcp-go/mcp"
)

var variableSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
		"type": map[string]any{
			"type": "string",
			"enum": []string{"integer", "real", "boolean", "string"},
		},
	},
	"required": []string{"name", "type"},
}

var relationshipSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"person1":  map[string]any{"type": "string"},
		"person2":  map[string]any{"type": "string"},
		"relation": map[string]any{"type": "string"},
		"value":    map[string]any{"type": "boolean", "default": true},
	},
	"required": []string{"person1", "person2", "relation"},
}

func solveConstraintProblemTool() mcp.Tool {
	return mcp.NewTool("solve_constraint_problem",
		mcp.WithDescription("Solve a constraint satisfaction problem using Z3. "+
			"Takes variables and constraints and returns a satisfying assignment if one exists."),
		mcp.WithObject("problem",
			mcp.Required(),
			mcp.Description("The problem definition with variables and constraints"),
			mcp.Properties(map[string]any{
				"variables": map[string]any{"type": "array", "items": variableSchema},
				"constraints": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"expression":  map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
						},
						"required": []string{"expression"},
					},
				},
				"description": map[string]any{"type": "string"},
			}),
		),
	)
}

func analyzeRelationshipsTool() mcp.Tool {
	return mcp.NewTool("analyze_relationships",
		mcp.WithDescription("Analyze relationships between entities using Z3. "+
			"Determines whether the query is implied by the given relationships."),
		mcp.WithObject("query",
			mcp.Required(),
			mcp.Description("The relationship query with relationships and a query string"),
			mcp.Properties(map[string]any{
				"relationships": map[string]any{"type": "array", "items": relationshipSchema},
				"query":         map[string]any{"type": "string"},
				"properties": map[string]any{
					"type": "object",
					"additionalProperties": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "string",
							"enum": relationship.Properties,
						},
					},
				},
			}),
		),
	)
}

func simpleConstraintSolverTool() mcp.Tool {
	return mcp.NewTool("simple_constraint_solver",
		mcp.WithDescription("A simpler interface for solving constraint problems, "+
			"without requiring the full problem structure."),
		mcp.WithArray("variables",
			mcp.Required(),
			mcp.Description("List of variable definitions, each with 'name' and 'type'"),
			mcp.Items(variableSchema),
		),
		mcp.WithArray("constraints",
			mcp.Required(),
			mcp.Description("List of constraint expressions as strings"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("description",
			mcp.Description("Optional description of the problem"),
		),
	)
}

func simpleRelationshipAnalyzerTool() mcp.Tool {
	return mcp.NewTool("simple_relationship_analyzer",
		mcp.WithDescription("A simpler interface for analyzing relationships, "+
			"without requiring the full query structure."),
		mcp.WithArray("relationships",
			mcp.Required(),
			mcp.Description("List of relationships, each with 'person1', 'person2', 'relation' and optional 'value'"),
			mcp.Items(relationshipSchema),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description(`A query in the format "relation(entity1, entity2)"`),
		),
	)
}

func (s *Service) solveConstraintProblem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Problem *solver.Problem `json:"problem"`
	}
	if err := req.BindArguments(&args); err != nil {
		return solveError(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.Problem == nil {
		return solveError(fmt.Errorf("missing required argument: problem")), nil
	}

	return s.solve(ctx, *args.Problem), nil
}

func (s *Service) analyzeRelationships(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Query *relationship.RelationshipQuery `json:"query"`
	}
	if err := req.BindArguments(&args); err != nil {
		return analyzeError(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.Query == nil {
		return analyzeError(fmt.Errorf("missing required argument: query")), nil
	}

	return s.analyze(ctx, *args.Query), nil
}

func (s *Service) simpleConstraintSolver(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Variables   []map[string]any `json:"variables"`
		Constraints []string         `json:"constraints"`
		Description string           `json:"description"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error in simple_constraint_solver: %v", err)), nil
	}

	problem := solver.Problem{Description: args.Description}

	for _, v := range args.Variables {
		name, hasName := v["name"].(string)
		typ, hasType := v["type"].(string)
		if !hasName || !hasType {
			return mcp.NewToolResultError("Each variable must have 'name' and 'type' fields"), nil
		}

		t := solver.VariableType(typ)
		if !pie.Contains(solver.VariableTypes, t) {
			return mcp.NewToolResultError(solver.InvalidTypeError(typ).Error()), nil
		}

		problem.Variables = append(problem.Variables, solver.Variable{Name: name, Type: t})
	}

	problem.Constraints = pie.Map(args.Constraints, func(e string) solver.Constraint {
		return solver.Constraint{Expression: e}
	})

	return s.solve(ctx, problem), nil
}

func (s *Service) simpleRelationshipAnalyzer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Relationships []map[string]any `json:"relationships"`
		Query         string           `json:"query"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error in simple_relationship_analyzer: %v", err)), nil
	}

	query := relationship.RelationshipQuery{Query: args.Query}

	for _, r := range args.Relationships {
		person1, ok1 := r["person1"].(string)
		person2, ok2 := r["person2"].(string)
		relation, ok3 := r["relation"].(string)
		if !ok1 || !ok2 || !ok3 {
			return mcp.NewToolResultError("Each relationship must have 'person1', 'person2', and 'relation' fields"), nil
		}

		value := true
		if raw, ok := r["value"]; ok {
			b, isBool := raw.(bool)
			if !isBool {
				return mcp.NewToolResultError(fmt.Sprintf("Relationship value must be a boolean, got: %v", raw)), nil
			}
			value = b
		}

		query.Relationships = append(query.Relationships, relationship.Relationship{
			Person1:  person1,
			Person2:  person2,
			Relation: relation,
			Value:    &value,
		})
	}

	return s.analyze(ctx, query), nil
}

func (s *Service) solve(ctx context.Context, p solver.Problem) *mcp.CallToolResult {
	res := s.solverSvc.Solve(ctx, p)
	if res.IsError() {
		return solveError(res.Error())
	}
	return jsonResult(res.MustGet())
}

func (s *Service) analyze(ctx context.Context, q relationship.RelationshipQuery) *mcp.CallToolResult {
	res := s.relationshipSvc.Analyze(ctx, q)
	if res.IsError() {
		return analyzeError(res.Error())
	}
	return jsonResult(res.MustGet())
}

func solveError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Error solving problem: %v", err))
}

func analyzeError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Error analyzing relationships: %v", err))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
