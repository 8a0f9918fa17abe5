package tools

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
	"z3mcp/app/config"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

const instructions = `Z3 theorem prover tools.
Use simple_constraint_solver for quick problems: variables are {name, type} with type one of
integer, real, boolean, string; constraints are expressions such as "x + y == 10", "x > 0 and y > 0",
"Distinct(a, b, c)", "If(p, x, y) >= 3" or "ForAll([i], Implies(i > 0, i * i > 0))".
Use simple_relationship_analyzer to check whether a fact like "ancestor(Alice, Carol)" follows from
known relationships.`

type Service struct {
	cfg             *config.Config
	solverSvc       *solver.Service
	relationshipSvc *relationship.Service

	server *server.MCPServer
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*solver.Service](di),
		do.MustInvoke[*relationship.Service](di),
	), nil
}

func NewService(cfg *config.Config, solverSvc *solver.Service, relationshipSvc *relationship.Service) *Service {
	s := &Service{
		cfg:             cfg,
		solverSvc:       solverSvc,
		relationshipSvc: relationshipSvc,
	}

	s.server = server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
		server.WithToolHandlerMiddleware(logCalls),
	)

	s.server.AddTool(solveConstraintProblemTool(), s.solveConstraintProblem)
	s.server.AddTool(analyzeRelationshipsTool(), s.analyzeRelationships)
	s.server.AddTool(simpleConstraintSolverTool(), s.simpleConstraintSolver)
	s.server.AddTool(simpleRelationshipAnalyzerTool(), s.simpleRelationshipAnalyzer)

	return s
}

// Server exposes the underlying MCP server, e.g. for in-process clients.
func (s *Service) Server() *server.MCPServer {
	return s.server
}

// RunStdio serves MCP over stdin/stdout until ctx is canceled or stdin is
// closed.
func (s *Service) RunStdio(ctx context.Context) error {
	slog.Info("Serving MCP over stdio", "name", s.cfg.Server.Name)

	stdio := server.NewStdioServer(s.server)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns the streamable HTTP transport mounted at path.
func (s *Service) HTTPHandler(path string) http.Handler {
	return server.NewStreamableHTTPServer(s.server, server.WithEndpointPath(path))
}

func logCalls(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		res, err := next(ctx, req)

		failed := err != nil || (res != nil && res.IsError)
		level := slog.LevelInfo
		if failed {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Tool called",
			"tool", req.Params.Name,
			"failed", failed,
			"took", time.Since(start),
		)

		return res, err
	}
}
