package api

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"
	"z3mcp/app/service/tools"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/samber/do"
)

const (
	mcpPath         = "/mcp"
	shutdownTimeout = 5 * time.Second
)

type Service struct {
	cfg             *config.Config
	engine          smt.Engine
	solverSvc       *solver.Service
	relationshipSvc *relationship.Service
	toolsSvc        *tools.Service

	app *fiber.App
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[smt.Engine](di),
		do.MustInvoke[*solver.Service](di),
		do.MustInvoke[*relationship.Service](di),
		do.MustInvoke[*tools.Service](di),
	), nil
}

func NewService(
	cfg *config.Config,
	engine smt.Engine,
	solverSvc *solver.Service,
	relationshipSvc *relationship.Service,
	toolsSvc *tools.Service,
) *Service {
	s := &Service{
		cfg:             cfg,
		engine:          engine,
		solverSvc:       solverSvc,
		relationshipSvc: relationshipSvc,
		toolsSvc:        toolsSvc,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.Server.Name,
		DisableStartupMessage: true,
		ErrorHandler:          handleError,
	})

	s.app.Get("/healthz", s.healthz)

	v1 := s.app.Group("/api/v1")
	v1.Post("/solve", s.solve)
	v1.Post("/relationships", s.relationships)

	s.app.All(mcpPath, adaptor.HTTPHandler(toolsSvc.HTTPHandler(mcpPath)))

	return s
}

// Run serves HTTP until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}()

	slog.Info("Serving HTTP", "addr", s.cfg.Server.HTTP.Addr)

	return s.app.Listen(s.cfg.Server.HTTP.Addr)
}

func (s *Service) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"engine":  s.engine.Name(),
	})
}

func (s *Service) solve(c *fiber.Ctx) error {
	var p solver.Problem
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body: "+err.Error())
	}

	res := s.solverSvc.Solve(c.UserContext(), p)
	if res.IsError() {
		return fiber.NewError(fiber.StatusUnprocessableEntity, res.Error().Error())
	}

	return c.JSON(res.MustGet())
}

func (s *Service) relationships(c *fiber.Ctx) error {
	var q relationship.RelationshipQuery
	if err := c.BodyParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body: "+err.Error())
	}

	res := s.relationshipSvc.Analyze(c.UserContext(), q)
	if res.IsError() {
		return fiber.NewError(fiber.StatusUnprocessableEntity, res.Error().Error())
	}

	return c.JSON(res.MustGet())
}

func handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("HTTP request failed", "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
