package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/service/api"
	"z3mcp/app/service/queue"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"
	"z3mcp/app/service/tools"
	"z3mcp/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer slog.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, smt.New)
	do.Provide(di, queue.New)
	do.Provide(di, solver.New)
	do.Provide(di, relationship.New)
	do.Provide(di, tools.New)
	do.Provide(di, api.New)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("Shutting down...")

		cancel()
	}()

	group, groupCtx := errgroup.WithContext(appCtx)

	transport := cfg.Server.Transport
	if transport == "stdio" || transport == "both" {
		toolsSvc := do.MustInvoke[*tools.Service](di)
		group.Go(func() error {
			// Closing stdin ends the session and with it the process.
			defer cancel()
			return toolsSvc.RunStdio(groupCtx)
		})
	}
	if transport == "http" || transport == "both" {
		apiSvc := do.MustInvoke[*api.Service](di)
		group.Go(func() error {
			return apiSvc.Run(groupCtx)
		})
	}

	slog.Info("Service started",
		"name", cfg.Server.Name,
		"version", cfg.Server.Version,
		"transport", transport,
	)

	if err = group.Wait(); err != nil && appCtx.Err() == nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}
