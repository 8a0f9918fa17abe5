package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"z3mcp/app/client/mcptool"
	"z3mcp/app/client/smt"
	"z3mcp/app/config"
	"z3mcp/app/service/queue"
	"z3mcp/app/service/relationship"
	"z3mcp/app/service/solver"
	"z3mcp/app/service/tools"
	"z3mcp/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	serverCmd := flag.String("server", "", "MCP server command to run over stdio, e.g. \"z3mcp\"; empty runs the tools in-process")
	flag.Parse()

	mylog.Preinit()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	toolkit, err := connect(ctx, *serverCmd)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer toolkit.Close()

	fmt.Println("Z3 MCP examples")
	fmt.Println(strings.Repeat("=", 50))

	for _, ex := range examples {
		fmt.Printf("\n%s\n%s\n%s\n", ex.title, strings.Repeat("-", 30), ex.about)

		if err = ex.run(ctx, toolkit); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func connect(ctx context.Context, serverCmd string) (*mcptool.Toolkit, error) {
	if serverCmd != "" {
		fields := strings.Fields(serverCmd)
		return mcptool.ConnectStdio(ctx, fields[0], fields[1:]...)
	}

	di := do.New()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		return nil, fmt.Errorf("logging init failed: %w", err)
	}

	do.Provide(di, smt.New)
	do.Provide(di, queue.New)
	do.Provide(di, solver.New)
	do.Provide(di, relationship.New)
	do.Provide(di, tools.New)

	toolsSvc, err := do.Invoke[*tools.Service](di)
	if err != nil {
		return nil, err
	}

	return mcptool.ConnectInProcess(ctx, toolsSvc.Server())
}
