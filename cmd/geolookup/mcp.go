package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/geolookup/pkg/api"
	"github.com/hazyhaar/geolookup/pkg/chassis"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0"

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	connect := fs.String("connect", "", "call a running server over QUIC at host:port instead of serving stdio")
	tool := fs.String("tool", "", "with --connect: tool to call (default: list tools)")
	toolArgs := fs.String("args", "{}", "with --connect: tool arguments as a JSON object")
	insecure := fs.Bool("insecure", true, "with --connect: accept self-signed certificates")
	fs.Parse(args)

	if *connect != "" {
		mcpCall(*connect, *tool, *toolArgs, *insecure)
		return
	}

	// stdout carries the protocol; logs go to stderr.
	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	lookup, err := cfg.openLookup(context.Background(), logger)
	if err != nil {
		logger.Error("failed to load lookup index", "error", err)
		os.Exit(1)
	}

	srv := server.NewMCPServer("geolookup", version, server.WithToolCapabilities(true))
	api.RegisterMCPTools(srv, api.NewService(lookup, cfg.Routes, logger))

	if err := server.ServeStdio(srv); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}

func mcpCall(addr, tool, rawArgs string, insecure bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: --args: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	c := chassis.NewMCPClient(addr, chassis.ClientTLSConfig(insecure))
	if err := c.Connect(ctx, "geolookup-cli", version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if tool == "" {
		tools, err := c.ListTools(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, t := range tools.Tools {
			fmt.Printf("  %-22s  %s\n", t.Name, t.Description)
		}
		return
	}

	res, err := c.CallTool(ctx, tool, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			fmt.Println(text.Text)
		}
	}
	if res.IsError {
		os.Exit(1)
	}
}
