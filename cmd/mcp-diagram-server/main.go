package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cexll/repowiki/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const serverVersion = "v1.0.0"

func newServer(logger *zap.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mermaid-diagram-server",
		Version: serverVersion,
	}, nil)

	t := &tools{logger: logger}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sanitize_mermaid",
		Description: "Repair common syntax defects in a mermaid diagram so it renders",
	}, t.HandleSanitizeMermaid)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sanitize_markdown",
		Description: "Repair every mermaid code block of a markdown document",
	}, t.HandleSanitizeMarkdown)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "research_status",
		Description: "Decide whether a deep research answer concludes the research or needs another iteration",
	}, t.HandleResearchStatus)

	return server
}

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	// stdout carries the protocol, logs go to stderr
	logger, err := logging.New(level)
	if err != nil {
		log.Fatalf("[MCP Diagram Server] %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting mermaid diagram MCP server", zap.String("version", serverVersion))
	server := newServer(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
}
