package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cexll/repowiki/internal/mermaid"
	"github.com/cexll/repowiki/internal/research"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// SanitizeMermaidParams defines the input of sanitize_mermaid
type SanitizeMermaidParams struct {
	Source string `json:"source" jsonschema:"The diagram source without the markdown fence"`
}

// SanitizeMermaidResult is the output of sanitize_mermaid
type SanitizeMermaidResult struct {
	Dialect mermaid.Dialect `json:"dialect"`
	Cleaned string          `json:"cleaned"`
	Changed bool            `json:"changed"`
}

// SanitizeMarkdownParams defines the input of sanitize_markdown
type SanitizeMarkdownParams struct {
	Markdown string `json:"markdown" jsonschema:"A markdown document with mermaid code blocks"`
}

// SanitizeMarkdownResult is the output of sanitize_markdown
type SanitizeMarkdownResult struct {
	Markdown      string `json:"markdown"`
	ChangedBlocks int    `json:"changed_blocks"`
}

// ResearchStatusParams defines the input of research_status
type ResearchStatusParams struct {
	Content   string `json:"content" jsonschema:"The full answer of the current research iteration"`
	Iteration int    `json:"iteration" jsonschema:"The 1-based iteration number"`
}

type tools struct {
	logger *zap.Logger
}

func (t *tools) HandleSanitizeMermaid(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params SanitizeMermaidParams,
) (*mcp.CallToolResult, SanitizeMermaidResult, error) {
	if strings.TrimSpace(params.Source) == "" {
		return nil, SanitizeMermaidResult{}, fmt.Errorf("source parameter is required")
	}

	cleaned := mermaid.Sanitize(params.Source)
	out := SanitizeMermaidResult{
		Dialect: mermaid.DetectDialect(params.Source),
		Cleaned: cleaned,
		Changed: cleaned != strings.TrimSpace(params.Source),
	}
	t.logger.Info("sanitize_mermaid",
		zap.String("dialect", string(out.Dialect)),
		zap.Bool("changed", out.Changed))

	return textResult(out), out, nil
}

func (t *tools) HandleSanitizeMarkdown(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params SanitizeMarkdownParams,
) (*mcp.CallToolResult, SanitizeMarkdownResult, error) {
	if params.Markdown == "" {
		return nil, SanitizeMarkdownResult{}, fmt.Errorf("markdown parameter is required")
	}

	doc, changed := mermaid.SanitizeMarkdown(params.Markdown)
	out := SanitizeMarkdownResult{Markdown: doc, ChangedBlocks: changed}
	t.logger.Info("sanitize_markdown", zap.Int("changed_blocks", changed))

	return textResult(out), out, nil
}

func (t *tools) HandleResearchStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params ResearchStatusParams,
) (*mcp.CallToolResult, research.Status, error) {
	if params.Iteration < 1 {
		return nil, research.Status{}, fmt.Errorf("iteration must be at least 1, got %d", params.Iteration)
	}

	st := research.Evaluate(params.Content, params.Iteration)
	t.logger.Info("research_status",
		zap.Int("iteration", st.Iteration),
		zap.Bool("complete", st.Complete),
		zap.Bool("forced", st.Forced))

	return textResult(st), st, nil
}

// textResult renders v as the JSON text content of a tool result.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
