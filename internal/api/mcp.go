package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/storage"
)

const historyResourceLimit = 20

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *storage.Store // optional; without it the history resource is empty
	Version      string
}

// NewMCPServer creates an MCP server with all aether tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"aether",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("aether routes questions to the best configured AI provider and caches the answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask a question. The request is classified and sent to the best configured provider."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Optional page text the question refers to")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize",
			mcp.WithDescription("Summarize a piece of text."),
			mcp.WithString("content", mcp.Description("Text to summarize"), mcp.Required()),
			mcp.WithString("length", mcp.Description("short, medium (default) or long")),
		),
		mcpSummarize(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_queries",
			mcp.WithDescription("Suggest up to 5 web search queries for a goal."),
			mcp.WithString("user_intent", mcp.Description("What the user is trying to find out"), mcp.Required()),
		),
		mcpSuggestQueries(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize_page",
			mcp.WithDescription("Fetch a web page or PDF and summarize it."),
			mcp.WithString("url", mcp.Description("Absolute http or https URL"), mcp.Required()),
			mcp.WithString("length", mcp.Description("short, medium (default) or long")),
		),
		mcpSummarizePage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"aether://history",
			"Recent Sessions",
			mcp.WithResourceDescription("Most recently updated chat sessions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcpError("message is required"), nil
		}

		resp := deps.Orchestrator.GetResponse(ctx, orchestrator.Request{
			Message: message,
			Context: req.GetString("context", ""),
		})
		return mcpText(resp.Text), nil
	}
}

func mcpSummarize(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		length, err := orchestrator.ParseLength(req.GetString("length", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		summary, err := deps.Orchestrator.Summarize(ctx, content, length)
		if err != nil {
			return mcpError(fmt.Sprintf("summarization failed: %v", err)), nil
		}
		return mcpText(summary), nil
	}
}

func mcpSuggestQueries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		intent, err := req.RequireString("user_intent")
		if err != nil || strings.TrimSpace(intent) == "" {
			return mcpError("user_intent is required"), nil
		}

		b, err := json.Marshal(deps.Orchestrator.SuggestQueries(ctx, intent))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal suggestions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSummarizePage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		length, err := orchestrator.ParseLength(req.GetString("length", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		page, err := deps.Orchestrator.SummarizePage(ctx, url, length)
		if err != nil {
			return mcpError(fmt.Sprintf("summarization failed: %v", err)), nil
		}
		if page.Title != "" {
			return mcpText(page.Title + "\n\n" + page.Summary), nil
		}
		return mcpText(page.Summary), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type sessionSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Turns     int    `json:"turns"`
			UpdatedAt string `json:"updated_at"`
		}

		summaries := []sessionSummary{}
		if deps.Store != nil {
			sessions, err := deps.Store.ListSessions(historyResourceLimit, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to list sessions: %w", err)
			}
			for _, s := range sessions {
				summaries = append(summaries, sessionSummary{
					ID:        s.ID,
					Title:     s.Title,
					Turns:     s.TurnCount,
					UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
				})
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
