package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/storage"
	"github.com/kalambet/sumq/internal/worker"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runs  RunService
	Store RunReader
	// Version is reported to MCP clients.
	Version string
}

// NewMCPServer creates an MCP server with the run tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"sumq",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sumq turns video transcripts into kid-friendly Q&A reports. Submit a URL, then poll the run."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("summarize_video",
			mcp.WithDescription("Queue a run that turns a YouTube video (or file:// transcript) into kid-friendly Q&A. Returns the run ID."),
			mcp.WithString("url", mcp.Description("YouTube URL or file:// path"), mcp.Required()),
		),
		mcpSummarizeVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Get the status of a run. Completed runs include their topics and Q&A pairs."),
			mcp.WithString("id", mcp.Description("Run ID"), mcp.Required()),
		),
		mcpGetRun(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_run",
			mcp.WithDescription("Cancel a queued or running run. A running run stops at its next stage boundary."),
			mcp.WithString("id", mcp.Description("Run ID"), mcp.Required()),
		),
		mcpCancelRun(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 runs with their status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSummarizeVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		if err := ValidateURL(url); err != nil {
			return mcpError(err.Error()), nil
		}

		run, err := deps.Runs.Submit(url)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue run: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued run %s", run.ID)), nil
	}
}

type mcpRunResult struct {
	RunView
	Topics []content.KidTopic `json:"topics,omitempty"`
}

func mcpGetRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		run, err := deps.Store.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("run %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get run: %v", err)), nil
		}

		out := mcpRunResult{RunView: newRunView(run)}
		if run.Status == storage.RunCompleted && run.DocumentJSON != "" {
			doc, err := content.DecodeDocument([]byte(run.DocumentJSON))
			if err != nil {
				return mcpError(fmt.Sprintf("run %s has an unreadable document: %v", id, err)), nil
			}
			out.Topics = doc.Topics
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal run: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCancelRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		err = deps.Runs.Cancel(id, "cancelled via MCP")
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return mcpError(fmt.Sprintf("run %s not found", id)), nil
		case errors.Is(err, worker.ErrNotCancellable):
			return mcpError(fmt.Sprintf("run %s already finished", id)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to cancel run: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Cancellation requested for run %s", id)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.ListRuns(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			URL       string `json:"url"`
			Title     string `json:"title,omitempty"`
			Status    string `json:"status"`
			Percent   int    `json:"percent"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			summaries[i] = runSummary{
				ID:        r.ID,
				URL:       r.URL,
				Title:     r.Title,
				Status:    r.Status,
				Percent:   r.Percent,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
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
