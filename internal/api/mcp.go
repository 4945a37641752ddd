package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/clauveo/internal/analysis"
	"github.com/kalambet/clauveo/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions     SessionService
	Assistant    AssistantService
	Analyzer     analysis.Analyzer
	Interactions InteractionStore // optional; if nil, interactions://recent is not registered
	Version      string
}

// NewMCPServer creates an MCP server exposing the recording session and the
// assistant bridge as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"clauveo",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("clauveo records what the user is looking at and hands it to the assistant CLI."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_recording",
			mcp.WithDescription("Start a recording session. Restarting an active session resets its start time."),
		),
		mcpSessionOp(deps.Sessions.Start),
	)

	s.AddTool(
		mcp.NewTool("stop_recording",
			mcp.WithDescription("Stop recording and move the session to Processing."),
		),
		mcpSessionOp(deps.Sessions.Stop),
	)

	s.AddTool(
		mcp.NewTool("get_recording_status",
			mcp.WithDescription("Return the current recording session snapshot."),
		),
		mcpSessionOp(deps.Sessions.Status),
	)

	s.AddTool(
		mcp.NewTool("submit_metadata",
			mcp.WithDescription("Attach analysis metadata to the session and mark it Completed."),
			mcp.WithString("metadata", mcp.Description("RecordingMetadata as a JSON document"), mcp.Required()),
		),
		mcpSubmitMetadata(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_recording",
			mcp.WithDescription("Derive metadata from a transcript and on-screen text and submit it for the current session."),
			mcp.WithString("transcript", mcp.Description("What the user said during the recording")),
			mcp.WithArray("screen_text", mcp.Description("Recognized text per frame, in order"), mcp.WithStringItems()),
			mcp.WithNumber("frames_analyzed", mcp.Description("Frame count (defaults to the number of screen_text entries)")),
		),
		mcpAnalyze(deps),
	)

	s.AddTool(
		mcp.NewTool("mark_recording_error",
			mcp.WithDescription("Move the session to the Error state with a message."),
			mcp.WithString("message", mcp.Description("User-displayable error message"), mcp.Required()),
		),
		mcpMarkError(deps),
	)

	s.AddTool(
		mcp.NewTool("cleanup_recording_files",
			mcp.WithDescription("Remove any scratch files left over for a session."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpCleanup(deps),
	)

	s.AddTool(
		mcp.NewTool("send_to_assistant",
			mcp.WithDescription("Send a message with screenshots and transcript to the assistant CLI and return its reply."),
			mcp.WithString("message", mcp.Description("Message for the assistant"), mcp.Required()),
			mcp.WithArray("frames", mcp.Description("Base64 JPEG frames or data URLs, in order"), mcp.WithStringItems()),
			mcp.WithString("transcript", mcp.Description("What the user said")),
			mcp.WithString("project_path", mcp.Description("Working directory for the assistant")),
			mcp.WithString("session_id", mcp.Description("Session to associate scratch files with (defaults to the current session)")),
		),
		mcpSend(deps),
	)

	s.AddTool(
		mcp.NewTool("check_assistant_available",
			mcp.WithDescription("Report whether the assistant CLI can be launched."),
		),
		mcpAvailable(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://current",
			"Current Recording Session",
			mcp.WithResourceDescription("Current recording session snapshot as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSession(deps),
	)

	if deps.Interactions != nil {
		s.AddResource(
			mcp.NewResource(
				"interactions://recent",
				"Recent Interactions",
				mcp.WithResourceDescription("Last 10 assistant requests (summaries only)"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpSessionOp(op func() (session.RecordingSession, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, err := op()
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(s), nil
	}
}

func mcpSubmitMetadata(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		switch v := req.GetArguments()["metadata"].(type) {
		case nil:
			return mcpError("metadata is required"), nil
		case string:
			raw = []byte(v)
		default:
			// Clients may send the document as a JSON object instead of a string.
			b, err := json.Marshal(v)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid metadata: %v", err)), nil
			}
			raw = b
		}

		s, err := deps.Sessions.SubmitMetadata(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(s), nil
	}
}

func mcpAnalyze(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		frames := req.GetInt("frames_analyzed", 0)
		if frames < 0 {
			return mcpError("frames_analyzed must not be negative"), nil
		}
		s, err := analyze(deps.Sessions, deps.Analyzer, AnalyzeRequest{
			Transcript:     req.GetString("transcript", ""),
			ScreenText:     req.GetStringSlice("screen_text", nil),
			FramesAnalyzed: uint32(frames),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(s), nil
	}
}

func mcpMarkError(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := req.RequireString("message")
		if err != nil || msg == "" {
			return mcpError("message is required"), nil
		}
		s, err := deps.Sessions.MarkError(msg)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(s), nil
	}
}

func mcpCleanup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		msg, err := deps.Assistant.Cleanup(id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(msg), nil
	}
}

func mcpSend(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || message == "" {
			return mcpError("message is required"), nil
		}

		reply, err := send(deps.Sessions, deps.Assistant, SendRequest{
			Message:     message,
			Frames:      req.GetStringSlice("frames", nil),
			Transcript:  req.GetString("transcript", ""),
			ProjectPath: req.GetString("project_path", ""),
			SessionID:   req.GetString("session_id", ""),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(reply), nil
	}
}

func mcpAvailable(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(strconv.FormatBool(deps.Assistant.Available())), nil
	}
}

func mcpResourceSession(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Sessions.Status()
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}

		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
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

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Interactions.ListInteractions(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Status    string `json:"status"`
			Message   string `json:"message"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			msg := ix.Message
			if utf8.RuneCountInString(msg) > 200 {
				runes := []rune(msg)
				msg = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Status:    ix.Status,
				Message:   msg,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
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

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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
