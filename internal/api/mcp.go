package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/storage"
)

const sessionsResourceURI = "void://sessions"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service  *chat.Service
	Sessions *chat.Sessions
	Store    *storage.Store // optional; without it void://sessions is empty
	Version  string
}

// NewMCPServer creates an MCP server exposing the chat tool and the session
// list resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"void",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("void: conversational access to a local or remote text engine with per-session memory."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message and get the assistant's reply. Reuse session_id to continue a conversation."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation to continue; a new one is started when omitted")),
		),
		mcpChat(deps),
	)

	s.AddResource(
		mcp.NewResource(
			sessionsResourceURI,
			"Sessions",
			mcp.WithResourceDescription("Recently active conversations with their last message"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || message == "" {
			return mcpError("message is required"), nil
		}

		id := req.GetString("session_id", "")
		if id == "" {
			id = chat.NewID()
		}
		mem := deps.Sessions.Get(id)

		reply := deps.Service.Send(ctx, mem, message)
		if reply.Err != nil {
			return mcpError(fmt.Sprintf("%s\n\nsession_id: %s", reply.Content(), id)), nil
		}
		return mcpText(fmt.Sprintf("%s\n\nsession_id: %s", reply.Text, id)), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type sessionSummary struct {
			ID        string `json:"id"`
			UpdatedAt string `json:"updated_at"`
			Turns     int    `json:"turns"`
			Last      string `json:"last,omitempty"`
		}

		summaries := []sessionSummary{}
		if deps.Store != nil {
			sessions, err := deps.Store.ListSessions(10, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to list sessions: %w", err)
			}
			for _, s := range sessions {
				sum := sessionSummary{
					ID:        s.ID,
					UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
					Turns:     s.TurnCount,
				}
				turns, err := deps.Store.ListTurns(s.ID)
				if err != nil {
					return nil, fmt.Errorf("failed to list turns: %w", err)
				}
				if len(turns) > 0 {
					sum.Last = truncate(turns[len(turns)-1].Text, 200)
				}
				summaries = append(summaries, sum)
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

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
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
