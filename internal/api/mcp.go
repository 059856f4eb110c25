package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qianban/qianban/internal/interest"
	"github.com/qianban/qianban/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Book      *interest.Book
	ProfileID string
}

// NewMCPServer exposes the companion's interest profile to MCP clients,
// so an assistant can read and grow the profile mid-conversation.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"qianban",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("qianban — elderly companion daemon exposing the user's interest profile and chat history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_interests",
			mcp.WithDescription("List the user's known interests with their preference levels (1=mild, 2=like, 3=love)."),
		),
		mcpListInterests(deps),
	)

	s.AddTool(
		mcp.NewTool("add_interest",
			mcp.WithDescription("Record an interest for the user. Re-adding an existing interest keeps the higher level."),
			mcp.WithString("category", mcp.Description("Interest category, e.g. 运动"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Interest name, e.g. 太极"), mcp.Required()),
			mcp.WithNumber("level", mcp.Description("Preference level 1..3 (default 1)")),
		),
		mcpAddInterest(deps),
	)

	s.AddTool(
		mcp.NewTool("next_question",
			mcp.WithDescription("Get the next scripted question for learning more about the user's hobbies."),
		),
		mcpNextQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_interests",
			mcp.WithDescription("Erase the user's entire interest profile. Irreversible."),
		),
		mcpClearInterests(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://interests",
			"Interest Profile",
			mcp.WithResourceDescription("The user's accumulated interests as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceInterests(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://recent-chats",
			"Recent Chats",
			mcp.WithResourceDescription("Last 10 recorded companion chat turns"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentChats(deps),
	)

	return s
}

func mcpListInterests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items := deps.Book.Interests()
		if len(items) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal interests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddInterest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		level := req.GetInt("level", interest.LevelMild)

		item := interest.Interest{Category: category, Name: name, Level: level}
		if err := deps.Book.Add(item); err != nil {
			return mcpError(fmt.Sprintf("failed to add interest: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s/%s at level %d", category, name, level)), nil
	}
}

func mcpNextQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(deps.Book.NextQuestion()), nil
	}
}

func mcpClearInterests(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Book.Clear()
		return mcpText("Interest profile cleared"), nil
	}
}

func mcpResourceInterests(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items := deps.Book.Interests()
		if items == nil {
			items = []interest.Interest{}
		}
		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interests: %w", err)
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

func mcpResourceRecentChats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions(deps.ProfileID, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list interactions: %w", err)
		}

		type turn struct {
			CreatedAt string `json:"created_at"`
			Message   string `json:"message"`
			Reply     string `json:"reply"`
		}
		turns := make([]turn, len(interactions))
		for i, ix := range interactions {
			turns[i] = turn{
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Message:   ix.Message,
				Reply:     ix.Reply,
			}
		}

		b, err := json.Marshal(turns)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chats: %w", err)
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
