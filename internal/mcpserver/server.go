// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Reverie tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/models"
)

// Journal is the entry surface exposed as tools.
type Journal interface {
	Upsert(ctx context.Context, in journal.UpsertInput) (*journal.UpsertResult, error)
	Detail(ctx context.Context, ownerID, entryID string) (*journal.EntryDetail, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]models.Entry, int, error)
}

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, ownerID, queryText string, k int) ([]models.Candidate, error)
}

// History reads conversation messages.
type History interface {
	RecentMessages(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error)
}

const guideURI = "reverie://entry-guide"

// Server wraps the MCP server with Reverie tools.
type Server struct {
	mcp      *server.MCPServer
	journal  Journal
	search   Searcher
	messages History
}

// New creates a new MCP server with all Reverie tools registered.
func New(j Journal, search Searcher, messages History) *Server {
	s := &Server{journal: j, search: search, messages: messages}

	s.mcp = server.NewMCPServer(
		"Reverie",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_journal",
		mcp.WithDescription("Find a user's journal entries by keyword and meaning. "+
			"Results are ordered by distance, closest first."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the journal")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text query")),
		mcp.WithNumber("k", mcp.Description("Maximum number of results (default 10)")),
	), s.searchJournal)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read one journal entry with its sentences and checksum."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the journal")),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("write_entry",
		mcp.WithDescription("Create a journal entry, or replace the text of an existing one. "+
			"Read the entry guide via the "+guideURI+" resource first."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the journal")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Entry text")),
		mcp.WithString("entry_id", mcp.Description("Existing entry id; omit to create")),
		mcp.WithString("entry_date", mcp.Description("Entry date, YYYY-MM-DD")),
		mcp.WithString("if_match", mcp.Description("Checksum from read_entry; rejects stale writes")),
	), s.writeEntry)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List a user's journal entries, most recent first."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the journal")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("recent_messages",
		mcp.WithDescription("Read the latest messages of a conversation, most recent first."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the conversation")),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithNumber("n", mcp.Description("Number of messages (default 10)")),
	), s.recentMessages)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Entry Guide",
			mcp.WithResourceDescription("How journal entries are split and indexed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into a tool error result. Only classified
// errors expose their message.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found"), nil
	case errors.Is(err, apperr.ErrForbidden):
		return mcp.NewToolResultError("forbidden"), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err)), nil
	}
}

func (s *Server) searchJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(ctx, owner, query, req.GetInt("k", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(results)
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.journal.Detail(ctx, owner, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(detail)
}

func (s *Server) writeEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.journal.Upsert(ctx, journal.UpsertInput{
		OwnerID:   owner,
		EntryID:   req.GetString("entry_id", ""),
		Text:      text,
		EntryDate: req.GetString("entry_date", ""),
		IfMatch:   req.GetString("if_match", ""),
	})
	if err != nil {
		return toolError(err)
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s (%d of %d sentences indexed, checksum %s)",
		verb, res.Entry.ID, res.Indexed, res.Chunks, res.Entry.Checksum)), nil
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, total, err := s.journal.List(ctx, owner, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"entries": entries, "total": total})
}

func (s *Server) recentMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conv, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := s.messages.RecentMessages(ctx, owner, conv, req.GetInt("n", 10))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(msgs)
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     EntryGuide,
		},
	}, nil
}
