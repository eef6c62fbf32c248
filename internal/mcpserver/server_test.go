package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/models"
	"github.com/starford/reverie/internal/search"
	"github.com/starford/reverie/internal/store"
	"github.com/starford/reverie/internal/testutil"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	emb := testutil.NewFakeEmbedder()
	srv := New(
		journal.NewService(db, emb, logger),
		search.NewPlanner(db, emb, logger, search.DefaultOptions()),
		db,
	)
	return srv, db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_journal":
		result, err = srv.searchJournal(ctx, req)
	case "read_entry":
		result, err = srv.readEntry(ctx, req)
	case "write_entry":
		result, err = srv.writeEntry(ctx, req)
	case "list_entries":
		result, err = srv.listEntries(ctx, req)
	case "recent_messages":
		result, err = srv.recentMessages(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// writeEntry creates an entry through the tool and returns its id.
func writeEntry(t *testing.T, srv *Server, owner, text string) string {
	t.Helper()
	r := callTool(t, srv, "write_entry", map[string]any{"owner_id": owner, "text": text})
	out := resultText(r)
	if r.IsError || !strings.HasPrefix(out, "created: ") {
		t.Fatalf("write result = %q", out)
	}
	return strings.Fields(out)[1]
}

func TestWriteAndReadEntry(t *testing.T) {
	srv, _ := testServer(t)
	id := writeEntry(t, srv, "alice", "Long walk today. My feet hurt.")

	r := callTool(t, srv, "read_entry", map[string]any{"owner_id": "alice", "entry_id": id})
	var detail journal.EntryDetail
	if err := json.Unmarshal([]byte(resultText(r)), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Text != "Long walk today. My feet hurt." || len(detail.Chunks) != 2 {
		t.Errorf("detail = %+v", detail)
	}

	// Stale checksum is rejected, current one accepted.
	r = callTool(t, srv, "write_entry", map[string]any{
		"owner_id": "alice", "entry_id": id, "text": "Rewritten.", "if_match": "nope",
	})
	if !r.IsError {
		t.Error("expected conflict for stale checksum")
	}
	r = callTool(t, srv, "write_entry", map[string]any{
		"owner_id": "alice", "entry_id": id, "text": "Rewritten.", "if_match": detail.Checksum,
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "updated: "+id) {
		t.Errorf("update result = %q", resultText(r))
	}
}

func TestReadEntry_OtherOwner(t *testing.T) {
	srv, _ := testServer(t)
	id := writeEntry(t, srv, "alice", "Secret.")
	r := callTool(t, srv, "read_entry", map[string]any{"owner_id": "bob", "entry_id": id})
	if !r.IsError || resultText(r) != "forbidden" {
		t.Errorf("result = %q, error = %v", resultText(r), r.IsError)
	}
}

func TestReadEntryMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_entry", map[string]any{"owner_id": "alice", "entry_id": "0b7d3f7e-4a55-4c1e-8a61-1d0e1d1a6c11"})
	if !r.IsError {
		t.Error("expected error for missing entry")
	}
}

func TestWriteEntry_MissingText(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "write_entry", map[string]any{"owner_id": "alice"})
	if !r.IsError {
		t.Error("expected error for missing text")
	}
}

func TestSearchJournal(t *testing.T) {
	srv, _ := testServer(t)
	id := writeEntry(t, srv, "alice", "Pancakes for breakfast.")
	writeEntry(t, srv, "alice", "Meeting ran late.")

	r := callTool(t, srv, "search_journal", map[string]any{"owner_id": "alice", "query": "pancakes", "k": float64(1)})
	var got []models.Candidate
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(got) != 1 || got[0].EntryID != id || got[0].Provenance != models.ProvenanceKeyword {
		t.Errorf("results = %+v", got)
	}
}

func TestListEntries(t *testing.T) {
	srv, _ := testServer(t)
	writeEntry(t, srv, "alice", "A.")
	writeEntry(t, srv, "alice", "B.")

	r := callTool(t, srv, "list_entries", map[string]any{"owner_id": "alice", "limit": float64(1)})
	var page struct {
		Entries []models.Entry `json:"entries"`
		Total   int            `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Entries) != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestRecentMessages(t *testing.T) {
	srv, db := testServer(t)
	now := time.Now()
	_, err := db.AppendExchange(context.Background(),
		models.ChatMessage{OwnerID: "alice", ConversationID: "c", Sender: models.SenderUser, Text: "hi", CreatedAt: now},
		models.ChatMessage{OwnerID: "alice", ConversationID: "c", Sender: models.SenderAgent, Text: "hello", CreatedAt: now})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "recent_messages", map[string]any{"owner_id": "alice", "conversation_id": "c"})
	var msgs []models.ChatMessage
	if err := json.Unmarshal([]byte(resultText(r)), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
}
