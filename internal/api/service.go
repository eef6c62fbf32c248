package api

import (
	"context"

	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/models"
	"github.com/starford/reverie/internal/search"
)

// Journal is the entry surface used by the handlers.
type Journal interface {
	Upsert(ctx context.Context, in journal.UpsertInput) (*journal.UpsertResult, error)
	Detail(ctx context.Context, ownerID, entryID string) (*journal.EntryDetail, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]models.Entry, int, error)
	Delete(ctx context.Context, ownerID, entryID string) error
}

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, ownerID, queryText string, k int) ([]models.Candidate, error)
}

// Chat answers messages and reads conversation history.
type Chat interface {
	Respond(ctx context.Context, in chat.RespondInput) (*chat.Exchange, error)
	History(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error)
}

// Prompter writes a reflective question for an entry text.
type Prompter interface {
	ReflectivePrompt(ctx context.Context, entryText string) (string, error)
}

// Services bundles the handler dependencies. Chat and Prompter may be nil
// when no assistant is configured; their routes then answer 503.
type Services struct {
	Journal  Journal
	Search   Searcher
	Chat     Chat
	Prompter Prompter
}

var (
	_ Journal  = (*journal.Service)(nil)
	_ Searcher = (*search.Planner)(nil)
	_ Chat     = (*chat.Service)(nil)
)
