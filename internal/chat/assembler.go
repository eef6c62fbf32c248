// Package chat assembles retrieval context for the reply generator and
// records conversation turns.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/reverie/internal/models"
)

// Defaults for Options.
const (
	DefaultRetrievalK   = 3
	DefaultHistorySize  = 5
	DefaultExcerptRunes = 280
)

// Options tune context assembly.
type Options struct {
	RetrievalK   int
	HistorySize  int
	ExcerptRunes int
	DefaultMode  string
}

func (o Options) withDefaults() Options {
	if o.RetrievalK <= 0 {
		o.RetrievalK = DefaultRetrievalK
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.ExcerptRunes <= 0 {
		o.ExcerptRunes = DefaultExcerptRunes
	}
	return o
}

// Searcher finds past entries related to a message.
type Searcher interface {
	Search(ctx context.Context, ownerID, queryText string, k int) ([]models.Candidate, error)
}

// MessageStore reads and appends conversation messages.
type MessageStore interface {
	RecentMessages(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error)
	AppendExchange(ctx context.Context, msgs ...models.ChatMessage) ([]models.ChatMessage, error)
}

// Assembler builds the context text handed to the reply generator.
type Assembler struct {
	search  Searcher
	history MessageStore
	opts    Options
}

// NewAssembler creates an Assembler.
func NewAssembler(search Searcher, history MessageStore, opts Options) *Assembler {
	return &Assembler{search: search, history: history, opts: opts.withDefaults()}
}

// Context is an assembled prompt context with the inputs it was built from.
type Context struct {
	Text    string               `json:"text"`
	Entries []models.Candidate   `json:"entries"`
	History []models.ChatMessage `json:"history"`
}

// Assemble retrieves related entries and the recent conversation for message
// and renders them, followed by the message itself, in a fixed template.
func (a *Assembler) Assemble(ctx context.Context, ownerID, conversationID, message string) (*Context, error) {
	entries, err := a.search.Search(ctx, ownerID, message, a.opts.RetrievalK)
	if err != nil {
		return nil, fmt.Errorf("chat: retrieve entries: %w", err)
	}
	history, err := a.history.RecentMessages(ctx, ownerID, conversationID, a.opts.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}
	return &Context{
		Text:    Render(entries, history, message, a.opts.ExcerptRunes),
		Entries: entries,
		History: history,
	}, nil
}

// Render formats dated excerpts, then history lines (most recent first),
// then the new message.
func Render(entries []models.Candidate, history []models.ChatMessage, message string, excerptRunes int) string {
	var b strings.Builder

	b.WriteString("Relevant journal entries:\n")
	if len(entries) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s\n", e.EntryDate, Excerpt(e.Text, excerptRunes))
	}

	b.WriteString("\nChat history (most recent first):\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, oneLine(m.Text))
	}

	fmt.Fprintf(&b, "\nUser shares: %q", message)
	return b.String()
}

// Excerpt shortens s to at most n runes on one line.
func Excerpt(s string, n int) string {
	s = oneLine(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
