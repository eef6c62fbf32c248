package api

import (
	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/models"
)

// EntryRequest is the body of entry create and update calls.
type EntryRequest struct {
	EntryID   string `json:"entry_id,omitempty"`
	Text      string `json:"text"`
	EntryDate string `json:"entry_date,omitempty"`
}

// EntryListResponse is a page of entries.
type EntryListResponse struct {
	Entries []models.Entry `json:"entries"`
	Total   int            `json:"total"`
}

// UpsertResponse reports the stored entry and how much of it was indexed.
type UpsertResponse = journal.UpsertResult

// EntryResponse is one entry with its chunks.
type EntryResponse = journal.EntryDetail

// SearchResponse wraps ranked retrieval results.
type SearchResponse struct {
	Results []models.Candidate `json:"results"`
}

// ChatRequest is one user turn. An empty ConversationID starts a new conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Mode           string `json:"mode,omitempty"`
}

// ChatResponse is the stored exchange.
type ChatResponse = chat.Exchange

// HistoryResponse lists conversation messages, most recent first.
type HistoryResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

// PromptRequest asks for a reflective question about an entry text.
type PromptRequest struct {
	EntryText string `json:"entry_text"`
}

// PromptResponse carries the generated question.
type PromptResponse struct {
	Prompt string `json:"prompt"`
}
