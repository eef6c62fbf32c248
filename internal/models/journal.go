// Package models defines the domain types for Reverie.
package models

import "time"

// EntryDateLayout is the layout of Entry.EntryDate.
const EntryDateLayout = "2006-01-02"

// Entry is one journal entry. ID is immutable once assigned; Text and the
// derived fields change on every update.
type Entry struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	EntryDate string    `json:"entry_date"`
	ImagePath string    `json:"image_path,omitempty"`
	Emotions  []string  `json:"emotions"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a sentence of an entry. Index is the zero-based position of the
// sentence in the entry text. Embedding is nil when the chunk has not been
// embedded (it is then invisible to semantic search).
type Chunk struct {
	ID        int64     `json:"id"`
	EntryID   string    `json:"entry_id"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// Indexed reports whether the chunk carries a vector.
func (c Chunk) Indexed() bool { return len(c.Embedding) > 0 }

// Provenance names the ranking signal that produced a candidate's score.
type Provenance string

const (
	ProvenanceKeyword  Provenance = "keyword"
	ProvenanceSemantic Provenance = "semantic"
)

// Candidate is a transient retrieval result. Score is a distance: lower is better.
type Candidate struct {
	EntryID    string     `json:"entry_id"`
	Text       string     `json:"text"`
	EntryDate  string     `json:"entry_date"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// Sender is the author role of a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ChatMessage is an append-only conversation message.
type ChatMessage struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	Mode           string    `json:"mode,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
