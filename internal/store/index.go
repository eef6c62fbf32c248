package store

import (
	"context"

	"github.com/starford/reverie/internal/models"
)

// Index defines the persistence operations the journal core depends on.
// Consumers should depend on this interface rather than the concrete *Store.
type Index interface {
	BeginEntryWrite(ctx context.Context, ownerID, entryID string) (*EntryTx, error)
	WithEntryWrite(ctx context.Context, ownerID, entryID string, fn func(*EntryTx) error) error
	GetEntry(ctx context.Context, ownerID, entryID string) (*models.Entry, error)
	ListEntries(ctx context.Context, ownerID string, limit, offset int) ([]models.Entry, int, error)
	DeleteEntry(ctx context.Context, ownerID, entryID string) (*models.Entry, error)
	Chunks(ctx context.Context, entryID string) ([]models.Chunk, error)

	KeywordCandidates(ctx context.Context, ownerID string, keywords []string, limit int) ([]models.Candidate, error)
	SemanticCandidates(ctx context.Context, ownerID string, vec []float32, source Source, limit int) ([]models.Candidate, error)

	AppendExchange(ctx context.Context, msgs ...models.ChatMessage) ([]models.ChatMessage, error)
	RecentMessages(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error)

	PendingChunks(ctx context.Context, afterID int64, limit int) ([]models.Chunk, error)
	SetChunkEmbedding(ctx context.Context, chunkID int64, vec []float32) (bool, error)
	EntriesWithoutChunks(ctx context.Context, limit int) ([]models.Entry, error)
	Stats(ctx context.Context, ownerID string) (Stats, error)

	Dimensions() int
	Close() error
}

// Verify *Store satisfies Index at compile time.
var _ Index = (*Store)(nil)
