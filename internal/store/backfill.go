package store

import (
	"context"

	"github.com/starford/reverie/internal/models"
)

// Stats summarizes what is indexed for one owner.
type Stats struct {
	Entries int `json:"entries"`
	Chunks  int `json:"chunks"`
	Indexed int `json:"indexed"`
}

// PendingChunks returns up to limit chunks stored without a vector whose id
// is greater than afterID, in id order.
func (s *Store) PendingChunks(ctx context.Context, afterID int64, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT id, entry_id, chunk_index, text, `+s.d.VectorColumn("embedding")+`
		FROM chunks WHERE embedding IS NULL AND id > ?
		ORDER BY id
		LIMIT ?
	`), afterID, limit)
	if err != nil {
		return nil, fail("pending chunks", err)
	}
	defer rows.Close()
	return s.scanChunks(rows)
}

// SetChunkEmbedding fills the vector of a chunk that still has none. It
// reports false when the chunk was replaced or embedded in the meantime.
func (s *Store) SetChunkEmbedding(ctx context.Context, chunkID int64, vec []float32) (bool, error) {
	v, err := s.vector(vec)
	if err != nil {
		return false, fail("set chunk embedding", err)
	}
	res, err := s.conn.ExecContext(ctx, s.rebind(
		`UPDATE chunks SET embedding = ? WHERE id = ? AND embedding IS NULL`), v, chunkID)
	if err != nil {
		return false, fail("set chunk embedding", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail("set chunk embedding", err)
	}
	return n == 1, nil
}

// EntriesWithoutChunks returns up to limit entries that have text but no chunk rows.
func (s *Store) EntriesWithoutChunks(ctx context.Context, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT `+entryColumns+` FROM entries e
		WHERE e.text <> '' AND NOT EXISTS (SELECT 1 FROM chunks c WHERE c.entry_id = e.id)
		ORDER BY e.created_at
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fail("entries without chunks", err)
	}
	defer rows.Close()

	out := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fail("entries without chunks", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("entries without chunks", err)
	}
	return out, nil
}

// Stats counts ownerID's entries, chunks and embedded chunks.
func (s *Store) Stats(ctx context.Context, ownerID string) (Stats, error) {
	var st Stats
	err := s.conn.QueryRowContext(ctx, s.rebind(`
		SELECT
			(SELECT count(*) FROM entries WHERE owner_id = ?),
			(SELECT count(*) FROM chunks c JOIN entries e ON e.id = c.entry_id WHERE e.owner_id = ?),
			(SELECT count(*) FROM chunks c JOIN entries e ON e.id = c.entry_id WHERE e.owner_id = ? AND c.embedding IS NOT NULL)
	`), ownerID, ownerID, ownerID).Scan(&st.Entries, &st.Chunks, &st.Indexed)
	if err != nil {
		return Stats{}, fail("stats", err)
	}
	return st, nil
}
