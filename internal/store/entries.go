package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/models"
)

const entryColumns = `id, owner_id, text, entry_date, image_path, emotions, checksum, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*models.Entry, error) {
	var (
		e        models.Entry
		emotions string
	)
	if err := r.Scan(&e.ID, &e.OwnerID, &e.Text, &e.EntryDate, &e.ImagePath, &emotions,
		&e.Checksum, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(emotions), &e.Emotions); err != nil {
		return nil, fmt.Errorf("decode emotions: %w", err)
	}
	if e.Emotions == nil {
		e.Emotions = []string{}
	}
	return &e, nil
}

// loadOwned reads an entry and checks it belongs to ownerID.
func (s *Store) loadOwned(ctx context.Context, q queryer, ownerID, entryID string, lock bool) (*models.Entry, error) {
	stmt := `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`
	if lock && s.d.Name() == DriverPostgres {
		stmt += ` FOR UPDATE`
	}
	e, err := scanEntry(q.QueryRowContext(ctx, s.rebind(stmt), entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", entryID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, fmt.Errorf("entry %s: %w", entryID, apperr.ErrForbidden)
	}
	return e, nil
}

// EntryTx is the transactional scope of one entry write. All methods must be
// called from a single goroutine. Rollback is safe to call after Commit.
type EntryTx struct {
	s        *Store
	tx       *sql.Tx
	ownerID  string
	existing *models.Entry
	done     bool
}

// BeginEntryWrite opens a write scope for ownerID. When entryID is non-empty
// the entry must exist and belong to ownerID; it is then locked for the
// duration of the transaction.
func (s *Store) BeginEntryWrite(ctx context.Context, ownerID, entryID string) (*EntryTx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fail("begin entry write", err)
	}
	et := &EntryTx{s: s, tx: tx, ownerID: ownerID}
	if entryID != "" {
		existing, err := s.loadOwned(ctx, tx, ownerID, entryID, true)
		if err != nil {
			_ = tx.Rollback()
			return nil, fail("begin entry write", err)
		}
		et.existing = existing
	}
	return et, nil
}

// WithEntryWrite runs fn inside a write scope and commits when fn succeeds.
// Any error rolls the whole write back before it is returned.
func (s *Store) WithEntryWrite(ctx context.Context, ownerID, entryID string, fn func(*EntryTx) error) error {
	tx, err := s.BeginEntryWrite(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Existing returns the entry as it was when the scope opened, or nil for an insert.
func (t *EntryTx) Existing() *models.Entry { return t.existing }

// SaveEntry inserts or updates the entry row. CreatedAt is kept on update.
func (t *EntryTx) SaveEntry(ctx context.Context, e *models.Entry) error {
	if e.OwnerID != t.ownerID {
		return fail("save entry", fmt.Errorf("entry %s: %w", e.ID, apperr.ErrForbidden))
	}
	emotions := e.Emotions
	if emotions == nil {
		emotions = []string{}
	}
	emotionsJSON, _ := json.Marshal(emotions)

	_, err := t.tx.ExecContext(ctx, t.s.rebind(`
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text       = excluded.text,
			entry_date = excluded.entry_date,
			image_path = excluded.image_path,
			emotions   = excluded.emotions,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`), e.ID, e.OwnerID, e.Text, e.EntryDate, e.ImagePath, string(emotionsJSON),
		e.Checksum, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fail("save entry", err)
	}
	return nil
}

// ReplaceChunks deletes every chunk of entryID and inserts chunks in their
// given order. Chunks without an embedding are stored with a NULL vector.
func (t *EntryTx) ReplaceChunks(ctx context.Context, entryID string, chunks []models.Chunk) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`DELETE FROM chunks WHERE entry_id = ?`), entryID); err != nil {
		return fail("delete chunks", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, t.s.rebind(
		`INSERT INTO chunks (entry_id, chunk_index, text, embedding) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fail("prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		vec, err := t.s.vector(c.Embedding)
		if err != nil {
			return fail("insert chunk", err)
		}
		if _, err := stmt.ExecContext(ctx, entryID, c.Index, c.Text, vec); err != nil {
			return fail("insert chunk", err)
		}
	}
	return nil
}

// UpsertEntryEmbedding stores the whole-entry vector, replacing any previous one.
func (t *EntryTx) UpsertEntryEmbedding(ctx context.Context, entryID string, vec []float32) error {
	if vec == nil {
		return fail("upsert entry embedding", errors.New("nil vector"))
	}
	v, err := t.s.vector(vec)
	if err != nil {
		return fail("upsert entry embedding", err)
	}
	_, err = t.tx.ExecContext(ctx, t.s.rebind(`
		INSERT INTO entry_embeddings (entry_id, embedding) VALUES (?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET embedding = excluded.embedding
	`), entryID, v)
	if err != nil {
		return fail("upsert entry embedding", err)
	}
	return nil
}

// DeleteEntryEmbedding drops a stale whole-entry vector.
func (t *EntryTx) DeleteEntryEmbedding(ctx context.Context, entryID string) error {
	if _, err := t.tx.ExecContext(ctx, t.s.rebind(`DELETE FROM entry_embeddings WHERE entry_id = ?`), entryID); err != nil {
		return fail("delete entry embedding", err)
	}
	return nil
}

// Commit makes every write of the scope durable and visible.
func (t *EntryTx) Commit() error {
	if t.done {
		return fail("commit", errors.New("transaction already finished"))
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fail("commit", err)
	}
	return nil
}

// Rollback discards the scope. It is a no-op once the scope has finished.
func (t *EntryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fail("rollback", err)
	}
	return nil
}

// GetEntry returns one entry of ownerID.
func (s *Store) GetEntry(ctx context.Context, ownerID, entryID string) (*models.Entry, error) {
	e, err := s.loadOwned(ctx, s.conn, ownerID, entryID, false)
	if err != nil {
		return nil, fail("get entry", err)
	}
	return e, nil
}

// ListEntries returns a page of ownerID's entries, most recently updated first,
// and the total count.
func (s *Store) ListEntries(ctx context.Context, ownerID string, limit, offset int) ([]models.Entry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, s.rebind(`SELECT count(*) FROM entries WHERE owner_id = ?`), ownerID).Scan(&total); err != nil {
		return nil, 0, fail("count entries", err)
	}

	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT `+entryColumns+` FROM entries
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`), ownerID, limit, offset)
	if err != nil {
		return nil, 0, fail("list entries", err)
	}
	defer rows.Close()

	out := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fail("list entries", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fail("list entries", err)
	}
	return out, total, nil
}

// DeleteEntry removes an entry with its chunks and vectors in one transaction
// and returns the removed row.
func (s *Store) DeleteEntry(ctx context.Context, ownerID, entryID string) (*models.Entry, error) {
	var removed *models.Entry
	err := s.WithEntryWrite(ctx, ownerID, entryID, func(tx *EntryTx) error {
		removed = tx.Existing()
		for _, stmt := range []string{
			`DELETE FROM chunks WHERE entry_id = ?`,
			`DELETE FROM entry_embeddings WHERE entry_id = ?`,
			`DELETE FROM entries WHERE id = ?`,
		} {
			if _, err := tx.tx.ExecContext(ctx, s.rebind(stmt), entryID); err != nil {
				return fail("delete entry", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Chunks returns the chunks of entryID in index order, vectors included.
func (s *Store) Chunks(ctx context.Context, entryID string) ([]models.Chunk, error) {
	rows, err := s.conn.QueryContext(ctx, s.rebind(`
		SELECT id, entry_id, chunk_index, text, `+s.d.VectorColumn("embedding")+`
		FROM chunks WHERE entry_id = ?
		ORDER BY chunk_index
	`), entryID)
	if err != nil {
		return nil, fail("chunks", err)
	}
	defer rows.Close()
	return s.scanChunks(rows)
}

func (s *Store) scanChunks(rows *sql.Rows) ([]models.Chunk, error) {
	out := []models.Chunk{}
	for rows.Next() {
		var (
			c   models.Chunk
			raw any
		)
		if err := rows.Scan(&c.ID, &c.EntryID, &c.Index, &c.Text, &raw); err != nil {
			return nil, fail("scan chunk", err)
		}
		vec, err := s.d.DecodeVector(raw)
		if err != nil {
			return nil, fail("scan chunk", err)
		}
		c.Embedding = vec
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("scan chunk", err)
	}
	return out, nil
}
