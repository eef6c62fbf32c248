package store

import (
	"context"
	"fmt"

	"github.com/starford/reverie/internal/models"
	"github.com/starford/reverie/internal/query"
)

// Source selects which vectors semantic search compares against.
type Source string

const (
	// SourceChunks scores an entry by its best-matching sentence.
	SourceChunks Source = "chunks"
	// SourceEntries scores an entry by its whole-entry vector.
	SourceEntries Source = "entries"
)

// KeywordCandidates returns ownerID's entries whose text contains any of
// keywords, most recently updated first. Scores are left at zero for the
// caller to assign.
func (s *Store) KeywordCandidates(ctx context.Context, ownerID string, keywords []string, limit int) ([]models.Candidate, error) {
	if len(keywords) == 0 {
		return []models.Candidate{}, nil
	}
	matches := make([]query.Expr, len(keywords))
	for i, kw := range keywords {
		matches[i] = query.Contains(s.d, "e.text", kw)
	}
	q, err := query.From("entries e").
		Columns("e.id", "e.text", "e.entry_date", "e.updated_at").
		Where(query.Eq("e.owner_id", ownerID)).
		Where(query.AnyOf(matches...)).
		OrderBy("e.updated_at DESC", "e.id ASC").
		Limit(limit).
		Build(s.d)
	if err != nil {
		return nil, fail("keyword candidates", err)
	}
	return s.candidates(ctx, "keyword candidates", q, models.ProvenanceKeyword, false)
}

// SemanticCandidates returns ownerID's entries closest to vec by cosine
// distance, ascending. With SourceChunks an entry's score is the minimum
// distance over its embedded chunks.
func (s *Store) SemanticCandidates(ctx context.Context, ownerID string, vec []float32, source Source, limit int) ([]models.Candidate, error) {
	v, err := s.vector(vec)
	if err != nil {
		return nil, fail("semantic candidates", err)
	}
	if v == nil {
		return []models.Candidate{}, nil
	}

	var sel *query.Select
	switch source {
	case SourceChunks, "":
		sel = query.From("chunks c").
			Columns("e.id", "e.text", "e.entry_date", "e.updated_at").
			Column(query.Raw("MIN("+s.d.Distance("c.embedding")+")", v), "score").
			Join("JOIN entries e ON e.id = c.entry_id").
			Where(query.Eq("e.owner_id", ownerID)).
			Where(query.NotNull("c.embedding")).
			GroupBy("e.id", "e.text", "e.entry_date", "e.updated_at")
	case SourceEntries:
		sel = query.From("entry_embeddings ee").
			Columns("e.id", "e.text", "e.entry_date", "e.updated_at").
			Column(query.Raw(s.d.Distance("ee.embedding"), v), "score").
			Join("JOIN entries e ON e.id = ee.entry_id").
			Where(query.Eq("e.owner_id", ownerID))
	default:
		return nil, fail("semantic candidates", fmt.Errorf("unknown source %q", source))
	}
	q, err := sel.OrderBy("score ASC", "e.updated_at DESC", "e.id ASC").Limit(limit).Build(s.d)
	if err != nil {
		return nil, fail("semantic candidates", err)
	}
	return s.candidates(ctx, "semantic candidates", q, models.ProvenanceSemantic, true)
}

func (s *Store) candidates(ctx context.Context, op string, q query.Query, p models.Provenance, scored bool) ([]models.Candidate, error) {
	rows, err := s.conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fail(op, err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		c := models.Candidate{Provenance: p}
		dest := []any{&c.EntryID, &c.Text, &c.EntryDate, &c.UpdatedAt}
		if scored {
			dest = append(dest, &c.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fail(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(op, err)
	}
	return out, nil
}
