// Package search merges keyword and vector retrieval into one ranked list.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/embedding"
	"github.com/starford/reverie/internal/models"
	"github.com/starford/reverie/internal/store"
)

// MaxQueryRunes bounds the length of a query.
const MaxQueryRunes = 2000

// Options tune ranking and candidate limits. They may be replaced at runtime.
type Options struct {
	// KeywordScore is the distance assigned to literal matches; lower than any
	// cosine distance by default so literal hits are never starved.
	KeywordScore  float64
	// KeywordLimit caps literal matches per query, most recently updated
	// first; older literal matches past the cap may be left out.
	KeywordLimit  int
	SemanticLimit int
	DefaultK      int
	MaxK          int
	Source        store.Source
}

// DefaultOptions returns the built-in tuning.
func DefaultOptions() Options {
	return Options{
		KeywordScore:  0.0,
		KeywordLimit:  50,
		SemanticLimit: 50,
		DefaultK:      10,
		MaxK:          50,
		Source:        store.SourceChunks,
	}
}

// Candidates is the read side of the store used by the planner.
type Candidates interface {
	KeywordCandidates(ctx context.Context, ownerID string, keywords []string, limit int) ([]models.Candidate, error)
	SemanticCandidates(ctx context.Context, ownerID string, vec []float32, source store.Source, limit int) ([]models.Candidate, error)
}

// Planner runs hybrid searches. It is safe for concurrent use.
type Planner struct {
	db     Candidates
	embed  embedding.Embedder
	logger *slog.Logger
	opts   atomic.Pointer[Options]
}

// NewPlanner creates a Planner.
func NewPlanner(db Candidates, embedder embedding.Embedder, logger *slog.Logger, opts Options) *Planner {
	p := &Planner{db: db, embed: embedder, logger: logger}
	p.SetOptions(opts)
	return p
}

// SetOptions atomically replaces the tuning used by subsequent searches.
func (p *Planner) SetOptions(o Options) {
	def := DefaultOptions()
	if o.KeywordLimit <= 0 {
		o.KeywordLimit = def.KeywordLimit
	}
	if o.SemanticLimit <= 0 {
		o.SemanticLimit = def.SemanticLimit
	}
	if o.MaxK <= 0 {
		o.MaxK = def.MaxK
	}
	if o.DefaultK <= 0 || o.DefaultK > o.MaxK {
		o.DefaultK = min(def.DefaultK, o.MaxK)
	}
	if o.KeywordScore < 0 {
		o.KeywordScore = 0
	}
	if o.Source == "" {
		o.Source = def.Source
	}
	p.opts.Store(&o)
}

// Options returns the tuning in effect.
func (p *Planner) Options() Options { return *p.opts.Load() }

// Search returns at most k of ownerID's entries ranked by ascending distance
// to queryText. A k of zero selects the default; larger values are capped.
func (p *Planner) Search(ctx context.Context, ownerID, queryText string, k int) ([]models.Candidate, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", apperr.ErrInvalidInput)
	}
	if !utf8.ValidString(queryText) {
		return nil, fmt.Errorf("%w: query is not valid UTF-8", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(queryText) > MaxQueryRunes {
		return nil, fmt.Errorf("%w: query longer than %d characters", apperr.ErrInvalidInput, MaxQueryRunes)
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", apperr.ErrInvalidInput)
	}

	o := p.Options()
	if k == 0 {
		k = o.DefaultK
	}
	k = min(k, o.MaxK)
	keywords := Keywords(queryText)

	var keyword, semantic []models.Candidate
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		found, err := p.db.KeywordCandidates(gctx, ownerID, keywords, o.KeywordLimit)
		if err != nil {
			return err
		}
		for i := range found {
			found[i].Score = o.KeywordScore
		}
		keyword = found
		return nil
	})

	g.Go(func() error {
		vec, err := p.embed.Embed(gctx, queryText)
		if err != nil {
			p.logger.Warn("search: query embedding failed, using keyword results only",
				slog.String("owner_id", ownerID), slog.String("error", err.Error()))
			return nil
		}
		found, err := p.db.SemanticCandidates(gctx, ownerID, vec, o.Source, o.SemanticLimit)
		if err != nil {
			return err
		}
		semantic = found
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := Merge(keyword, semantic, k)
	p.logger.Debug("search: done",
		slog.String("owner_id", ownerID),
		slog.Int("keywords", len(keywords)),
		slog.Int("keyword_hits", len(keyword)),
		slog.Int("semantic_hits", len(semantic)),
		slog.Int("results", len(out)))
	return out, nil
}
