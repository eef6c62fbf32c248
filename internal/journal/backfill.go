package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultBackfillBatch is the page size used by Backfill.
const DefaultBackfillBatch = 100

// BackfillReport summarizes one Backfill run.
type BackfillReport struct {
	Rechunked int `json:"rechunked"`
	Embedded  int `json:"embedded"`
	Failed    int `json:"failed"`
}

// Backfill brings the index up to date:
//   - entries with text but no chunk rows are re-chunked and re-embedded
//   - chunks stored without a vector are embedded again
//
// Failures are logged and counted; only store errors stop the run.
func (s *Service) Backfill(ctx context.Context, batch int) (BackfillReport, error) {
	if batch <= 0 {
		batch = DefaultBackfillBatch
	}
	var report BackfillReport

	for {
		entries, err := s.db.EntriesWithoutChunks(ctx, batch)
		if err != nil {
			return report, fmt.Errorf("journal: backfill: %w", err)
		}
		progressed := false
		for _, e := range entries {
			res, err := s.upsert(ctx, UpsertInput{OwnerID: e.OwnerID, EntryID: e.ID, Text: e.Text, EntryDate: e.EntryDate}, false)
			if err != nil {
				s.logger.Warn("backfill: rechunk failed", slog.String("entry_id", e.ID), slog.String("error", err.Error()))
				report.Failed++
				continue
			}
			if res.Chunks > 0 {
				progressed = true
			}
			report.Rechunked++
		}
		if len(entries) < batch || !progressed {
			break
		}
	}

	var afterID int64
	for {
		pending, err := s.db.PendingChunks(ctx, afterID, batch)
		if err != nil {
			return report, fmt.Errorf("journal: backfill: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		afterID = pending[len(pending)-1].ID

		var embedded, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, c := range pending {
			g.Go(func() error {
				vec, err := s.embed.Embed(gctx, c.Text)
				if err != nil {
					s.logger.Warn("backfill: chunk embedding failed",
						slog.String("entry_id", c.EntryID),
						slog.Int("chunk_index", c.Index),
						slog.String("error", err.Error()))
					failed.Add(1)
					return nil
				}
				ok, err := s.db.SetChunkEmbedding(gctx, c.ID, vec)
				if err != nil {
					return err
				}
				if ok {
					embedded.Add(1)
				}
				return nil
			})
		}
		err = g.Wait()
		report.Embedded += int(embedded.Load())
		report.Failed += int(failed.Load())
		if err != nil {
			return report, fmt.Errorf("journal: backfill: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("journal: backfill: %w", err)
		}
	}

	s.logger.Info("backfill: done",
		slog.Int("rechunked", report.Rechunked),
		slog.Int("embedded", report.Embedded),
		slog.Int("failed", report.Failed))
	return report, nil
}
