package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/checksum"
	"github.com/starford/reverie/internal/chunker"
	"github.com/starford/reverie/internal/models"
	"github.com/starford/reverie/internal/store"
)

// MaxTextRunes bounds the size of one entry.
const MaxTextRunes = 100_000

// UpsertInput is a validated entry write. An empty EntryID creates a new entry.
type UpsertInput struct {
	OwnerID   string `json:"owner_id"`
	EntryID   string `json:"entry_id,omitempty"`
	Text      string `json:"text"`
	EntryDate string `json:"entry_date,omitempty"`
	// IfMatch is the checksum of the text the caller last read; empty skips the check.
	IfMatch string `json:"-"`
}

// Validate checks the input shape.
func (in UpsertInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OwnerID, validation.Required, validation.Length(1, 128)),
		validation.Field(&in.EntryID, is.UUID),
		validation.Field(&in.Text, validation.Required, validation.Length(1, MaxTextRunes), validation.By(notBlank)),
		validation.Field(&in.EntryDate, validation.Date(models.EntryDateLayout)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

// State is the progress of one entry write.
type State string

const (
	StateStarted          State = "started"
	StateChunked          State = "chunked"
	StateEmbedding        State = "embedding"
	StatePartialEmbedding State = "partial_embedding_failure"
	StateAllEmbedded      State = "all_embedded"
	StateIndexed          State = "indexed"
	StateCommitted        State = "committed"
	StateAborted          State = "aborted"
)

// UpsertResult reports a committed write.
type UpsertResult struct {
	Entry   *models.Entry `json:"entry"`
	Created bool          `json:"created"`
	Chunks  int           `json:"chunks"`
	Indexed int           `json:"indexed"`
	// Skipped holds the indices of chunks whose embedding failed.
	Skipped []int `json:"skipped"`
	State   State `json:"state"`
}

// derived holds the side-effect outputs; nil fields were not produced.
type derived struct {
	emotions []string
	image    string
}

// Upsert creates or updates an entry and re-indexes its sentences.
//
// Embedding failures for individual sentences and side-effect failures are
// logged and skipped. Store errors abort the write and nothing is persisted.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (*UpsertResult, error) {
	return s.upsert(ctx, in, true)
}

func (s *Service) upsert(ctx context.Context, in UpsertInput, sideEffects bool) (res *UpsertResult, err error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}

	state := StateStarted
	entryID := in.EntryID
	created := entryID == ""
	log := s.logger.With(slog.String("owner_id", in.OwnerID))
	to := func(next State) {
		state = next
		log.Debug("journal: write state", slog.String("entry_id", entryID), slog.String("state", string(next)))
	}
	defer func() {
		if err != nil {
			log.Debug("journal: write aborted", slog.String("entry_id", entryID),
				slog.String("state", string(state)), slog.String("error", err.Error()))
		}
	}()

	if created {
		entryID = uuid.NewString()
	} else {
		// Fast fail before any network call; re-checked inside the transaction.
		existing, err := s.db.GetEntry(ctx, in.OwnerID, entryID)
		if err != nil {
			return nil, fmt.Errorf("journal: upsert: %w", err)
		}
		if !checksum.Matches(in.IfMatch, existing.Text) {
			return nil, fmt.Errorf("journal: upsert: entry %s changed: %w", entryID, apperr.ErrConflict)
		}
	}

	chunks, err := chunker.Split(in.Text)
	if err != nil {
		return nil, fmt.Errorf("journal: upsert: %w", err)
	}
	to(StateChunked)

	to(StateEmbedding)
	entryVec, skipped, side := s.fanOut(ctx, entryID, in.Text, chunks, sideEffects)
	if err := ctx.Err(); err != nil {
		s.removeArtifact(side.image)
		to(StateAborted)
		return nil, fmt.Errorf("journal: upsert: %w", err)
	}
	if len(skipped) > 0 {
		to(StatePartialEmbedding)
	} else {
		to(StateAllEmbedded)
	}

	var (
		entry    *models.Entry
		oldImage string
	)
	existingID := ""
	if !created {
		existingID = entryID
	}
	err = s.db.WithEntryWrite(ctx, in.OwnerID, existingID, func(tx *store.EntryTx) error {
		var berr error
		entry, oldImage, berr = s.buildEntry(tx.Existing(), in, entryID, side)
		if berr != nil {
			return berr
		}
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.ReplaceChunks(ctx, entryID, chunks); err != nil {
			return err
		}
		if entryVec != nil {
			if err := tx.UpsertEntryEmbedding(ctx, entryID, entryVec); err != nil {
				return err
			}
		} else if err := tx.DeleteEntryEmbedding(ctx, entryID); err != nil {
			return err
		}
		to(StateIndexed)
		return nil
	})
	if err != nil {
		s.removeArtifact(side.image)
		to(StateAborted)
		return nil, fmt.Errorf("journal: upsert: %w", err)
	}
	to(StateCommitted)

	if side.image != "" && oldImage != "" && oldImage != side.image {
		s.removeArtifact(oldImage)
	}

	kind := EventUpdated
	if created {
		kind = EventCreated
	}
	s.publish(in.OwnerID, kind, entryID)

	log.Info("journal: entry indexed",
		slog.String("entry_id", entryID),
		slog.Bool("created", created),
		slog.Int("chunks", len(chunks)),
		slog.Int("skipped", len(skipped)))

	return &UpsertResult{
		Entry:   entry,
		Created: created,
		Chunks:  len(chunks),
		Indexed: len(chunks) - len(skipped),
		Skipped: skipped,
		State:   state,
	}, nil
}

// buildEntry merges the input and derived fields over the existing row.
// A side effect that produced nothing leaves the previous value in place.
func (s *Service) buildEntry(existing *models.Entry, in UpsertInput, entryID string, side derived) (*models.Entry, string, error) {
	now := s.now()
	e := &models.Entry{
		ID:        entryID,
		OwnerID:   in.OwnerID,
		Text:      in.Text,
		EntryDate: in.EntryDate,
		Emotions:  []string{},
		Checksum:  checksum.Text(in.Text),
		CreatedAt: now,
		UpdatedAt: now,
	}
	oldImage := ""
	if existing != nil {
		if !checksum.Matches(in.IfMatch, existing.Text) {
			return nil, "", fmt.Errorf("entry %s changed: %w", entryID, apperr.ErrConflict)
		}
		e.CreatedAt = existing.CreatedAt
		e.Emotions = existing.Emotions
		e.ImagePath = existing.ImagePath
		if e.EntryDate == "" {
			e.EntryDate = existing.EntryDate
		}
		oldImage = existing.ImagePath
	}
	if e.EntryDate == "" {
		e.EntryDate = now.Format(models.EntryDateLayout)
	}
	if side.emotions != nil {
		e.Emotions = side.emotions
	}
	if side.image != "" {
		e.ImagePath = side.image
	}
	return e, oldImage, nil
}

// fanOut embeds every chunk with bounded parallelism and runs the side
// effects alongside. Failures never propagate: failed chunks keep a nil
// vector and their indices are returned sorted.
func (s *Service) fanOut(ctx context.Context, entryID, text string, chunks []models.Chunk, sideEffects bool) ([]float32, []int, derived) {
	var (
		entryVec []float32
		side     derived
		mu       sync.Mutex
		skipped  []int
	)

	var outer errgroup.Group

	outer.Go(func() error {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i := range chunks {
			g.Go(func() error {
				vec, err := s.embed.Embed(ctx, chunks[i].Text)
				if err != nil {
					s.logger.Warn("journal: chunk embedding failed, skipping",
						slog.String("entry_id", entryID),
						slog.Int("chunk_index", chunks[i].Index),
						slog.String("error", err.Error()))
					mu.Lock()
					skipped = append(skipped, chunks[i].Index)
					mu.Unlock()
					return nil
				}
				chunks[i].Embedding = vec
				return nil
			})
		}
		return g.Wait()
	})

	if s.entryEmbedding {
		outer.Go(func() error {
			vec, err := s.embed.Embed(ctx, text)
			if err != nil {
				s.logger.Warn("journal: entry embedding failed", slog.String("entry_id", entryID), slog.String("error", err.Error()))
				return nil
			}
			entryVec = vec
			return nil
		})
	}

	if sideEffects && s.emotions != nil {
		outer.Go(func() error {
			labels, err := s.emotions.ClassifyEmotions(ctx, text)
			if err != nil {
				s.logger.Warn("journal: emotion classification failed", slog.String("entry_id", entryID), slog.String("error", err.Error()))
				return nil
			}
			side.emotions = labels
			return nil
		})
	}

	if sideEffects && s.images != nil && s.artifacts != nil {
		outer.Go(func() error {
			img, err := s.images.GenerateImage(ctx, text)
			if err != nil {
				s.logger.Warn("journal: image generation failed", slog.String("entry_id", entryID), slog.String("error", err.Error()))
				return nil
			}
			name, err := s.artifacts.Save(entryID, img)
			if err != nil {
				s.logger.Warn("journal: save image failed", slog.String("entry_id", entryID), slog.String("error", err.Error()))
				return nil
			}
			side.image = name
			return nil
		})
	}

	_ = outer.Wait()
	slices.Sort(skipped)
	return entryVec, skipped, side
}
