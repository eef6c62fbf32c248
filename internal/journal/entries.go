package journal

import (
	"context"
	"fmt"

	"github.com/starford/reverie/internal/models"
)

// EntryDetail is an entry with its sentence chunks.
type EntryDetail struct {
	models.Entry
	Chunks []models.Chunk `json:"chunks"`
}

// Get returns one entry of ownerID.
func (s *Service) Get(ctx context.Context, ownerID, entryID string) (*models.Entry, error) {
	e, err := s.db.GetEntry(ctx, ownerID, entryID)
	if err != nil {
		return nil, fmt.Errorf("journal: get: %w", err)
	}
	return e, nil
}

// Detail returns one entry of ownerID together with its chunks.
func (s *Service) Detail(ctx context.Context, ownerID, entryID string) (*EntryDetail, error) {
	e, err := s.Get(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.db.Chunks(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("journal: chunks: %w", err)
	}
	return &EntryDetail{Entry: *e, Chunks: chunks}, nil
}

// List returns a page of ownerID's entries, most recent first, and the total.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]models.Entry, int, error) {
	entries, total, err := s.db.ListEntries(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("journal: list: %w", err)
	}
	return entries, total, nil
}

// Delete removes an entry, its chunks, its vectors and its image.
func (s *Service) Delete(ctx context.Context, ownerID, entryID string) error {
	removed, err := s.db.DeleteEntry(ctx, ownerID, entryID)
	if err != nil {
		return fmt.Errorf("journal: delete: %w", err)
	}
	s.removeArtifact(removed.ImagePath)
	s.publish(ownerID, EventDeleted, entryID)
	return nil
}
