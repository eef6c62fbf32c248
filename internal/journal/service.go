// Package journal coordinates entry writes: chunking, per-sentence embedding,
// derived fields and the transactional index update.
package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/reverie/internal/embedding"
	"github.com/starford/reverie/internal/storage"
	"github.com/starford/reverie/internal/store"
)

// DefaultConcurrency bounds the embedding calls in flight for one write.
const DefaultConcurrency = 4

// EmotionClassifier derives emotion labels from entry text.
type EmotionClassifier interface {
	ClassifyEmotions(ctx context.Context, entryText string) ([]string, error)
}

// ImageGenerator renders an image for entry text.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, entryText string) ([]byte, error)
}

// Notifier receives entry change notifications after commit.
type Notifier interface {
	PublishEntryEvent(ownerID, kind, entryID string)
}

// Entry event kinds.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Service coordinates the store, the embedder and the side-effect collaborators.
type Service struct {
	db     store.Index
	embed  embedding.Embedder
	logger *slog.Logger

	emotions  EmotionClassifier
	images    ImageGenerator
	artifacts storage.Provider
	notifier  Notifier

	concurrency    int
	entryEmbedding bool
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEmotions enables emotion labelling.
func WithEmotions(c EmotionClassifier) Option {
	return func(s *Service) { s.emotions = c }
}

// WithImages enables image generation; images are kept in artifacts.
func WithImages(g ImageGenerator, artifacts storage.Provider) Option {
	return func(s *Service) {
		s.images = g
		s.artifacts = artifacts
	}
}

// WithArtifacts sets where existing images live without generating new ones.
func WithArtifacts(artifacts storage.Provider) Option {
	return func(s *Service) { s.artifacts = artifacts }
}

// WithNotifier publishes entry events after each commit.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithConcurrency bounds parallel embedding calls per write.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEntryEmbedding also stores one vector for the whole entry text.
func WithEntryEmbedding(enabled bool) Option {
	return func(s *Service) { s.entryEmbedding = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a journal service.
func NewService(db store.Index, embedder embedding.Embedder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:          db,
		embed:       embedder,
		logger:      logger,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ownerID, kind, entryID string) {
	if s.notifier != nil {
		s.notifier.PublishEntryEvent(ownerID, kind, entryID)
	}
}

// removeArtifact deletes an image file, logging failures.
func (s *Service) removeArtifact(name string) {
	if name == "" || s.artifacts == nil {
		return
	}
	if err := s.artifacts.Delete(name); err != nil {
		s.logger.Warn("journal: remove image failed", slog.String("image", name), slog.String("error", err.Error()))
	}
}
