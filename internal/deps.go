package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/reverie/internal/assistant"
	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/embedding"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/search"
	"github.com/starford/reverie/internal/storage"
	"github.com/starford/reverie/internal/store"
)

// deps is the wired object graph shared by every command.
type deps struct {
	db        *store.Store
	images    *storage.FS
	assistant *assistant.Client
	journal   *journal.Service
	planner   *search.Planner
	chat      *chat.Service
}

func (d *deps) Close() error {
	return d.db.Close()
}

// setup applies defaults, validates cfg and builds the logger with a level
// that can be changed later.
func (a *application) setup() (*Config, *slog.Logger, *slog.LevelVar, error) {
	if a.config == nil {
		return nil, nil, nil, fmt.Errorf("config is required")
	}
	cfg := a.config
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return cfg, logger, level, nil
}

// buildDeps opens storage and wires the services. notifier may be nil.
func buildDeps(cfg *Config, logger *slog.Logger, notifier interface {
	journal.Notifier
	chat.Notifier
}) (*deps, error) {
	if err := os.MkdirAll(cfg.Images.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	images, err := storage.NewFS(cfg.Images.Path)
	if err != nil {
		return nil, fmt.Errorf("init images: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding.Client())
	if err != nil {
		return nil, fmt.Errorf("init embedding: %w", err)
	}

	if cfg.Database.Driver == store.DriverSQLite && !strings.HasPrefix(cfg.Database.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.Open(store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	d := &deps{db: db, images: images}

	jopts := []journal.Option{
		journal.WithArtifacts(images),
		journal.WithConcurrency(cfg.Embedding.Concurrency),
		journal.WithEntryEmbedding(cfg.Embedding.EntryEmbedding),
		journal.WithNotifier(notifier),
	}
	if cfg.Assistant.Enabled {
		d.assistant, err = assistant.New(cfg.Assistant.Client())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init assistant: %w", err)
		}
		if cfg.Assistant.Emotions {
			jopts = append(jopts, journal.WithEmotions(d.assistant))
		}
		if cfg.Assistant.Images {
			jopts = append(jopts, journal.WithImages(d.assistant, images))
		}
	}

	d.journal = journal.NewService(db, embedder, logger, jopts...)
	d.planner = search.NewPlanner(db, embedder, logger, cfg.Search.Options())

	if d.assistant != nil {
		assembler := chat.NewAssembler(d.planner, db, cfg.Chat.Options())
		d.chat = chat.NewService(assembler, db, d.assistant, notifier, logger)
	}

	logger.Info("dependencies ready",
		slog.String("database", cfg.Database.Driver),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.Int("dimensions", cfg.Embedding.Dimensions),
		slog.Bool("assistant", d.assistant != nil))
	return d, nil
}
