package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/starford/reverie/internal/journal"
)

// fakeOllama answers /api/embeddings with a 4-dimensional vector, or 503
// while down is set.
func fakeOllama(t *testing.T, down *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		if down.Load() {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3, 0.4}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, embeddingURL string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Database.DSN = filepath.Join(dir, "reverie.db")
	cfg.Images.Path = filepath.Join(dir, "images")
	cfg.Embedding.BaseURL = embeddingURL
	cfg.Embedding.Dimensions = 4
	return cfg
}

func TestReindex_EmbedsChunksMissedWhileServiceWasDown(t *testing.T) {
	var down atomic.Bool
	srv := fakeOllama(t, &down)
	cfg := testConfig(t, srv.URL)

	app := &application{config: cfg, logOutput: io.Discard}
	_, logger, _, err := app.setup()
	if err != nil {
		t.Fatal(err)
	}
	d, err := buildDeps(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	down.Store(true)
	res, err := d.journal.Upsert(context.Background(), journal.UpsertInput{
		OwnerID: "alice",
		Text:    "The service was down. Nothing got embedded.",
	})
	if err != nil {
		t.Fatalf("upsert must succeed without embeddings: %v", err)
	}
	if res.Chunks != 2 || res.Indexed != 0 {
		t.Fatalf("upsert result = %+v", res)
	}
	d.Close()

	down.Store(false)
	report, err := Reindex(context.Background(), 10, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if report.Embedded != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	// A second run has nothing left to do.
	report, err = Reindex(context.Background(), 10, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if report != (journal.BackfillReport{}) {
		t.Errorf("second report = %+v", report)
	}
}

func TestSetup_RequiresValidConfig(t *testing.T) {
	if _, _, _, err := (&application{}).setup(); err == nil {
		t.Error("expected error without config")
	}
	cfg := NewDefaultConfig()
	cfg.Database.Driver = "oracle"
	if _, _, _, err := (&application{config: cfg}).setup(); err == nil {
		t.Error("expected validation error")
	}
}

func TestBuildDeps_AssistantOptional(t *testing.T) {
	var down atomic.Bool
	cfg := testConfig(t, fakeOllama(t, &down).URL)
	app := &application{config: cfg, logOutput: io.Discard}
	_, logger, _, _ := app.setup()

	d, err := buildDeps(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.chat != nil || d.assistant != nil {
		t.Error("chat wired without an assistant")
	}

	cfg.Assistant.Enabled = true
	cfg.Assistant.APIKey = "k"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "second.db")
	d2, err := buildDeps(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()
	if d2.chat == nil || d2.assistant == nil {
		t.Error("chat not wired with an assistant")
	}
}
