// Package testutil provides shared test helpers for setting up stores,
// artifact directories and a deterministic embedder.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/storage"
	"github.com/starford/reverie/internal/store"
)

// Dims is the vector size used by TestDB and FakeEmbedder.
const Dims = 16

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "reverie-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: dbFile.Name(), Dimensions: Dims})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestImages creates a temporary artifact directory with a storage.Provider.
func TestImages(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "images")
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// FakeEmbedder returns deterministic vectors: an explicit vector when one is
// registered for the exact text, otherwise a normalized hashed bag of words,
// so texts sharing words are close. Safe for concurrent use.
type FakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]bool
	calls   map[string]int
}

// NewFakeEmbedder creates an empty FakeEmbedder.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{
		vectors: map[string][]float32{},
		fail:    map[string]bool{},
		calls:   map[string]int{},
	}
}

// Set registers the vector returned for text.
func (f *FakeEmbedder) Set(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = vec
}

// FailOn makes every call for text fail with apperr.ErrEmbedding.
func (f *FakeEmbedder) FailOn(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[text] = true
}

// Heal clears every registered failure.
func (f *FakeEmbedder) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.fail)
}

// Calls reports how many times text was embedded.
func (f *FakeEmbedder) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// Dimensions implements embedding.Embedder.
func (f *FakeEmbedder) Dimensions() int { return Dims }

// Embed implements embedding.Embedder.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrEmbedding, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if f.fail[text] {
		return nil, fmt.Errorf("%w: injected failure for %q", apperr.ErrEmbedding, text)
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return BagOfWords(text), nil
}

// BagOfWords hashes the lower-cased words of text into a unit vector of size Dims.
func BagOfWords(text string) []float32 {
	v := make([]float32, Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dims]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Axis returns a unit vector of size Dims along dimension i.
func Axis(i int) []float32 {
	v := make([]float32, Dims)
	v[i%Dims] = 1
	return v
}
