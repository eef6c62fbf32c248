// Package query builds parameterized SQL for the supported database dialects.
//
// Statements are written with '?' markers and rebound to the dialect's
// placeholder style at build time. Values never appear in SQL text.
package query

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// Dialect describes the SQL differences between database backends.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string
	// ContainsFold returns a predicate with one marker that matches when col
	// contains the argument built by FoldArg, ignoring case.
	ContainsFold(col string) string
	// FoldArg converts a keyword into the argument ContainsFold expects.
	FoldArg(keyword string) any
	// Distance returns an expression with one marker computing cosine distance to a query vector.
	Distance(col string) string
	// Vector converts v to a driver value for a vector column.
	Vector(v []float32) any
	// VectorColumn wraps a vector column for scanning.
	VectorColumn(col string) string
	// DecodeVector converts a scanned vector column back to floats. A NULL yields nil.
	DecodeVector(src any) ([]float32, error)
}

// SQLite stores vectors as little-endian float32 blobs compared by a
// registered vec_distance_cosine function. Keyword matching uses the
// registered contains_fold function since LIKE only folds ASCII.
type SQLite struct{}

func (SQLite) Name() string           { return "sqlite" }
func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) ContainsFold(col string) string {
	return "contains_fold(" + col + ", ?)"
}

func (SQLite) FoldArg(keyword string) any { return strings.ToLower(keyword) }

func (SQLite) Distance(col string) string {
	return "vec_distance_cosine(" + col + ", ?)"
}

func (SQLite) Vector(v []float32) any { return EncodeVector(v) }

func (SQLite) VectorColumn(col string) string { return col }

func (SQLite) DecodeVector(src any) ([]float32, error) {
	switch b := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return DecodeVector(b)
	default:
		return nil, fmt.Errorf("query: unexpected vector type %T", src)
	}
}

// Postgres uses the pgvector extension and its <=> cosine distance operator.
type Postgres struct{}

func (Postgres) Name() string             { return "postgres" }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) ContainsFold(col string) string {
	return col + ` ILIKE ? ESCAPE '\'`
}

func (Postgres) FoldArg(keyword string) any { return LikePattern(keyword) }

func (Postgres) Distance(col string) string {
	return "(" + col + " <=> ?::vector)"
}

func (Postgres) Vector(v []float32) any { return pgvector.NewVector(v) }

func (Postgres) VectorColumn(col string) string { return col + "::text" }

func (Postgres) DecodeVector(src any) ([]float32, error) {
	if src == nil {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Scan(src); err != nil {
		return nil, fmt.Errorf("query: scan vector: %w", err)
	}
	return v.Slice(), nil
}

// EncodeVector packs v as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("query: vector blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("query: vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// FoldContains reports whether text contains keyword under Unicode lower-casing.
// SQLite connections register it as contains_fold.
func FoldContains(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}
