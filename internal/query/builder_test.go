package query

import (
	"math"
	"reflect"
	"testing"
)

func TestSelect_BuildPostgres(t *testing.T) {
	d := Postgres{}
	q, err := From("chunks c").
		Columns("e.id").
		Column(Raw("MIN("+d.Distance("c.embedding")+")", "VEC"), "score").
		Join("JOIN entries e ON e.id = c.entry_id").
		Where(Eq("e.owner_id", "owner")).
		Where(NotNull("c.embedding")).
		GroupBy("e.id").
		OrderBy("score ASC").
		Limit(5).
		Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "SELECT e.id, MIN((c.embedding <=> $1::vector)) AS score FROM chunks c " +
		"JOIN entries e ON e.id = c.entry_id WHERE e.owner_id = $2 AND c.embedding IS NOT NULL " +
		"GROUP BY e.id ORDER BY score ASC LIMIT $3"
	if q.SQL != want {
		t.Errorf("SQL =\n%s\nwant\n%s", q.SQL, want)
	}
	if !reflect.DeepEqual(q.Args, []any{"VEC", "owner", 5}) {
		t.Errorf("Args = %v", q.Args)
	}
}

func TestSelect_BuildSQLiteKeywords(t *testing.T) {
	d := SQLite{}
	q, err := From("entries e").
		Columns("e.id").
		Where(Eq("e.owner_id", "o")).
		Where(AnyOf(Contains(d, "e.text", "sun"), Contains(d, "e.text", "50%"))).
		Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := `SELECT e.id FROM entries e WHERE e.owner_id = ? AND (contains_fold(e.text, ?) OR contains_fold(e.text, ?))`
	if q.SQL != want {
		t.Errorf("SQL =\n%s\nwant\n%s", q.SQL, want)
	}
	if !reflect.DeepEqual(q.Args, []any{"o", "sun", "50%"}) {
		t.Errorf("Args = %v", q.Args)
	}
}

func TestSelect_EmptyAnyOfMatchesNothing(t *testing.T) {
	q, err := From("entries").Columns("id").Where(AnyOf()).Build(SQLite{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if q.SQL != "SELECT id FROM entries WHERE 1 = 0" {
		t.Errorf("SQL = %s", q.SQL)
	}
}

func TestSelect_ArgumentMismatch(t *testing.T) {
	_, err := From("entries").Columns("id").Where(Raw("a = ? AND b = ?", 1)).Build(SQLite{})
	if err == nil {
		t.Fatal("expected marker/argument mismatch error")
	}
}

func TestSelect_RequiresTableAndColumns(t *testing.T) {
	if _, err := From("").Columns("id").Build(SQLite{}); err == nil {
		t.Error("expected error without table")
	}
	if _, err := From("t").Build(SQLite{}); err == nil {
		t.Error("expected error without columns")
	}
}

func TestRebind_SkipsQuotedMarkers(t *testing.T) {
	got, n := Rebind(Postgres{}, `SELECT '?' , ? WHERE x = '?' AND y = ?`)
	if got != `SELECT '?' , $1 WHERE x = '?' AND y = $2` || n != 2 {
		t.Errorf("Rebind = %q (%d)", got, n)
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct{ in, want string }{
		{"sun", "%sun%"},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		if got := LikePattern(tt.in); got != tt.want {
			t.Errorf("LikePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, float32(math.Pi)}
	got, err := SQLite{}.DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("got %v, want %v", got, v)
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
	if got, err := (SQLite{}).DecodeVector(nil); err != nil || got != nil {
		t.Errorf("NULL vector = %v, %v", got, err)
	}
}

func TestPostgresDecodeVector(t *testing.T) {
	got, err := Postgres{}.DecodeVector("[1,2.5,-3]")
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{1, 2.5, -3}) {
		t.Errorf("got %v", got)
	}
}

func TestContains_PostgresUsesEscapedPattern(t *testing.T) {
	e := Contains(Postgres{}, "e.text", "Über_50%")
	if e.SQL != `e.text ILIKE ? ESCAPE '\'` {
		t.Errorf("SQL = %s", e.SQL)
	}
	if !reflect.DeepEqual(e.Args, []any{`%Über\_50\%%`}) {
		t.Errorf("Args = %v", e.Args)
	}
}

func TestFoldContains(t *testing.T) {
	tests := []struct {
		text, keyword string
		want          bool
	}{
		{"Über glücklich heute.", "über", true},
		{"Émotion forte.", "émotion", true},
		{"ΣΟΦΙΑ", "σοφια", true},
		{"The Sun is out.", "SUN", true},
		{"Rainy day.", "sun", false},
		{"s_n", "s_n", true},
		{"sun", "s_n", false},
	}
	for _, tt := range tests {
		if got := FoldContains(tt.text, tt.keyword); got != tt.want {
			t.Errorf("FoldContains(%q, %q) = %v, want %v", tt.text, tt.keyword, got, tt.want)
		}
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := CosineDistance([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}
}
