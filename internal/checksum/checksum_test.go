package checksum

import "testing"

func TestText_Stable(t *testing.T) {
	if Text("hello") != Text("hello") {
		t.Fatal("digest not stable")
	}
	if Text("hello") == Text("hello.") {
		t.Fatal("different texts share a digest")
	}
	if len(Text("x")) != 64 {
		t.Errorf("len = %d, want 64", len(Text("x")))
	}
}

func TestMatches(t *testing.T) {
	etag := Text("I am happy today.")
	cases := []struct {
		name string
		etag string
		want bool
	}{
		{"empty always matches", "", true},
		{"bare digest", etag, true},
		{"quoted digest", `"` + etag + `"`, true},
		{"stale digest", Text("old text"), false},
	}
	for _, tc := range cases {
		if got := Matches(tc.etag, "I am happy today."); got != tc.want {
			t.Errorf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}
