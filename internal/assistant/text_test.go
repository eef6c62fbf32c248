package assistant

import (
	"reflect"
	"testing"
)

func TestNormalizeEmotions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"valid kept", []string{"joy", "Relief"}, []string{"joy", "relief"}},
		{"alias", []string{"uncertainty"}, []string{"confusion"}},
		{"unknown becomes neutral", []string{"ennui"}, []string{"neutral"}},
		{"deduplicated", []string{"joy", "happiness", "JOY"}, []string{"joy"}},
		{"empty defaults", nil, []string{"neutral"}},
		{"capped", []string{"joy", "love", "fear", "grief", "pride", "relief", "anger"},
			[]string{"joy", "love", "fear", "grief", "pride"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEmotions(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if len(Emotions) != 28 {
		t.Errorf("len(Emotions) = %d, want 28", len(Emotions))
	}
}

func TestNormalizeMode(t *testing.T) {
	if got := NormalizeMode("Mindfulness"); got != ModeMindfulness {
		t.Errorf("got %q", got)
	}
	if got := NormalizeMode("psychoanalytic"); got != ModeSupportive {
		t.Errorf("unknown mode = %q", got)
	}
	if got := NormalizeMode(""); got != ModeSupportive {
		t.Errorf("empty mode = %q", got)
	}
}

func TestStripEmphasis(t *testing.T) {
	got := StripEmphasis("That sounds **really** hard, and __valid__. Keep_going.")
	if got != "That sounds really hard, and valid. Keep_going." {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSON(t *testing.T) {
	got, ok := ExtractJSON("```json\n{\"prompt\": \"Why?\"}\n```")
	if !ok || got != `{"prompt": "Why?"}` {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := ExtractJSON("no json here"); ok {
		t.Error("expected no match")
	}
	if _, ok := ExtractJSON("} backwards {"); ok {
		t.Error("expected no match for reversed braces")
	}
}
