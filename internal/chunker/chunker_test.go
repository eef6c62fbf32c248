package chunker

import (
	"errors"
	"reflect"
	"testing"

	"github.com/starford/reverie/internal/apperr"
)

func texts(t *testing.T, in string) []string {
	t.Helper()
	chunks, err := Split(in)
	if err != nil {
		t.Fatalf("Split(%q): %v", in, err)
	}
	out := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		out = append(out, c.Text)
	}
	return out
}

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"two sentences", "I am happy today. The sun is out.", []string{"I am happy today.", "The sun is out."}},
		{"question and exclamation", "Why now? Because I can! So I did.", []string{"Why now?", "Because I can!", "So I did."}},
		{"no terminal punctuation", "  just a thought without an ending  ", []string{"just a thought without an ending"}},
		{"title abbreviation", "I saw Dr. Smith today. He was kind.", []string{"I saw Dr. Smith today.", "He was kind."}},
		{"initials", "Call J. R. Tolkien later. Or not.", []string{"Call J. R. Tolkien later.", "Or not."}},
		{"dotted abbreviation", "Bring snacks, e.g. Apples. Then leave.", []string{"Bring snacks, e.g. Apples.", "Then leave."}},
		{"common abbreviation", "We met Mrs. Brown. It rained.", []string{"We met Mrs. Brown.", "It rained."}},
		{"lower case after period", "version 2.0 is out. and more. Done.", []string{"version 2.0 is out. and more.", "Done."}},
		{"newline separated", "First line.\nSecond line.", []string{"First line.", "Second line."}},
		{"non ascii capital", "Ich bin müde. Über alles.", []string{"Ich bin müde.", "Über alles."}},
		{"upper case dotted abbreviation", "We flew to the U.S. Army base. It was huge.", []string{"We flew to the U.S. Army base.", "It was huge."}},
		{"sentence ending in no", "I told him no. He was upset.", []string{"I told him no.", "He was upset."}},
		{"sentence that is just no", "No. I will not go.", []string{"No.", "I will not go."}},
		{"two letter name", "I said it to Jo. She laughed.", []string{"I said it to Jo.", "She laughed."}},
		{"ellipsis", "I was so tired... Then I slept.", []string{"I was so tired...", "Then I slept."}},
		{"ends with est", "It was the best. Truly.", []string{"It was the best.", "Truly."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := texts(t, tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t "} {
		chunks, err := Split(in)
		if err != nil {
			t.Fatalf("Split(%q): %v", in, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", in, len(chunks))
		}
	}
}

func TestSplit_InvalidUTF8(t *testing.T) {
	_, err := Split("bad \xff bytes.")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSentences_Restartable(t *testing.T) {
	seq := Sentences("One. Two. Three.")
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 3 || b != 3 {
		t.Errorf("counts = %d, %d, want 3, 3", a, b)
	}
}

func TestSentences_EarlyStop(t *testing.T) {
	var got []string
	for _, s := range Sentences("One. Two. Three.") {
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d sentences, want 2", len(got))
	}
}
