// Package chunker splits journal text into sentence chunks.
//
// A sentence ends at '.', '?' or '!' followed by whitespace and an upper-case
// letter. A period does not end a sentence when it closes an initial ("J."),
// a dotted abbreviation ("e.g.", "U.S.") or one of a small set of titles and
// common abbreviations ("Dr.", "Mrs.", "etc.").
package chunker

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/models"
)

var (
	boundaryRe = regexp.MustCompile(`[.?!]\s+\p{Lu}`)
	// Letters separated by single dots; the closing dot is the boundary itself.
	dottedRe = regexp.MustCompile(`^(?:\p{L}\.)+\p{L}$`)
)

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "inc": {}, "ltd": {}, "co": {}, "mt": {},
	"gen": {}, "col": {}, "lt": {}, "sgt": {}, "capt": {}, "rev": {}, "hon": {},
	"approx": {}, "dept": {},
}

// Split returns the sentence chunks of text with indices assigned in output
// order starting at 0. Empty or whitespace-only text yields no chunks.
func Split(text string) ([]models.Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", apperr.ErrInvalidInput)
	}
	var out []models.Chunk
	for i, s := range Sentences(text) {
		out = append(out, models.Chunk{Index: i, Text: s})
	}
	return out, nil
}

// Sentences yields (index, sentence) pairs. The sequence is finite and may be
// ranged over any number of times. Invalid UTF-8 is split bytewise; use Split
// to have it rejected.
func Sentences(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		idx := 0
		emit := func(s string) bool {
			s = strings.TrimSpace(s)
			if s == "" {
				return true
			}
			ok := yield(idx, s)
			idx++
			return ok
		}

		start := 0
		for _, m := range boundaryRe.FindAllStringIndex(text, -1) {
			punct := m[0]
			if text[punct] == '.' && suppressed(text[start:punct]) {
				continue
			}
			if !emit(text[start : punct+1]) {
				return
			}
			// The next sentence starts at the capital letter closing the match.
			_, size := utf8.DecodeLastRuneInString(text[:m[1]])
			start = m[1] - size
		}
		emit(text[start:])
	}
}

// suppressed reports whether the period following prefix closes an
// abbreviation rather than a sentence.
func suppressed(prefix string) bool {
	word := prefix
	if i := strings.LastIndexFunc(prefix, unicode.IsSpace); i >= 0 {
		word = prefix[i+1:]
	}
	word = strings.TrimLeft(word, `"'([`)
	if word == "" {
		return false
	}

	if r, size := utf8.DecodeRuneInString(word); size == len(word) && unicode.IsLetter(r) {
		return true
	}
	if dottedRe.MatchString(word) {
		return true
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}
