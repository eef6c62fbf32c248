package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/reverie/internal/models"
)

// Keywords returns the distinct lower-cased words of q longer than two runes,
// in order of first appearance.
func Keywords(q string) []string {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Merge unions candidate lists by entry id keeping each entry's lowest score,
// sorts ascending (ties: most recently updated, then id) and truncates to k.
func Merge(keyword, semantic []models.Candidate, k int) []models.Candidate {
	best := make(map[string]models.Candidate, len(keyword)+len(semantic))
	for _, list := range [][]models.Candidate{keyword, semantic} {
		for _, c := range list {
			if cur, ok := best[c.EntryID]; ok && cur.Score <= c.Score {
				continue
			}
			best[c.EntryID] = c
		}
	}

	out := make([]models.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Candidate) int {
		if c := cmp.Compare(a.Score, b.Score); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.EntryID, b.EntryID)
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
