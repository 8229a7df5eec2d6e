package lexicon

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultPhoneticThreshold = 0.85

// applyPhonetic replaces tokens that phonetically collide with a vocabulary
// word. A token is a candidate when any of its Double Metaphone codes
// overlaps a code of a vocabulary word; among candidates the highest
// Jaro-Winkler score wins, provided it reaches the configured threshold.
// Tokens that already are vocabulary words are left untouched.
func (e *Engine) applyPhonetic(text string) string {
	fields := strings.Fields(text)
	changed := false

	for i, field := range fields {
		word := strings.ToLower(strings.TrimFunc(field, func(r rune) bool { return !isWordRune(r) }))
		if word == "" {
			continue
		}
		if _, ok := e.vocabSet[word]; ok {
			continue
		}

		if match, ok := e.bestPhoneticMatch(word); ok {
			fields[i] = strings.Replace(field, trimToWord(field), match, 1)
			changed = true
		}
	}

	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// bestPhoneticMatch returns the vocabulary word most similar to word, or
// false when no candidate clears the threshold.
func (e *Engine) bestPhoneticMatch(word string) (string, bool) {
	p1, s1 := matchr.DoubleMetaphone(word)

	var (
		best      string
		bestScore float64
	)
	for _, v := range e.vocab {
		p2, s2 := matchr.DoubleMetaphone(v)
		if !codesOverlap(p1, s1, p2, s2) {
			continue
		}
		if score := matchr.JaroWinkler(word, v, false); score >= e.phoneticThreshold && score > bestScore {
			best, bestScore = v, score
		}
	}
	return best, best != ""
}

// codesOverlap reports whether the two Double Metaphone code pairs share a
// non-empty code.
func codesOverlap(a1, a2, b1, b2 string) bool {
	for _, a := range [2]string{a1, a2} {
		if a == "" {
			continue
		}
		if a == b1 || a == b2 {
			return true
		}
	}
	return false
}

// trimToWord strips leading and trailing non-letter runes from field.
func trimToWord(field string) string {
	return strings.TrimFunc(field, func(r rune) bool { return !isWordRune(r) })
}
