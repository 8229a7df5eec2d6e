// Package lexicon implements the deterministic text layer of the pipeline:
// correction of systematic misrecognitions of the target vocabulary, and
// boundary-safe counting of vocabulary occurrences.
//
// Correction applies an ordered set of literal rules. Rules with longer
// patterns run first so a specific rule ("wah lao" → "walao") always wins
// over a generic one ("la" → "lah") and a generic rule never re-corrupts
// text a specific rule already fixed. Matching is case-insensitive and
// bounded at word edges; replacements are emitted literally. Applying the
// engine twice yields the same result as applying it once.
//
// Counting tokenises on non-letter runes and counts case-insensitive exact
// token matches against the vocabulary, so a target word never matches
// inside an unrelated longer word. Words that do not occur are omitted from
// the result map — a zero count is never stored.
//
// An optional phonetic stage (Double Metaphone + Jaro-Winkler) can map stray
// tokens onto vocabulary words after the literal rules have run; it is
// disabled unless [WithPhoneticFallback] is given.
package lexicon

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Rule is a single literal correction: every word-bounded, case-insensitive
// occurrence of Pattern is replaced by Replacement.
type Rule struct {
	Pattern     string
	Replacement string
}

// Engine is the combined corrector and counter. It is read-only after
// construction and safe for concurrent use.
type Engine struct {
	rules    []Rule
	vocab    []string
	vocabSet map[string]struct{}

	phonetic          bool
	phoneticThreshold float64
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithPhoneticFallback enables the phonetic correction stage: tokens that
// survive the literal rules and are not vocabulary words are matched against
// the vocabulary by Double Metaphone code overlap and replaced when their
// Jaro-Winkler similarity reaches threshold.
func WithPhoneticFallback(threshold float64) Option {
	return func(e *Engine) {
		e.phonetic = true
		e.phoneticThreshold = threshold
	}
}

// New constructs an [Engine] from correction rules and a target vocabulary.
// The rules are re-ordered longest-pattern-first; relative order of equal
// length patterns is preserved. Patterns, replacements, and vocabulary words
// must be non-empty.
func New(rules []Rule, vocabulary []string, opts ...Option) (*Engine, error) {
	e := &Engine{
		rules:             make([]Rule, 0, len(rules)),
		vocab:             make([]string, 0, len(vocabulary)),
		vocabSet:          make(map[string]struct{}, len(vocabulary)),
		phoneticThreshold: defaultPhoneticThreshold,
	}

	for _, r := range rules {
		p := strings.ToLower(strings.TrimSpace(r.Pattern))
		rep := strings.TrimSpace(r.Replacement)
		if p == "" || rep == "" {
			return nil, fmt.Errorf("lexicon: empty correction rule %q -> %q", r.Pattern, r.Replacement)
		}
		e.rules = append(e.rules, Rule{Pattern: p, Replacement: rep})
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return len(e.rules[i].Pattern) > len(e.rules[j].Pattern)
	})

	for _, w := range vocabulary {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			return nil, fmt.Errorf("lexicon: empty vocabulary word")
		}
		if _, dup := e.vocabSet[w]; dup {
			continue
		}
		e.vocab = append(e.vocab, w)
		e.vocabSet[w] = struct{}{}
	}

	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Default returns an [Engine] loaded with [DefaultCorrections] and
// [DefaultVocabulary].
func Default() *Engine {
	e, err := New(DefaultCorrections, DefaultVocabulary)
	if err != nil {
		// The defaults are compile-time constants; a failure here is a bug.
		panic("lexicon: invalid default rules: " + err.Error())
	}
	return e
}

// Vocabulary returns the target words in registration order.
func (e *Engine) Vocabulary() []string {
	out := make([]string, len(e.vocab))
	copy(out, e.vocab)
	return out
}

// Process corrects text and counts vocabulary occurrences in the corrected
// form. Equivalent to Count(Correct(text)) but returns both.
func (e *Engine) Process(text string) (corrected string, counts map[string]int) {
	corrected = e.Correct(text)
	return corrected, e.Count(corrected)
}

// Correct applies the ordered rule set to text. Specific (longer) patterns
// are applied before generic ones.
func (e *Engine) Correct(text string) string {
	for _, r := range e.rules {
		text = replaceBounded(text, r.Pattern, r.Replacement)
	}
	if e.phonetic {
		text = e.applyPhonetic(text)
	}
	return text
}

// Count tokenises text and returns the number of occurrences of each
// vocabulary word. Absent words are omitted; the map is never nil.
func (e *Engine) Count(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		if _, ok := e.vocabSet[tok]; ok {
			counts[tok]++
		}
	}
	return counts
}

// tokenize splits text into lowercase letter-runs. Punctuation and digits
// act as boundaries, so "walao!" yields "walao" while "lahtitude" stays one
// token.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// replaceBounded replaces case-insensitive occurrences of pattern in text
// with repl, accepting a match only when both ends sit on a word boundary
// (start/end of text or a non-letter rune).
func replaceBounded(text, pattern, repl string) string {
	lower := foldASCII(text)
	var b strings.Builder

	i := 0
	for i < len(lower) {
		j := strings.Index(lower[i:], pattern)
		if j < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + j
		end := start + len(pattern)

		if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			b.WriteString(text[i:start])
			b.WriteString(repl)
		} else {
			b.WriteString(text[i:end])
		}
		i = end
	}
	if b.Len() == 0 {
		return text
	}
	return b.String()
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	return !isWordRune(rune(s[idx-1]))
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	return !isWordRune(rune(s[idx]))
}

// isWordRune treats ASCII letters as word characters. Patterns and the
// vocabulary are plain ASCII, so byte-level boundary checks are sufficient.
func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// foldASCII lowercases only the ASCII letters of s, preserving byte length
// so indexes into the folded string are valid in the original.
func foldASCII(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if b == nil {
				b = []byte(s)
			}
			b[i] = c + ('a' - 'A')
		}
	}
	if b == nil {
		return s
	}
	return string(b)
}
