package lexicon_test

import (
	"maps"
	"testing"

	"github.com/wagmirep/lahstats/internal/lexicon"
)

func defaultEngine(t *testing.T) *lexicon.Engine {
	t.Helper()
	return lexicon.Default()
}

func TestProcessCorrectionAndCount(t *testing.T) {
	t.Parallel()

	e := defaultEngine(t)
	corrected, counts := e.Process("while up this one damn shiok")

	if corrected != "walao this one damn shiok" {
		t.Errorf("corrected = %q, want %q", corrected, "walao this one damn shiok")
	}
	want := map[string]int{"walao": 1, "shiok": 1}
	if !maps.Equal(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}
}

func TestCorrectIsIdempotent(t *testing.T) {
	t.Parallel()

	e := defaultEngine(t)
	inputs := []string{
		"while up this one damn shiok",
		"wa lao eh so sian",
		"la la land is not lah",
		"pai seh about that lunch hour thing",
		"",
	}
	for _, in := range inputs {
		once := e.Correct(in)
		twice := e.Correct(once)
		if once != twice {
			t.Errorf("Correct not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestSpecificRuleWinsOverGeneric(t *testing.T) {
	t.Parallel()

	// "wa lao" must be corrected as a phrase before the generic "la" rule
	// has a chance to touch its middle token.
	e := defaultEngine(t)
	if got := e.Correct("wa lao eh"); got != "walao eh" {
		t.Errorf("Correct = %q, want %q", got, "walao eh")
	}
}

func TestCountWordBoundaries(t *testing.T) {
	t.Parallel()

	e := defaultEngine(t)

	tests := []struct {
		name string
		text string
		want map[string]int
	}{
		{"single word", "walao that's crazy", map[string]int{"walao": 1}},
		{"repeated word", "lah lah lah you know lah", map[string]int{"lah": 4}},
		{"several words", "walao sia this is shiok", map[string]int{"walao": 1, "sia": 1, "shiok": 1}},
		{"case insensitive", "WALAO Walao walao", map[string]int{"walao": 3}},
		{"no match inside longer word", "lahtitude and salah", map[string]int{}},
		{"punctuation boundaries", "walao! lah... sia?", map[string]int{"walao": 1, "lah": 1, "sia": 1}},
		{"empty text", "", map[string]int{}},
		{"no target words", "hello how are you today", map[string]int{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := e.Count(tc.text)
			if !maps.Equal(got, tc.want) {
				t.Errorf("Count(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestAbsentWordsAreOmitted(t *testing.T) {
	t.Parallel()

	e := defaultEngine(t)
	counts := e.Count("shiok shiok")

	if len(counts) != 1 {
		t.Fatalf("counts has %d entries, want 1 (absent words must be omitted): %v", len(counts), counts)
	}
	if counts["shiok"] != 2 {
		t.Errorf("counts[shiok] = %d, want 2", counts["shiok"])
	}
}

func TestCorrectionPreservesSurroundingText(t *testing.T) {
	t.Parallel()

	e := defaultEngine(t)
	got := e.Correct("I said chee bye twice, chee bye!")
	want := "I said cheebai twice, cheebai!"
	if got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
}

func TestGenericRuleDoesNotFireInsideWords(t *testing.T) {
	t.Parallel()

	// "la" -> "lah" must not touch "land" or "salad".
	e := defaultEngine(t)
	if got := e.Correct("the land of salad"); got != "the land of salad" {
		t.Errorf("Correct = %q, want input unchanged", got)
	}
	if got := e.Correct("ok la"); got != "ok lah" {
		t.Errorf("Correct = %q, want %q", got, "ok lah")
	}
}

func TestNewRejectsEmptyRule(t *testing.T) {
	t.Parallel()

	_, err := lexicon.New([]lexicon.Rule{{Pattern: "", Replacement: "x"}}, []string{"x"})
	if err == nil {
		t.Error("New accepted an empty pattern")
	}
	_, err = lexicon.New(nil, []string{" "})
	if err == nil {
		t.Error("New accepted a blank vocabulary word")
	}
}

func TestPhoneticFallback(t *testing.T) {
	t.Parallel()

	e, err := lexicon.New(nil, lexicon.DefaultVocabulary, lexicon.WithPhoneticFallback(0.85))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	// "walau" is phonetically "walao" and well above the similarity bar.
	corrected := e.Correct("walau so expensive")
	if got := e.Count(corrected)["walao"]; got != 1 {
		t.Errorf("phonetic fallback: counts[walao] = %d, want 1 (corrected=%q)", got, corrected)
	}

	// Unrelated words stay put.
	if got := e.Correct("completely unrelated sentence"); got != "completely unrelated sentence" {
		t.Errorf("phonetic fallback rewrote unrelated text: %q", got)
	}
}
