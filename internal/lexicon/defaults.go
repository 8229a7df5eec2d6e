package lexicon

// DefaultVocabulary is the tracked Singlish word set.
var DefaultVocabulary = []string{
	"walao",
	"cheebai",
	"lanjiao",
	"lah",
	"lor",
	"sia",
	"meh",
	"can",
	"paiseh",
	"shiok",
	"sian",
}

// DefaultCorrections repairs the systematic ways ASR models mis-hear the
// vocabulary. Multi-word patterns catch whole-phrase substitutions; the
// single-token rules at the end normalise common particle spellings. The
// engine orders these longest-pattern-first, so the phrase rules always win.
var DefaultCorrections = []Rule{
	{Pattern: "while up", Replacement: "walao"},
	{Pattern: "wah lao", Replacement: "walao"},
	{Pattern: "wa lao", Replacement: "walao"},
	{Pattern: "wah lau", Replacement: "walao"},
	{Pattern: "cheap buy", Replacement: "cheebai"},
	{Pattern: "chee bye", Replacement: "cheebai"},
	{Pattern: "chee bai", Replacement: "cheebai"},
	{Pattern: "lunch hour", Replacement: "lanjiao"},
	{Pattern: "lan jiao", Replacement: "lanjiao"},
	{Pattern: "pie say", Replacement: "paiseh"},
	{Pattern: "pai seh", Replacement: "paiseh"},
	{Pattern: "shi ok", Replacement: "shiok"},
	{Pattern: "see an", Replacement: "sian"},
	{Pattern: "la", Replacement: "lah"},
	{Pattern: "leh", Replacement: "lah"},
	{Pattern: "low", Replacement: "lor"},
	{Pattern: "seh", Replacement: "sia"},
}
