package infer

import "strings"

// stopwords per language, chosen for high frequency and low cross-language
// collision. Shared forms (e.g. "en" in french/spanish) are acceptable: the
// winner is picked by total overlap.
var stopwords = map[string][]string{
	"english": {"the", "and", "of", "to", "in", "is", "that", "this", "for", "with", "was", "are", "not", "have"},
	"french":  {"le", "la", "les", "de", "des", "et", "est", "un", "une", "que", "qui", "dans", "pour", "pas"},
	"german":  {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "für", "von", "auf", "dem", "den"},
	"spanish": {"el", "la", "los", "las", "de", "y", "es", "un", "una", "que", "en", "por", "para", "con"},
}

// languageOrder fixes the scan order so an exact hit tie always resolves to
// the same label regardless of map iteration order.
var languageOrder = []string{"english", "french", "german", "spanish"}

// minStopwordHits is the overlap threshold below which the guess stays
// unknown.
const minStopwordHits = 2

// DetectLanguage is the default stop-word-overlap heuristic across a small
// set of known languages. It is deliberately crude: correctness is not
// guaranteed (or needed), only a stable best-effort label.
func DetectLanguage(sampleText string) string {
	if sampleText == "" {
		return LanguageUnknown
	}

	words := strings.Fields(strings.ToLower(sampleText))
	if len(words) == 0 {
		return LanguageUnknown
	}
	seen := make(map[string]int, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,;:!?()[]\"'«»")]++
	}

	best, bestHits := LanguageUnknown, 0
	for _, lang := range languageOrder {
		hits := 0
		for _, s := range stopwords[lang] {
			hits += seen[s]
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	if bestHits < minStopwordHits {
		return LanguageUnknown
	}
	return best
}
