// Package infer derives lightweight metadata from document content: a
// language guess, a publication-year guess, a title guess, and word/token
// estimates. All results are best-effort heuristics with explicit "unknown"
// sentinels; inference never blocks or fails.
//
// Everything here is recomputable from the file content plus the original
// filename alone, so rebuilt metadata always matches the initial inference.
package infer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LanguageUnknown is the sentinel for undetected languages.
const LanguageUnknown = "unknown"

// sampleLimit bounds how much text the language and year heuristics read.
const sampleLimit = 4000

// TokensPerWord is the word→token expansion factor for text estimates.
const TokensPerWord = 1 / 0.75

// BytesPerToken is the byte→token factor used when no text was extracted.
const BytesPerToken = 4

// Metadata holds inferred attributes, distinct from uploader-supplied ones.
type Metadata struct {
	Language string `json:"language"`
	Year     int    `json:"year,omitempty"`
	Title    string `json:"title"`
	Words    int    `json:"words"`
	Tokens   int    `json:"tokens"`
	// FromBytes marks the byte-length estimation path (no extracted text).
	FromBytes bool `json:"from_bytes,omitempty"`
}

// LanguageDetector guesses a language label from a text sample, returning
// LanguageUnknown when unsure. The default is the stop-word heuristic;
// callers may inject a statistical detector instead.
type LanguageDetector func(sample string) string

// Inferer computes Metadata. The zero value is not usable; call New.
type Inferer struct {
	detect LanguageDetector
}

// Option configures an Inferer.
type Option func(*Inferer)

// WithLanguageDetector replaces the stop-word language heuristic.
func WithLanguageDetector(d LanguageDetector) Option {
	return func(inf *Inferer) { inf.detect = d }
}

// New creates an Inferer.
func New(opts ...Option) *Inferer {
	inf := &Inferer{detect: DetectLanguage}
	for _, o := range opts {
		o(inf)
	}
	return inf
}

// Infer derives metadata for a document. text is the cleaned extraction
// result and may be empty; rawSize is the raw upload length in bytes, used
// for the fallback estimation path when no text is available.
func (inf *Inferer) Infer(filename, text string, rawSize int64) Metadata {
	m := Metadata{
		Language: LanguageUnknown,
		Title:    titleStem(filename),
		Year:     findYear(filename, text),
	}

	if text == "" {
		// Byte path: tokens from raw length, words back-derived.
		m.Tokens = int(math.Round(float64(rawSize) / BytesPerToken))
		m.Words = int(math.Round(float64(m.Tokens) * 0.75))
		m.FromBytes = true
		return m
	}

	if title := firstTitleLine(text); title != "" {
		m.Title = title
	}
	m.Language = inf.detect(sample(text))
	m.Words = CountWords(text)
	m.Tokens = int(math.Round(float64(m.Words) / 0.75))
	return m
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’-][\p{L}\p{N}]+)*`)

// CountWords counts word-boundary tokens: runs of letters/digits optionally
// joined by apostrophes or hyphens.
func CountWords(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}

// Explicit non-digit boundaries instead of \b: filenames put years next to
// underscores, which \b treats as word characters.
var yearRe = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)

// findYear searches the filename first, then a bounded text prefix, for a
// plausible calendar year. First match wins; absence yields 0.
func findYear(filename, text string) int {
	for _, hay := range []string{filename, sample(text)} {
		if m := yearRe.FindStringSubmatch(hay); m != nil {
			y, _ := strconv.Atoi(m[1])
			return y
		}
	}
	return 0
}

// firstTitleLine returns the first non-empty line whose length fits a
// plausible title window, or "".
func firstTitleLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if n := len([]rune(line)); n >= 5 && n <= 120 {
			return line
		}
		// First non-empty line was out of the window: give up and let
		// the filename stem stand.
		return ""
	}
	return ""
}

func titleStem(filename string) string {
	base := filename
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}

func sample(text string) string {
	runes := []rune(text)
	if len(runes) > sampleLimit {
		return string(runes[:sampleLimit])
	}
	return text
}
