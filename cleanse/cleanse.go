// Package cleanse normalizes extracted document text before storage.
//
// Clean is deterministic, total and idempotent: empty input yields empty
// output, and cleaning already-clean text changes nothing.
package cleanse

import (
	"regexp"
	"strings"
)

// Placeholder tokens substituted for scrubbed PII.
const (
	EmailPlaceholder = "[EMAIL]"
	PhonePlaceholder = "[PHONE]"
	URLPlaceholder   = "[URL]"
)

var (
	horizWSRe = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	// Hyphenation artifact from line-wrapped sources: "exam-\nple" → "example".
	// Applied while line breaks are still present, before unwrapping.
	hyphenBreakRe = regexp.MustCompile(`([a-zA-Z])-\n([a-zA-Z])`)
	lineEdgeRe    = regexp.MustCompile(` *\n *`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)

	// The three PII patterns are substituted independently and do not
	// overlap: placeholders never re-match any pattern.
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	// Phone-shaped: either a long contiguous digit run, or 3+ short digit
	// groups with explicit separators. A lone 4-digit year matches neither.
	phoneRe = regexp.MustCompile(`\+?\d{8,15}|\+?\(?\d{1,4}\)?(?:[ .-]\d{1,4}){2,6}`)
	urlRe   = regexp.MustCompile(`(?:https?://|www\.)[^\s<>"]+`)
)

// Clean normalizes text: line endings, whitespace runs, soft line wraps and
// hyphenation artifacts. With piiScrub set, emails, phone-shaped sequences
// and URLs are replaced by fixed placeholder tokens.
func Clean(text string, piiScrub bool) string {
	if text == "" {
		return ""
	}

	// Line endings to a single form.
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// Horizontal whitespace runs to one space.
	text = horizWSRe.ReplaceAllString(text, " ")
	text = lineEdgeRe.ReplaceAllString(text, "\n")

	// Repair wrap hyphenation before the break disappears.
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")

	// Runs of blank lines to a single paragraph break.
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	// Unwrap soft line breaks: a lone \n joins its lines with a space;
	// \n\n stays as a paragraph separator.
	text = unwrap(text)

	if piiScrub {
		text = emailRe.ReplaceAllString(text, EmailPlaceholder)
		text = phoneRe.ReplaceAllString(text, PhonePlaceholder)
		text = urlRe.ReplaceAllString(text, URLPlaceholder)
	}

	return strings.TrimSpace(text)
}

// unwrap replaces every newline not adjacent to another newline with a space.
func unwrap(text string) string {
	runes := []rune(text)
	var sb strings.Builder
	sb.Grow(len(text))
	for i, r := range runes {
		if r == '\n' {
			prevNL := i > 0 && runes[i-1] == '\n'
			nextNL := i+1 < len(runes) && runes[i+1] == '\n'
			if !prevNL && !nextNL {
				sb.WriteByte(' ')
				continue
			}
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
