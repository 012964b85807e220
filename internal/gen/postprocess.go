package gen

import (
	"regexp"
	"strings"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// CleanForPublish applies the full post-processing pipeline: quote
// stripping, newline normalization, and length-bounded truncation.
func CleanForPublish(s string, maxLen int) string {
	s = StripWrappingQuotes(s)
	s = NormalizeNewlines(s)
	return TruncateAtSentence(strings.TrimSpace(s), maxLen)
}

// StripWrappingQuotes removes one layer of quotes wrapping the whole text.
// Generators habitually quote their answers.
func StripWrappingQuotes(s string) string {
	t := strings.TrimSpace(s)
	if len(t) >= 2 {
		first, last := t[0], t[len(t)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(t[1 : len(t)-1])
		}
	}
	return t
}

// NormalizeNewlines turns escaped newline sequences into real newlines and
// collapses runs of blank lines to one.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\n\n`, "\n\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	return blankRuns.ReplaceAllString(s, "\n\n")
}

// TruncateAtSentence bounds s to maxLen, preferring the last complete
// sentence, then the last word boundary, then a hard cut with ellipsis.
func TruncateAtSentence(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if i := strings.LastIndexAny(cut, ".!?"); i >= 0 {
		return strings.TrimSpace(cut[:i+1])
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimSpace(cut[:i]) + "..."
	}
	if maxLen > 3 {
		return cut[:maxLen-3] + "..."
	}
	return cut
}
