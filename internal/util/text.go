package util

import (
	"regexp"
	"strconv"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ContainsAnyCaseInsensitive returns true if text contains any of the needles (case-insensitive).
func ContainsAnyCaseInsensitive(text string, needles []string) bool {
	lt := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lt, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// FormatDuration renders seconds as "2h 5m" / "5m 30s" / "30s" for logs
// and the schedule command.
func FormatDuration(secs int) string {
	if secs < 60 {
		return strconv.Itoa(secs) + "s"
	}
	if secs < 3600 {
		return strconv.Itoa(secs/60) + "m " + strconv.Itoa(secs%60) + "s"
	}
	return strconv.Itoa(secs/3600) + "h " + strconv.Itoa((secs%3600)/60) + "m"
}
