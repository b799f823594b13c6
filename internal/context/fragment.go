package context

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker ends every text cut to fit a budget.
const TruncationMarker = "... [truncated]"

// Fragment is one loaded piece of system context.
type Fragment struct {
	Source    string
	Text      string
	MaxChars  int
	Truncated bool
	Fallback  bool
}

// Empty reports whether the fragment carries no text.
func (f Fragment) Empty() bool {
	return strings.TrimSpace(f.Text) == ""
}

// Truncate cuts text to at most max bytes, ending it with TruncationMarker.
// Cuts never split a rune and prefer a line break near the end of the kept
// text. A non-positive max disables the cap.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || len(text) <= max {
		return text, false
	}

	keep := max - len(TruncationMarker)
	if keep <= 0 {
		// No room for the marker.
		return text[:runeBoundary(text, max)], true
	}
	keep = runeBoundary(text, keep)

	cut := text[:keep]
	if nl := strings.LastIndexByte(cut, '\n'); nl > keep*3/4 {
		cut = cut[:nl+1]
	}
	return cut + TruncationMarker, true
}

// runeBoundary returns the largest i <= n that starts a rune.
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// truncateFragment applies f.MaxChars to f.Text.
func truncateFragment(f Fragment) Fragment {
	text, cut := Truncate(f.Text, f.MaxChars)
	f.Text = text
	f.Truncated = f.Truncated || cut
	return f
}
