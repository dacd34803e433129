package command

import "strings"

const (
	finalPromptStart = "<final prompt>"
	finalPromptEnd   = "</final prompt>"

	suggestedReplyMaxLen = 20
)

// Truncate shortens text to max characters and appends "..." when it was longer.
func Truncate(text string, max int) string {
	r := []rune(text)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return text
}

// SuggestedReplyLabel is the display hint for the echo of a user's message.
func SuggestedReplyLabel(text string) string {
	return Truncate(text, suggestedReplyMaxLen)
}

// ExtractFinalPrompt returns the trimmed text between the <final prompt> and
// </final prompt> markers.
//
// Missing markers are not treated as errors. A missing start marker puts the
// start at index 13 (the marker length minus one), and a missing end marker
// means "up to, but excluding, the last character". Existing prompt chains
// depend on this, so it stays as is.
func ExtractFinalPrompt(text string) string {
	r := []rune(text)
	start := runeIndex(r, []rune(finalPromptStart)) + len([]rune(finalPromptStart))
	end := runeIndex(r, []rune(finalPromptEnd))
	return strings.TrimSpace(sliceRunes(r, start, end))
}

// runeIndex is strings.Index over runes; it returns -1 when sub is absent.
func runeIndex(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// sliceRunes returns s[start:end] where negative indices count from the end
// and out-of-range indices are clamped. An empty string is returned when the
// range is empty.
func sliceRunes(s []rune, start, end int) string {
	n := len(s)
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return ""
	}
	return string(s[start:end])
}
