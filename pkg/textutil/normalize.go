package textutil

import (
	"regexp"
	"strings"
)

var (
	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
	)

	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctSpaceRe  = regexp.MustCompile(`([.,!?;:])\s*(\S)`)
	emojiBeforeRe = regexp.MustCompile(`(\S)([\x{1F300}-\x{1F9FF}])`)
	emojiAfterRe  = regexp.MustCompile(`([\x{1F300}-\x{1F9FF}])(\S)`)

	// Leading "Name: " labels and wrapping quotes that models tend to
	// add despite instructions.
	speakerPrefixRe = regexp.MustCompile(`^[^:]+: |^["']|["']$`)
)

// Clean normalizes an agent response for display and storage: curly
// quotes become straight ones, runs of whitespace collapse to single
// spaces, terminal punctuation is followed by exactly one space, and
// emoji are separated from adjacent text. Clean is idempotent.
func Clean(text string) string {
	s := quoteReplacer.Replace(text)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = punctSpaceRe.ReplaceAllString(s, "$1 $2")
	s = emojiBeforeRe.ReplaceAllString(s, "$1 $2")
	s = emojiAfterRe.ReplaceAllString(s, "$1 $2")
	return strings.TrimSpace(s)
}

// StripSpeakerPrefix removes a leading "Name: " label and wrapping
// quote characters from a completion before it is posted.
func StripSpeakerPrefix(text string) string {
	return strings.TrimSpace(speakerPrefixRe.ReplaceAllString(text, ""))
}
