package textutil

import "unicode/utf8"

// EstimateTokens approximates the model token count of text, assuming
// roughly four characters per token. It is a heuristic gate only,
// never billed precision.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TruncateTokens hard-truncates text to roughly maxTokens worth of
// characters and appends an ellipsis. It never fails and serves as the
// terminal safety net of the summarization cascade.
func TruncateTokens(text string, maxTokens int) string {
	limit := maxTokens * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
