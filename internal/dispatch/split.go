package dispatch

import (
	"strings"
	"unicode"
)

// SplitChunks breaks text into send-sized chunks of at most max runes.
// Boundaries are preferred in order: paragraph break, sentence end,
// whitespace. A hard mid-word cut happens only when the window's tail half
// contains no boundary at all.
func SplitChunks(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = 600
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			if chunk := strings.TrimSpace(string(runes)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}
		cut := boundaryIndex(runes, max)
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}
	return chunks
}

// boundaryIndex picks the cut position within runes[:max]. Boundaries in the
// leading half of the window are ignored: cutting there would produce a
// stub chunk, so the window is hard-cut instead.
func boundaryIndex(runes []rune, max int) int {
	half := max / 2

	// Paragraph break: cut before the blank line.
	for i := max - 1; i > half; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i - 1
		}
	}

	// Sentence end: punctuation followed by whitespace.
	for i := max - 1; i > half; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}

	// Any whitespace.
	for i := max - 1; i > half; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return max
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
