package semantic

import (
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Chunking modes.
const (
	ModeWords     = "words"
	ModeSentences = "sentences"
)

// ChunkWords splits text on whitespace into windows of size words, each
// window starting overlap words before the end of the previous one.
func ChunkWords(text string, size, overlap int) ([]string, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return window(strings.Fields(text), size, overlap), nil
}

// ChunkSentences groups sentences into windows of size sentences with
// overlap sentences shared between neighbours. A sentence ends at '.', '!'
// or '?' followed by whitespace.
func ChunkSentences(text string, size, overlap int) ([]string, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return window(SplitSentences(text), size, overlap), nil
}

// ChunkText dispatches on mode.
func ChunkText(mode, text string, size, overlap int) ([]string, error) {
	switch mode {
	case ModeWords:
		return ChunkWords(text, size, overlap)
	case ModeSentences:
		return ChunkSentences(text, size, overlap)
	default:
		return nil, apperrors.InvalidArgumentf("unknown chunk mode %q", mode)
	}
}

// SplitSentences returns the trimmed non-empty sentences of text.
func SplitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				out = appendTrimmed(out, string(runes[start:i+1]))
				start = i + 1
			}
		}
	}
	return appendTrimmed(out, string(runes[start:]))
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return apperrors.InvalidArgumentf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return apperrors.InvalidArgumentf("chunk overlap must be within [0,%d), got %d", size, overlap)
	}
	return nil
}

func window(units []string, size, overlap int) []string {
	chunks := []string{}
	if len(units) == 0 {
		return chunks
	}
	step := size - overlap
	for start := 0; ; start += step {
		end := min(start+size, len(units))
		chunks = append(chunks, strings.Join(units[start:end], " "))
		if end == len(units) {
			return chunks
		}
	}
}
