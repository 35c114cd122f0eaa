// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input, strips ASCII punctuation, splits on whitespace,
// removes stop-words, and stems every surviving word.
package tokenizer

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Tokenizer turns text into normalised terms. It is immutable after
// construction and safe for concurrent use.
type Tokenizer struct {
	stopWords map[string]struct{}
	stemmer   Stemmer
}

// New builds a Tokenizer from a stop-word list and a stemmer. Stop-words are
// matched after lower-casing, so the list is lower-cased here as well. A nil
// stemmer leaves tokens unchanged.
func New(stopWords []string, stemmer Stemmer) *Tokenizer {
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	if stemmer == nil {
		stemmer = IdentityStemmer{}
	}
	return &Tokenizer{stopWords: set, stemmer: stemmer}
}

// Tokenize breaks text into a slice of stemmed, lowercased terms with
// stop-words removed. Repeated words are kept; they count toward term
// frequency.
func (t *Tokenizer) Tokenize(text string) []string {
	text = strings.Map(dropPunct, strings.ToLower(text))
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if _, isStop := t.stopWords[word]; isStop {
			continue
		}
		stemmed := t.stemmer.Stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, stemmed)
	}
	return tokens
}

// SingleToken tokenizes term and returns its only token. Diagnostic APIs
// accept exactly one term.
func (t *Tokenizer) SingleToken(term string) (string, error) {
	tokens := t.Tokenize(term)
	if len(tokens) != 1 {
		return "", apperrors.InvalidArgumentf("term %q must be a single token, got %d", term, len(tokens))
	}
	return tokens[0], nil
}

// IsStopWord reports whether the lower-cased word is filtered out.
func (t *Tokenizer) IsStopWord(word string) bool {
	_, ok := t.stopWords[strings.ToLower(word)]
	return ok
}

// StemmerName returns the name of the configured stemmer.
func (t *Tokenizer) StemmerName() string {
	return t.stemmer.Name()
}

// dropPunct removes ASCII punctuation, mirroring the classic
// `string.punctuation` set. Non-ASCII runes are left alone.
func dropPunct(r rune) rune {
	if r < 0x80 && strings.ContainsRune(asciiPunctuation, r) {
		return -1
	}
	return r
}

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Fingerprint identifies the analysis chain (stemmer and stop-word set). An
// index snapshot is only valid for the tokenizer that built it.
func (t *Tokenizer) Fingerprint() string {
	words := make([]string, 0, len(t.stopWords))
	for w := range t.stopWords {
		words = append(words, w)
	}
	sort.Strings(words)
	h := sha256.New()
	for _, w := range words {
		h.Write([]byte(w))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%x", t.stemmer.Name(), h.Sum(nil)[:8])
}
