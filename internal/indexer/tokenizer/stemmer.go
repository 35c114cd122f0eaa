package tokenizer

import (
	"fmt"
	"strings"

	"github.com/kljensen/snowball/english"
)

// Stemmer reduces a lower-cased word to its stem.
type Stemmer interface {
	Stem(word string) string
	Name() string
}

const (
	StemmerSnowball = "snowball"
	StemmerSuffix   = "suffix"
	StemmerNone     = "none"
)

// NewStemmer resolves a configured stemmer name.
func NewStemmer(name string) (Stemmer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StemmerSnowball, "porter":
		return SnowballStemmer{}, nil
	case StemmerSuffix:
		return SuffixStemmer{}, nil
	case StemmerNone, "identity":
		return IdentityStemmer{}, nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q", name)
	}
}

// SnowballStemmer applies the English (Porter2) snowball algorithm.
type SnowballStemmer struct{}

func (SnowballStemmer) Stem(word string) string {
	// Stop-words were already filtered, so stem them like any other word.
	return english.Stem(word, true)
}

func (SnowballStemmer) Name() string { return StemmerSnowball }

// IdentityStemmer leaves words unchanged.
type IdentityStemmer struct{}

func (IdentityStemmer) Stem(word string) string { return word }

func (IdentityStemmer) Name() string { return StemmerNone }

// SuffixStemmer applies a small suffix-stripping rule table. It is cheaper
// than snowball and good enough for short titles.
type SuffixStemmer struct{}

func (SuffixStemmer) Name() string { return StemmerSuffix }

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Stem returns the word with the first matching suffix rule applied. A rule
// only fires when the remaining stem keeps at least minLen bytes.
func (SuffixStemmer) Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
