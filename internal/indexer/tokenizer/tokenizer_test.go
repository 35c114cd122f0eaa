package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

func TestTokenize(t *testing.T) {
	tok := New([]string{"the", "a", "in"}, IdentityStemmer{})
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"only spaces", "   \t\n", []string{}},
		{"lowercases", "Bear CITY", []string{"bear", "city"}},
		{"strips punctuation", "bear's, den!", []string{"bears", "den"}},
		{"drops stopwords", "A bear in the woods", []string{"bear", "woods"}},
		{"keeps repeats", "bear bear", []string{"bear", "bear"}},
		{"hyphen joins", "sci-fi", []string{"scifi"}},
		{"punctuation only", "...!!!", []string{}},
		{"non ascii untouched", "café", []string{"café"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.text))
		})
	}
}

func TestTokenizeStopwordsCaseInsensitive(t *testing.T) {
	tok := New([]string{"The", " AND "}, nil)
	assert.Equal(t, []string{"cat", "dog"}, tok.Tokenize("THE cat And dog"))
	assert.True(t, tok.IsStopWord("and"))
	assert.Equal(t, StemmerNone, tok.StemmerName())
}

func TestTokenizeWithSnowball(t *testing.T) {
	tok := New(nil, SnowballStemmer{})
	assert.Equal(t, []string{"run", "bear", "wood"}, tok.Tokenize("Running bears woods"))
}

func TestSingleToken(t *testing.T) {
	tok := New([]string{"the"}, IdentityStemmer{})

	term, err := tok.SingleToken("Bear!")
	require.NoError(t, err)
	assert.Equal(t, "bear", term)

	for _, in := range []string{"", "the", "two words"} {
		_, err := tok.SingleToken(in)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument, "input %q", in)
	}
}

func TestSuffixStemmer(t *testing.T) {
	s := SuffixStemmer{}
	tests := map[string]string{
		"relational": "relate",
		"ponies":     "pony",
		"walking":    "walk",
		"cats":       "cat",
		"is":         "is",
		"class":      "class",
	}
	for in, want := range tests {
		assert.Equal(t, want, s.Stem(in), in)
	}
}

func TestNewStemmer(t *testing.T) {
	for name, want := range map[string]string{
		"":         StemmerSnowball,
		"snowball": StemmerSnowball,
		"Porter":   StemmerSnowball,
		"suffix":   StemmerSuffix,
		"none":     StemmerNone,
	} {
		s, err := NewStemmer(name)
		require.NoError(t, err)
		assert.Equal(t, want, s.Name())
	}
	_, err := NewStemmer("lancaster")
	assert.Error(t, err)
}
