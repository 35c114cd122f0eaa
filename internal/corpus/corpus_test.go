package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSONMovies(t *testing.T) {
	path := writeFile(t, "movies.json", `{"movies":[
		{"id":1,"title":"Bear","description":"woods"},
		{"title":"No id","description":"skipped later"}
	]}`)
	docs, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.NotNil(t, docs[0].ID)
	assert.Equal(t, 1, *docs[0].ID)
	assert.Equal(t, "Bear", docs[0].Title)
	assert.Nil(t, docs[1].ID)
}

func TestParseJSONDocumentsKey(t *testing.T) {
	docs, err := ParseJSON([]byte(`{"documents":[{"id":7,"title":"T","description":"D"}],"movies":[]}`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 7, *docs[0].ID)

	empty, err := ParseJSON([]byte(`{"documents":[]}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseJSONRejectsBadInput(t *testing.T) {
	_, err := ParseJSON([]byte(`{"items":[]}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = ParseJSON([]byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestLoadJSONMissingFile(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJSONSource(t *testing.T) {
	path := writeFile(t, "corpus.json", `{"documents":[{"id":1,"title":"A","description":"B"}]}`)
	src := NewJSONSource(path)
	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, os.WriteFile(path, []byte(`{"documents":[{"id":1},{"id":2}]}`), 0644))
	docs, err = src.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestLoadStopwords(t *testing.T) {
	path := writeFile(t, "stopwords.txt", "The\n\n  a \n# comment\nAND\n")
	words, err := LoadStopwords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "a", "and"}, words)

	none, err := LoadStopwords("")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = LoadStopwords(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDocumentsQueryQuotesTable(t *testing.T) {
	assert.Equal(t, `SELECT id, title, description FROM "documents" ORDER BY id NULLS LAST`, documentsQuery("documents"))
	assert.Contains(t, documentsQuery(`x"; DROP TABLE y; --`), `"x""; DROP TABLE y; --"`)
}
