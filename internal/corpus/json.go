// Package corpus loads documents and stopwords for indexing. Documents come
// from a JSON file or a PostgreSQL table; both satisfy the searcher's
// DocumentSource.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// jsonCorpus accepts either top-level key. "documents" wins when both are
// present.
type jsonCorpus struct {
	Documents []index.SourceDocument `json:"documents"`
	Movies    []index.SourceDocument `json:"movies"`
}

// LoadJSON reads {"documents":[...]} or {"movies":[...]} from path. Records
// without an id keep a nil ID so the index can skip and count them.
func LoadJSON(path string) ([]index.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundf("corpus file %s does not exist", path)
		}
		return nil, apperrors.IOf(err, "reading corpus %s", path)
	}
	docs, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return docs, nil
}

// ParseJSON decodes a corpus document.
func ParseJSON(data []byte) ([]index.SourceDocument, error) {
	var c jsonCorpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperrors.InvalidArgumentf("decoding corpus: %v", err)
	}
	switch {
	case c.Documents != nil:
		return c.Documents, nil
	case c.Movies != nil:
		return c.Movies, nil
	default:
		return nil, apperrors.InvalidArgumentf(`corpus has neither "documents" nor "movies"`)
	}
}

// JSONSource re-reads the corpus file on every call so rebuilds pick up
// edits.
type JSONSource struct {
	path   string
	logger *slog.Logger
}

// NewJSONSource creates a source backed by the file at path.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path, logger: slog.Default().With("component", "corpus", "source", "json")}
}

func (s *JSONSource) Documents(ctx context.Context) ([]index.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := LoadJSON(s.path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "path", s.path, "records", len(docs))
	return docs, nil
}

// LoadStopwords reads one word per line, lowercased; blank lines and
// lines starting with '#' are skipped. An empty path yields no stopwords.
func LoadStopwords(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundf("stopwords file %s does not exist", path)
		}
		return nil, apperrors.IOf(err, "reading stopwords %s", path)
	}
	var words []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.IOf(err, "scanning stopwords %s", path)
	}
	return words, nil
}
