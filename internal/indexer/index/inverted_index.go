// Package index implements the in-memory inverted index: posting lists,
// per-document term frequencies, document lengths and the document map, plus
// the TF-IDF and BM25 statistics computed from them.
//
// An InvertedIndex holds no locks. Build and Import mutate every table and
// must not overlap with queries; once built, the read methods are safe to call
// from many goroutines.
package index

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

type InvertedIndex struct {
	tokenizer   *tokenizer.Tokenizer
	params      ranker.Params
	postings    map[string]map[int]struct{}
	termFreqs   map[int]map[string]int
	docLengths  map[int]int
	docs        map[int]Document
	totalTokens int
	logger      *slog.Logger
}

func New(tok *tokenizer.Tokenizer, params ranker.Params) *InvertedIndex {
	idx := &InvertedIndex{
		tokenizer: tok,
		params:    params,
		logger:    slog.Default().With("component", "inverted-index"),
	}
	idx.reset()
	return idx
}

func (idx *InvertedIndex) reset() {
	idx.postings = make(map[string]map[int]struct{})
	idx.termFreqs = make(map[int]map[string]int)
	idx.docLengths = make(map[int]int)
	idx.docs = make(map[int]Document)
	idx.totalTokens = 0
}

// Build discards all state and indexes docs from scratch. Records without an
// id are skipped; a repeated id replaces the earlier record.
func (idx *InvertedIndex) Build(docs []SourceDocument) BuildStats {
	idx.reset()
	var stats BuildStats

	order := make([]int, 0, len(docs))
	latest := make(map[int]Document, len(docs))
	for i, src := range docs {
		if src.ID == nil {
			stats.Skipped++
			idx.logger.Warn("skipping document without id", "position", i, "title", src.Title)
			continue
		}
		id := *src.ID
		if _, seen := latest[id]; seen {
			stats.Duplicates++
			idx.logger.Warn("duplicate document id, keeping last", "doc_id", id)
		} else {
			order = append(order, id)
		}
		latest[id] = Document{ID: id, Title: src.Title, Description: src.Description}
	}

	for _, id := range order {
		idx.addDocument(latest[id])
	}
	stats.Indexed = len(idx.docs)
	stats.Terms = len(idx.postings)
	idx.logger.Info("index built",
		"documents", stats.Indexed,
		"terms", stats.Terms,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates,
	)
	return stats
}

func (idx *InvertedIndex) addDocument(doc Document) {
	tokens := idx.tokenizer.Tokenize(doc.Text())
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
		docs, exists := idx.postings[tok]
		if !exists {
			docs = make(map[int]struct{})
			idx.postings[tok] = docs
		}
		docs[doc.ID] = struct{}{}
	}
	idx.termFreqs[doc.ID] = freqs
	idx.docLengths[doc.ID] = len(tokens)
	idx.docs[doc.ID] = doc
	idx.totalTokens += len(tokens)
}

// DocumentsFor returns the ids of documents containing term, ascending. The
// term is matched as-is after lower-casing; it is not stemmed.
func (idx *InvertedIndex) DocumentsFor(term string) []int {
	docs := idx.postings[strings.ToLower(term)]
	ids := make([]int, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TermFrequency returns how often term occurs in the document, or 0 when the
// document or term is absent.
func (idx *InvertedIndex) TermFrequency(docID int, term string) (int, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	return idx.termFreqs[docID][tok], nil
}

// InverseDocumentFrequency returns ln((N+1)/(df+1)).
func (idx *InvertedIndex) InverseDocumentFrequency(term string) (float64, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	return ranker.IDF(len(idx.docs), len(idx.postings[tok])), nil
}

func (idx *InvertedIndex) TFIDF(docID int, term string) (float64, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	tf := idx.termFreqs[docID][tok]
	return float64(tf) * ranker.IDF(len(idx.docs), len(idx.postings[tok])), nil
}

func (idx *InvertedIndex) BM25IDF(term string) (float64, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	return idx.bm25IDF(tok), nil
}

// BM25TF returns the saturated, length-normalised term frequency using the
// given k1 and b.
func (idx *InvertedIndex) BM25TF(docID int, term string, k1, b float64) (float64, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	avg, err := idx.avgDocLength()
	if err != nil {
		return 0, err
	}
	return idx.bm25TF(docID, tok, avg, ranker.Params{K1: k1, B: b}), nil
}

// BM25 returns BM25TF (with the index's default parameters) times BM25IDF.
func (idx *InvertedIndex) BM25(docID int, term string) (float64, error) {
	tok, err := idx.tokenizer.SingleToken(term)
	if err != nil {
		return 0, err
	}
	avg, err := idx.avgDocLength()
	if err != nil {
		return 0, err
	}
	return idx.bm25TF(docID, tok, avg, idx.params) * idx.bm25IDF(tok), nil
}

// BM25Search scores every document against the query and returns the top
// limit hits. Documents sharing no term with the query are kept with score 0.
// Equal scores are ordered by ascending document id.
func (idx *InvertedIndex) BM25Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidArgumentf("limit must be positive, got %d", limit)
	}
	avg, err := idx.avgDocLength()
	if err != nil {
		return nil, err
	}
	tokens := idx.tokenizer.Tokenize(query)
	idfs := make([]float64, len(tokens))
	for i, tok := range tokens {
		idfs[i] = idx.bm25IDF(tok)
	}

	scored := make([]ranker.ScoredDoc, 0, len(idx.docs))
	for id := range idx.docs {
		var score float64
		for i, tok := range tokens {
			score += idx.bm25TF(id, tok, avg, idx.params) * idfs[i]
		}
		scored = append(scored, ranker.ScoredDoc{DocID: id, Score: score})
	}
	ranker.Sort(scored)
	scored = ranker.Truncate(scored, limit)

	hits := make([]Hit, len(scored))
	for i, s := range scored {
		hits[i] = Hit{DocID: s.DocID, Score: s.Score, Document: idx.docs[s.DocID]}
	}
	return hits, nil
}

func (idx *InvertedIndex) bm25IDF(tok string) float64 {
	return ranker.BM25IDF(len(idx.docs), len(idx.postings[tok]))
}

func (idx *InvertedIndex) bm25TF(docID int, tok string, avg float64, p ranker.Params) float64 {
	tf := idx.termFreqs[docID][tok]
	if tf == 0 {
		return 0
	}
	return ranker.BM25TF(float64(tf), float64(idx.docLengths[docID]), avg, p)
}

func (idx *InvertedIndex) avgDocLength() (float64, error) {
	if len(idx.docLengths) == 0 {
		return 0, apperrors.InvalidStatef("index has an empty document length table; build or load it first")
	}
	return float64(idx.totalTokens) / float64(len(idx.docLengths)), nil
}

// AvgDocLength is the mean token count per document.
func (idx *InvertedIndex) AvgDocLength() (float64, error) {
	return idx.avgDocLength()
}

// DocLength returns the token count of a document, 0 if absent.
func (idx *InvertedIndex) DocLength(docID int) int {
	return idx.docLengths[docID]
}

func (idx *InvertedIndex) Document(docID int) (Document, bool) {
	doc, ok := idx.docs[docID]
	return doc, ok
}

// Documents returns every indexed document ordered by id.
func (idx *InvertedIndex) Documents() []Document {
	out := make([]Document, 0, len(idx.docs))
	for _, doc := range idx.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (idx *InvertedIndex) DocCount() int {
	return len(idx.docs)
}

func (idx *InvertedIndex) TermCount() int {
	return len(idx.postings)
}

func (idx *InvertedIndex) Params() ranker.Params {
	return idx.params
}

func (idx *InvertedIndex) Tokenizer() *tokenizer.Tokenizer {
	return idx.tokenizer
}
