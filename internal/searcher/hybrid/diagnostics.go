package hybrid

import (
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
)

// Single-term diagnostics. Each takes the read lock and delegates to the
// loaded index.

func (s *Searcher) TermFrequency(docID int, term string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.TermFrequency(docID, term)
}

func (s *Searcher) InverseDocumentFrequency(term string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.InverseDocumentFrequency(term)
}

func (s *Searcher) TFIDF(docID int, term string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.TFIDF(docID, term)
}

func (s *Searcher) BM25IDF(term string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.BM25IDF(term)
}

func (s *Searcher) BM25TF(docID int, term string, k1, b float64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.BM25TF(docID, term, k1, b)
}

func (s *Searcher) BM25(docID int, term string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.BM25(docID, term)
}

func (s *Searcher) DocumentsFor(term string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.DocumentsFor(term)
}

func (s *Searcher) Document(docID int) (index.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Document(docID)
}

// Documents returns every indexed document in ascending id order.
func (s *Searcher) Documents() []index.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Documents()
}

// Stats reports the size of the loaded index.
func (s *Searcher) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avg, _ := s.engine.AvgDocLength()
	return Stats{
		Documents:    s.engine.DocCount(),
		Terms:        s.engine.TermCount(),
		AvgDocLength: avg,
		Analyzer:     s.engine.Tokenizer().Fingerprint(),
		Snapshot:     s.engine.SnapshotPath(),
	}
}
