package index

import (
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Export copies the four tables into their serialisable form.
func (idx *InvertedIndex) Export() *Tables {
	t := &Tables{
		Analyzer:        idx.tokenizer.Fingerprint(),
		Postings:        make(map[string][]int, len(idx.postings)),
		TermFrequencies: make(map[int]map[string]int, len(idx.termFreqs)),
		DocLengths:      make(map[int]int, len(idx.docLengths)),
		Documents:       make(map[int]Document, len(idx.docs)),
	}
	for term, docs := range idx.postings {
		ids := make([]int, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		t.Postings[term] = ids
	}
	for id, freqs := range idx.termFreqs {
		cp := make(map[string]int, len(freqs))
		for term, n := range freqs {
			cp[term] = n
		}
		t.TermFrequencies[id] = cp
	}
	for id, n := range idx.docLengths {
		t.DocLengths[id] = n
	}
	for id, doc := range idx.docs {
		t.Documents[id] = doc
	}
	return t
}

// Import replaces the index state with t. The tables must describe the same
// documents and must have been produced by a tokenizer with the same
// fingerprint; otherwise ErrInvalidState is returned and the index is left
// untouched.
func (idx *InvertedIndex) Import(t *Tables) error {
	if t == nil {
		return apperrors.InvalidStatef("nil index tables")
	}
	if want := idx.tokenizer.Fingerprint(); t.Analyzer != want {
		return apperrors.InvalidStatef("snapshot analyzer %q does not match tokenizer %q", t.Analyzer, want)
	}
	if err := validateTables(t); err != nil {
		return err
	}

	postings := make(map[string]map[int]struct{}, len(t.Postings))
	for term, ids := range t.Postings {
		set := make(map[int]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		postings[term] = set
	}
	termFreqs := make(map[int]map[string]int, len(t.TermFrequencies))
	for id, freqs := range t.TermFrequencies {
		cp := make(map[string]int, len(freqs))
		for term, n := range freqs {
			cp[term] = n
		}
		termFreqs[id] = cp
	}
	docLengths := make(map[int]int, len(t.DocLengths))
	total := 0
	for id, n := range t.DocLengths {
		docLengths[id] = n
		total += n
	}
	docs := make(map[int]Document, len(t.Documents))
	for id, doc := range t.Documents {
		docs[id] = doc
	}

	idx.postings = postings
	idx.termFreqs = termFreqs
	idx.docLengths = docLengths
	idx.docs = docs
	idx.totalTokens = total
	return nil
}

// validateTables checks the cross-table invariants: every document has a
// length, the length equals the sum of its term counts, and posting lists
// agree with the term-frequency table.
func validateTables(t *Tables) error {
	if len(t.DocLengths) != len(t.Documents) {
		return apperrors.InvalidStatef("snapshot has %d document lengths for %d documents", len(t.DocLengths), len(t.Documents))
	}
	for id, doc := range t.Documents {
		if doc.ID != id {
			return apperrors.InvalidStatef("snapshot document key %d holds id %d", id, doc.ID)
		}
		length, ok := t.DocLengths[id]
		if !ok {
			return apperrors.InvalidStatef("snapshot document %d has no length", id)
		}
		sum := 0
		for _, n := range t.TermFrequencies[id] {
			sum += n
		}
		if sum != length {
			return apperrors.InvalidStatef("snapshot document %d length %d != term count %d", id, length, sum)
		}
	}
	for term, ids := range t.Postings {
		for _, id := range ids {
			if t.TermFrequencies[id][term] <= 0 {
				return apperrors.InvalidStatef("snapshot posting %q lists document %d without occurrences", term, id)
			}
		}
	}
	for id, freqs := range t.TermFrequencies {
		if _, ok := t.Documents[id]; !ok {
			return apperrors.InvalidStatef("snapshot term frequencies reference unknown document %d", id)
		}
		for term, n := range freqs {
			if n > 0 && !containsSorted(t.Postings[term], id) {
				return apperrors.InvalidStatef("snapshot term %q in document %d missing from postings", term, id)
			}
		}
	}
	return nil
}

func containsSorted(ids []int, id int) bool {
	i := sort.SearchInts(ids, id)
	return i < len(ids) && ids[i] == id
}
