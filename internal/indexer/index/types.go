package index

// Document is an indexed record. Its indexed text is Title + " " + Description.
type Document struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Text returns the text that is tokenized into the index.
func (d Document) Text() string {
	return d.Title + " " + d.Description
}

// SourceDocument is a record as delivered by a corpus loader. A nil ID marks
// a malformed record that Build skips.
type SourceDocument struct {
	ID          *int   `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// BuildStats reports what a Build did with its input.
type BuildStats struct {
	Indexed    int `json:"indexed"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Terms      int `json:"terms"`
}

// Hit is one entry of a BM25 ranked list.
type Hit struct {
	DocID    int      `json:"doc_id"`
	Score    float64  `json:"score"`
	Document Document `json:"document"`
}

// Tables is the serialisable form of the four index tables. Posting lists
// are stored as ascending id slices.
type Tables struct {
	Analyzer        string                 `json:"analyzer"`
	Postings        map[string][]int       `json:"postings"`
	TermFrequencies map[int]map[string]int `json:"term_frequencies"`
	DocLengths      map[int]int            `json:"doc_lengths"`
	Documents       map[int]Document       `json:"documents"`
}
