// Package ranker holds the lexical relevance formulas (classic IDF, BM25 IDF
// and BM25 term-frequency saturation) and the deterministic ordering used by
// every ranked list in the system.
package ranker

import (
	"math"
	"sort"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the BM25 tuning knobs. K1 controls how quickly repeated terms
// stop adding score; B controls how much document length is normalised.
type Params struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// IDF is the smoothed classic inverse document frequency
// ln((N+1)/(df+1)).
func IDF(totalDocs, docFreq int) float64 {
	return math.Log(float64(totalDocs+1) / float64(docFreq+1))
}

// BM25IDF is ln((N-df+0.5)/(df+0.5)+1). It never goes below zero, so very
// common terms contribute nothing instead of a penalty.
func BM25IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// BM25TF saturates a raw term frequency and normalises it by the document's
// length relative to the corpus average. avgDocLength must be positive.
func BM25TF(termFreq, docLength, avgDocLength float64, p Params) float64 {
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return (termFreq * (p.K1 + 1)) / denominator
}

// Sort orders docs by descending score, breaking ties by ascending DocID.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

// Truncate returns at most limit docs. A non-positive limit keeps everything.
func Truncate(docs []ScoredDoc, limit int) []ScoredDoc {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}
