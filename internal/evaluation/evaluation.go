// Package evaluation scores reciprocal-rank fusion against a golden set of
// queries with known relevant titles.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// TestCase is one golden query. RelevantDocs holds document titles.
type TestCase struct {
	Query        string   `json:"query" yaml:"query"`
	RelevantDocs []string `json:"relevant_docs" yaml:"relevant_docs"`
}

// GoldenSet is the file format.
type GoldenSet struct {
	TestCases []TestCase `json:"test_cases" yaml:"test_cases"`
}

// QueryResult reports one test case.
type QueryResult struct {
	Query     string   `json:"query"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	Retrieved []string `json:"retrieved"`
	Relevant  []string `json:"relevant"`
}

// Report aggregates a run.
type Report struct {
	Limit         int           `json:"limit"`
	Cases         int           `json:"test_cases_count"`
	MeanPrecision float64       `json:"mean_precision"`
	MeanRecall    float64       `json:"mean_recall"`
	Results       []QueryResult `json:"results"`
}

// Searcher is the slice of the hybrid façade evaluation needs.
type Searcher interface {
	RRFSearch(ctx context.Context, query string, k float64, limit int) ([]hybrid.Result, error)
}

// LoadGolden reads a golden set; .yaml and .yml files are parsed as YAML,
// anything else as JSON.
func LoadGolden(path string) (*GoldenSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundf("golden set %s does not exist", path)
		}
		return nil, apperrors.IOf(err, "reading golden set %s", path)
	}
	var set GoldenSet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &set)
	default:
		err = json.Unmarshal(data, &set)
	}
	if err != nil {
		return nil, apperrors.InvalidArgumentf("decoding golden set %s: %v", path, err)
	}
	return &set, nil
}

// Evaluate runs every case through RRF with the default k and scores the
// top limit titles.
func Evaluate(ctx context.Context, s Searcher, cases []TestCase, limit int) (*Report, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidArgumentf("limit must be positive, got %d", limit)
	}
	report := &Report{Limit: limit, Cases: len(cases), Results: make([]QueryResult, 0, len(cases))}
	for _, tc := range cases {
		results, err := s.RRFSearch(ctx, tc.Query, fusion.DefaultRRFK, limit)
		if err != nil {
			return nil, fmt.Errorf("evaluating %q: %w", tc.Query, err)
		}
		retrieved := make([]string, 0, len(results))
		for _, r := range results {
			if r.Document.Title != "" {
				retrieved = append(retrieved, r.Document.Title)
			}
		}
		qr := QueryResult{
			Query:     tc.Query,
			Precision: PrecisionAtK(retrieved, tc.RelevantDocs, limit),
			Recall:    RecallAtK(retrieved, tc.RelevantDocs, limit),
			Retrieved: head(retrieved, limit),
			Relevant:  tc.RelevantDocs,
		}
		report.Results = append(report.Results, qr)
		report.MeanPrecision += qr.Precision
		report.MeanRecall += qr.Recall
		slog.Debug("evaluated query", "query", tc.Query, "precision", qr.Precision, "recall", qr.Recall)
	}
	if n := len(cases); n > 0 {
		report.MeanPrecision /= float64(n)
		report.MeanRecall /= float64(n)
	}
	return report, nil
}

// PrecisionAtK is the relevant fraction of k slots, counting only the
// first k retrieved.
func PrecisionAtK(retrieved, relevant []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(hits(retrieved, relevant, k)) / float64(k)
}

// RecallAtK is the fraction of relevant titles found in the first k
// retrieved; 0 when nothing is relevant.
func RecallAtK(retrieved, relevant []string, k int) float64 {
	set := toSet(relevant)
	if len(set) == 0 {
		return 0
	}
	return float64(hits(retrieved, relevant, k)) / float64(len(set))
}

func hits(retrieved, relevant []string, k int) int {
	set := toSet(relevant)
	n := 0
	for _, title := range head(retrieved, k) {
		if _, ok := set[title]; ok {
			n++
		}
	}
	return n
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func head(items []string, k int) []string {
	if k < len(items) {
		return items[:k]
	}
	return items
}
