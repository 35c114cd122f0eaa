package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

type fakeSearcher struct {
	titles map[string][]string
	k      float64
	err    error
}

func (f *fakeSearcher) RRFSearch(ctx context.Context, query string, k float64, limit int) ([]hybrid.Result, error) {
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	var out []hybrid.Result
	for i, title := range f.titles[query] {
		if i == limit {
			break
		}
		out = append(out, hybrid.Result{Result: fusion.Result{ID: i}, Document: index.Document{ID: i, Title: title}})
	}
	return out, nil
}

func TestPrecisionRecall(t *testing.T) {
	retrieved := []string{"A", "B", "C", "D"}
	relevant := []string{"B", "D", "Z"}
	assert.InDelta(t, 1.0/3.0, PrecisionAtK(retrieved, relevant, 3), 1e-12)
	assert.InDelta(t, 1.0/3.0, RecallAtK(retrieved, relevant, 3), 1e-12)
	assert.InDelta(t, 2.0/3.0, RecallAtK(retrieved, relevant, 4), 1e-12)
	assert.InDelta(t, 0.2, PrecisionAtK([]string{"B"}, relevant, 5), 1e-12)
	assert.Zero(t, RecallAtK(retrieved, nil, 3))
	assert.Zero(t, PrecisionAtK(retrieved, relevant, 0))
}

func TestEvaluate(t *testing.T) {
	s := &fakeSearcher{titles: map[string][]string{
		"bear":  {"Grizzly Man", "Paddington", "Jaws"},
		"shark": {"Cars", "Jaws"},
	}}
	cases := []TestCase{
		{Query: "bear", RelevantDocs: []string{"Grizzly Man", "Paddington"}},
		{Query: "shark", RelevantDocs: []string{"Jaws"}},
	}
	report, err := Evaluate(context.Background(), s, cases, 2)
	require.NoError(t, err)
	assert.Equal(t, fusion.DefaultRRFK, s.k)
	assert.Equal(t, 2, report.Cases)
	require.Len(t, report.Results, 2)

	assert.Equal(t, 1.0, report.Results[0].Precision)
	assert.Equal(t, 1.0, report.Results[0].Recall)
	assert.Equal(t, []string{"Grizzly Man", "Paddington"}, report.Results[0].Retrieved)
	assert.Equal(t, 0.5, report.Results[1].Precision)
	assert.Equal(t, 1.0, report.Results[1].Recall)

	assert.InDelta(t, 0.75, report.MeanPrecision, 1e-12)
	assert.InDelta(t, 1.0, report.MeanRecall, 1e-12)
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate(context.Background(), &fakeSearcher{}, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	boom := errors.New("boom")
	_, err = Evaluate(context.Background(), &fakeSearcher{err: boom}, []TestCase{{Query: "q"}}, 3)
	assert.ErrorIs(t, err, boom)

	report, err := Evaluate(context.Background(), &fakeSearcher{}, nil, 3)
	require.NoError(t, err)
	assert.Zero(t, report.MeanPrecision)
}

func TestLoadGolden(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "golden.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"test_cases":[{"query":"bear","relevant_docs":["Paddington"]}]}`), 0644))
	set, err := LoadGolden(jsonPath)
	require.NoError(t, err)
	require.Len(t, set.TestCases, 1)
	assert.Equal(t, []string{"Paddington"}, set.TestCases[0].RelevantDocs)

	yamlPath := filepath.Join(dir, "golden.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("test_cases:\n  - query: shark\n    relevant_docs: [Jaws]\n"), 0644))
	set, err = LoadGolden(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "shark", set.TestCases[0].Query)

	_, err = LoadGolden(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadGolden(bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
