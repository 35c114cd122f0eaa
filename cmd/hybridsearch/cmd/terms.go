package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// termValue is the JSON form of every diagnostic.
type termValue struct {
	Metric string  `json:"metric"`
	Term   string  `json:"term"`
	DocID  *int    `json:"doc_id,omitempty"`
	Value  float64 `json:"value"`
}

type docMetric func(s *hybrid.Searcher, docID int, term string) (float64, error)

type corpusMetric func(s *hybrid.Searcher, term string) (float64, error)

func newTermCmds(a *app) []*cobra.Command {
	var k1, b float64
	bm25tf := newDocMetricCmd(a, "bm25tf", "Saturated, length-normalised term frequency",
		func(s *hybrid.Searcher, docID int, term string) (float64, error) {
			return s.BM25TF(docID, term, k1, b)
		})
	bm25tf.Flags().Float64Var(&k1, "k1", 0, "saturation constant (default index.k1)")
	bm25tf.Flags().Float64Var(&b, "b", 0, "length normalisation within [0,1] (default index.b)")
	bm25tf.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("k1") {
			k1 = a.cfg.Index.K1
		}
		if !cmd.Flags().Changed("b") {
			b = a.cfg.Index.B
		}
		return nil
	}

	return []*cobra.Command{
		newDocMetricCmd(a, "tf", "Raw count of a term in one document",
			func(s *hybrid.Searcher, docID int, term string) (float64, error) {
				tf, err := s.TermFrequency(docID, term)
				return float64(tf), err
			}),
		newCorpusMetricCmd(a, "idf", "Smoothed inverse document frequency ln((N+1)/(df+1))",
			func(s *hybrid.Searcher, term string) (float64, error) {
				return s.InverseDocumentFrequency(term)
			}),
		newDocMetricCmd(a, "tfidf", "Term frequency times inverse document frequency",
			func(s *hybrid.Searcher, docID int, term string) (float64, error) {
				return s.TFIDF(docID, term)
			}),
		newCorpusMetricCmd(a, "bm25idf", "BM25 inverse document frequency",
			func(s *hybrid.Searcher, term string) (float64, error) {
				return s.BM25IDF(term)
			}),
		bm25tf,
		newDocMetricCmd(a, "bm25", "BM25 score of a single term in one document",
			func(s *hybrid.Searcher, docID int, term string) (float64, error) {
				return s.BM25(docID, term)
			}),
	}
}

func newDocMetricCmd(a *app, metric, short string, fn docMetric) *cobra.Command {
	return &cobra.Command{
		Use:   metric + " <doc_id> <term>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := strconv.Atoi(args[0])
			if err != nil {
				return apperrors.InvalidArgumentf("doc_id must be an integer, got %q", args[0])
			}
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			v, err := fn(stack.Searcher, docID, args[1])
			if err != nil {
				return err
			}
			return a.emit(cmd, termValue{Metric: metric, Term: args[1], DocID: &docID, Value: v}, func(w io.Writer) {
				fmt.Fprintln(w, formatMetric(metric, v))
			})
		},
	}
}

func newCorpusMetricCmd(a *app, metric, short string, fn corpusMetric) *cobra.Command {
	return &cobra.Command{
		Use:   metric + " <term>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			v, err := fn(stack.Searcher, args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd, termValue{Metric: metric, Term: args[0], Value: v}, func(w io.Writer) {
				fmt.Fprintln(w, formatMetric(metric, v))
			})
		},
	}
}

func formatMetric(metric string, v float64) string {
	if metric == "tf" {
		return strconv.Itoa(int(v))
	}
	return fmt.Sprintf("%.2f", v)
}
