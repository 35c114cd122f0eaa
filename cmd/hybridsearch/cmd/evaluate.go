package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/evaluation"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		golden string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure precision@k and recall@k of RRF search against a golden set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if golden == "" {
				golden = a.cfg.Evaluation.GoldenPath
			}
			if limit <= 0 {
				limit = a.cfg.Evaluation.Limit
			}
			set, err := evaluation.LoadGolden(golden)
			if err != nil {
				return err
			}
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			report, err := evaluation.Evaluate(cmd.Context(), stack.Searcher, set.TestCases, limit)
			if err != nil {
				return err
			}
			return a.emit(cmd, report, func(w io.Writer) {
				fmt.Fprintf(w, "k=%d\n\n", report.Limit)
				for _, r := range report.Results {
					fmt.Fprintf(w, "- Query: %s\n", r.Query)
					fmt.Fprintf(w, "  - Precision@%d: %.4f\n", report.Limit, r.Precision)
					fmt.Fprintf(w, "  - Recall@%d: %.4f\n", report.Limit, r.Recall)
					fmt.Fprintf(w, "  - Retrieved: %s\n", strings.Join(r.Retrieved, ", "))
					fmt.Fprintf(w, "  - Relevant: %s\n", strings.Join(r.Relevant, ", "))
				}
				fmt.Fprintf(w, "\nMean precision: %.4f over %d cases\n", report.MeanPrecision, report.Cases)
				fmt.Fprintf(w, "Mean recall:    %.4f\n", report.MeanRecall)
			})
		},
	}
	cmd.Flags().StringVar(&golden, "golden", "", "golden set file, JSON or YAML (default evaluation.goldenPath)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "k for precision@k and recall@k (default evaluation.limit)")
	return cmd
}
