package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// limitOr returns the configured default when the flag was left at 0.
// Negative values pass through so the searcher rejects them.
func (a *app) limitOr(limit int) int {
	if limit != 0 {
		return limit
	}
	return a.cfg.Search.DefaultLimit
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank documents by BM25",
		Example: `  hybridsearch search "grizzly bear"
  hybridsearch search "space station" --limit 10 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			hits, err := stack.Searcher.BM25Search(cmd.Context(), strings.Join(args, " "), a.limitOr(limit))
			if err != nil {
				return err
			}
			return a.emit(cmd, hits, func(w io.Writer) {
				for i, h := range hits {
					fmt.Fprintf(w, "%d. (%d) %s - Score: %.2f\n", i+1, h.DocID, h.Document.Title, h.Score)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default search.defaultLimit)")
	return cmd
}

func newWeightedCmd(a *app) *cobra.Command {
	var (
		alpha float64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "weighted <query>",
		Short: "Blend normalised BM25 and semantic scores",
		Long: `Weighted fusion scores each document as
alpha * keyword + (1 - alpha) * semantic after min-max normalising both lists.
alpha=1 is pure keyword ranking, alpha=0 pure semantic ranking.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("alpha") {
				alpha = a.cfg.Search.DefaultAlpha
			}
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			results, err := stack.Searcher.WeightedSearch(cmd.Context(), strings.Join(args, " "), alpha, a.limitOr(limit))
			if err != nil {
				return err
			}
			return a.emit(cmd, results, func(w io.Writer) {
				printFused(w, results, func(r hybrid.Result) string {
					return fmt.Sprintf("Hybrid: %.3f (BM25: %.3f, Semantic: %.3f)", r.FusedScore, r.KeywordScore, r.SemanticScore)
				})
			})
		},
	}
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "keyword weight within [0,1] (default search.defaultAlpha)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default search.defaultLimit)")
	return cmd
}

func newRRFCmd(a *app) *cobra.Command {
	var (
		k     float64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "rrf <query>",
		Short: "Fuse BM25 and semantic rankings with reciprocal rank fusion",
		Long: `Reciprocal rank fusion sums 1/(k + rank) over both ranked lists.
Scores are ignored; only positions matter.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("k") {
				k = a.cfg.Search.DefaultRRFK
			}
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			results, err := stack.Searcher.RRFSearch(cmd.Context(), strings.Join(args, " "), k, a.limitOr(limit))
			if err != nil {
				return err
			}
			return a.emit(cmd, results, func(w io.Writer) {
				printFused(w, results, func(r hybrid.Result) string {
					return fmt.Sprintf("RRF: %.4f (BM25 rank: %s, Semantic rank: %s)", r.FusedScore, rankLabel(r.KeywordRank), rankLabel(r.SemanticRank))
				})
			})
		},
	}
	cmd.Flags().Float64Var(&k, "k", 0, "rank damping constant (default search.defaultRRFK)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default search.defaultLimit)")
	return cmd
}

func newSemanticCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "semantic <query>",
		Short: "Rank documents by their best-matching chunk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Semantic.Enabled {
				return apperrors.InvalidStatef("semantic ranking is disabled (semantic.enabled=false)")
			}
			stack, err := a.openStack(cmd.Context())
			if err != nil {
				return err
			}
			matches, err := stack.Semantic.Search(cmd.Context(), strings.Join(args, " "), a.limitOr(limit))
			if err != nil {
				return err
			}
			return a.emit(cmd, matches, func(w io.Writer) {
				for i, m := range matches {
					title := ""
					if doc, ok := stack.Searcher.Document(m.DocID); ok {
						title = doc.Title
					}
					fmt.Fprintf(w, "%d. (%d) %s - Score: %.4f\n", i+1, m.DocID, title, m.Score)
					fmt.Fprintf(w, "   chunk %d/%d: %s\n", m.Chunk.ChunkIndex+1, m.Chunk.TotalChunks, m.Chunk.Text)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default search.defaultLimit)")
	return cmd
}

func printFused(w io.Writer, results []hybrid.Result, detail func(hybrid.Result) string) {
	for i, r := range results {
		fmt.Fprintf(w, "%d. (%d) %s\n", i+1, r.ID, r.Document.Title)
		fmt.Fprintf(w, "   %s\n", detail(r))
	}
}

func rankLabel(rank int) string {
	if rank == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", rank)
}
