package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/corpus"
)

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the index from the configured source and save its snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := a.newStack()
			if err != nil {
				return err
			}
			start := time.Now()
			stats, err := stack.Searcher.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			return a.emit(cmd, stats, func(w io.Writer) {
				fmt.Fprintf(w, "Indexed %d documents (%d skipped, %d duplicate ids), %d terms in %s\n",
					stats.Indexed, stats.Skipped, stats.Duplicates, stats.Terms, elapsed.Round(time.Millisecond))
				fmt.Fprintf(w, "Snapshot: %s\n", a.cfg.Index.SnapshotPath)
			})
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Copy a JSON corpus into the Postgres documents table",
		Long: `Seed loads a JSON corpus ({"documents": [...]} or {"movies": [...]})
and upserts it into postgres.documentsTable, creating the table when needed.
Point index.source at postgres afterwards to build from the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from == "" {
				from = a.cfg.Index.CorpusPath
			}
			docs, err := corpus.LoadJSON(from)
			if err != nil {
				return err
			}
			stack, err := a.newStack()
			if err != nil {
				return err
			}
			client, err := stack.ConnectPostgres()
			if err != nil {
				return err
			}
			n, err := corpus.Seed(cmd.Context(), client, client.DocumentsTable(), docs)
			if err != nil {
				return err
			}
			result := map[string]any{"table": client.DocumentsTable(), "written": n, "read": len(docs)}
			return a.emit(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "Seeded %d of %d records into %s\n", n, len(docs), client.DocumentsTable())
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "JSON corpus to load (default index.corpusPath)")
	return cmd
}
