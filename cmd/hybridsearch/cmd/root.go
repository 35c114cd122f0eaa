// Package cmd provides the hybridsearch command line: index builds,
// lexical and fused queries, single-term diagnostics and evaluation against
// a golden set.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logLevel   string
	format     string

	cfg   *config.Config
	stack *bootstrap.Stack
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "hybridsearch",
		Short: "BM25 and semantic retrieval with rank fusion",
		Long: `hybridsearch builds an inverted index over a document corpus and
answers keyword, weighted-hybrid and reciprocal-rank-fusion queries.

The index and chunk-vector snapshots are shared with the search service,
so a snapshot built here is served as-is.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (built-in defaults when empty)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")
	cmd.PersistentFlags().StringVarP(&a.format, "format", "f", formatText, "output format: text, json")

	cmd.AddCommand(newBuildCmd(a))
	cmd.AddCommand(newSeedCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newWeightedCmd(a))
	cmd.AddCommand(newRRFCmd(a))
	cmd.AddCommand(newSemanticCmd(a))
	cmd.AddCommand(newTermCmds(a)...)
	cmd.AddCommand(newNormalizeCmd(a))
	cmd.AddCommand(newChunkCmd(a))
	cmd.AddCommand(newEvaluateCmd(a))
	cmd.AddCommand(newKeysCmd(a))
	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	switch a.format {
	case formatText, formatJSON:
	default:
		return apperrors.InvalidArgumentf("unknown format %q (want text or json)", a.format)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	// stdout carries results only.
	logger.SetupWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.stack == nil {
		return nil
	}
	err := a.stack.Close()
	a.stack = nil
	return err
}

// newStack wires the stack without loading the index.
func (a *app) newStack() (*bootstrap.Stack, error) {
	if a.stack != nil {
		return a.stack, nil
	}
	stack, err := bootstrap.New(a.cfg, nil)
	if err != nil {
		return nil, err
	}
	a.stack = stack
	return stack, nil
}

// openStack loads the snapshot, building it first when it is missing.
func (a *app) openStack(ctx context.Context) (*bootstrap.Stack, error) {
	stack, err := a.newStack()
	if err != nil {
		return nil, err
	}
	if err := stack.Searcher.Open(ctx); err != nil {
		return nil, err
	}
	return stack, nil
}

// emit writes v as indented JSON in json mode, otherwise calls text.
func (a *app) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if a.format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
