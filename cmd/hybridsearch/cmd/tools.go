package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/semantic"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

const (
	defaultWordChunk     = 200
	defaultSentenceChunk = 4
)

func newNormalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <score>...",
		Short: "Min-max normalise a list of scores into [0,1]",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scores := make([]float64, 0, len(args))
			for _, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return apperrors.InvalidArgumentf("score %q is not a number", arg)
				}
				scores = append(scores, v)
			}
			normalized := fusion.NormalizeScores(scores)
			return a.emit(cmd, normalized, func(w io.Writer) {
				for _, v := range normalized {
					fmt.Fprintf(w, "* %.4f\n", v)
				}
			})
		},
	}
}

func newChunkCmd(a *app) *cobra.Command {
	var (
		size      int
		overlap   int
		sentences bool
	)
	cmd := &cobra.Command{
		Use:   "chunk <text>",
		Short: "Split text into overlapping word or sentence windows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := semantic.ModeWords
			if sentences {
				mode = semantic.ModeSentences
			}
			if !cmd.Flags().Changed("size") {
				size = defaultWordChunk
				if sentences {
					size = defaultSentenceChunk
				}
			}
			text := strings.Join(args, " ")
			chunks, err := semantic.ChunkText(mode, text, size, overlap)
			if err != nil {
				return err
			}
			return a.emit(cmd, chunks, func(w io.Writer) {
				fmt.Fprintf(w, "Chunking %d characters\n", len(text))
				for i, c := range chunks {
					fmt.Fprintf(w, "%d. %s\n", i+1, c)
				}
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "window size in words, or sentences with --sentences (default 200 words, 4 sentences)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "units shared by consecutive windows")
	cmd.Flags().BoolVar(&sentences, "sentences", false, "chunk by sentence instead of by word")
	return cmd
}
