package semantic

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/embed"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

func TestChunkWords(t *testing.T) {
	chunks, err := ChunkWords("a b c d e f g", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c d", "d e f g"}, chunks)

	chunks, err = ChunkWords("a b c d e", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "c d", "e"}, chunks)

	chunks, err = ChunkWords("   ", 3, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = ChunkWords("a b", 2, 2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = ChunkWords("a b", 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("The bear sleeps. Does it wake?  Yes!  It eats 3.5 fish")
	assert.Equal(t, []string{"The bear sleeps.", "Does it wake?", "Yes!", "It eats 3.5 fish"}, got)
	assert.Empty(t, SplitSentences(" \n "))
}

func TestChunkSentences(t *testing.T) {
	text := "One. Two. Three. Four. Five."
	chunks, err := ChunkSentences(text, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"One. Two.", "Two. Three.", "Three. Four.", "Four. Five."}, chunks)

	chunks, err = ChunkSentences("no terminal punctuation here", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"no terminal punctuation here"}, chunks)

	_, err = ChunkText("paragraphs", text, 2, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = Cosine([]float32{1, 0}, []float32{0, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-9)

	s, err = Cosine([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = Cosine([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

type countingEmbedder struct {
	*embed.StaticEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, texts)
}

func animals() []index.Document {
	return []index.Document{
		{ID: 1, Title: "Grizzly", Description: "A grizzly bear roams the forest. It catches salmon in rivers."},
		{ID: 2, Title: "Shark", Description: "The great white shark hunts seals in the ocean."},
		{ID: 3, Title: "Ledger", Description: "Quarterly accounting ledger for tax filing."},
	}
}

func newTestRanker(t *testing.T, path string) (*ChunkedRanker, *countingEmbedder) {
	t.Helper()
	e := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(128)}
	r, err := NewChunkedRanker(e, Options{Mode: ModeSentences, Size: 1, Overlap: 0, Concurrency: 2, BatchSize: 2, SnapshotPath: path})
	require.NoError(t, err)
	return r, e
}

func TestRankBySimilarity(t *testing.T) {
	r, _ := newTestRanker(t, "")
	require.NoError(t, r.Build(context.Background(), animals()))
	assert.Equal(t, 4, r.ChunkCount())

	scored, err := r.RankBySimilarity(context.Background(), "grizzly bear forest", 3)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, 1, scored[0].ID)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}

	top, err := r.RankBySimilarity(context.Background(), "grizzly bear forest", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	_, err = r.RankBySimilarity(context.Background(), "x", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSearchReportsBestChunk(t *testing.T) {
	r, _ := newTestRanker(t, "")
	require.NoError(t, r.Build(context.Background(), animals()))
	matches, err := r.Search(context.Background(), "catches salmon in rivers", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].DocID)
	assert.Equal(t, 1, matches[0].Chunk.ChunkIndex)
	assert.Equal(t, 2, matches[0].Chunk.TotalChunks)
}

func TestSearchBeforeBuild(t *testing.T) {
	r, _ := newTestRanker(t, "")
	_, err := r.Search(context.Background(), "bear", 3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestSyncBuildsSavesAndReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.snap")
	r, e := newTestRanker(t, path)
	docs := animals()

	require.NoError(t, r.Sync(context.Background(), docs))
	_, err := os.Stat(path)
	require.NoError(t, err)
	built := e.calls.Load()
	assert.Positive(t, built)

	require.NoError(t, r.Sync(context.Background(), docs))
	assert.Equal(t, built, e.calls.Load())

	fresh, e2 := newTestRanker(t, path)
	require.NoError(t, fresh.Sync(context.Background(), docs))
	assert.Zero(t, e2.calls.Load())
	assert.Equal(t, r.ChunkCount(), fresh.ChunkCount())

	changed := append(docs, index.Document{ID: 4, Title: "Wolf", Description: "Wolves howl."})
	require.NoError(t, fresh.Sync(context.Background(), changed))
	assert.Positive(t, e2.calls.Load())
	assert.Equal(t, 5, fresh.ChunkCount())
}

func TestLoadRejectsOtherSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.snap")
	r, _ := newTestRanker(t, path)
	require.NoError(t, r.Build(context.Background(), animals()))
	_, err := r.Save()
	require.NoError(t, err)

	other, err := NewChunkedRanker(embed.NewStaticEmbedder(128), Options{Mode: ModeWords, Size: 4, Overlap: 1, SnapshotPath: path})
	require.NoError(t, err)
	assert.ErrorIs(t, other.Load(), apperrors.ErrInvalidState)

	missing, _ := newTestRanker(t, filepath.Join(t.TempDir(), "none.snap"))
	assert.ErrorIs(t, missing.Load(), apperrors.ErrNotFound)
}

func TestSyncRebuildsWhenDimensionsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.snap")
	opts := Options{Mode: ModeSentences, Size: 1, SnapshotPath: path}
	docs := animals()

	small, err := NewChunkedRanker(embed.NewStaticEmbedder(8), opts)
	require.NoError(t, err)
	require.NoError(t, small.Sync(context.Background(), docs))

	e := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(16)}
	large, err := NewChunkedRanker(e, opts)
	require.NoError(t, err)
	assert.ErrorIs(t, large.Load(), apperrors.ErrInvalidState)

	require.NoError(t, large.Sync(context.Background(), docs))
	assert.Positive(t, e.calls.Load())
	top, err := large.RankBySimilarity(context.Background(), "grizzly bear", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestNewChunkedRankerValidates(t *testing.T) {
	_, err := NewChunkedRanker(embed.NewStaticEmbedder(8), Options{Mode: ModeWords, Size: 2, Overlap: 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = NewChunkedRanker(embed.NewStaticEmbedder(8), Options{Mode: "lines", Size: 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
