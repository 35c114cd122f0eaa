// Package semantic ranks documents by embedding similarity. Documents are
// split into overlapping chunks, each chunk is embedded once, and a
// document scores as its best-matching chunk.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/embed"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// MagicBytes identifies a chunk-vector snapshot.
const MagicBytes uint32 = 0x48534356

// DefaultBatchSize is the number of chunks sent per embedding call.
const DefaultBatchSize = 64

// Chunk is one embedded slice of a document.
type Chunk struct {
	DocID       int    `json:"doc_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Text        string `json:"text"`
}

// Options controls chunking, build parallelism and persistence.
type Options struct {
	Mode         string
	Size         int
	Overlap      int
	Concurrency  int
	BatchSize    int
	SnapshotPath string
}

// Match is a document's best chunk for a query.
type Match struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
	Chunk Chunk   `json:"chunk"`
}

type snapshot struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Settings   string      `json:"settings"`
	Corpus     string      `json:"corpus"`
	Chunks     []Chunk     `json:"chunks"`
	Vectors    [][]float32 `json:"vectors"`
}

// ChunkedRanker holds chunk vectors for one corpus. It is safe for
// concurrent use; Sync and Build replace the vectors atomically.
type ChunkedRanker struct {
	embedder embed.Embedder
	opts     Options

	mu      sync.RWMutex
	corpus  string
	chunks  []Chunk
	vectors [][]float32

	logger *slog.Logger
}

// NewChunkedRanker validates opts and creates an empty ranker.
func NewChunkedRanker(e embed.Embedder, opts Options) (*ChunkedRanker, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSentences
	}
	if opts.Mode != ModeWords && opts.Mode != ModeSentences {
		return nil, apperrors.InvalidArgumentf("unknown chunk mode %q", opts.Mode)
	}
	if err := validateWindow(opts.Size, opts.Overlap); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &ChunkedRanker{
		embedder: e,
		opts:     opts,
		logger:   slog.Default().With("component", "semantic", "model", e.ModelName()),
	}, nil
}

// Build chunks and embeds docs, replacing any vectors held.
func (r *ChunkedRanker) Build(ctx context.Context, docs []index.Document) error {
	start := time.Now()
	chunks, err := r.chunkAll(docs)
	if err != nil {
		return err
	}
	vectors, err := r.embedAll(ctx, chunks)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.corpus = corpusFingerprint(docs)
	r.chunks = chunks
	r.vectors = vectors
	r.mu.Unlock()
	r.logger.Info("chunk embeddings built",
		"documents", len(docs),
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Sync makes the ranker serve docs: it keeps the vectors it has when they
// were built from the same corpus, otherwise loads the snapshot, and
// rebuilds and saves when the snapshot is missing or was built from a
// different corpus or model.
func (r *ChunkedRanker) Sync(ctx context.Context, docs []index.Document) error {
	want := corpusFingerprint(docs)
	r.mu.RLock()
	current := r.corpus
	r.mu.RUnlock()
	if current == want {
		return nil
	}

	err := r.load(want)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidState):
		r.logger.Info("chunk snapshot unusable, rebuilding", "reason", err)
	default:
		return err
	}
	if err := r.Build(ctx, docs); err != nil {
		return err
	}
	if r.opts.SnapshotPath == "" {
		return nil
	}
	_, err = r.Save()
	return err
}

// Save writes the chunk vectors to the snapshot path.
func (r *ChunkedRanker) Save() (segment.Header, error) {
	if r.opts.SnapshotPath == "" {
		return segment.Header{}, apperrors.InvalidStatef("no chunk snapshot path configured")
	}
	r.mu.RLock()
	snap := snapshot{
		Model:      r.embedder.ModelName(),
		Dimensions: r.embedder.Dimensions(),
		Settings:   r.settings(),
		Corpus:     r.corpus,
		Chunks:     r.chunks,
		Vectors:    r.vectors,
	}
	r.mu.RUnlock()
	h, err := segment.Encode(r.opts.SnapshotPath, MagicBytes, countDocs(snap.Chunks), len(snap.Chunks), snap)
	if err != nil {
		return h, err
	}
	r.logger.Info("chunk snapshot saved", "path", r.opts.SnapshotPath, "chunks", len(snap.Chunks), "bytes", h.PayloadLen)
	return h, nil
}

// Load reads the snapshot regardless of which corpus it was built from.
func (r *ChunkedRanker) Load() error {
	return r.load("")
}

func (r *ChunkedRanker) load(wantCorpus string) error {
	if r.opts.SnapshotPath == "" {
		return apperrors.NotFoundf("no chunk snapshot path configured")
	}
	var snap snapshot
	if _, err := segment.Decode(r.opts.SnapshotPath, MagicBytes, &snap); err != nil {
		return err
	}
	switch {
	case snap.Model != r.embedder.ModelName():
		return apperrors.InvalidStatef("chunk snapshot built with model %q, have %q", snap.Model, r.embedder.ModelName())
	case snap.Dimensions != r.embedder.Dimensions():
		return apperrors.InvalidStatef("chunk snapshot has %d-dimensional vectors, have %d", snap.Dimensions, r.embedder.Dimensions())
	case snap.Settings != r.settings():
		return apperrors.InvalidStatef("chunk snapshot built with %s, have %s", snap.Settings, r.settings())
	case wantCorpus != "" && snap.Corpus != wantCorpus:
		return apperrors.InvalidStatef("chunk snapshot built from a different corpus")
	case len(snap.Chunks) != len(snap.Vectors):
		return apperrors.InvalidStatef("chunk snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}
	r.mu.Lock()
	r.corpus = snap.Corpus
	r.chunks = snap.Chunks
	r.vectors = snap.Vectors
	r.mu.Unlock()
	r.logger.Info("chunk snapshot loaded", "path", r.opts.SnapshotPath, "chunks", len(snap.Chunks))
	return nil
}

// ChunkCount returns the number of embedded chunks.
func (r *ChunkedRanker) ChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// RankBySimilarity scores every document by its best chunk and returns the
// top limit, highest first, ties by ascending id.
func (r *ChunkedRanker) RankBySimilarity(ctx context.Context, query string, limit int) ([]fusion.Scored, error) {
	matches, err := r.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]fusion.Scored, len(matches))
	for i, m := range matches {
		out[i] = fusion.Scored{ID: m.DocID, Score: m.Score}
	}
	return out, nil
}

// Search is RankBySimilarity with the winning chunk attached.
func (r *ChunkedRanker) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidArgumentf("limit must be positive, got %d", limit)
	}
	qvec, err := embed.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.chunks == nil {
		return nil, apperrors.InvalidStatef("chunk embeddings not loaded")
	}
	best := make(map[int]Match)
	for i, vec := range r.vectors {
		score, err := Cosine(qvec, vec)
		if err != nil {
			return nil, err
		}
		c := r.chunks[i]
		if m, ok := best[c.DocID]; !ok || score > m.Score {
			best[c.DocID] = Match{DocID: c.DocID, Score: score, Chunk: c}
		}
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *ChunkedRanker) chunkAll(docs []index.Document) ([]Chunk, error) {
	var chunks []Chunk
	for _, d := range docs {
		text := d.Description
		if text == "" {
			text = d.Title
		}
		parts, err := ChunkText(r.opts.Mode, text, r.opts.Size, r.opts.Overlap)
		if err != nil {
			return nil, err
		}
		for i, p := range parts {
			chunks = append(chunks, Chunk{DocID: d.ID, ChunkIndex: i, TotalChunks: len(parts), Text: p})
		}
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}

func (r *ChunkedRanker) embedAll(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for start := 0; start < len(chunks); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			vecs, err := r.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (r *ChunkedRanker) settings() string {
	return fmt.Sprintf("%s/%d/%d", r.opts.Mode, r.opts.Size, r.opts.Overlap)
}

// corpusFingerprint hashes ids and text in the order given.
func corpusFingerprint(docs []index.Document) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(strconv.Itoa(d.ID)))
		h.Write([]byte{0})
		h.Write([]byte(d.Title))
		h.Write([]byte{0})
		h.Write([]byte(d.Description))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func countDocs(chunks []Chunk) int {
	n := 0
	for _, c := range chunks {
		if c.ChunkIndex == 0 {
			n++
		}
	}
	return n
}
