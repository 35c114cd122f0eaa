package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/embed"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/semantic"
)

// rankedLists builds two overlapping ranked lists of n entries each.
func rankedLists(n int) (lexical, sem []fusion.Scored) {
	lexical = make([]fusion.Scored, n)
	sem = make([]fusion.Scored, n)
	for i := 0; i < n; i++ {
		lexical[i] = fusion.Scored{ID: i + 1, Score: float64(n - i)}
		sem[i] = fusion.Scored{ID: n/2 + i + 1, Score: 1 - float64(i)/float64(n)}
	}
	return lexical, sem
}

func BenchmarkNormalizeScores(b *testing.B) {
	lexical, _ := rankedLists(5000)
	scores := make([]float64, len(lexical))
	for i, s := range lexical {
		scores[i] = s.Score
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fusion.NormalizeScores(scores)
	}
}

// BenchmarkFusion compares both fusion strategies over the candidate counts
// produced by the default over-fetch.
func BenchmarkFusion(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		lexical, sem := rankedLists(n)
		b.Run(fmt.Sprintf("weighted_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := fusion.Weighted(lexical, sem, 0.5, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run(fmt.Sprintf("rrf_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := fusion.ReciprocalRank(lexical, sem, fusion.DefaultRRFK, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func newSemantic(b *testing.B) *semantic.ChunkedRanker {
	b.Helper()
	r, err := semantic.NewChunkedRanker(embed.NewStaticEmbedder(embed.DefaultStaticDimensions), semantic.Options{
		Mode:         semantic.ModeSentences,
		Size:         4,
		Overlap:      1,
		Concurrency:  4,
		SnapshotPath: filepath.Join(b.TempDir(), "chunks.snap"),
	})
	if err != nil {
		b.Fatal(err)
	}
	return r
}

// BenchmarkSemanticRank measures brute-force cosine ranking over every
// chunk of a 2 000 document corpus.
func BenchmarkSemanticRank(b *testing.B) {
	engine := newEngine(b)
	engine.Build(syntheticCorpus(2000))
	r := newSemantic(b)
	ctx := context.Background()
	if err := r.Build(ctx, engine.Documents()); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.RankBySimilarity(ctx, "haunted house on a pirate ship", 50); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkHybridRRF measures the full query path: BM25, semantic ranking,
// fusion and hydration.
func BenchmarkHybridRRF(b *testing.B) {
	engine := newEngine(b)
	engine.Build(syntheticCorpus(2000))
	r := newSemantic(b)
	ctx := context.Background()
	if err := r.Sync(ctx, engine.Documents()); err != nil {
		b.Fatal(err)
	}
	s := hybrid.New(engine, nil, r, 50)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := s.RRFSearch(ctx, "space mission secret agent", fusion.DefaultRRFK, 10); err != nil {
				b.Fatal(err)
			}
		}
	})
}
