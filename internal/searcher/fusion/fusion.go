// Package fusion combines a lexical ranked list and a semantic ranked list
// into one ranking, either by weighted min-max normalised scores or by
// reciprocal rank fusion.
package fusion

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// DefaultRRFK is the conventional reciprocal-rank constant.
const DefaultRRFK = 60.0

// Scored is one entry of an input ranking.
type Scored struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Result is one fused entry. For weighted fusion the per-signal scores are
// the normalised inputs; for reciprocal rank fusion they are the per-signal
// 1/(k+rank) contributions. Ranks are 1-based, 0 means the document was
// absent from that signal.
type Result struct {
	ID            int     `json:"id"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordRank   int     `json:"keyword_rank,omitempty"`
	SemanticRank  int     `json:"semantic_rank,omitempty"`
	FusedScore    float64 `json:"fused_score"`
}

// Kind selects a fusion function.
type Kind int

const (
	KindWeighted Kind = iota
	KindReciprocalRank
)

func (k Kind) String() string {
	switch k {
	case KindWeighted:
		return "weighted"
	case KindReciprocalRank:
		return "rrf"
	default:
		return "unknown"
	}
}

// Strategy is a tagged fusion variant. Alpha applies to KindWeighted and K
// to KindReciprocalRank.
type Strategy struct {
	Kind  Kind    `json:"kind"`
	Alpha float64 `json:"alpha,omitempty"`
	K     float64 `json:"k,omitempty"`
}

// WeightedStrategy returns a weighted strategy; alpha=1 is pure lexical.
func WeightedStrategy(alpha float64) Strategy {
	return Strategy{Kind: KindWeighted, Alpha: alpha}
}

// RRFStrategy returns a reciprocal rank strategy with constant k.
func RRFStrategy(k float64) Strategy {
	return Strategy{Kind: KindReciprocalRank, K: k}
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindWeighted:
		return fmt.Sprintf("weighted(alpha=%g)", s.Alpha)
	case KindReciprocalRank:
		return fmt.Sprintf("rrf(k=%g)", s.K)
	default:
		return s.Kind.String()
	}
}

// Validate checks the strategy parameters.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindWeighted:
		return validateAlpha(s.Alpha)
	case KindReciprocalRank:
		return validateK(s.K)
	default:
		return apperrors.InvalidArgumentf("unknown fusion kind %d", int(s.Kind))
	}
}

// Fuse dispatches to the function selected by s.
func Fuse(s Strategy, lexical, semantic []Scored, limit int) ([]Result, error) {
	switch s.Kind {
	case KindWeighted:
		return Weighted(lexical, semantic, s.Alpha, limit)
	case KindReciprocalRank:
		return ReciprocalRank(lexical, semantic, s.K, limit)
	default:
		return nil, apperrors.InvalidArgumentf("unknown fusion kind %d", int(s.Kind))
	}
}

// NormalizeScores min-max scales scores into [0,1]. When every score is
// equal (including a single score) each result is 1. Empty input yields an
// empty slice.
func NormalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	span := hi - lo
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}

// HybridScore blends a keyword and a semantic score.
func HybridScore(keyword, semantic, alpha float64) float64 {
	return alpha*keyword + (1-alpha)*semantic
}

// RRFScore is the contribution of a 1-based rank.
func RRFScore(rank int, k float64) float64 {
	return 1 / (k + float64(rank))
}

// Weighted normalises both lists independently and ranks every document
// in either list by HybridScore. A document absent from a list gets 0 for
// that signal.
func Weighted(lexical, semantic []Scored, alpha float64, limit int) ([]Result, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	acc := newAccumulator(len(lexical) + len(semantic))
	for i, norm := range NormalizeScores(scoresOf(lexical)) {
		r := acc.get(lexical[i].ID)
		if r.KeywordRank == 0 {
			r.KeywordRank = i + 1
			r.KeywordScore = norm
		}
	}
	for i, norm := range NormalizeScores(scoresOf(semantic)) {
		r := acc.get(semantic[i].ID)
		if r.SemanticRank == 0 {
			r.SemanticRank = i + 1
			r.SemanticScore = norm
		}
	}
	for _, r := range acc.byID {
		r.FusedScore = HybridScore(r.KeywordScore, r.SemanticScore, alpha)
	}
	return acc.top(limit), nil
}

// ReciprocalRank sums 1/(k+rank) over the signals in which a document
// appears. Absence from a signal contributes nothing.
func ReciprocalRank(lexical, semantic []Scored, k float64, limit int) ([]Result, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := validateK(k); err != nil {
		return nil, err
	}
	acc := newAccumulator(len(lexical) + len(semantic))
	for i, s := range lexical {
		r := acc.get(s.ID)
		if r.KeywordRank == 0 {
			r.KeywordRank = i + 1
			r.KeywordScore = RRFScore(i+1, k)
		}
	}
	for i, s := range semantic {
		r := acc.get(s.ID)
		if r.SemanticRank == 0 {
			r.SemanticRank = i + 1
			r.SemanticScore = RRFScore(i+1, k)
		}
	}
	for _, r := range acc.byID {
		r.FusedScore = r.KeywordScore + r.SemanticScore
	}
	return acc.top(limit), nil
}

type accumulator struct {
	byID map[int]*Result
}

func newAccumulator(capacity int) *accumulator {
	return &accumulator{byID: make(map[int]*Result, capacity)}
}

func (a *accumulator) get(id int) *Result {
	r, ok := a.byID[id]
	if !ok {
		r = &Result{ID: id}
		a.byID[id] = r
	}
	return r
}

func (a *accumulator) top(limit int) []Result {
	all := make([]Result, 0, len(a.byID))
	for _, r := range a.byID {
		all = append(all, *r)
	}
	return TopK(all, limit)
}

func scoresOf(list []Scored) []float64 {
	out := make([]float64, len(list))
	for i, s := range list {
		out[i] = s.Score
	}
	return out
}

func validateLimit(limit int) error {
	if limit <= 0 {
		return apperrors.InvalidArgumentf("limit must be positive, got %d", limit)
	}
	return nil
}

func validateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return apperrors.InvalidArgumentf("alpha must be within [0,1], got %g", alpha)
	}
	return nil
}

func validateK(k float64) error {
	if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
		return apperrors.InvalidArgumentf("k must be a non-negative number, got %g", k)
	}
	return nil
}
