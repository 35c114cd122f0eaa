package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultStaticDimensions is used when a non-positive size is requested.
const DefaultStaticDimensions = 256

// StaticEmbedder hashes words and character trigrams into a fixed number of
// signed buckets and L2-normalises the result. It is deterministic, so two
// texts sharing vocabulary land close together without any model.
type StaticEmbedder struct {
	dims int
}

// NewStaticEmbedder creates a hashing embedder producing dims-sized vectors.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

func (e *StaticEmbedder) ModelName() string { return "static-hash" }

func (e *StaticEmbedder) Dimensions() int { return e.dims }

// Embed never fails except on a cancelled context.
func (e *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		e.add(vec, "w:"+w, 1.0)
		padded := []rune("^" + w + "$")
		for j := 0; j+3 <= len(padded); j++ {
			e.add(vec, "g:"+string(padded[j:j+3]), 0.5)
		}
	}
	normalize(vec)
	return vec
}

func (e *StaticEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}
