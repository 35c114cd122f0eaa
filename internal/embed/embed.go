// Package embed turns text into dense vectors. Providers are an
// OpenAI-compatible HTTP endpoint and a deterministic hashing embedder
// that needs no network; either can be wrapped in a vector cache.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Embedder maps each input text to one vector of Dimensions() floats.
// The returned slice is parallel to texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

// NewProvider builds the configured provider without caching. opts only
// apply to the openai provider.
func NewProvider(cfg config.EmbeddingsConfig, opts ...OpenAIOption) (Embedder, error) {
	switch cfg.Provider {
	case "", "static":
		return NewStaticEmbedder(cfg.Dimensions), nil
	case "openai":
		return NewOpenAIEmbedder(cfg, opts...)
	default:
		return nil, apperrors.InvalidArgumentf("unknown embeddings provider %q", cfg.Provider)
	}
}

// NewFromConfig builds the configured provider. When cache is non-nil the
// provider is wrapped in a CachedEmbedder.
func NewFromConfig(cfg config.EmbeddingsConfig, cache Cache, opts ...CachedOption) (Embedder, error) {
	base, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("embedder configured", "provider", cfg.Provider, "model", base.ModelName(), "dimensions", base.Dimensions(), "cached", cache != nil)
	if cache == nil {
		return base, nil
	}
	return NewCachedEmbedder(base, cache, opts...), nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder %s returned %d vectors for 1 input", e.ModelName(), len(vecs))
	}
	return vecs[0], nil
}
