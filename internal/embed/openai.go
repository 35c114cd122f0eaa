package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

const maxResponseBytes = 32 << 20

// OpenAIEmbedder calls POST {baseURL}/embeddings on any OpenAI-compatible
// server. Transient failures are retried with backoff and repeated failures
// open a circuit breaker.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// OpenAIOption customises an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client = c }
}

// WithBreaker guards every request with cb.
func WithBreaker(cb *resilience.CircuitBreaker) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.breaker = cb }
}

// WithRetry overrides the backoff policy.
func WithRetry(r resilience.RetryConfig) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		r.Retryable = e.retry.Retryable
		e.retry = r
	}
}

// NewOpenAIEmbedder validates cfg and creates the client.
func NewOpenAIEmbedder(cfg config.EmbeddingsConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, apperrors.InvalidArgumentf("embeddings.model is required for the openai provider")
	}
	if cfg.BaseURL == "" {
		return nil, apperrors.InvalidArgumentf("embeddings.baseUrl is required for the openai provider")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &OpenAIEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		client:  &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    isRetryable,
		},
		logger: slog.Default().With("component", "openai-embedder", "model", cfg.Model),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *OpenAIEmbedder) ModelName() string { return e.model }

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// statusError carries a non-2xx response.
type statusError struct {
	code int
	body string
}

func (s *statusError) Error() string {
	return fmt.Sprintf("embeddings endpoint returned %d: %s", s.code, s.body)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Embed sends all texts in one request. Empty input returns no vectors
// without a network call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts, Dimensions: e.dims})
	if err != nil {
		return nil, fmt.Errorf("encoding embeddings request: %w", err)
	}

	var vecs [][]float32
	call := func() error {
		v, err := e.post(ctx, body, len(texts))
		if err != nil {
			return err
		}
		vecs = v
		return nil
	}
	err = resilience.Retry(ctx, "embed", e.retry, func() error {
		if e.breaker == nil {
			return call()
		}
		return e.breaker.Execute(call)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) post(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading embeddings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
			return nil, resilience.RetryAfter(err, time.Duration(secs)*time.Second)
		}
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decoding embeddings response: %w", err))
	}
	if len(parsed.Data) != want {
		return nil, resilience.Permanent(fmt.Errorf("embeddings response has %d vectors, want %d", len(parsed.Data), want))
	}
	out := make([][]float32, want)
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= want || out[d.Index] != nil {
			return nil, resilience.Permanent(fmt.Errorf("embeddings response has bad index %d", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	e.logger.Debug("embedded batch", "texts", want)
	return out, nil
}
