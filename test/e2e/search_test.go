// Package e2e exercises a running search service over HTTP. Start the
// service (cmd/searcher) with any corpus first; tests skip when it is not
// reachable.
//
// Run with:
//
//	E2E_SEARCHER_URL=http://localhost:8080 go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var client = &http.Client{Timeout: 30 * time.Second}

func searcherURL(t *testing.T) string {
	t.Helper()
	base := os.Getenv("E2E_SEARCHER_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	resp, err := client.Get(base + "/health/live")
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	resp.Body.Close()
	return base
}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

type searchResponse struct {
	Query   string            `json:"query"`
	Mode    string            `json:"mode"`
	Limit   int               `json:"limit"`
	Results []json.RawMessage `json:"results"`
}

func TestHealth(t *testing.T) {
	base := searcherURL(t)
	assert.Equal(t, http.StatusOK, getJSON(t, base+"/health/ready", nil))
}

func TestSearchModes(t *testing.T) {
	base := searcherURL(t)
	q := url.QueryEscape("bear")
	for _, path := range []string{"/api/v1/search", "/api/v1/search/weighted", "/api/v1/search/rrf"} {
		t.Run(path, func(t *testing.T) {
			var resp searchResponse
			status := getJSON(t, fmt.Sprintf("%s%s?q=%s&limit=3", base, path, q), &resp)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, "bear", resp.Query)
			assert.Equal(t, 3, resp.Limit)
			assert.LessOrEqual(t, len(resp.Results), 3)
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	base := searcherURL(t)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/api/v1/search/weighted?q=bear&alpha=2", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/api/v1/search/rrf?q=bear&k=-1", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/api/v1/terms/tf?term=bear", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"/api/v1/documents/-12345", nil))
}

func TestIndexStatsAndReload(t *testing.T) {
	base := searcherURL(t)
	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, base+"/api/v1/index/stats", &stats))
	assert.Greater(t, stats["documents"], 0.0)

	resp, err := client.Post(base+"/api/v1/index/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
