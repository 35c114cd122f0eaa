package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var endpoints = map[string]string{
	"bm25":     "/api/v1/search",
	"weighted": "/api/v1/search/weighted",
	"rrf":      "/api/v1/search/rrf",
}

var defaultQueries = []string{
	"bear",
	"grizzly bears in alaska",
	"space adventure",
	"a family comedy",
	"haunted house",
	"time travel",
	"heist gone wrong",
	"dinosaurs on an island",
	"boxing underdog",
	"robots and artificial intelligence",
	"shark attack",
	"romantic comedy in paris",
	"superhero origin story",
	"war drama",
	"detective mystery",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Modes       []string
	Queries     []string
}

// modeStats collects outcomes for one endpoint.
type modeStats struct {
	total       atomic.Int64
	success     atomic.Int64
	errors      atomic.Int64
	latencies   []time.Duration
	latenciesMu sync.Mutex
	statusCodes map[int]int64
	statusMu    sync.Mutex
}

func newModeStats() *modeStats {
	return &modeStats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *modeStats) record(duration time.Duration, statusCode int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusMu.Lock()
	s.statusCodes[statusCode]++
	s.statusMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results per query")
	modes := flag.String("modes", "bm25,weighted,rrf", "comma-separated search modes to exercise")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Queries:     defaultQueries,
	}
	for _, m := range strings.Split(*modes, ",") {
		m = strings.TrimSpace(m)
		if _, ok := endpoints[m]; !ok {
			fmt.Fprintf(os.Stderr, "unknown mode %q\n", m)
			os.Exit(2)
		}
		cfg.Modes = append(cfg.Modes, m)
	}
	if *queryFile != "" {
		queries, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(2)
		}
		cfg.Queries = queries
	}

	fmt.Println("=== Hybrid Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Modes:       %s\n", strings.Join(cfg.Modes, ", "))
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(cfg, stats) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

func runLoadTest(cfg Config) map[string]*modeStats {
	stats := make(map[string]*modeStats, len(cfg.Modes))
	for _, m := range cfg.Modes {
		stats[m] = newModeStats()
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				mode := cfg.Modes[i%len(cfg.Modes)]
				query := cfg.Queries[i%len(cfg.Queries)]
				target := fmt.Sprintf("%s%s?q=%s&limit=%d",
					cfg.BaseURL, endpoints[mode], url.QueryEscape(query), cfg.Limit)

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats[mode].record(0, 0, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats[mode].record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[mode].record(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// printReport prints one section per mode and reports whether any request
// completed.
func printReport(cfg Config, stats map[string]*modeStats) bool {
	var grand int64
	for _, mode := range cfg.Modes {
		s := stats[mode]
		total := s.total.Load()
		grand += total
		errCount := s.errors.Load()

		fmt.Printf("=== %s (%s) ===\n", mode, endpoints[mode])
		fmt.Printf("Requests:     %d\n", total)
		fmt.Printf("Successful:   %d\n", s.success.Load())
		fmt.Printf("Errors:       %d\n", errCount)
		if total > 0 {
			fmt.Printf("Error Rate:   %.2f%%\n", float64(errCount)/float64(total)*100)
			fmt.Printf("Requests/sec: %.2f\n", float64(total)/cfg.Duration.Seconds())
		}

		s.latenciesMu.Lock()
		latencies := append([]time.Duration(nil), s.latencies...)
		s.latenciesMu.Unlock()
		if len(latencies) > 0 {
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			fmt.Printf("Latency:      min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s\n",
				latencies[0],
				sum/time.Duration(len(latencies)),
				percentile(latencies, 50),
				percentile(latencies, 95),
				percentile(latencies, 99),
				latencies[len(latencies)-1],
			)
		}

		s.statusMu.Lock()
		codes := make([]int, 0, len(s.statusCodes))
		for code := range s.statusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Printf("  %d: %d\n", code, s.statusCodes[code])
		}
		s.statusMu.Unlock()
		fmt.Println()
	}
	return grand > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
