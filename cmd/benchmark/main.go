package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pubsearch/config"
	"pubsearch/internal/adapter/embedding"
	"pubsearch/internal/adapter/retriever"
	"pubsearch/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding pubsearch.yaml and the data dir")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	runs := flag.Int("n", 50, "Number of timed runs")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"query\" [-k 5] [-n 50]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index load time and size")
		fmt.Println("  2. Embedding and search latency (p50, p95, max)")
		fmt.Println("  3. Top results with distances")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(*dir, cfg.DataDir)
	}

	ctx := context.Background()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	loadStart := time.Now()
	corpus, err := usecase.NewCorpusLoader(cfg, nil).Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index: %v\n", err)
		os.Exit(1)
	}
	loadTime := time.Since(loadStart)

	// No cache: every run pays for embedding and the scan.
	r, err := retriever.NewSemanticRetriever(embedder, corpus, retriever.Options{
		MinK: cfg.Retrieve.MinK,
		MaxK: cfg.Retrieve.MaxK,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	h := corpus.Health()
	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Build:        %s\n", h.BuildID)
	fmt.Printf("Chunks:       %d\n", h.Chunks)
	fmt.Printf("Publications: %d\n", h.Publications)
	fmt.Printf("Model:        %s (%s, dim %d)\n", h.Model, cfg.Embedding.Provider, h.Dimension)
	fmt.Printf("Load time:    %s\n", loadTime.Round(time.Millisecond))
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	embedTimes := make([]time.Duration, 0, *runs)
	searchTimes := make([]time.Duration, 0, *runs)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := embedder.Embed(ctx, []string{*query}); err != nil {
			fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
			os.Exit(1)
		}
		embedTimes = append(embedTimes, time.Since(start))

		start = time.Now()
		if _, err := r.Search(ctx, *query, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		searchTimes = append(searchTimes, time.Since(start))
	}

	results, err := r.Search(ctx, *query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d matches (lower distance is closer):\n\n", len(results))
	for i, res := range results {
		preview := truncate(strings.ReplaceAll(res.Excerpt, "\n", " "), 150)
		fmt.Printf("%d. [%.4f] %s %s: %s\n", i+1, res.Score, res.PubID, res.Section, res.PubTitle)
		fmt.Printf("   %s\n\n", preview)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("LATENCY over %d runs:\n", *runs)
	printLatency("embed query", embedTimes)
	printLatency("search total", searchTimes)
}

// truncate cuts s to at most n characters, never inside a UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func printLatency(label string, times []time.Duration) {
	if len(times) == 0 {
		return
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	p := func(q float64) time.Duration {
		return times[int(q*float64(len(times)-1))]
	}
	fmt.Printf("  %-13s p50 %-10s p95 %-10s max %s\n", label+":",
		p(0.50).Round(time.Microsecond), p(0.95).Round(time.Microsecond), times[len(times)-1].Round(time.Microsecond))
}
