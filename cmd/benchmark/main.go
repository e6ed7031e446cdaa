package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"surgrag/config"
	"surgrag/internal/adapter/embedding"
	"surgrag/internal/adapter/recordstore"
	"surgrag/internal/adapter/vectorindex"
	"surgrag/internal/domain"
	"surgrag/internal/usecase"
)

// Self-retrieval benchmark: every sampled report is queried with its own
// procedure type and opening text, and should come back among the top k.
func main() {
	dir := flag.String("dir", ".", "directory holding surgrag.yaml and .surgrag/")
	topK := flag.Int("k", 3, "number of results per query")
	sample := flag.Int("n", 100, "number of reports to sample")
	prefix := flag.Int("prefix", 300, "characters of report text used as the query signal")
	flag.Parse()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	encoder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encoder not available: %v\n", err)
		os.Exit(1)
	}

	st, err := recordstore.OpenSQLite(config.ResolvePath(*dir, cfg.Records.Path), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening report store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	idx, err := vectorindex.Open(cfg.Index, config.ResolvePath(*dir, cfg.Index.Path), encoder, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	if m := vectorindex.MigrationOf(idx); m.NeedsRebuild {
		fmt.Fprintf(os.Stderr, "Index needs rebuild: %s\n", m.Reason)
		os.Exit(1)
	}

	ctx := context.Background()
	records, err := st.ListRecords(ctx, *sample, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing reports: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No reports stored - run 'surgrag import' first")
		os.Exit(1)
	}

	engine := usecase.NewQueryEngine(idx, encoder)
	count, _ := idx.Count(ctx)

	fmt.Println("SELF-RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Indexed reports: %d\n", count)
	fmt.Printf("Model:           %s (%s, %d dims)\n", encoder.ModelName(), cfg.Embedding.Provider, encoder.Dimension())
	fmt.Printf("Backend:         %s\n", cfg.Index.Backend)
	fmt.Printf("Sample:          %d reports, k=%d\n", len(records), *topK)
	fmt.Println()

	var (
		queried   int
		top1, inK int
		latencies []time.Duration
	)
	for _, rec := range records {
		if !rec.Indexable() {
			continue
		}
		query := rec.ProcedureType + ": " + head(rec.Text, *prefix)

		start := time.Now()
		matches, err := engine.RetrieveMatches(ctx, query, *topK, domain.Filters{})
		latencies = append(latencies, time.Since(start))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query for report %d failed: %v\n", rec.ID, err)
			continue
		}
		queried++

		for rank, m := range matches {
			if m.ID != rec.ID {
				continue
			}
			inK++
			if rank == 0 {
				top1++
			}
			break
		}
	}
	if queried == 0 {
		fmt.Fprintln(os.Stderr, "No queries succeeded")
		os.Exit(1)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Top-1 self recall:  %.3f\n", float64(top1)/float64(queried))
	fmt.Printf("  Top-%d self recall:  %.3f\n", *topK, float64(inK)/float64(queried))
	fmt.Printf("  Latency p50:        %s\n", latencies[len(latencies)/2])
	fmt.Printf("  Latency p95:        %s\n", latencies[len(latencies)*95/100])

	recall := float64(inK) / float64(queried)
	if recall > 0.9 {
		fmt.Println("  Status: GOOD - reports retrieve themselves")
	} else if recall > 0.6 {
		fmt.Println("  Status: OK - some reports are crowded out by near duplicates")
	} else {
		fmt.Println("  Status: POOR - check the embedding model or run 'surgrag rebuild'")
	}
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
