package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	benchURL         string
	benchN           int
	benchConcurrency int
	benchToken       string
	benchPersona     string
	benchDraft       string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send rewrite requests to a running gateway and report latency",
	Long: `Send --n rewrite requests to --url with --concurrency workers and print
latency percentiles and a breakdown by HTTP status. Run it once against a
gateway in each strategy to compare them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runBench(cmd.Context(), benchOptions{
			URL:         benchURL,
			N:           benchN,
			Concurrency: benchConcurrency,
			Token:       benchToken,
			Persona:     benchPersona,
			Draft:       benchDraft,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.String())
		return nil
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchURL, "url", "http://127.0.0.1:8080", "Gateway base URL")
	benchCmd.Flags().IntVar(&benchN, "n", 200, "Number of requests")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 8, "Concurrent workers")
	benchCmd.Flags().StringVar(&benchToken, "token", "Bearer plan:PROFESSIONAL", "Authorization header value")
	benchCmd.Flags().StringVar(&benchPersona, "persona", "", "Persona id (default persona when empty)")
	benchCmd.Flags().StringVar(&benchDraft, "draft", "send me the report now", "Draft text to rewrite")
}

type benchOptions struct {
	URL         string
	N           int
	Concurrency int
	Token       string
	Persona     string
	Draft       string
	Client      *http.Client
}

type benchResult struct {
	N        int
	Avg      time.Duration
	P50      time.Duration
	P95      time.Duration
	Statuses map[int]int
}

func (r benchResult) String() string {
	codes := make([]int, 0, len(r.Statuses))
	for c := range r.Statuses {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d=%d", c, r.Statuses[c]))
	}
	return fmt.Sprintf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f statuses=[%s]",
		r.N, ms(r.Avg), ms(r.P50), ms(r.P95), strings.Join(parts, " "))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// runBench fails only on transport errors; non-2xx answers are counted.
func runBench(ctx context.Context, opts benchOptions) (benchResult, error) {
	if opts.N <= 0 {
		opts.N = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	body, err := json.Marshal(map[string]string{
		"draftText": opts.Draft,
		"personaId": opts.Persona,
	})
	if err != nil {
		return benchResult{}, err
	}
	endpoint := strings.TrimRight(opts.URL, "/") + "/v1/rewrite"

	var (
		mu        sync.Mutex
		durations = make([]time.Duration, 0, opts.N)
		statuses  = map[int]int{}
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for i := 0; i < opts.N; i++ {
		eg.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", opts.Token)

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request: %w", err)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			took := time.Since(start)

			mu.Lock()
			durations = append(durations, took)
			statuses[resp.StatusCode]++
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return benchResult{}, err
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return benchResult{
		N:        len(durations),
		Avg:      total / time.Duration(len(durations)),
		P50:      durations[len(durations)/2],
		P95:      durations[int(float64(len(durations))*0.95)],
		Statuses: statuses,
	}, nil
}
