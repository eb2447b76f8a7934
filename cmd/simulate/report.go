package main

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

type opStats struct {
	total, ok, conflict, failed int
	latencies                  []time.Duration
}

type report struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

func newReport() *report {
	return &report{ops: map[string]*opStats{}}
}

// record classifies one call. 409 is an expected outcome under contention.
func (r *report) record(op string, latency time.Duration, status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.ops[op]
	if !ok {
		s = &opStats{}
		r.ops[op] = s
	}
	s.total++
	s.latencies = append(s.latencies, latency)

	switch {
	case err != nil:
		s.failed++
	case status == http.StatusConflict:
		s.conflict++
	case status/100 == 2:
		s.ok++
	default:
		s.failed++
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := len(sorted) * p / 100
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func (r *report) print(w io.Writer, cfg simConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "SIMULATION REPORT  duration=%s workers=%d\n", cfg.Duration, cfg.Workers)
	fmt.Fprintln(w, strings.Repeat("=", 72))

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		s := r.ops[name]
		lat := slices.Clone(s.latencies)
		slices.Sort(lat)

		fmt.Fprintf(w, "%-11s total=%-6d ok=%-6d conflict=%-6d failed=%-6d p50=%s p95=%s max=%s\n",
			name, s.total, s.ok, s.conflict, s.failed,
			percentile(lat, 50).Round(time.Millisecond),
			percentile(lat, 95).Round(time.Millisecond),
			percentile(lat, 100).Round(time.Millisecond))
	}
}
