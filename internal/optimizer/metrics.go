// Package optimizer implements the metrics collector, resource monitor, and
// adaptive optimizer (§4.6): the pieces that watch how LOCAL/API/PARALLEL/
// STAGED turns actually perform and feed that back into the router's
// preferences.
package optimizer

import (
	"slices"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/state"
)

// PerformanceMetric is one recorded request outcome, §3 "Metrics".
type PerformanceMetric struct {
	Timestamp    time.Time
	Path         state.Path
	RequestID    string
	LatencyMs    float64
	Tokens       int
	MemoryMB     float64
	CPUPercent   float64
	GPUMemMB     float64
	QualityScore *float64
	CostEstimate float64
	Success      bool
	ErrorKind    state.ErrorKind
}

// Summary is the aggregate view [Collector.Summary] returns.
type Summary struct {
	Count           int
	SuccessRate     float64
	MeanLatencyMs   float64
	MinLatencyMs    float64
	MaxLatencyMs    float64
	MeanQuality     float64
	MeanCost        float64
	ErrorRateByKind map[state.ErrorKind]float64
}

// ring is a fixed-capacity ring buffer of PerformanceMetric, the same
// overwrite-oldest-slot shape as the teacher's tool-latency rolling window,
// generalized from int64 latencies to full metric records so the summary can
// report quality/cost/error-kind breakdowns alongside min/mean/max latency.
type ring struct {
	mu      sync.Mutex
	samples []PerformanceMetric
	pos     int
	count   int
	size    int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 100
	}
	return &ring{samples: make([]PerformanceMetric, size), size: size}
}

func (r *ring) record(m PerformanceMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.pos] = m
	r.pos = (r.pos + 1) % r.size
	r.count++
}

func (r *ring) windowLen() int {
	if r.count >= r.size {
		return r.size
	}
	return r.count
}

func (r *ring) snapshot() []PerformanceMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.windowLen()
	if n == 0 {
		return nil
	}
	cp := make([]PerformanceMetric, n)
	if r.count >= r.size {
		for i := 0; i < r.size; i++ {
			cp[i] = r.samples[(r.pos+i)%r.size]
		}
	} else {
		copy(cp, r.samples[:n])
	}
	return cp
}

func summarize(samples []PerformanceMetric) Summary {
	s := Summary{ErrorRateByKind: map[state.ErrorKind]float64{}}
	if len(samples) == 0 {
		return s
	}
	s.Count = len(samples)

	latencies := make([]float64, 0, len(samples))
	successes := 0
	qualitySum, qualityN := 0.0, 0
	costSum := 0.0
	errCounts := map[state.ErrorKind]int{}

	for _, m := range samples {
		latencies = append(latencies, m.LatencyMs)
		if m.Success {
			successes++
		} else {
			errCounts[m.ErrorKind]++
		}
		if m.QualityScore != nil {
			qualitySum += *m.QualityScore
			qualityN++
		}
		costSum += m.CostEstimate
	}

	slices.Sort(latencies)
	s.MinLatencyMs = latencies[0]
	s.MaxLatencyMs = latencies[len(latencies)-1]
	sum := 0.0
	for _, l := range latencies {
		sum += l
	}
	s.MeanLatencyMs = sum / float64(len(latencies))
	s.SuccessRate = float64(successes) / float64(len(samples))
	s.MeanCost = costSum / float64(len(samples))
	if qualityN > 0 {
		s.MeanQuality = qualitySum / float64(qualityN)
	}
	for kind, n := range errCounts {
		s.ErrorRateByKind[kind] = float64(n) / float64(len(samples))
	}
	return s
}

// Collector holds one ring buffer per path plus a combined view across all
// paths, with O(1) insertion and bounded memory per §4.6.
type Collector struct {
	size int

	mu    sync.Mutex
	rings map[state.Path]*ring
	all   *ring
}

// NewCollector creates a Collector whose per-path and combined rings each
// hold size samples (default 100 when size <= 0).
func NewCollector(size int) *Collector {
	return &Collector{
		size:  size,
		rings: make(map[state.Path]*ring),
		all:   newRing(size),
	}
}

// Record adds m to both its path-specific ring and the combined ring.
func (c *Collector) Record(m PerformanceMetric) {
	c.mu.Lock()
	r, ok := c.rings[m.Path]
	if !ok {
		r = newRing(c.size)
		c.rings[m.Path] = r
	}
	c.mu.Unlock()

	r.record(m)
	c.all.record(m)
}

// Summary returns the aggregate view for path, or across every path when
// path is nil.
func (c *Collector) Summary(path *state.Path) Summary {
	if path == nil {
		return summarize(c.all.snapshot())
	}
	c.mu.Lock()
	r, ok := c.rings[*path]
	c.mu.Unlock()
	if !ok {
		return summarize(nil)
	}
	return summarize(r.snapshot())
}
