package optimizer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/config"
)

// Usage is a single resource sample.
type Usage struct {
	Timestamp   time.Time
	MemoryMB    float64
	CPUPercent  float64
	GPUMemMB    float64
	BatteryPct  float64 // -1 when unavailable
}

// Sampler produces one Usage reading. The default sampler reports process
// memory via runtime.MemStats and leaves CPU/GPU/battery at zero — a real
// deployment wires a platform-specific sampler (e.g. gopsutil) behind the
// same interface; no pack repo vendors one, so this stays the documented
// contract rather than a guess at a concrete metric source.
type Sampler interface {
	Sample() Usage
}

// defaultSampler reports only what the Go runtime can see without a
// platform-specific dependency.
type defaultSampler struct{}

func (defaultSampler) Sample() Usage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Usage{
		Timestamp:  time.Now(),
		MemoryMB:   float64(m.Alloc) / (1024 * 1024),
		CPUPercent: 0,
		GPUMemMB:   0,
		BatteryPct: -1,
	}
}

// ResourceMonitor periodically samples process/system resource usage and
// exposes the latest reading plus constraint-violation checks. Safe for
// concurrent use.
type ResourceMonitor struct {
	sampler  Sampler
	interval time.Duration

	mu      sync.RWMutex
	current Usage

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewResourceMonitor builds a monitor around sampler (defaultSampler if nil)
// with the given sample interval (5s if <= 0, matching §4.6's default).
func NewResourceMonitor(sampler Sampler, interval time.Duration) *ResourceMonitor {
	if sampler == nil {
		sampler = defaultSampler{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ResourceMonitor{
		sampler:  sampler,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start samples immediately, then on every tick, until ctx is cancelled or
// Stop is called. Safe to call once; a second call is a no-op.
func (m *ResourceMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.current = m.sampler.Sample()
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				u := m.sampler.Sample()
				m.mu.Lock()
				m.current = u
				m.mu.Unlock()
			}
		}
	}()
}

// Stop halts the sampling goroutine and waits for it to exit.
func (m *ResourceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Current returns the most recent sample.
func (m *ResourceMonitor) Current() Usage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CheckConstraints compares the current sample against cfg and returns one
// human-readable violation string per breached limit.
func (m *ResourceMonitor) CheckConstraints(cfg config.ResourceConstraints) []string {
	u := m.Current()
	var violations []string

	if cfg.MaxMemoryMB > 0 && u.MemoryMB > float64(cfg.MaxMemoryMB) {
		violations = append(violations, fmt.Sprintf("memory %.0fMB exceeds limit %dMB", u.MemoryMB, cfg.MaxMemoryMB))
	}
	if cfg.MaxCPUPercent > 0 && u.CPUPercent > cfg.MaxCPUPercent {
		violations = append(violations, fmt.Sprintf("cpu %.1f%% exceeds limit %.1f%%", u.CPUPercent, cfg.MaxCPUPercent))
	}
	if cfg.MaxGPUMemoryMB > 0 && u.GPUMemMB > float64(cfg.MaxGPUMemoryMB) {
		violations = append(violations, fmt.Sprintf("gpu memory %.0fMB exceeds limit %dMB", u.GPUMemMB, cfg.MaxGPUMemoryMB))
	}
	if cfg.BatteryThresholdPct > 0 && u.BatteryPct >= 0 && u.BatteryPct < cfg.BatteryThresholdPct {
		violations = append(violations, fmt.Sprintf("battery %.0f%% below threshold %.0f%%", u.BatteryPct, cfg.BatteryThresholdPct))
	}
	return violations
}
