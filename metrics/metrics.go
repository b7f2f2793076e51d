package metrics

import (
	"sync/atomic"
	"time"
)

// Collector keeps cheap process-local counters for the decision path and its
// operational failure modes. Scrape-friendly via Snapshot.
type Collector struct {
	checksTotal     uint64
	denialsTotal    uint64
	overrideHits    uint64
	auditFailures   uint64
	sweepsTotal     uint64
	sweptOverrides  uint64
	totalDurationMs uint64
}

func New() *Collector {
	return &Collector{}
}

// RecordCheck counts one access decision and its latency.
func (c *Collector) RecordCheck(allowed bool, byOverride bool, duration time.Duration) {
	atomic.AddUint64(&c.checksTotal, 1)
	if !allowed {
		atomic.AddUint64(&c.denialsTotal, 1)
	}
	if byOverride {
		atomic.AddUint64(&c.overrideHits, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordAuditFailure counts an audit append that could not be made durable.
func (c *Collector) RecordAuditFailure() {
	atomic.AddUint64(&c.auditFailures, 1)
}

// RecordSweep counts one housekeeping run and how many overrides it retired.
func (c *Collector) RecordSweep(deactivated int) {
	atomic.AddUint64(&c.sweepsTotal, 1)
	atomic.AddUint64(&c.sweptOverrides, uint64(deactivated))
}

func (c *Collector) Snapshot() map[string]any {
	checks := atomic.LoadUint64(&c.checksTotal)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if checks > 0 {
		avg = float64(totalMs) / float64(checks)
	}
	return map[string]any{
		"checksTotal":        checks,
		"denialsTotal":       atomic.LoadUint64(&c.denialsTotal),
		"overrideHitsTotal":  atomic.LoadUint64(&c.overrideHits),
		"auditFailuresTotal": atomic.LoadUint64(&c.auditFailures),
		"sweepsTotal":        atomic.LoadUint64(&c.sweepsTotal),
		"sweptOverrides":     atomic.LoadUint64(&c.sweptOverrides),
		"avgCheckDurationMs": avg,
	}
}
