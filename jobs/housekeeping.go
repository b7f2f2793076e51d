// Package jobs runs the background maintenance loops. The only one today is
// the override sweeper, which retires overrides whose window has passed.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/db"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/store"
)

const (
	sweepLockName = "override-housekeeping"
	sweepLockTTL  = 5 * time.Minute

	// SweepActor is the principal stamped on sweep audit records.
	SweepActor = "system:housekeeping"
)

// SweepLock serializes sweeps across instances. A nil lock means run
// unconditionally (tests, single-node deployments).
type SweepLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// RedisSweepLock implements SweepLock on the shared Redis connection.
type RedisSweepLock struct{}

func (RedisSweepLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return db.LockResource(ctx, sweepLockName, ttl)
}

func (RedisSweepLock) Release(ctx context.Context) error {
	return db.UnlockResource(ctx, sweepLockName)
}

// Housekeeper periodically deactivates overrides whose validity window has
// fully passed. The sweep is bookkeeping, not semantics: decisions recompute
// effectiveness from the dates on every read, so an unswept override never
// grants or restricts anything past its window. That is also what makes the
// sweep safe to re-run: the second pass finds nothing active and expired.
type Housekeeper struct {
	overrides    store.OverrideStore
	auditService audit.Service
	stats        *metrics.Collector
	lock         SweepLock
	interval     time.Duration
}

func NewHousekeeper(overrides store.OverrideStore, auditService audit.Service, stats *metrics.Collector, lock SweepLock, interval time.Duration) *Housekeeper {
	return &Housekeeper{
		overrides:    overrides,
		auditService: auditService,
		stats:        stats,
		lock:         lock,
		interval:     interval,
	}
}

// Start launches the ticker loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (h *Housekeeper) Start(ctx context.Context) {
	if h.interval <= 0 {
		logger.Info("Override housekeeping disabled (no interval configured)")
		return
	}
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		logger.Info("Override housekeeping started", zap.Duration("interval", h.interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("Override housekeeping stopped")
				return
			case <-ticker.C:
				if _, err := h.RunOnce(ctx); err != nil {
					logger.Error("Override sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// RunOnce performs a single sweep and returns how many overrides it
// deactivated. Zero on a healthy system that swept recently.
func (h *Housekeeper) RunOnce(ctx context.Context) (int, error) {
	if h.lock != nil {
		locked, err := h.lock.Acquire(ctx, sweepLockTTL)
		if err != nil {
			return 0, err
		}
		if !locked {
			logger.Debug("Override sweep skipped, another instance holds the lock")
			return 0, nil
		}
		defer func() {
			if err := h.lock.Release(ctx); err != nil {
				logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	asOf := start.UTC()

	expired, err := h.overrides.ListExpiredActive(ctx, asOf)
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for _, override := range expired {
		record := sweepRecord(override, asOf)
		if err := h.overrides.DeactivateOverride(ctx, override.ID, record); err != nil {
			logger.Error("Failed to deactivate expired override",
				zap.Error(err),
				zap.String("overrideID", override.ID))
			continue
		}
		h.auditService.Announce(ctx, record)
		deactivated++
	}

	h.stats.RecordSweep(deactivated)
	logger.Info("Override sweep finished",
		zap.Int("expired", len(expired)),
		zap.Int("deactivated", deactivated),
		zap.Duration("duration", time.Since(start)))
	return deactivated, nil
}

func sweepRecord(override *model.PermissionOverride, asOf time.Time) *audit.Record {
	record := &audit.Record{
		Action:       audit.ActionAutoUpdate,
		EmployeeID:   override.EmployeeID,
		ResourceKind: override.ResourceKind,
		ResourceID:   override.ResourceID,
		Details: audit.Details(map[string]interface{}{
			"override_id":     override.ID,
			"reason":          "override window expired",
			"effective_until": model.Day(override.EffectiveUntil).Format("2006-01-02"),
			"swept_at":        asOf,
		}),
		Actor: SweepActor,
	}
	audit.Stamp(record)
	return record
}
