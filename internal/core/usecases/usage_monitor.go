package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/metrics"
)

// UsageStorageKey is the KV key holding the serialised counters.
const UsageStorageKey = "api_usage_counters"

const (
	resetWindow          = 24 * time.Hour
	defaultWarnRatio     = 0.8
	defaultCheckInterval = time.Hour
	sideEffectTimeout    = 5 * time.Second
)

// UsageMonitor counts billable upstream calls per category against daily limits.
// Counter mutations are serialised by mu. Writes to the store are serialised by
// persistMu and ordered by seq so a slow older snapshot never overwrites a newer one.
type UsageMonitor struct {
	store         ports.KVStore
	alerter       ports.UsageAlerter
	limits        domain.DailyLimits
	warnRatio     float64
	checkInterval time.Duration
	now           func() time.Time
	log           *slog.Logger

	mu       sync.Mutex
	counters domain.UsageCounters
	seq      uint64

	persistMu    sync.Mutex
	persistedSeq uint64
}

// UsageOption configures a UsageMonitor.
type UsageOption func(*UsageMonitor)

func WithUsageClock(now func() time.Time) UsageOption {
	return func(m *UsageMonitor) { m.now = now }
}

func WithUsageAlerter(a ports.UsageAlerter) UsageOption {
	return func(m *UsageMonitor) { m.alerter = a }
}

func WithWarnRatio(r float64) UsageOption {
	return func(m *UsageMonitor) {
		if r > 0 && r <= 1 {
			m.warnRatio = r
		}
	}
}

func WithCheckInterval(d time.Duration) UsageOption {
	return func(m *UsageMonitor) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

func WithUsageLogger(l *slog.Logger) UsageOption {
	return func(m *UsageMonitor) { m.log = l }
}

// NewUsageMonitor creates a monitor and loads any persisted counters.
// Load failures fall back to zero counters and are only logged.
func NewUsageMonitor(ctx context.Context, store ports.KVStore, limits domain.DailyLimits, opts ...UsageOption) *UsageMonitor {
	m := &UsageMonitor{
		store:         store,
		limits:        make(domain.DailyLimits, len(limits)),
		warnRatio:     defaultWarnRatio,
		checkInterval: defaultCheckInterval,
		now:           time.Now,
		log:           slog.Default(),
	}
	for k, v := range limits {
		m.limits[k] = v
	}
	for _, opt := range opts {
		opt(m)
	}

	m.counters = m.load(ctx)
	for category, count := range m.counters.Counts {
		metrics.UsageCount.WithLabelValues(category).Set(float64(count))
	}
	return m
}

func (m *UsageMonitor) load(ctx context.Context) domain.UsageCounters {
	fresh := domain.UsageCounters{Counts: map[string]int{}, LastReset: m.now()}
	if m.store == nil {
		return fresh
	}

	data, err := m.store.Get(ctx, UsageStorageKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.log.Warn("load usage counters failed, starting from zero", "error", err)
		}
		return fresh
	}

	var counters domain.UsageCounters
	if err := json.Unmarshal(data, &counters); err != nil {
		m.log.Warn("decode usage counters failed, starting from zero", "error", err)
		return fresh
	}
	if counters.LastReset.IsZero() {
		counters.LastReset = m.now()
	}
	return counters
}

// TrackRequest counts one call in category and returns the post-increment snapshot.
// Crossing the warning share of the limit is reported, never returned as an error.
// Persistence and alerts run after the counters are unlocked and are bounded by
// sideEffectTimeout.
func (m *UsageMonitor) TrackRequest(ctx context.Context, category string) domain.UsageSnapshot {
	m.mu.Lock()
	p := m.checkDailyResetLocked()

	m.counters.Counts[category]++
	m.counters.Total++
	count := m.counters.Counts[category]
	limit := m.limits[category]

	snap := domain.UsageSnapshot{Count: count, Limit: limit, Percentage: percentage(count, limit)}
	metrics.UsageCount.WithLabelValues(category).Set(float64(count))

	if limit > 0 && float64(count) > m.warnRatio*float64(limit) {
		m.warn(category, snap)
		p.events = append(p.events, domain.UsageEvent{
			Type:       domain.UsageEventWarning,
			Category:   category,
			Count:      snap.Count,
			Limit:      snap.Limit,
			Percentage: snap.Percentage,
			At:         m.now(),
		})
	}
	m.snapshotLocked(&p)
	m.mu.Unlock()

	m.flush(ctx, p)
	return snap
}

func (m *UsageMonitor) warn(category string, snap domain.UsageSnapshot) {
	m.log.Warn("api usage approaching daily limit",
		"category", category,
		"count", snap.Count,
		"limit", snap.Limit,
		"percentage", snap.Percentage,
	)
	metrics.QuotaWarnings.WithLabelValues(category).Inc()
}

// ResetCounters zeroes every counter and persists the result.
func (m *UsageMonitor) ResetCounters(ctx context.Context) {
	m.mu.Lock()
	p := m.resetLocked()
	m.snapshotLocked(&p)
	m.mu.Unlock()

	m.flush(ctx, p)
}

// pendingWrite is the state captured under the lock for delivery after it is released.
type pendingWrite struct {
	seq    uint64
	data   []byte
	events []domain.UsageEvent
}

func (m *UsageMonitor) resetLocked() pendingWrite {
	for category := range m.counters.Counts {
		metrics.UsageCount.WithLabelValues(category).Set(0)
	}
	m.counters = domain.UsageCounters{Counts: map[string]int{}, LastReset: m.now()}
	metrics.UsageResets.Inc()
	return pendingWrite{events: []domain.UsageEvent{{Type: domain.UsageEventReset, At: m.counters.LastReset}}}
}

// checkDailyResetLocked zeroes the counters once more than a day has passed.
func (m *UsageMonitor) checkDailyResetLocked() pendingWrite {
	if m.now().Sub(m.counters.LastReset) > resetWindow {
		m.log.Info("daily usage window elapsed, resetting counters", "last_reset", m.counters.LastReset)
		return m.resetLocked()
	}
	return pendingWrite{}
}

func (m *UsageMonitor) snapshotLocked(p *pendingWrite) {
	m.seq++
	p.seq = m.seq
	data, err := json.Marshal(m.counters)
	if err != nil {
		m.log.Error("encode usage counters failed", "error", err)
		return
	}
	p.data = data
}

// flush persists the snapshot and publishes its events. It must not be called
// with m.mu held. Snapshots older than the last one written are dropped.
func (m *UsageMonitor) flush(parent context.Context, p pendingWrite) {
	ctx, cancel := context.WithTimeout(parent, sideEffectTimeout)
	defer cancel()

	if m.store != nil && p.data != nil {
		m.persistMu.Lock()
		if p.seq > m.persistedSeq {
			if err := m.store.Set(ctx, UsageStorageKey, p.data); err != nil {
				m.log.Warn("persist usage counters failed", "error", err)
			} else {
				m.persistedSeq = p.seq
			}
		}
		m.persistMu.Unlock()
	}

	if m.alerter == nil {
		return
	}
	for _, event := range p.events {
		if err := m.alerter.PublishUsageEvent(ctx, event); err != nil {
			m.log.Warn("publish usage event failed", "type", event.Type, "category", event.Category, "error", err)
		}
	}
}

// GetUsageStats returns the current counters. It has no side effects.
func (m *UsageMonitor) GetUsageStats() domain.UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := domain.UsageStats{
		Categories: make(map[string]domain.UsageSnapshot, len(m.limits)),
		Total:      m.counters.Total,
		LastReset:  m.counters.LastReset.Format(time.RFC1123),
	}
	for category, limit := range m.limits {
		count := m.counters.Counts[category]
		stats.Categories[category] = domain.UsageSnapshot{Count: count, Limit: limit, Percentage: percentage(count, limit)}
	}
	for category, count := range m.counters.Counts {
		if _, ok := stats.Categories[category]; !ok {
			stats.Categories[category] = domain.UsageSnapshot{Count: count}
		}
	}
	return stats
}

// Run performs the daily-reset check every interval until ctx is done.
func (m *UsageMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			p := m.checkDailyResetLocked()
			if p.events != nil {
				m.snapshotLocked(&p)
			}
			m.mu.Unlock()

			if p.events != nil {
				m.flush(ctx, p)
			}
		}
	}
}

func percentage(count, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(limit) * 100))
}
