package records

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks validation performance metrics using lock-free atomic
// operations. All methods are safe for concurrent use.
type Metrics struct {
	// Validation counts
	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64

	// Timing (stored as nanoseconds)
	validationTimeTotal atomic.Uint64
	validationTimeMin   atomic.Uint64
	validationTimeMax   atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Issue counts by severity
	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	// Per-aspect timing
	aspectTiming sync.Map // map[Aspect]*aspectMetrics
}

// aspectMetrics tracks metrics for a single validation aspect.
type aspectMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	issuesFound atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.validationTimeMin.Store(^uint64(0))
	return m
}

// RecordValidation records a completed validation.
func (m *Metrics) RecordValidation(duration time.Duration, valid bool) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	}

	ns := uint64(duration.Nanoseconds())
	m.validationTimeTotal.Add(ns)

	// Update min (CAS loop)
	for {
		old := m.validationTimeMin.Load()
		if ns >= old {
			break
		}
		if m.validationTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (CAS loop)
	for {
		old := m.validationTimeMax.Load()
		if ns <= old {
			break
		}
		if m.validationTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordAspect records the execution of a single aspect.
func (m *Metrics) RecordAspect(aspect Aspect, duration time.Duration, issues int) {
	v, _ := m.aspectTiming.LoadOrStore(aspect, &aspectMetrics{})
	am := v.(*aspectMetrics)
	am.invocations.Add(1)
	am.totalTime.Add(uint64(duration.Nanoseconds()))
	am.issuesFound.Add(uint64(issues))
}

// RecordIssues records issue counts by severity.
func (m *Metrics) RecordIssues(issues []Issue) {
	for _, issue := range issues {
		switch {
		case issue.IsError():
			m.errorsTotal.Add(1)
		case issue.IsWarning():
			m.warningsTotal.Add(1)
		default:
			m.infosTotal.Add(1)
		}
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// Snapshot holds a point-in-time copy of the metrics.
type Snapshot struct {
	ValidationsTotal uint64
	ValidationsValid uint64

	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	AvgTime   time.Duration

	CacheHits    uint64
	CacheMisses  uint64
	CacheHitRate float64

	ErrorsTotal   uint64
	WarningsTotal uint64
	InfosTotal    uint64

	AspectStats map[Aspect]AspectStats
}

// AspectStats holds per-aspect timing statistics.
type AspectStats struct {
	Invocations uint64
	TotalTime   time.Duration
	AvgTime     time.Duration
	IssuesFound uint64
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.validationsTotal.Load()
	totalTime := m.validationTimeTotal.Load()

	s := Snapshot{
		ValidationsTotal: total,
		ValidationsValid: m.validationsValid.Load(),
		TotalTime:        time.Duration(totalTime),
		MaxTime:          time.Duration(m.validationTimeMax.Load()),
		CacheHits:        m.cacheHits.Load(),
		CacheMisses:      m.cacheMisses.Load(),
		ErrorsTotal:      m.errorsTotal.Load(),
		WarningsTotal:    m.warningsTotal.Load(),
		InfosTotal:       m.infosTotal.Load(),
		AspectStats:      make(map[Aspect]AspectStats),
	}

	if min := m.validationTimeMin.Load(); min != ^uint64(0) {
		s.MinTime = time.Duration(min)
	}
	if total > 0 {
		s.AvgTime = time.Duration(totalTime / total)
	}
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(lookups)
	}

	m.aspectTiming.Range(func(key, value any) bool {
		am := value.(*aspectMetrics)
		stats := AspectStats{
			Invocations: am.invocations.Load(),
			TotalTime:   time.Duration(am.totalTime.Load()),
			IssuesFound: am.issuesFound.Load(),
		}
		if stats.Invocations > 0 {
			stats.AvgTime = stats.TotalTime / time.Duration(stats.Invocations)
		}
		s.AspectStats[key.(Aspect)] = stats
		return true
	})

	return s
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.validationsTotal.Store(0)
	m.validationsValid.Store(0)
	m.validationTimeTotal.Store(0)
	m.validationTimeMin.Store(^uint64(0))
	m.validationTimeMax.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.errorsTotal.Store(0)
	m.warningsTotal.Store(0)
	m.infosTotal.Store(0)
	m.aspectTiming.Range(func(key, _ any) bool {
		m.aspectTiming.Delete(key)
		return true
	})
}
