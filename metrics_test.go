package records

import (
	"sync"
	"testing"
	"time"
)

func TestMetrics_RecordValidation(t *testing.T) {
	m := NewMetrics()

	m.RecordValidation(10*time.Millisecond, true)
	m.RecordValidation(20*time.Millisecond, false)
	m.RecordValidation(5*time.Millisecond, true)

	s := m.Snapshot()
	if s.ValidationsTotal != 3 {
		t.Errorf("ValidationsTotal = %d; want 3", s.ValidationsTotal)
	}
	if s.ValidationsValid != 2 {
		t.Errorf("ValidationsValid = %d; want 2", s.ValidationsValid)
	}
	if s.MinTime != 5*time.Millisecond {
		t.Errorf("MinTime = %v; want 5ms", s.MinTime)
	}
	if s.MaxTime != 20*time.Millisecond {
		t.Errorf("MaxTime = %v; want 20ms", s.MaxTime)
	}
}

func TestMetrics_RecordAspect(t *testing.T) {
	m := NewMetrics()

	m.RecordAspect(AspectReference, 4*time.Millisecond, 2)
	m.RecordAspect(AspectReference, 6*time.Millisecond, 1)

	s := m.Snapshot()
	stats := s.AspectStats[AspectReference]
	if stats.Invocations != 2 {
		t.Errorf("Invocations = %d; want 2", stats.Invocations)
	}
	if stats.IssuesFound != 3 {
		t.Errorf("IssuesFound = %d; want 3", stats.IssuesFound)
	}
	if stats.AvgTime != 5*time.Millisecond {
		t.Errorf("AvgTime = %v; want 5ms", stats.AvgTime)
	}
}

func TestMetrics_CacheHitRate(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	s := m.Snapshot()
	if s.CacheHitRate != 0.75 {
		t.Errorf("CacheHitRate = %f; want 0.75", s.CacheHitRate)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordValidation(time.Millisecond, true)
				m.RecordAspect(AspectStructural, time.Millisecond, 0)
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.ValidationsTotal != 800 {
		t.Errorf("ValidationsTotal = %d; want 800", s.ValidationsTotal)
	}
	if s.AspectStats[AspectStructural].Invocations != 800 {
		t.Errorf("Invocations = %d; want 800", s.AspectStats[AspectStructural].Invocations)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordValidation(time.Millisecond, true)
	m.Reset()

	s := m.Snapshot()
	if s.ValidationsTotal != 0 {
		t.Errorf("ValidationsTotal after reset = %d; want 0", s.ValidationsTotal)
	}
	if s.MinTime != 0 {
		t.Errorf("MinTime after reset = %v; want 0", s.MinTime)
	}
}
