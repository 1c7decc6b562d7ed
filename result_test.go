package records

import (
	"sync"
	"testing"
	"time"
)

func allEnabled() map[Aspect]bool {
	m := make(map[Aspect]bool, len(Aspects))
	for _, a := range Aspects {
		m[a] = true
	}
	return m
}

func TestScore(t *testing.T) {
	tests := []struct {
		errors, warnings, infos int
		want                    int
	}{
		{0, 0, 0, 100},
		{1, 0, 0, 85},
		{0, 1, 0, 95},
		{0, 0, 1, 99},
		{2, 1, 3, 62},
		{7, 0, 0, 0},  // floored
		{10, 5, 1, 0}, // floored
	}

	for _, tt := range tests {
		if got := Score(tt.errors, tt.warnings, tt.infos); got != tt.want {
			t.Errorf("Score(%d, %d, %d) = %d; want %d", tt.errors, tt.warnings, tt.infos, got, tt.want)
		}
	}
}

// Adding one error decreases the aspect score by exactly 15 until the floor;
// a warning decreases it by 5.
func TestScore_Monotonicity(t *testing.T) {
	for errors := 0; errors < 6; errors++ {
		diff := Score(errors, 0, 0) - Score(errors+1, 0, 0)
		if diff != 15 {
			t.Errorf("adding error %d changed score by %d; want 15", errors+1, diff)
		}
	}
	for warnings := 0; warnings < 19; warnings++ {
		diff := Score(0, warnings, 0) - Score(0, warnings+1, 0)
		if diff != 5 {
			t.Errorf("adding warning %d changed score by %d; want 5", warnings+1, diff)
		}
	}
}

func TestResult_Finalize(t *testing.T) {
	r := NewResult()
	r.AddIssue(Error(IssueTypeNotFound).Aspect(AspectReference).Build())
	r.AddIssue(Warning(IssueTypeValue).Aspect(AspectMetadata).Build())

	r.Finalize(allEnabled())

	if r.Valid {
		t.Error("result with an error should not be valid")
	}
	if r.Summary.TotalIssues != 2 {
		t.Errorf("TotalIssues = %d; want 2", r.Summary.TotalIssues)
	}

	ref := r.Summary.AspectBreakdown[AspectReference]
	if ref.ErrorCount != 1 || ref.Score != 85 || ref.Passed {
		t.Errorf("reference summary = %+v; want 1 error, score 85, not passed", ref)
	}

	meta := r.Summary.AspectBreakdown[AspectMetadata]
	if meta.WarningCount != 1 || meta.Score != 95 || !meta.Passed {
		t.Errorf("metadata summary = %+v; want 1 warning, score 95, passed", meta)
	}

	structural := r.Summary.AspectBreakdown[AspectStructural]
	if structural.Score != 100 || !structural.Passed {
		t.Errorf("structural summary = %+v; want clean pass", structural)
	}
}

func TestResult_Finalize_DisabledAspect(t *testing.T) {
	enabled := allEnabled()
	enabled[AspectReference] = false

	r := NewResult()
	r.Finalize(enabled)

	if !r.Valid {
		t.Error("clean result should be valid")
	}
	if r.Summary.AspectBreakdown[AspectReference].Enabled {
		t.Error("disabled aspect should be marked Enabled=false")
	}
	if r.Summary.ValidationScore != 100 {
		t.Errorf("ValidationScore = %d; want 100", r.Summary.ValidationScore)
	}
}

func TestResult_Finalize_NoneEnabled(t *testing.T) {
	r := NewResult()
	r.Finalize(map[Aspect]bool{})

	if !r.Valid {
		t.Error("result with no enabled aspects should be valid")
	}
	if r.Summary.ValidationScore != 100 {
		t.Errorf("ValidationScore = %d; want 100", r.Summary.ValidationScore)
	}
}

func TestResult_ConcurrentAddIssue(t *testing.T) {
	r := NewResult()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.AddIssue(Warning(IssueTypeValue).Aspect(AspectMetadata).Build())
			}
		}()
	}
	wg.Wait()

	if len(r.Issues) != 1000 {
		t.Errorf("len(Issues) = %d; want 1000", len(r.Issues))
	}
}

func TestResult_RecordTiming(t *testing.T) {
	r := NewResult()
	r.RecordTiming(AspectStructural, 5*time.Millisecond)

	if d := r.Performance[AspectStructural]; d != 5*time.Millisecond {
		t.Errorf("Performance[structural] = %v; want 5ms", d)
	}
}

func TestResult_Merge(t *testing.T) {
	a := NewResult()
	a.AddIssue(Error(IssueTypeStructure).Aspect(AspectStructural).Build())

	b := NewResult()
	b.AddIssue(Warning(IssueTypeValue).Aspect(AspectMetadata).Build())

	a.Merge(b)
	if len(a.Issues) != 2 {
		t.Errorf("len(Issues) after merge = %d; want 2", len(a.Issues))
	}
}
