package alignment

import (
	"math"
	"testing"
)

func TestTracker_UpdateReturnsDrift(t *testing.T) {
	tr := NewTracker(10)
	got := tr.Update(100, 140)
	if got != 40 {
		t.Errorf("drift: got %v, want 40", got)
	}
	got = tr.Update(200, 180)
	if got != -20 {
		t.Errorf("drift: got %v, want -20", got)
	}
}

func TestTracker_MeanOverWindow(t *testing.T) {
	tr := NewTracker(10)
	if tr.Mean() != 0 {
		t.Errorf("empty mean: got %v, want 0", tr.Mean())
	}
	for _, d := range []float64{10, 20, 30} {
		tr.Update(0, d)
	}
	if math.Abs(tr.Mean()-20) > 1e-9 {
		t.Errorf("mean: got %v, want 20", tr.Mean())
	}
}

func TestTracker_WindowEvictsOldest(t *testing.T) {
	tr := NewTracker(3)
	for _, d := range []float64{100, 1, 2, 3} {
		tr.Update(0, d)
	}
	// 100 fell out of the window; only 1,2,3 remain.
	if math.Abs(tr.Mean()-2) > 1e-9 {
		t.Errorf("mean after eviction: got %v, want 2", tr.Mean())
	}
	if tr.Len() != 3 {
		t.Errorf("window length: got %d, want 3", tr.Len())
	}
}

func TestTracker_MaxAbs(t *testing.T) {
	tr := NewTracker(10)
	if tr.MaxAbs() != 0 {
		t.Errorf("empty max: got %v, want 0", tr.MaxAbs())
	}
	tr.Update(0, -90)
	tr.Update(0, 50)
	if tr.MaxAbs() != 90 {
		t.Errorf("max abs: got %v, want 90", tr.MaxAbs())
	}
}

func TestTracker_WithinBudget(t *testing.T) {
	tr := NewTracker(10)
	tr.Update(0, -60)
	if !tr.WithinBudget(DefaultBudgetMs) {
		t.Error("|mean| 60 should be within the 80ms budget")
	}
	tr.Update(0, -200)
	if tr.WithinBudget(DefaultBudgetMs) {
		t.Errorf("|mean| %v should exceed the 80ms budget", tr.Mean())
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(4)
	for i := 0; i < 6; i++ {
		tr.Update(0, float64(i*10))
	}
	tr.Reset()
	if tr.Mean() != 0 || tr.MaxAbs() != 0 || tr.Len() != 0 {
		t.Errorf("reset tracker should be empty: mean=%v max=%v len=%d", tr.Mean(), tr.MaxAbs(), tr.Len())
	}
	// The ring must behave correctly after reset, including re-eviction.
	for _, d := range []float64{100, 1, 2, 3, 4} {
		tr.Update(0, d)
	}
	if math.Abs(tr.Mean()-2.5) > 1e-9 {
		t.Errorf("mean after reset+refill: got %v, want 2.5", tr.Mean())
	}
}
