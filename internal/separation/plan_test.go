package separation

import (
	"math"
	"testing"
)

func TestPlanSingleChunkCoversWholeInput(t *testing.T) {
	plan := Plan(100, 1, 0.5)
	if len(plan) != 1 {
		t.Fatalf("len = %d, want 1", len(plan))
	}
	span := plan[0]
	if span.Start != 0 || span.Duration != 100 {
		t.Fatalf("span = %+v", span)
	}
	if span.HeadTrim != 0 || span.TailTrim != 0 {
		t.Fatalf("single chunk should carry no trims: %+v", span)
	}
}

func TestPlanOverlapAndTrims(t *testing.T) {
	const (
		duration = 100.0
		overlap  = 0.5
	)
	plan := Plan(duration, 4, overlap)
	if len(plan) != 4 {
		t.Fatalf("len = %d, want 4", len(plan))
	}

	first := plan[0]
	if first.Start != 0 || first.HeadTrim != 0 {
		t.Fatalf("first span should start clean: %+v", first)
	}
	if first.TailTrim != overlap {
		t.Fatalf("first span tail trim = %v", first.TailTrim)
	}

	last := plan[3]
	if last.TailTrim != 0 {
		t.Fatalf("last span should end clean: %+v", last)
	}
	if last.HeadTrim != overlap {
		t.Fatalf("last span head trim = %v", last.HeadTrim)
	}

	// After trimming overlaps, spans must tile the input exactly.
	covered := 0.0
	for i, span := range plan {
		effectiveStart := span.Start + span.HeadTrim
		effectiveEnd := span.Start + span.Duration - span.TailTrim
		wantStart := float64(i) * duration / 4
		wantEnd := float64(i+1) * duration / 4
		if math.Abs(effectiveStart-wantStart) > 1e-9 {
			t.Fatalf("span %d effective start = %v, want %v", i, effectiveStart, wantStart)
		}
		if math.Abs(effectiveEnd-wantEnd) > 1e-9 {
			t.Fatalf("span %d effective end = %v, want %v", i, effectiveEnd, wantEnd)
		}
		covered += effectiveEnd - effectiveStart
	}
	if math.Abs(covered-duration) > 1e-9 {
		t.Fatalf("covered = %v, want %v", covered, duration)
	}
}

func TestPlanClampsToInputBounds(t *testing.T) {
	plan := Plan(1.0, 8, 0.5)
	for i, span := range plan {
		if span.Start < 0 {
			t.Fatalf("span %d starts before input: %+v", i, span)
		}
		if span.Start+span.Duration > 1.0+1e-9 && span.Duration != 0.001 {
			t.Fatalf("span %d ends past input: %+v", i, span)
		}
		if span.Duration < 0.001 {
			t.Fatalf("span %d shorter than floor: %+v", i, span)
		}
	}
}

func TestPlanNormalizesChunkCount(t *testing.T) {
	plan := Plan(10, 0, 0)
	if len(plan) != 1 {
		t.Fatalf("len = %d, want 1", len(plan))
	}
}
