package ui

import (
	"strings"
	"testing"

	"typelift/internal/driver"
)

func TestRowSteps(t *testing.T) {
	tests := []struct {
		name string
		r    row
		want float64
	}{
		{"queued", row{status: driver.StatusQueued}, 0},
		{"parsing", row{status: driver.StatusWorking, stage: driver.StageParse}, 0},
		{"solving", row{status: driver.StatusWorking, stage: driver.StageSolve}, 2},
		{"done", row{status: driver.StatusDone}, 4},
		{"failed counts as finished", row{status: driver.StatusError}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.steps(); got != tt.want {
				t.Errorf("steps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModelFraction(t *testing.T) {
	m := NewModel([]string{"a.ll", "b.ll"})
	if got := m.fraction(); got != 0 {
		t.Fatalf("fresh model fraction = %v", got)
	}

	m.apply(driver.Event{File: "a.ll", Status: driver.StatusDone, Percent: 75})
	m.apply(driver.Event{File: "b.ll", Status: driver.StatusWorking, Stage: driver.StageSolve})

	// a.ll: all 4 steps; b.ll: 2 of 4 → 6/8.
	if got := m.fraction(); got != 0.75 {
		t.Fatalf("fraction = %v, want 0.75", got)
	}
	if m.rows[0].percent != 75 {
		t.Fatalf("coverage not recorded: %+v", m.rows[0])
	}
}

func TestRowAnnotation(t *testing.T) {
	done := row{status: driver.StatusDone, percent: 87.5}
	if got := done.annotation(); got != "87.50% covered" {
		t.Errorf("done annotation = %q", got)
	}
	working := row{status: driver.StatusWorking, stage: driver.StageSeed}
	if got := working.annotation(); got != "seed" {
		t.Errorf("working annotation = %q", got)
	}
}

func TestMiddleTruncate(t *testing.T) {
	if got := middleTruncate("short.ll", 40); got != "short.ll" {
		t.Errorf("short path must be untouched, got %q", got)
	}

	long := "testdata/modules/kernel/drivers/net/ethernet.ll"
	got := middleTruncate(long, 24)
	if len(got) > 24 {
		t.Errorf("truncated to %d runes: %q", len(got), got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("middle ellipsis missing: %q", got)
	}
	if !strings.HasPrefix(long, got[:3]) {
		t.Errorf("head lost: %q", got)
	}
	if !strings.HasSuffix(long, got[len(got)-3:]) {
		t.Errorf("tail lost: %q", got)
	}
}
