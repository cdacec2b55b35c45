package scheduler

import (
	"errors"
	"strings"
	"testing"
)

// travelShape mirrors the travel scenario: two optional analytics feeding an
// optional fusion step, which feeds the required email alongside the hotel search.
func travelShape(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph(t,
		&Task{ID: "hotel", Priority: 3},
		&Task{ID: "fabric", Priority: 3},
		&Task{ID: "genie", Priority: 3},
		&Task{ID: "fusion", Priority: 2, Dependencies: []string{"fabric", "genie"}},
		&Task{ID: "email", Priority: 1, Dependencies: []string{"hotel", "fusion"}},
	)
	g.SetCompletionCriteria(CompletionCriteria{
		Required: []string{"hotel", "email"},
		Optional: []string{"fabric", "genie", "fusion"},
	})
	return g
}

func TestSkipFailedOptional(t *testing.T) {
	g := travelShape(t)
	_ = g.MarkCompleted("hotel", "h")
	_ = g.MarkFailed("fabric", errors.New("fabric down"))
	_ = g.MarkCompleted("genie", "g")

	skipped := g.SkipFailedOptional()
	if got := strings.Join(skipped, ","); got != "fabric,fusion" {
		t.Fatalf("SkipFailedOptional() = %s, want fabric,fusion", got)
	}

	fabric, _ := g.Get("fabric")
	if fabric.Status != TaskSkipped || fabric.Error == nil {
		t.Errorf("fabric = %s/%v, want skipped with original error", fabric.Status, fabric.Error)
	}
	if g.HasFailures() {
		t.Error("HasFailures() should be false after optional failures are skipped")
	}

	ready := ids(g.ReadyAfterBypass())
	if len(ready) != 1 || ready[0] != "email" {
		t.Fatalf("ReadyAfterBypass() = %v, want [email]", ready)
	}
	_ = g.MarkCompleted("email", "sent")
	if !g.IsComplete() {
		t.Error("graph should be complete")
	}
	if !g.RequiredSatisfied() {
		t.Error("RequiredSatisfied() = false, want true")
	}
}

func TestSkipFailedOptional_LeavesRequiredPending(t *testing.T) {
	g := newTestGraph(t,
		&Task{ID: "check"},
		&Task{ID: "report", Dependencies: []string{"check"}},
		&Task{ID: "audit", Dependencies: []string{"check"}},
	)
	g.SetCompletionCriteria(CompletionCriteria{
		Required: []string{"check", "audit"},
		Optional: []string{"report"},
	})
	_ = g.MarkFailed("check", errors.New("bad"))

	skipped := g.SkipFailedOptional()
	if len(skipped) != 1 || skipped[0] != "report" {
		t.Errorf("SkipFailedOptional() = %v, want [report]", skipped)
	}

	audit, _ := g.Get("audit")
	if audit.Status != TaskPending {
		t.Errorf("audit status = %s, want pending", audit.Status)
	}
	if got := g.FailedRequired(); len(got) != 1 || got[0] != "check" {
		t.Errorf("FailedRequired() = %v, want [check]", got)
	}
	if got := g.Pending(); len(got) != 1 || got[0] != "audit" {
		t.Errorf("Pending() = %v, want [audit]", got)
	}
}

// An optional validator failing does not block a sibling that never depended on it.
func TestOptionalSiblingDoesNotBlock(t *testing.T) {
	g := newTestGraph(t,
		&Task{ID: "hotels", Priority: 3},
		&Task{ID: "hotspots", Priority: 2, Dependencies: []string{"hotels"}},
		&Task{ID: "validate", Priority: 2, Dependencies: []string{"hotspots"}},
		&Task{ID: "package", Priority: 1, Dependencies: []string{"hotels", "hotspots"}},
	)
	g.SetCompletionCriteria(CompletionCriteria{
		Required: []string{"hotels", "hotspots", "package"},
		Optional: []string{"validate"},
	})

	_ = g.MarkCompleted("hotels", nil)
	_ = g.MarkCompleted("hotspots", nil)
	_ = g.MarkFailed("validate", errors.New("genie timeout"))

	if got := ids(g.Ready()); len(got) != 1 || got[0] != "package" {
		t.Fatalf("Ready() = %v, want [package]", got)
	}
	g.SkipFailedOptional()
	_ = g.MarkCompleted("package", nil)
	if !g.IsComplete() {
		t.Error("graph should be complete")
	}
}

func TestProgress(t *testing.T) {
	g := travelShape(t)
	_ = g.MarkCompleted("hotel", nil)
	_ = g.MarkInProgress("fabric")
	_ = g.MarkFailed("genie", errors.New("x"))

	p := g.Progress()
	want := Progress{Total: 5, Pending: 2, InProgress: 1, Completed: 1, Failed: 1}
	if p != want {
		t.Errorf("Progress() = %+v, want %+v", p, want)
	}
	if p.Done() != 2 {
		t.Errorf("Done() = %d, want 2", p.Done())
	}
}
