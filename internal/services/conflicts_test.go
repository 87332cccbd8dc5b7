package services

import (
	"context"
	"testing"

	"ecodash/internal/core"
)

func TestFindConflicts(t *testing.T) {
	src := newFakeSource()
	src.existing[core.ExpenditureKey{Company: "ACME", Year: 2023, TypeID: "cos"}] = true
	c := NewDuplicateChecker(src, ProbeFailOpen)

	got := c.FindConflicts(context.Background(), "ACME", 2023, []core.ExpenditureType{typeCoS, typeGA})
	if len(got) != 1 || got[0].ID != "cos" {
		t.Fatalf("expected [cos], got %v", got)
	}
	if probes, _ := src.calls(); probes != 2 {
		t.Fatalf("expected one probe per candidate, got %d", probes)
	}

	got = c.FindConflicts(context.Background(), "ACME", 2024, []core.ExpenditureType{typeCoS, typeGA})
	if len(got) != 0 {
		t.Fatalf("expected no conflicts, got %v", got)
	}
}

func TestFindConflictsProbePolicy(t *testing.T) {
	src := newFakeSource()
	src.probeErr["ga"] = errBoom
	src.existing[core.ExpenditureKey{Company: "ACME", Year: 2023, TypeID: "cos"}] = true

	open := NewDuplicateChecker(src, ProbeFailOpen)
	if got := open.FindConflicts(context.Background(), "ACME", 2023, []core.ExpenditureType{typeCoS, typeGA}); len(got) != 1 {
		t.Fatalf("fail-open: expected only cos, got %v", got)
	}

	closed := NewDuplicateChecker(src, ProbeFailClosed)
	got := closed.FindConflicts(context.Background(), "ACME", 2023, []core.ExpenditureType{typeCoS, typeGA})
	if len(got) != 2 || got[0].ID != "cos" || got[1].ID != "ga" {
		t.Fatalf("fail-closed: expected [cos ga] in candidate order, got %v", got)
	}
}

func TestNewDuplicateCheckerDefaultsPolicy(t *testing.T) {
	c := NewDuplicateChecker(newFakeSource(), "whatever")
	if c.policy != ProbeFailOpen {
		t.Fatalf("expected fail-open default, got %s", c.policy)
	}
}

func TestConflictNames(t *testing.T) {
	got := ConflictNames([]core.ExpenditureType{typeCoS, {ID: "x"}})
	if got != "Cost of Sales, x" {
		t.Fatalf("unexpected %q", got)
	}
}
