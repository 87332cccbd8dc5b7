package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ecodash/internal/core"
	"ecodash/internal/source"
)

// ProbePolicy decides what a failed existence probe means.
type ProbePolicy string

const (
	// ProbeFailOpen treats a failed probe as "no conflict".
	ProbeFailOpen ProbePolicy = "fail-open"
	// ProbeFailClosed treats a failed probe as a conflict, forcing confirmation.
	ProbeFailClosed ProbePolicy = "fail-closed"
)

func (p ProbePolicy) IsValid() bool {
	return p == ProbeFailOpen || p == ProbeFailClosed
}

// DuplicateChecker asks the Record Source which candidate types already have
// a row for a (company, year) before a create.
type DuplicateChecker struct {
	probe  source.ExistenceChecker
	policy ProbePolicy
}

func NewDuplicateChecker(probe source.ExistenceChecker, policy ProbePolicy) *DuplicateChecker {
	if !policy.IsValid() {
		policy = ProbeFailOpen
	}
	return &DuplicateChecker{probe: probe, policy: policy}
}

// FindConflicts probes every candidate concurrently and returns those that
// exist, in candidate order. The check is advisory: another writer can still
// create the row between the probe and the write.
func (c *DuplicateChecker) FindConflicts(ctx context.Context, company string, year int, candidates []core.ExpenditureType) []core.ExpenditureType {
	found := make([]bool, len(candidates))

	var g errgroup.Group
	for i, t := range candidates {
		g.Go(func() error {
			key := core.ExpenditureKey{Company: company, Year: year, TypeID: t.ID}
			exists, err := c.probe.ExpenditureExists(ctx, key)
			if err != nil {
				slog.WarnContext(ctx, "Existence probe failed",
					"company", company,
					"year", year,
					"type_id", t.ID,
					"policy", string(c.policy),
					"error", err)
				found[i] = c.policy == ProbeFailClosed
				return nil
			}
			found[i] = exists
			return nil
		})
	}
	_ = g.Wait()

	var conflicts []core.ExpenditureType
	for i, hit := range found {
		if hit {
			conflicts = append(conflicts, candidates[i])
		}
	}
	return conflicts
}

// ConflictNames joins display names for a confirmation prompt.
func ConflictNames(types []core.ExpenditureType) string {
	var s string
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		name := t.Name
		if name == "" {
			name = t.ID
		}
		s += name
	}
	return s
}

func conflictMessage(company string, year int, types []core.ExpenditureType) string {
	return fmt.Sprintf("Records already exist for %s %d: %s. Overwrite?", company, year, ConflictNames(types))
}
