package importer

// unique.go enforces the national-id uniqueness invariant over the batch.
//
// Two passes run after every row has reconciled. The first detects
// collisions between rows of the batch itself; the second issues one
// batched owner query against the store for the values that actually
// changed. Rows failing either pass never reach the applier.
//
// The store check and the subsequent commit are not wrapped in a single
// transaction: a concurrent writer can reintroduce a duplicate between
// the two. The store's unique index is the final arbiter; a conflict at
// commit time surfaces as an update_failed row.

import (
	"context"
	"fmt"
)

// enforceUniqueness filters candidates through both uniqueness passes.
// Returns the surviving candidates and the failures produced. A store
// query error aborts the run; it is infrastructure, not row data.
func enforceUniqueness(ctx context.Context, store Store, candidates []*Candidate) ([]*Candidate, []Failure, error) {
	var failures []Failure

	// Pass 1: intra-batch. Group by desired value; a value claimed by more
	// than one distinct target fails every claiming row. Two rows updating
	// the same student are not a conflict with each other.
	byValue := make(map[string][]*Candidate)
	for _, c := range candidates {
		if c.DesiredNationalID != "" {
			byValue[c.DesiredNationalID] = append(byValue[c.DesiredNationalID], c)
		}
	}

	conflicted := make(map[*Candidate]struct{})
	for value, group := range byValue {
		targets := make(map[string]struct{}, len(group))
		for _, c := range group {
			targets[c.StudentID.String()] = struct{}{}
		}
		if len(targets) < 2 {
			continue
		}
		for _, c := range group {
			conflicted[c] = struct{}{}
			failures = append(failures, Failure{
				Line:        c.Line,
				TargetID:    c.StudentID.String(),
				DisplayName: c.DisplayName,
				Code:        CodeDuplicateInBatch,
				Message:     fmt.Sprintf("national id %s appears on multiple rows in this batch", value),
			})
		}
	}

	survivors := candidates[:0:0]
	for _, c := range candidates {
		if _, bad := conflicted[c]; !bad {
			survivors = append(survivors, c)
		}
	}

	// Pass 2: store-wide, only for rows whose value actually changed.
	var changed []string
	for _, c := range survivors {
		if _, ok := c.Diff[FieldNationalID]; ok {
			changed = append(changed, c.DesiredNationalID)
		}
	}
	if len(changed) == 0 {
		return survivors, failures, nil
	}

	owners, err := store.NationalIDOwners(ctx, changed)
	if err != nil {
		return nil, nil, fmt.Errorf("check national id owners: %w", err)
	}

	kept := survivors[:0:0]
	for _, c := range survivors {
		if _, ok := c.Diff[FieldNationalID]; ok {
			if owner, taken := owners[c.DesiredNationalID]; taken && owner != c.StudentID {
				failures = append(failures, Failure{
					Line:        c.Line,
					TargetID:    c.StudentID.String(),
					DisplayName: c.DisplayName,
					Code:        CodeDuplicateInStore,
					Message:     fmt.Sprintf("national id %s already belongs to another student", c.DesiredNationalID),
				})
				continue
			}
		}
		kept = append(kept, c)
	}

	return kept, failures, nil
}
