package importer

// apply.go executes the surviving candidate set in one of two modes.
//
// Both modes consume the same candidate slice, computed once, so a preview
// and a commit over the same input and store state can never diverge. The
// commit issues sequential, independent per-row updates: a failed write
// converts that one row to a failure and the rest continue, with no
// rollback of rows already written. Partial success with per-row reporting
// is part of the caller contract.

import (
	"context"
	"fmt"
)

// previewCandidates expands each candidate's diff into before/after pairs
// against the load-time snapshot, without touching the store.
func previewCandidates(candidates []*Candidate) []RowPreview {
	previews := make([]RowPreview, 0, len(candidates))
	for _, c := range candidates {
		changes := make(map[string]FieldChange, len(c.Diff))
		for field, newVal := range c.Diff {
			changes[field.String()] = FieldChange{
				Old: snapshotValue(c.Snapshot, field),
				New: newVal,
			}
		}
		previews = append(previews, RowPreview{
			TargetID:    c.StudentID.String(),
			DisplayName: c.DisplayName,
			Line:        c.Line,
			Changes:     changes,
			HasChanges:  len(changes) > 0,
		})
	}
	return previews
}

// commitCandidates persists each candidate independently, stamping the
// actor's provenance on every written row. Rows with an empty diff are
// reported as updated without a store call.
func commitCandidates(ctx context.Context, store Store, candidates []*Candidate, prov Provenance) ([]UpdatedRow, []Failure) {
	var updated []UpdatedRow
	var failures []Failure

	for _, c := range candidates {
		if len(c.Diff) > 0 {
			if err := store.UpdateStudent(ctx, c.StudentID, c.Diff, prov); err != nil {
				failures = append(failures, Failure{
					Line:        c.Line,
					TargetID:    c.StudentID.String(),
					DisplayName: c.DisplayName,
					Code:        CodeUpdateFailed,
					Message:     fmt.Sprintf("update failed: %v", err),
				})
				continue
			}
		}
		updated = append(updated, UpdatedRow{
			TargetID:      c.StudentID.String(),
			DisplayName:   c.DisplayName,
			ChangedFields: changedFieldNames(c.Diff),
		})
	}

	return updated, failures
}

// snapshotValue extracts a field's pre-run value in the same normalized
// shape the diff uses, so old and new in a preview are directly comparable.
func snapshotValue(s Student, field Field) any {
	switch field {
	case FieldNationalID:
		return derefOrNil(s.NationalID)
	case FieldInstructor:
		if s.InstructorID == nil {
			return nil
		}
		return *s.InstructorID
	case FieldLessonDay:
		if s.LessonDay == nil {
			return nil
		}
		return *s.LessonDay
	case FieldLessonTime:
		if s.LessonTime == nil {
			return nil
		}
		return normalizeClock(*s.LessonTime)
	case FieldActive:
		return s.Active
	case FieldTags:
		if len(s.TagIDs) == 0 {
			return nil
		}
		return s.TagIDs
	case FieldNotes:
		return derefOrNil(s.Notes)
	case FieldPhone:
		return derefOrNil(s.Phone)
	default:
		return nil
	}
}

func derefOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
