package importer

// reconcile.go turns one input row into either an Update Candidate or a
// Failure, never both and never neither.
//
// Reconciliation is a short-circuiting fold over the coercers in a fixed
// field order: the first invalid field fails the row and the remaining
// coercers are skipped. Fields that coerce cleanly are deep-compared
// against the student snapshot after normalization, and only actual
// changes enter the diff. A row whose every field matches the snapshot
// still succeeds, as a candidate with an empty diff.

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Student is the load-time snapshot of one persisted record. The engine
// never mutates it; all writes go through the Store contract.
type Student struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	NationalID   *string
	InstructorID *uuid.UUID
	LessonDay    *int16
	LessonTime   *string
	Active       bool
	Notes        *string
	Phone        *string
	TagIDs       []uuid.UUID
}

// DisplayName returns the student's name for result and failure entries.
func (s Student) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Diff holds the minimal set of changed fields for one row. A nil value
// clears the field.
type Diff map[Field]any

// Candidate is a row that passed per-row validation and awaits the
// batch-level uniqueness checks and the applier.
type Candidate struct {
	Line        int
	StudentID   uuid.UUID
	DisplayName string
	Diff        Diff
	// DesiredNationalID is the row's post-diff identity number: the diff
	// value when the field changed, the stored value otherwise. Empty when
	// the student has none. The uniqueness enforcer groups on it.
	DesiredNationalID string
	// Snapshot is the student as loaded before this run, used by the dry
	// run to expand old values.
	Snapshot Student
}

type reconciler struct {
	students      map[uuid.UUID]Student
	instructors   *instructorCatalog
	tags          *tagResolver
	fieldByColumn map[string]Field
}

// cellFor returns the raw cell for a field, scanning the resolved columns.
// Column resolution rejects duplicate-field headers, so at most one column
// matches. Returns ok=false when no column for the field exists in this row.
func (r *reconciler) cellFor(row Row, field Field) (any, bool) {
	for col, f := range r.fieldByColumn {
		if f != field {
			continue
		}
		if v, ok := row[col]; ok {
			return v, true
		}
	}
	return nil, false
}

// reconcileRow processes the idx-th data row. Line numbers are 1-based and
// account for the header line.
func (r *reconciler) reconcileRow(idx int, row Row) (*Candidate, *Failure) {
	line := idx + 2

	rawID, _ := r.cellFor(row, FieldStudentID)
	token, ok := cellText(rawID)
	if !ok || token == "" {
		return nil, &Failure{
			Line:    line,
			Code:    CodeInvalidStudentID,
			Message: "missing student id",
		}
	}
	id, err := uuid.Parse(token)
	if err != nil {
		return nil, &Failure{
			Line:    line,
			Code:    CodeInvalidStudentID,
			Message: fmt.Sprintf("%q is not a valid student id", token),
		}
	}

	student, ok := r.students[id]
	if !ok {
		return nil, &Failure{
			Line:     line,
			TargetID: id.String(),
			Code:     CodeStudentNotFound,
			Message:  fmt.Sprintf("no student with id %s", id),
		}
	}

	diff := make(Diff)
	for _, field := range reconcileOrder {
		cell, present := r.cellFor(row, field)
		if !present {
			continue
		}
		if fail := r.applyField(student, field, cell, diff); fail != nil {
			fail.Line = line
			fail.TargetID = student.ID.String()
			fail.DisplayName = student.DisplayName()
			return nil, fail
		}
	}

	return &Candidate{
		Line:              line,
		StudentID:         student.ID,
		DisplayName:       student.DisplayName(),
		Diff:              diff,
		DesiredNationalID: desiredNationalID(student, diff),
		Snapshot:          student,
	}, nil
}

// applyField coerces one cell and, when it is provided and differs from
// the snapshot, records the change in diff.
func (r *reconciler) applyField(student Student, field Field, cell any, diff Diff) *Failure {
	var res Coerced
	switch field {
	case FieldNationalID:
		res = coerceNationalID(cell)
	case FieldInstructor:
		res = coerceInstructorRef(cell)
	case FieldLessonDay:
		res = coerceLessonDay(cell)
	case FieldLessonTime:
		res = coerceLessonTime(cell)
	case FieldActive:
		res = coerceActiveFlag(cell, student.Active)
	case FieldTags:
		res = coerceTagNames(cell)
	case FieldNotes, FieldPhone:
		res = coerceOptionalText(cell)
	default:
		return nil
	}

	switch res.State {
	case CellAbsent:
		return nil
	case CellInvalid:
		return &Failure{Code: invalidCodeFor(field), Message: res.Message}
	}

	switch field {
	case FieldNationalID:
		want := res.Value.(string)
		if student.NationalID == nil || *student.NationalID != want {
			diff[field] = want
		}
	case FieldInstructor:
		return r.applyInstructor(student, res, diff)
	case FieldLessonDay:
		if res.Value == nil {
			if student.LessonDay != nil {
				diff[field] = nil
			}
			return nil
		}
		want := res.Value.(int16)
		if student.LessonDay == nil || *student.LessonDay != want {
			diff[field] = want
		}
	case FieldLessonTime:
		if res.Value == nil {
			if student.LessonTime != nil {
				diff[field] = nil
			}
			return nil
		}
		want := res.Value.(string)
		if student.LessonTime == nil || normalizeClock(*student.LessonTime) != want {
			diff[field] = want
		}
	case FieldActive:
		want := res.Value.(bool)
		if student.Active != want {
			diff[field] = want
		}
	case FieldTags:
		return r.applyTags(student, res, diff)
	case FieldNotes:
		applyTextDiff(field, student.Notes, res, diff)
	case FieldPhone:
		applyTextDiff(field, student.Phone, res, diff)
	}
	return nil
}

func (r *reconciler) applyInstructor(student Student, res Coerced, diff Diff) *Failure {
	if res.Value == nil {
		if student.InstructorID != nil {
			diff[FieldInstructor] = nil
		}
		return nil
	}

	token := res.Value.(string)
	in, code := r.instructors.resolve(token)
	switch code {
	case CodeInstructorNotFound:
		return &Failure{
			Code:    code,
			Message: fmt.Sprintf("no instructor matches %q", token),
		}
	case CodeInstructorInactive:
		return &Failure{
			Code: code,
			Message: fmt.Sprintf("instructor %q is inactive; active instructors: %s",
				token, strings.Join(r.instructors.activeNames(), ", ")),
		}
	}

	if student.InstructorID == nil || *student.InstructorID != in.ID {
		diff[FieldInstructor] = in.ID
	}
	return nil
}

func (r *reconciler) applyTags(student Student, res Coerced, diff Diff) *Failure {
	if res.Value == nil {
		if len(student.TagIDs) > 0 {
			diff[FieldTags] = nil
		}
		return nil
	}

	// Catalog resolution collapses duplicate names onto one id. Every name
	// resolves here because unmatched names already aborted the batch.
	names := res.Value.([]string)
	seen := make(map[uuid.UUID]struct{}, len(names))
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id, ok := r.tags.resolve(name)
		if !ok {
			return &Failure{
				Code:    CodeInvalidTags,
				Message: fmt.Sprintf("tag %q matches no catalog tag", name),
			}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sortTagIDs(ids)
	if !sameTagIDs(ids, student.TagIDs) {
		diff[FieldTags] = ids
	}
	return nil
}

// applyTextDiff compares an optional text field. A clear clears any
// non-null stored value, whitespace-only included; trimming applies only
// when comparing real text.
func applyTextDiff(field Field, existing *string, res Coerced, diff Diff) {
	if res.Value == nil {
		if existing != nil {
			diff[field] = nil
		}
		return
	}
	want := res.Value.(string)
	if existing == nil || strings.TrimSpace(*existing) != want {
		diff[field] = want
	}
}

func desiredNationalID(student Student, diff Diff) string {
	if v, ok := diff[FieldNationalID]; ok {
		return v.(string)
	}
	if student.NationalID != nil {
		return *student.NationalID
	}
	return ""
}

func sortTagIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return strings.Compare(ids[i].String(), ids[j].String()) < 0
	})
}

// sameTagIDs compares two tag sets ignoring order.
func sameTagIDs(want, have []uuid.UUID) bool {
	if len(want) != len(have) {
		return false
	}
	haveSorted := append([]uuid.UUID(nil), have...)
	sortTagIDs(haveSorted)
	for i := range want {
		if want[i] != haveSorted[i] {
			return false
		}
	}
	return true
}
