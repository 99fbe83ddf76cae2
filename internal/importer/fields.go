package importer

// fields.go defines the canonical import fields and the column alias table.
//
// Every header in an uploaded batch must resolve to exactly one canonical
// field through the alias table. Resolution is total: a header that matches
// no alias aborts the whole batch, listing both the offending headers and
// the accepted ones, so a caller can fix the file in one round trip.

import (
	"sort"
	"strings"
)

// Field identifies one canonical student field addressable by an import column.
type Field int

const (
	FieldStudentID Field = iota
	FieldNationalID
	FieldInstructor
	FieldLessonDay
	FieldLessonTime
	FieldActive
	FieldTags
	FieldNotes
	FieldPhone
)

// String returns the canonical key used in diffs and API responses.
func (f Field) String() string {
	switch f {
	case FieldStudentID:
		return "student_id"
	case FieldNationalID:
		return "national_id"
	case FieldInstructor:
		return "instructor"
	case FieldLessonDay:
		return "lesson_day"
	case FieldLessonTime:
		return "lesson_time"
	case FieldActive:
		return "active"
	case FieldTags:
		return "tags"
	case FieldNotes:
		return "notes"
	case FieldPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// reconcileOrder is the fixed order in which coercers run for a row.
// The first invalid field fails the row; later fields are never inspected.
var reconcileOrder = []Field{
	FieldNationalID,
	FieldInstructor,
	FieldLessonDay,
	FieldLessonTime,
	FieldActive,
	FieldTags,
	FieldNotes,
	FieldPhone,
}

// fieldAliases maps each canonical field to its accepted column headers.
// Matching is case-insensitive and ignores underscore/space differences.
var fieldAliases = map[Field][]string{
	FieldStudentID:  {"student id", "student", "id"},
	FieldNationalID: {"national id", "id number", "identity number"},
	FieldInstructor: {"instructor", "instructor name", "teacher"},
	FieldLessonDay:  {"day", "lesson day", "day of week", "weekday"},
	FieldLessonTime: {"time", "lesson time", "start time"},
	FieldActive:     {"active", "is active", "enabled"},
	FieldTags:       {"tags", "tag", "labels"},
	FieldNotes:      {"notes", "comments", "remarks"},
	FieldPhone:      {"phone", "phone number", "mobile"},
}

// aliasIndex is the reverse lookup, built once from fieldAliases.
var aliasIndex = func() map[string]Field {
	idx := make(map[string]Field)
	for field, aliases := range fieldAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	return idx
}()

// normalizeHeader canonicalizes a column header for alias lookup:
// lowercased, underscores treated as spaces, runs of whitespace collapsed.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.ReplaceAll(h, "_", " "))
	return strings.Join(strings.Fields(h), " ")
}

// resolveColumns maps every input header to its canonical field.
//
// The returned map is keyed by the raw header exactly as it appears in the
// input, since row cells are keyed the same way. An unrecognized header, a
// missing student-id column, or two headers feeding the same field all
// abort the batch; duplicate-field headers would otherwise make the cell
// chosen for that field arbitrary.
func resolveColumns(columns []string) (map[string]Field, *BatchError) {
	fieldByColumn := make(map[string]Field, len(columns))
	countByField := make(map[Field]int)
	var unknown []string
	hasID := false

	for _, col := range columns {
		field, ok := aliasIndex[normalizeHeader(col)]
		if !ok {
			unknown = append(unknown, col)
			continue
		}
		fieldByColumn[col] = field
		countByField[field]++
		if field == FieldStudentID {
			hasID = true
		}
	}

	if len(unknown) > 0 {
		return nil, errUnknownColumns(unknown, acceptedColumns())
	}
	var duplicate []string
	for _, col := range columns {
		if countByField[fieldByColumn[col]] > 1 {
			duplicate = append(duplicate, col)
		}
	}
	if len(duplicate) > 0 {
		return nil, errDuplicateColumns(duplicate)
	}
	if !hasID {
		return nil, errMissingIDColumn(fieldAliases[FieldStudentID])
	}
	return fieldByColumn, nil
}

// acceptedColumns returns every accepted header alias, sorted for stable
// error output.
func acceptedColumns() []string {
	var all []string
	for _, aliases := range fieldAliases {
		all = append(all, aliases...)
	}
	sort.Strings(all)
	return all
}
