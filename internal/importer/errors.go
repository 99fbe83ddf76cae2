package importer

// errors.go defines the two error classes of a batch run.
//
// Structural problems (bad headers, too many rows, unmatched tags) abort
// the whole batch before any row-level work and surface as a *BatchError
// carrying a machine-readable code plus remediation details. Everything
// else isolates to a single row and becomes a Failure in the final result.

import "fmt"

// FailureCode is a stable machine-readable reason for one failed row.
type FailureCode string

const (
	CodeInvalidStudentID   FailureCode = "invalid_student_id"
	CodeStudentNotFound    FailureCode = "student_not_found"
	CodeInvalidNationalID  FailureCode = "invalid_national_id"
	CodeInvalidLessonDay   FailureCode = "invalid_lesson_day"
	CodeInvalidLessonTime  FailureCode = "invalid_lesson_time"
	CodeInvalidActiveFlag  FailureCode = "invalid_active_flag"
	CodeInvalidTags        FailureCode = "invalid_tags"
	CodeInvalidValue       FailureCode = "invalid_value"
	CodeInstructorNotFound FailureCode = "instructor_not_found"
	CodeInstructorInactive FailureCode = "instructor_inactive"
	CodeDuplicateInBatch   FailureCode = "duplicate_national_id_in_batch"
	CodeDuplicateInStore   FailureCode = "duplicate_national_id_in_store"
	CodeUpdateFailed       FailureCode = "update_failed"
)

// invalidCodeFor maps a field to the failure code reported when its
// coercer rejects a supplied value.
func invalidCodeFor(f Field) FailureCode {
	switch f {
	case FieldNationalID:
		return CodeInvalidNationalID
	case FieldLessonDay:
		return CodeInvalidLessonDay
	case FieldLessonTime:
		return CodeInvalidLessonTime
	case FieldActive:
		return CodeInvalidActiveFlag
	case FieldTags:
		return CodeInvalidTags
	default:
		return CodeInvalidValue
	}
}

// Failure records one row that reached a terminal failure state.
// A row fails at exactly one stage and is excluded from all later stages.
type Failure struct {
	Line        int         `json:"lineNumber"`
	TargetID    string      `json:"targetId,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	Code        FailureCode `json:"code"`
	Message     string      `json:"message"`
}

// Batch-aborting error codes.
const (
	BatchEmptyInput        = "empty_input"
	BatchTooManyRows       = "too_many_rows"
	BatchMissingIDColumn   = "missing_id_column"
	BatchUnknownColumns    = "unknown_columns"
	BatchDuplicateColumns  = "duplicate_columns"
	BatchUnmatchedTags     = "unmatched_tags"
	BatchInvalidTagMapping = "invalid_tag_mapping"
)

// BatchError aborts an entire batch before any row is processed.
// Details carries actionable remediation data (valid column names,
// the available tag catalog, the row limit) keyed for the API response.
type BatchError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *BatchError) Error() string { return e.Message }

func errEmptyInput() *BatchError {
	return &BatchError{Code: BatchEmptyInput, Message: "no rows to import"}
}

func errTooManyRows(count, limit int) *BatchError {
	return &BatchError{
		Code:    BatchTooManyRows,
		Message: fmt.Sprintf("batch has %d rows, the maximum is %d", count, limit),
		Details: map[string]any{"rowCount": count, "maxRows": limit},
	}
}

func errMissingIDColumn(accepted []string) *BatchError {
	return &BatchError{
		Code:    BatchMissingIDColumn,
		Message: "no student id column found",
		Details: map[string]any{"acceptedIDColumns": accepted},
	}
}

func errUnknownColumns(unknown, accepted []string) *BatchError {
	return &BatchError{
		Code:    BatchUnknownColumns,
		Message: fmt.Sprintf("unrecognized columns: %v", unknown),
		Details: map[string]any{"unknownColumns": unknown, "acceptedColumns": accepted},
	}
}

func errDuplicateColumns(duplicate []string) *BatchError {
	return &BatchError{
		Code:    BatchDuplicateColumns,
		Message: fmt.Sprintf("columns %v resolve to the same field", duplicate),
		Details: map[string]any{"duplicateColumns": duplicate},
	}
}

func errUnmatchedTags(unmatched, available []string) *BatchError {
	return &BatchError{
		Code:    BatchUnmatchedTags,
		Message: fmt.Sprintf("%d tag name(s) match no catalog tag; map them or fix the file", len(unmatched)),
		Details: map[string]any{"unmatchedTags": unmatched, "availableTags": available},
	}
}

func errInvalidTagMapping(name, id string) *BatchError {
	return &BatchError{
		Code:    BatchInvalidTagMapping,
		Message: fmt.Sprintf("tag mapping for %q points at unknown tag id %s", name, id),
		Details: map[string]any{"name": name, "tagId": id},
	}
}
