package importer

// coerce.go converts raw batch cells into typed field values.
//
// Every coercer reports a three-state result: the cell was absent (leave
// the field unchanged), invalid (fail the row), or provided with a typed
// value. A provided nil value means "explicitly clear this field" and is
// produced only by the reserved clear sentinels. The three states are kept
// explicit so that "column missing from this row" is never confused with
// "column present but empty" or "column present and cleared".

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Clear sentinels. A cell equal to either (case-insensitively for the word
// form) sets the target field to NULL instead of leaving it unchanged.
const (
	clearWord = "clear"
	clearDash = "-"
)

// CellState tags the outcome of coercing one cell.
type CellState int

const (
	// CellAbsent means the value was not supplied; the field is untouched.
	CellAbsent CellState = iota
	// CellInvalid means a value was supplied but failed validation.
	CellInvalid
	// CellProvided means a valid value was supplied. A nil Value is an
	// explicit clear.
	CellProvided
)

// Coerced is the result of running one coercer over one cell.
type Coerced struct {
	State   CellState
	Value   any
	Message string
}

func absent() Coerced            { return Coerced{State: CellAbsent} }
func cleared() Coerced           { return Coerced{State: CellProvided} }
func provided(v any) Coerced     { return Coerced{State: CellProvided, Value: v} }
func invalid(msg string) Coerced { return Coerced{State: CellInvalid, Message: msg} }

var (
	nationalIDRegex = regexp.MustCompile(`^\d{5,10}$`)
	// HH:MM with optional seconds and optional timezone suffix. The store
	// may persist seconds and an offset; input usually carries neither.
	clockRegex = regexp.MustCompile(`^(\d{1,2}):([0-5]\d)(?::[0-5]\d)?(?:Z|[+-]\d{2}(?::?\d{2})?)?$`)
)

// isClearSentinel reports whether a trimmed cell requests an explicit clear.
func isClearSentinel(s string) bool {
	return s == clearDash || strings.EqualFold(s, clearWord)
}

// cellText renders a raw cell as a trimmed string. JSON bodies deliver
// numbers as float64 and flags as bool; both are accepted anywhere a
// textual scalar is. Returns ok=false for non-scalar values.
func cellText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(t), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// coerceOptionalText handles free-text fields such as notes and phone.
// Empty after trimming means "not provided"; the clear sentinels mean
// "delete the stored value".
func coerceOptionalText(v any) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("must be a text value")
	}
	if isClearSentinel(s) {
		return cleared()
	}
	if s == "" {
		return absent()
	}
	return provided(s)
}

// coerceLessonDay parses a day-of-week in the closed range [1,7].
func coerceLessonDay(v any) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("day of week must be an integer between 1 and 7")
	}
	if isClearSentinel(s) {
		return cleared()
	}
	if s == "" {
		return absent()
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 7 {
		return invalid(fmt.Sprintf("day of week must be an integer between 1 and 7, got %q", s))
	}
	return provided(int16(n))
}

// coerceLessonTime parses a time-of-day and normalizes it to HH:MM.
// Seconds and timezone suffixes are accepted and stripped, so a value that
// the store persists as "16:00:00+03" compares equal to an input of "16:00".
func coerceLessonTime(v any) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("time must be in HH:MM format")
	}
	if isClearSentinel(s) {
		return cleared()
	}
	if s == "" {
		return absent()
	}
	m := clockRegex.FindStringSubmatch(s)
	if m == nil {
		return invalid(fmt.Sprintf("time must be in HH:MM format, got %q", s))
	}
	hour, _ := strconv.Atoi(m[1])
	if hour > 23 {
		return invalid(fmt.Sprintf("time must be in HH:MM format, got %q", s))
	}
	return provided(fmt.Sprintf("%02d:%s", hour, m[2]))
}

// normalizeClock reduces a stored time-of-day to HH:MM for comparison.
// Returns the input unchanged if it does not look like a clock value.
func normalizeClock(s string) string {
	m := clockRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return s
	}
	hour, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", hour, m[2])
}

// coerceActiveFlag parses a boolean flag. An absent cell yields def without
// marking the field as provided, so it never enters the diff; a present but
// unrecognized value is an explicit failure, never a silent default.
func coerceActiveFlag(v any, def bool) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("must be true/false, yes/no, or 1/0")
	}
	if s == "" {
		return Coerced{State: CellAbsent, Value: def}
	}
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return provided(true)
	case "false", "f", "no", "n", "0":
		return provided(false)
	default:
		return invalid(fmt.Sprintf("must be true/false, yes/no, or 1/0, got %q", s))
	}
}

// coerceTagNames splits a tag cell into individual names. Accepts either a
// delimited string (comma, semicolon, or pipe) or an array from a JSON
// body. Duplicates are not dropped here; catalog resolution collapses them.
func coerceTagNames(v any) Coerced {
	switch t := v.(type) {
	case nil:
		return absent()
	case string:
		s := strings.TrimSpace(t)
		if isClearSentinel(s) {
			return cleared()
		}
		names := splitTagList(s)
		if len(names) == 0 {
			return absent()
		}
		return provided(names)
	case []string:
		names := cleanTagNames(t)
		if len(names) == 0 {
			return absent()
		}
		return provided(names)
	case []any:
		strs := make([]string, 0, len(t))
		for _, el := range t {
			s, ok := el.(string)
			if !ok {
				return invalid("tags must be a delimited string or a list of names")
			}
			strs = append(strs, s)
		}
		names := cleanTagNames(strs)
		if len(names) == 0 {
			return absent()
		}
		return provided(names)
	default:
		return invalid("tags must be a delimited string or a list of names")
	}
}

func splitTagList(s string) []string {
	return cleanTagNames(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	}))
}

func cleanTagNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// coerceNationalID validates the uniqueness-constrained identity number:
// digits only, 5 to 10 of them. The clear sentinels are deliberately not
// honored here; the identity number cannot be removed through an import.
func coerceNationalID(v any) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("national id must be a number of 5-10 digits")
	}
	if s == "" {
		return absent()
	}
	if !nationalIDRegex.MatchString(s) {
		return invalid(fmt.Sprintf("national id must be 5-10 digits, got %q", s))
	}
	return provided(s)
}

// coerceInstructorRef extracts the raw instructor token. Resolution against
// the catalog happens in the reconciler; this only distinguishes absent,
// cleared, and provided.
func coerceInstructorRef(v any) Coerced {
	s, ok := cellText(v)
	if !ok {
		return invalid("instructor must be an id or a name")
	}
	if isClearSentinel(s) {
		return cleared()
	}
	if s == "" {
		return absent()
	}
	return provided(s)
}
