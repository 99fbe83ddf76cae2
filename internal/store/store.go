// Package store implements the importer's persistence contracts over
// PostgreSQL using pgx. It owns the students table reads the engine
// snapshots from, the batched national-id ownership lookup, and the
// per-row diff updates the commit path issues.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ygoldman/classdesk/internal/importer"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// StudentStore implements importer.Store over the students table.
type StudentStore struct {
	db DBTX
}

// NewStudentStore creates a store over the given connection or pool.
func NewStudentStore(db DBTX) *StudentStore {
	return &StudentStore{db: db}
}

const studentSelect = `
SELECT id, first_name, last_name, national_id, instructor_id,
       lesson_day, lesson_time, active, notes, phone, tag_ids
FROM students
WHERE id = ANY($1::uuid[])`

// StudentsByIDs fetches the current state of the requested students in one
// batched read. Unknown ids are absent from the result.
func (s *StudentStore) StudentsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]importer.Student, error) {
	students := make(map[uuid.UUID]importer.Student, len(ids))
	if len(ids) == 0 {
		return students, nil
	}

	rows, err := s.db.Query(ctx, studentSelect, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("select students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id           pgtype.UUID
			firstName    pgtype.Text
			lastName     pgtype.Text
			nationalID   pgtype.Text
			instructorID pgtype.UUID
			lessonDay    pgtype.Int2
			lessonTime   pgtype.Text
			active       pgtype.Bool
			notes        pgtype.Text
			phone        pgtype.Text
			tagIDs       []pgtype.UUID
		)
		if err := rows.Scan(&id, &firstName, &lastName, &nationalID, &instructorID,
			&lessonDay, &lessonTime, &active, &notes, &phone, &tagIDs); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}

		student := importer.Student{
			ID:         uuid.UUID(id.Bytes),
			FirstName:  firstName.String,
			LastName:   lastName.String,
			NationalID: textPtr(nationalID),
			LessonTime: textPtr(lessonTime),
			Active:     active.Bool,
			Notes:      textPtr(notes),
			Phone:      textPtr(phone),
		}
		if instructorID.Valid {
			iid := uuid.UUID(instructorID.Bytes)
			student.InstructorID = &iid
		}
		if lessonDay.Valid {
			day := lessonDay.Int16
			student.LessonDay = &day
		}
		for _, t := range tagIDs {
			if t.Valid {
				student.TagIDs = append(student.TagIDs, uuid.UUID(t.Bytes))
			}
		}
		students[student.ID] = student
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// NationalIDOwners returns the owning student for each national id that
// already exists in the store, as one batched lookup.
func (s *StudentStore) NationalIDOwners(ctx context.Context, nationalIDs []string) (map[string]uuid.UUID, error) {
	owners := make(map[string]uuid.UUID, len(nationalIDs))
	if len(nationalIDs) == 0 {
		return owners, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT national_id, id FROM students WHERE national_id = ANY($1)`, nationalIDs)
	if err != nil {
		return nil, fmt.Errorf("select national id owners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nationalID pgtype.Text
		var id pgtype.UUID
		if err := rows.Scan(&nationalID, &id); err != nil {
			return nil, fmt.Errorf("scan national id owner: %w", err)
		}
		owners[nationalID.String] = uuid.UUID(id.Bytes)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate national id owners: %w", err)
	}
	return owners, nil
}

// columnFor maps canonical import fields to students columns.
var columnFor = map[importer.Field]string{
	importer.FieldNationalID: "national_id",
	importer.FieldInstructor: "instructor_id",
	importer.FieldLessonDay:  "lesson_day",
	importer.FieldLessonTime: "lesson_time",
	importer.FieldActive:     "active",
	importer.FieldTags:       "tag_ids",
	importer.FieldNotes:      "notes",
	importer.FieldPhone:      "phone",
}

// UpdateStudent applies one reconciled diff as a single UPDATE, stamping
// the acting user, role, and timestamp onto the row.
func (s *StudentStore) UpdateStudent(ctx context.Context, id uuid.UUID, diff importer.Diff, prov importer.Provenance) error {
	if len(diff) == 0 {
		return nil
	}

	var sets []string
	var args []interface{}
	next := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}

	for field, value := range diff {
		column, ok := columnFor[field]
		if !ok {
			return fmt.Errorf("field %s has no students column", field)
		}
		switch field {
		case importer.FieldInstructor:
			sets = append(sets, fmt.Sprintf("%s = $%d::uuid", column, next(uuidParam(value))))
		case importer.FieldTags:
			sets = append(sets, fmt.Sprintf("%s = $%d::uuid[]", column, next(uuidListParam(value))))
		default:
			sets = append(sets, fmt.Sprintf("%s = $%d", column, next(value)))
		}
	}

	sets = append(sets,
		fmt.Sprintf("updated_at = $%d", next(prov.At)),
		fmt.Sprintf("updated_by = $%d::uuid", next(prov.UserID.String())),
		fmt.Sprintf("updated_by_role = $%d", next(prov.Role)),
	)

	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d::uuid",
		strings.Join(sets, ", "), next(id.String()))

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update student %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("student %s no longer exists", id)
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// uuidParam renders a diff value for a uuid column; nil clears it.
func uuidParam(v any) interface{} {
	if v == nil {
		return nil
	}
	return v.(uuid.UUID).String()
}

// uuidListParam renders a diff value for a uuid[] column; nil clears it.
func uuidListParam(v any) interface{} {
	if v == nil {
		return nil
	}
	return uuidStrings(v.([]uuid.UUID))
}
