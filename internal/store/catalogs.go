package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ygoldman/classdesk/internal/importer"
)

// Catalogs implements importer.CatalogSource over the instructors and
// tags tables. Both reads are full fetches; the engine builds run-scoped
// lookup structures from them so rows resolve without extra round trips.
type Catalogs struct {
	db DBTX
}

// NewCatalogs creates a catalog source over the given connection or pool.
func NewCatalogs(db DBTX) *Catalogs {
	return &Catalogs{db: db}
}

// Instructors fetches the full instructor directory, inactive included;
// the engine needs inactive entries to report them distinctly.
func (c *Catalogs) Instructors(ctx context.Context) ([]importer.Instructor, error) {
	rows, err := c.db.Query(ctx,
		`SELECT id, full_name, active FROM instructors ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("select instructors: %w", err)
	}
	defer rows.Close()

	var instructors []importer.Instructor
	for rows.Next() {
		var id pgtype.UUID
		var name pgtype.Text
		var active pgtype.Bool
		if err := rows.Scan(&id, &name, &active); err != nil {
			return nil, fmt.Errorf("scan instructor: %w", err)
		}
		instructors = append(instructors, importer.Instructor{
			ID:     uuid.UUID(id.Bytes),
			Name:   name.String,
			Active: active.Bool,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructors: %w", err)
	}
	return instructors, nil
}

// Tags fetches the full tag catalog.
func (c *Catalogs) Tags(ctx context.Context) ([]importer.Tag, error) {
	rows, err := c.db.Query(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	var tags []importer.Tag
	for rows.Next() {
		var id pgtype.UUID
		var name pgtype.Text
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, importer.Tag{
			ID:   uuid.UUID(id.Bytes),
			Name: name.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}
