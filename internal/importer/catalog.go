package importer

// catalog.go builds the run-scoped reference catalogs.
//
// Both catalogs are populated from a full fetch at the start of a run so
// every row resolves in memory with no additional round trips. They are
// immutable for the duration of the run.

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Instructor is one reference catalog entry for instructor resolution.
type Instructor struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

// Tag is one reference catalog entry for tag resolution.
type Tag struct {
	ID   uuid.UUID
	Name string
}

// normalizeName canonicalizes a human name or tag name for lookup:
// lowercased with internal whitespace collapsed.
func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

type instructorCatalog struct {
	byID   map[uuid.UUID]Instructor
	byName map[string]Instructor
}

func newInstructorCatalog(list []Instructor) *instructorCatalog {
	c := &instructorCatalog{
		byID:   make(map[uuid.UUID]Instructor, len(list)),
		byName: make(map[string]Instructor, len(list)),
	}
	for _, in := range list {
		c.byID[in.ID] = in
		c.byName[normalizeName(in.Name)] = in
	}
	return c
}

// resolve finds an instructor by token. A UUID-shaped token is looked up
// by id only; a miss there is a hard error, never a fallback to name
// matching. Any other token is matched case-insensitively by name, and an
// inactive match is reported distinctly from a no-match.
func (c *instructorCatalog) resolve(token string) (Instructor, FailureCode) {
	if id, err := uuid.Parse(token); err == nil {
		in, ok := c.byID[id]
		if !ok {
			return Instructor{}, CodeInstructorNotFound
		}
		if !in.Active {
			return Instructor{}, CodeInstructorInactive
		}
		return in, ""
	}

	in, ok := c.byName[normalizeName(token)]
	if !ok {
		return Instructor{}, CodeInstructorNotFound
	}
	if !in.Active {
		return Instructor{}, CodeInstructorInactive
	}
	return in, ""
}

// activeNames returns the names of all active instructors, sorted, for
// inclusion in resolution failure messages.
func (c *instructorCatalog) activeNames() []string {
	var names []string
	for _, in := range c.byID {
		if in.Active {
			names = append(names, in.Name)
		}
	}
	sort.Strings(names)
	return names
}

type tagCatalog struct {
	byID   map[uuid.UUID]Tag
	byName map[string]uuid.UUID
}

func newTagCatalog(list []Tag) *tagCatalog {
	c := &tagCatalog{
		byID:   make(map[uuid.UUID]Tag, len(list)),
		byName: make(map[string]uuid.UUID, len(list)),
	}
	for _, t := range list {
		c.byID[t.ID] = t
		c.byName[normalizeName(t.Name)] = t.ID
	}
	return c
}

// names returns all catalog tag names, sorted, for remediation responses.
func (c *tagCatalog) names() []string {
	out := make([]string, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}

// tagResolver resolves tag names through the catalog first, then through
// the caller-supplied disambiguation map for names the catalog misses.
type tagResolver struct {
	catalog  *tagCatalog
	mappings map[string]uuid.UUID
}

// newTagResolver validates every disambiguation entry against the catalog
// before any row-level work: a mapping that points at an unknown tag id
// would persist a dangling reference, so it aborts the batch.
func newTagResolver(catalog *tagCatalog, mappings map[string]uuid.UUID) (*tagResolver, *BatchError) {
	normalized := make(map[string]uuid.UUID, len(mappings))
	for name, id := range mappings {
		if _, ok := catalog.byID[id]; !ok {
			return nil, errInvalidTagMapping(name, id.String())
		}
		normalized[normalizeName(name)] = id
	}
	return &tagResolver{catalog: catalog, mappings: normalized}, nil
}

// resolve returns the tag id for a name, or false if neither the catalog
// nor the disambiguation map knows it.
func (r *tagResolver) resolve(name string) (uuid.UUID, bool) {
	key := normalizeName(name)
	if id, ok := r.catalog.byName[key]; ok {
		return id, true
	}
	id, ok := r.mappings[key]
	return id, ok
}

// unmatchedTags scans every tag cell in the batch and collects the names
// that resolve nowhere. Any unmatched name aborts the batch up front; the
// caller gets the full set plus the available catalog in one response
// instead of row-by-row rejections. Cells that fail tag coercion are left
// for the reconciler to fail with a per-row code.
func (r *tagResolver) unmatchedTags(rows []Row, fieldByColumn map[string]Field) []string {
	seen := make(map[string]struct{})
	var unmatched []string

	for _, row := range rows {
		for col, field := range fieldByColumn {
			if field != FieldTags {
				continue
			}
			res := coerceTagNames(row[col])
			if res.State != CellProvided || res.Value == nil {
				continue
			}
			for _, name := range res.Value.([]string) {
				if _, ok := r.resolve(name); ok {
					continue
				}
				key := normalizeName(name)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				unmatched = append(unmatched, name)
			}
		}
	}

	sort.Strings(unmatched)
	return unmatched
}
