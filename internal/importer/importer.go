// Package importer implements the bulk student reconciliation engine.
//
// A batch of already-parsed tabular rows describes updates to existing
// student records. The engine cross-references each row against the
// instructor and tag catalogs and a load-time snapshot of the targeted
// students, computes a minimal diff per row, enforces national-id
// uniqueness across the batch and the store, and either previews or
// commits the surviving changes with per-row failure isolation.
//
// The engine owns no I/O of its own; persistence, catalog fetches, and
// audit emission go through the Store, CatalogSource, and AuditSink
// contracts supplied by the caller.
package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ygoldman/classdesk/internal/logging"
)

// DefaultMaxRows caps a batch before any processing begins, bounding
// worst-case latency and memory for one request.
const DefaultMaxRows = 500

// Row is one parsed input record: raw header name to raw scalar. CSV input
// carries strings; JSON input may carry numbers, booleans, or tag arrays.
type Row map[string]any

// Provenance identifies the acting user for commit stamping and audit.
type Provenance struct {
	UserID   uuid.UUID
	UserName string
	Role     string
	At       time.Time
}

// Store is the persistence contract the engine depends on.
type Store interface {
	// StudentsByIDs returns the current state of the requested students,
	// keyed by id. Missing ids are simply absent from the map.
	StudentsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Student, error)
	// NationalIDOwners returns, for each national id present in the store,
	// the id of the student that owns it.
	NationalIDOwners(ctx context.Context, nationalIDs []string) (map[string]uuid.UUID, error)
	// UpdateStudent applies one diff to one student, stamping provenance.
	UpdateStudent(ctx context.Context, id uuid.UUID, diff Diff, prov Provenance) error
}

// CatalogSource supplies the full reference catalogs for a run.
type CatalogSource interface {
	Instructors(ctx context.Context) ([]Instructor, error)
	Tags(ctx context.Context) ([]Tag, error)
}

// ImportEvent summarizes one committed batch for the audit sink.
type ImportEvent struct {
	Actor        Provenance
	TotalRows    int
	UpdatedCount int
	FailedCount  int
}

// AuditSink receives fire-and-forget notifications of committed batches.
type AuditSink interface {
	ImportApplied(ctx context.Context, event ImportEvent)
}

// Request is one reconciliation batch.
type Request struct {
	// Columns is the ordered header list from the parsed input.
	Columns []string
	// Rows holds the data rows, keyed by the raw header names.
	Rows []Row
	// DryRun computes diffs without writing.
	DryRun bool
	// ExcludeIDs drops specific targets from the surviving candidate set
	// without re-running reconciliation ("apply all except these").
	ExcludeIDs []uuid.UUID
	// TagMappings disambiguates tag names the catalog does not know,
	// mapping normalized names to catalog tag ids.
	TagMappings map[string]uuid.UUID
	// Actor stamps provenance onto committed rows.
	Actor Provenance
}

// Engine runs reconciliation batches.
type Engine struct {
	store    Store
	catalogs CatalogSource
	audit    AuditSink
	maxRows  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRows overrides the batch row cap.
func WithMaxRows(n int) Option {
	return func(e *Engine) { e.maxRows = n }
}

// WithAuditSink attaches an audit sink for committed batches.
func WithAuditSink(a AuditSink) Option {
	return func(e *Engine) { e.audit = a }
}

// New creates an Engine over the given collaborators.
func New(store Store, catalogs CatalogSource, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		catalogs: catalogs,
		maxRows:  DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes one batch. Structural problems return a *BatchError and no
// result; row-level problems land in the result's failure list. The error
// return is reserved for structural aborts and infrastructure failures.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)

	if len(req.Rows) == 0 {
		return nil, errEmptyInput()
	}
	if len(req.Rows) > e.maxRows {
		return nil, errTooManyRows(len(req.Rows), e.maxRows)
	}

	fieldByColumn, berr := resolveColumns(req.Columns)
	if berr != nil {
		return nil, berr
	}

	// Snapshot phase: catalogs and targeted students are independent reads
	// fetched concurrently, but reconciliation starts only once all three
	// have landed.
	var (
		instructors []Instructor
		tags        []Tag
		students    map[uuid.UUID]Student
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		instructors, err = e.catalogs.Instructors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tags, err = e.catalogs.Tags(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		students, err = e.store.StudentsByIDs(gctx, targetIDs(req.Rows, fieldByColumn))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolver, berr := newTagResolver(newTagCatalog(tags), req.TagMappings)
	if berr != nil {
		return nil, berr
	}
	if unmatched := resolver.unmatchedTags(req.Rows, fieldByColumn); len(unmatched) > 0 {
		return nil, errUnmatchedTags(unmatched, resolver.catalog.names())
	}

	rec := &reconciler{
		students:      students,
		instructors:   newInstructorCatalog(instructors),
		tags:          resolver,
		fieldByColumn: fieldByColumn,
	}

	var candidates []*Candidate
	var failures []Failure
	for i, row := range req.Rows {
		candidate, fail := rec.reconcileRow(i, row)
		if fail != nil {
			failures = append(failures, *fail)
			continue
		}
		candidates = append(candidates, candidate)
	}

	candidates, uniqueFailures, err := enforceUniqueness(ctx, e.store, candidates)
	if err != nil {
		return nil, err
	}
	failures = append(failures, uniqueFailures...)

	candidates = dropExcluded(candidates, req.ExcludeIDs)

	result := &Result{
		DryRun:    req.DryRun,
		TotalRows: len(req.Rows),
	}

	prov := req.Actor
	if prov.At.IsZero() {
		prov.At = time.Now().UTC()
	}

	if req.DryRun {
		result.Previews = previewCandidates(candidates)
		result.PreviewCount = len(result.Previews)
	} else {
		updated, commitFailures := commitCandidates(ctx, e.store, candidates, prov)
		failures = append(failures, commitFailures...)
		result.Updated = updated
		result.UpdatedCount = len(updated)
	}

	sortFailures(failures)
	result.Failed = failures
	result.FailedCount = len(failures)

	if !req.DryRun && e.audit != nil {
		e.audit.ImportApplied(ctx, ImportEvent{
			Actor:        prov,
			TotalRows:    result.TotalRows,
			UpdatedCount: result.UpdatedCount,
			FailedCount:  result.FailedCount,
		})
	}

	log.Info("import batch processed",
		"dry_run", req.DryRun,
		"total_rows", result.TotalRows,
		"updated", result.UpdatedCount,
		"previewed", result.PreviewCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

// targetIDs collects the parseable student ids from the id column so the
// snapshot fetch covers every resolvable target. Unparseable cells are
// left for per-row failures.
func targetIDs(rows []Row, fieldByColumn map[string]Field) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, row := range rows {
		for col, field := range fieldByColumn {
			if field != FieldStudentID {
				continue
			}
			token, ok := cellText(row[col])
			if !ok || token == "" {
				continue
			}
			id, err := uuid.Parse(token)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// dropExcluded removes candidates whose target appears in the exclusion
// list. Excluded rows land in neither the updated nor the failed bucket.
func dropExcluded(candidates []*Candidate, exclude []uuid.UUID) []*Candidate {
	if len(exclude) == 0 {
		return candidates
	}
	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	kept := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := skip[c.StudentID]; !ok {
			kept = append(kept, c)
		}
	}
	return kept
}
