package importer

// result.go shapes the final import result for both execution modes.

import (
	"encoding/json"
	"sort"
)

// FieldChange is one before/after pair in a dry-run preview.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// RowPreview describes what a commit would do to one row.
type RowPreview struct {
	TargetID    string                 `json:"targetId"`
	DisplayName string                 `json:"displayName"`
	Line        int                    `json:"lineNumber"`
	Changes     map[string]FieldChange `json:"changes"`
	HasChanges  bool                   `json:"hasChanges"`
}

// UpdatedRow describes one row that was applied during a commit.
// ChangedFields is empty when the row already matched the store.
type UpdatedRow struct {
	TargetID      string   `json:"targetId"`
	DisplayName   string   `json:"displayName"`
	ChangedFields []string `json:"changedFields"`
}

// Result is the aggregated outcome of one batch run. Commit runs populate
// Updated/UpdatedCount; dry runs populate Previews/PreviewCount instead.
type Result struct {
	DryRun       bool         `json:"dryRun"`
	TotalRows    int          `json:"totalRows"`
	UpdatedCount int          `json:"updatedCount"`
	PreviewCount int          `json:"previewCount"`
	FailedCount  int          `json:"failedCount"`
	Updated      []UpdatedRow `json:"updated"`
	Previews     []RowPreview `json:"previews"`
	Failed       []Failure    `json:"failed"`
}

type commitResult struct {
	TotalRows    int          `json:"totalRows"`
	UpdatedCount int          `json:"updatedCount"`
	FailedCount  int          `json:"failedCount"`
	Updated      []UpdatedRow `json:"updated"`
	Failed       []Failure    `json:"failed"`
}

type dryRunResult struct {
	DryRun       bool         `json:"dryRun"`
	TotalRows    int          `json:"totalRows"`
	PreviewCount int          `json:"previewCount"`
	FailedCount  int          `json:"failedCount"`
	Previews     []RowPreview `json:"previews"`
	Failed       []Failure    `json:"failed"`
}

// MarshalJSON emits the mode-specific response shape: commit results carry
// updatedCount and updated, dry runs carry previewCount and previews. The
// counts and row lists of the active mode are always present, so a batch
// where every row fails still serializes a zero count and an empty list,
// never a missing key or null.
func (r *Result) MarshalJSON() ([]byte, error) {
	failed := r.Failed
	if failed == nil {
		failed = []Failure{}
	}

	if r.DryRun {
		previews := r.Previews
		if previews == nil {
			previews = []RowPreview{}
		}
		return json.Marshal(dryRunResult{
			DryRun:       true,
			TotalRows:    r.TotalRows,
			PreviewCount: r.PreviewCount,
			FailedCount:  r.FailedCount,
			Previews:     previews,
			Failed:       failed,
		})
	}

	updated := r.Updated
	if updated == nil {
		updated = []UpdatedRow{}
	}
	return json.Marshal(commitResult{
		TotalRows:    r.TotalRows,
		UpdatedCount: r.UpdatedCount,
		FailedCount:  r.FailedCount,
		Updated:      updated,
		Failed:       failed,
	})
}

// changedFieldNames lists a diff's canonical field keys in the fixed
// reconcile order, so result entries are stable across runs.
func changedFieldNames(diff Diff) []string {
	names := make([]string, 0, len(diff))
	for _, f := range reconcileOrder {
		if _, ok := diff[f]; ok {
			names = append(names, f.String())
		}
	}
	return names
}

// sortFailures orders failures by input line for readable results.
func sortFailures(failures []Failure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Line < failures[j].Line
	})
}
