package importer

import (
	"encoding/json"
	"testing"
)

func marshalResult(t *testing.T, r *Result) map[string]any {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return m
}

func TestResultJSONShape(t *testing.T) {
	t.Run("all-failed commit keeps updatedCount and updated", func(t *testing.T) {
		m := marshalResult(t, &Result{
			TotalRows:   1,
			FailedCount: 1,
			Failed:      []Failure{{Line: 2, Code: CodeStudentNotFound, Message: "gone"}},
		})

		if v, ok := m["updatedCount"]; !ok || v.(float64) != 0 {
			t.Errorf("updatedCount = %v %v, want present zero", v, ok)
		}
		updated, ok := m["updated"].([]any)
		if !ok {
			t.Fatalf("updated = %v, want an array", m["updated"])
		}
		if len(updated) != 0 {
			t.Errorf("updated = %v, want empty", updated)
		}
		if _, ok := m["previews"]; ok {
			t.Error("commit result should not carry previews")
		}
		if _, ok := m["previewCount"]; ok {
			t.Error("commit result should not carry previewCount")
		}
	})

	t.Run("all-failed dry run keeps previewCount and previews", func(t *testing.T) {
		m := marshalResult(t, &Result{
			DryRun:      true,
			TotalRows:   1,
			FailedCount: 1,
			Failed:      []Failure{{Line: 2, Code: CodeInvalidStudentID, Message: "bad id"}},
		})

		if v, ok := m["previewCount"]; !ok || v.(float64) != 0 {
			t.Errorf("previewCount = %v %v, want present zero", v, ok)
		}
		previews, ok := m["previews"].([]any)
		if !ok {
			t.Fatalf("previews = %v, want an array", m["previews"])
		}
		if len(previews) != 0 {
			t.Errorf("previews = %v, want empty", previews)
		}
		if m["dryRun"] != true {
			t.Errorf("dryRun = %v, want true", m["dryRun"])
		}
		if _, ok := m["updated"]; ok {
			t.Error("dry-run result should not carry updated")
		}
		if _, ok := m["updatedCount"]; ok {
			t.Error("dry-run result should not carry updatedCount")
		}
	})

	t.Run("failed is never null", func(t *testing.T) {
		m := marshalResult(t, &Result{TotalRows: 1, UpdatedCount: 1})

		failed, ok := m["failed"].([]any)
		if !ok {
			t.Fatalf("failed = %v, want an array", m["failed"])
		}
		if len(failed) != 0 {
			t.Errorf("failed = %v, want empty", failed)
		}
	})
}
