package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ygoldman/classdesk/internal/config"
	"github.com/ygoldman/classdesk/internal/importer"
)

type fakeEngine struct {
	req    importer.Request
	result *importer.Result
	err    error
}

func (f *fakeEngine) Run(_ context.Context, req importer.Request) (*importer.Result, error) {
	f.req = req
	return f.result, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Upload.MaxFileSize = 1 << 20
	return cfg
}

func newTestServer(engine *fakeEngine) *Server {
	return NewServer(engine, nil, testConfig())
}

func TestHandleImportJSON(t *testing.T) {
	engine := &fakeEngine{result: &importer.Result{TotalRows: 1, UpdatedCount: 1}}
	srv := newTestServer(engine)

	body := `{
		"columns": ["student_id", "notes"],
		"rows": [{"student_id": "33333333-3333-3333-3333-333333333333", "notes": "hi"}],
		"dryRun": true,
		"exclude": ["44444444-4444-4444-4444-444444444444"],
		"tagMappings": {"Robotics": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/students/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "55555555-5555-5555-5555-555555555555")
	req.Header.Set("X-User-Name", "Rivka")
	req.Header.Set("X-User-Role", "admin")

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body)
	}

	got := engine.req
	if !got.DryRun {
		t.Error("dryRun not passed through")
	}
	if len(got.Columns) != 2 || len(got.Rows) != 1 {
		t.Errorf("request = %+v, want the decoded batch", got)
	}
	if len(got.ExcludeIDs) != 1 || got.ExcludeIDs[0] != uuid.MustParse("44444444-4444-4444-4444-444444444444") {
		t.Errorf("exclude = %v, want the parsed id", got.ExcludeIDs)
	}
	if got.TagMappings["Robotics"] != uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb") {
		t.Errorf("mappings = %v, want the parsed id", got.TagMappings)
	}
	if got.Actor.UserName != "Rivka" || got.Actor.Role != "admin" {
		t.Errorf("actor = %+v, want the gateway identity", got.Actor)
	}

	var result importer.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("response is not a result: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Errorf("updatedCount = %d, want 1", result.UpdatedCount)
	}
}

func TestHandleImportJSONValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing columns", `{"rows": [{"id": "x"}]}`},
		{"missing rows", `{"columns": ["student_id"]}`},
		{"bad exclude id", `{"columns": ["student_id"], "rows": [{}], "exclude": ["not-a-uuid"]}`},
		{"bad mapping id", `{"columns": ["student_id"], "rows": [{}], "tagMappings": {"x": "nope"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			srv := newTestServer(engine)

			req := httptest.NewRequest(http.MethodPost, "/api/students/import", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleImportBatchError(t *testing.T) {
	engine := &fakeEngine{err: &importer.BatchError{
		Code:    "unknown_columns",
		Message: "unrecognized columns: [Shoe Size]",
		Details: map[string]any{"unknownColumns": []string{"Shoe Size"}},
	}}
	srv := newTestServer(engine)

	body := `{"columns": ["student_id", "Shoe Size"], "rows": [{}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/students/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}

	var resp struct {
		Error importer.BatchError `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != "unknown_columns" {
		t.Errorf("code = %q, want unknown_columns", resp.Error.Code)
	}
	if resp.Error.Details["unknownColumns"] == nil {
		t.Error("details should carry the remediation data")
	}
}

func TestHandleImportEngineFailure(t *testing.T) {
	engine := &fakeEngine{err: context.DeadlineExceeded}
	srv := newTestServer(engine)

	body := `{"columns": ["student_id"], "rows": [{}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/students/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func csvRequest(t *testing.T, csvBody string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "students.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(csvBody)); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/students/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleImportCSV(t *testing.T) {
	engine := &fakeEngine{result: &importer.Result{TotalRows: 2}}
	srv := newTestServer(engine)

	csvBody := "\uFEFFStudent ID,Notes\n" +
		"33333333-3333-3333-3333-333333333333,first\n" +
		"44444444-4444-4444-4444-444444444444,second\n"
	req := csvRequest(t, csvBody, map[string]string{
		"dryRun":   "true",
		"exclude":  "44444444-4444-4444-4444-444444444444",
		"mappings": `{"Robotics": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"}`,
	})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body)
	}

	got := engine.req
	// The BOM must not survive into the header name.
	if len(got.Columns) != 2 || got.Columns[0] != "Student ID" {
		t.Errorf("columns = %v, want [Student ID Notes]", got.Columns)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if got.Rows[0]["Notes"] != "first" {
		t.Errorf("row[0] = %v, want notes=first", got.Rows[0])
	}
	if !got.DryRun {
		t.Error("dryRun form field not applied")
	}
	if len(got.ExcludeIDs) != 1 {
		t.Errorf("exclude = %v, want one id", got.ExcludeIDs)
	}
	if got.TagMappings["Robotics"] != uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb") {
		t.Errorf("mappings = %v, want the parsed id", got.TagMappings)
	}
}

func TestHandleImportCSVShortRow(t *testing.T) {
	engine := &fakeEngine{result: &importer.Result{}}
	srv := newTestServer(engine)

	// Ragged rows are tolerated; missing cells are simply absent.
	csvBody := "Student ID,Notes\n33333333-3333-3333-3333-333333333333\n"
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, csvRequest(t, csvBody, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body)
	}
	if _, ok := engine.req.Rows[0]["Notes"]; ok {
		t.Errorf("row = %v, short row should omit the missing cell", engine.req.Rows[0])
	}
}

func TestHandleImportCSVErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields map[string]string
	}{
		{"empty file", "", nil},
		{"bad exclude", "Student ID\nx\n", map[string]string{"exclude": "not-a-uuid"}},
		{"bad mappings json", "Student ID\nx\n", map[string]string{"mappings": "not-json"}},
		{"bad mapping id", "Student ID\nx\n", map[string]string{"mappings": `{"x": "nope"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			srv := newTestServer(engine)

			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, csvRequest(t, tt.body, tt.fields))

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
