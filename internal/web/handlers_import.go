package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ygoldman/classdesk/internal/importer"
	"github.com/ygoldman/classdesk/internal/logging"
)

// validate checks JSON import payloads before they reach the engine.
var validate = validator.New()

// importPayload is the JSON body of an import request. The engine performs
// its own structural checks on columns and rows; validation here covers
// the shapes the engine cannot see, such as uuid-formed mappings.
type importPayload struct {
	Columns     []string          `json:"columns" validate:"required"`
	Rows        []importer.Row    `json:"rows" validate:"required"`
	DryRun      bool              `json:"dryRun"`
	TagMappings map[string]string `json:"tagMappings" validate:"omitempty,dive,uuid"`
	Exclude     []string          `json:"exclude" validate:"omitempty,dive,uuid"`
}

// handleImport accepts one reconciliation batch, as either a CSV multipart
// upload or a JSON body of columns and rows, and runs it through the
// engine. Batch-aborting problems come back as 422 with remediation data;
// per-row failures ride inside the 200 result.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importer.Request
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		req, err = parseJSONImport(r)
	} else {
		req, err = parseCSVImport(r, s.cfg.Upload.MaxFileSize)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Actor = actorFromRequest(r)

	result, err := s.engine.Run(r.Context(), req)
	if err != nil {
		var berr *importer.BatchError
		if errors.As(err, &berr) {
			writeBatchError(w, berr)
			return
		}
		logging.FromContext(r.Context()).Error("import run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseJSONImport decodes and validates a JSON import body.
func parseJSONImport(r *http.Request) (importer.Request, error) {
	var payload importPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return importer.Request{}, errors.New("invalid JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return importer.Request{}, err
	}

	req := importer.Request{
		Columns: payload.Columns,
		Rows:    payload.Rows,
		DryRun:  payload.DryRun,
	}
	if len(payload.TagMappings) > 0 {
		req.TagMappings = make(map[string]uuid.UUID, len(payload.TagMappings))
		for name, raw := range payload.TagMappings {
			req.TagMappings[name] = uuid.MustParse(raw)
		}
	}
	for _, raw := range payload.Exclude {
		req.ExcludeIDs = append(req.ExcludeIDs, uuid.MustParse(raw))
	}
	return req, nil
}

// parseCSVImport reads a multipart CSV upload into a parsed batch. The
// first record is the header; every later record becomes one row keyed by
// the raw header names. Batch options arrive as form fields alongside the
// file: dryRun, exclude (comma-separated ids), and mappings (a JSON
// object of tag name to tag id).
func parseCSVImport(r *http.Request, maxFileSize int64) (importer.Request, error) {
	if err := r.ParseMultipartForm(maxFileSize); err != nil {
		return importer.Request{}, errors.New("invalid multipart form")
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return importer.Request{}, errors.New("missing file field")
	}
	defer file.Close()

	reader := csv.NewReader(io.LimitReader(file, maxFileSize))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return importer.Request{}, errors.New("malformed CSV")
	}
	if len(records) == 0 {
		return importer.Request{}, errors.New("empty CSV file")
	}

	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]importer.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(importer.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	req := importer.Request{Columns: columns, Rows: rows}
	req.DryRun, _ = strconv.ParseBool(r.FormValue("dryRun"))

	if raw := r.FormValue("exclude"); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(tok))
			if err != nil {
				return importer.Request{}, errors.New("exclude must be a comma-separated list of student ids")
			}
			req.ExcludeIDs = append(req.ExcludeIDs, id)
		}
	}

	if raw := r.FormValue("mappings"); raw != "" {
		var mappings map[string]string
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			return importer.Request{}, errors.New("mappings must be a JSON object of tag name to tag id")
		}
		req.TagMappings = make(map[string]uuid.UUID, len(mappings))
		for name, tok := range mappings {
			id, err := uuid.Parse(tok)
			if err != nil {
				return importer.Request{}, errors.New("mappings must be a JSON object of tag name to tag id")
			}
			req.TagMappings[name] = id
		}
	}

	return req, nil
}

// actorFromRequest reads the acting user's identity from the headers the
// authenticating gateway sets. Authentication itself happens upstream.
func actorFromRequest(r *http.Request) importer.Provenance {
	var actor importer.Provenance
	if id, err := uuid.Parse(r.Header.Get("X-User-Id")); err == nil {
		actor.UserID = id
	}
	actor.UserName = r.Header.Get("X-User-Name")
	actor.Role = r.Header.Get("X-User-Role")
	return actor
}
