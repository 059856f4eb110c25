package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qianban/qianban/internal/report"
	"github.com/qianban/qianban/internal/storage"
)

func handleListHealthRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		records, err := deps.Store.ListHealthRecords(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list health records: %v", err)
			return
		}
		if records == nil {
			records = []storage.HealthRecord{}
		}
		writeJSON(w, records)
	}
}

func handleAddHealthRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var rec storage.HealthRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if rec.Systolic == 0 && rec.Diastolic == 0 && rec.HeartRate == 0 && rec.WeightKg == 0 && rec.Notes == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one vital or a note is required")
			return
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.RecordedAt.IsZero() {
			rec.RecordedAt = time.Now().UTC()
		}
		if err := deps.Store.SaveHealthRecord(rec); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save health record: %v", err)
			return
		}
		writeJSON(w, rec)
	}
}

type importReportRequest struct {
	Path string `json:"path"`
}

// handleImportReport parses a checkup PDF already on the daemon's disk
// and stores the vitals it finds.
func handleImportReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req importReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path is required")
			return
		}

		rec, err := report.ImportPDF(req.Path)
		if errors.Is(err, report.ErrNoVitals) {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to import report: %v", err)
			return
		}
		if err := deps.Store.SaveHealthRecord(rec); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save health record: %v", err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleDeleteHealthRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteHealthRecord(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "health record not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete health record: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
