package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/emeka/bulksms-back/internal/extract"
	"github.com/emeka/bulksms-back/internal/repository"
	"github.com/emeka/bulksms-back/internal/service"
	"github.com/emeka/bulksms-back/internal/spreadsheet"
)

// CreateUpload ingests a contact spreadsheet and answers with the new
// preview job plus its first page of contacts.
func (api *API) CreateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, api.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "uploaded file exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", `multipart field "file" is required`)
		return
	}
	defer file.Close()

	job, err := api.preview.CreateFromUpload(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, spreadsheet.ErrUnreadable):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "file could not be read as a spreadsheet")
		case errors.Is(err, extract.ErrNoPhoneColumn):
			writeError(w, r, http.StatusUnprocessableEntity, "invalid_request", "no phone column detected in the uploaded file")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create preview job")
		}
		return
	}

	preview := job.Contacts
	if len(preview) > api.previewPageSize {
		preview = preview[:api.previewPageSize]
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":        job.ID,
		"status":        job.Status,
		"preview_count": job.Total,
		"preview":       preview,
		"created_at":    job.CreatedAt.Format(time.RFC3339Nano),
	})
}

// PreviewContacts pages through the contact list of a preview job.
func (api *API) PreviewContacts(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("jobID"))
	offset, limit, err := parsePage(r, api.previewPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "offset and limit must be non-negative integers")
		return
	}

	page, err := api.preview.Page(r.Context(), jobID, offset, limit)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrWrongJobKind):
			writeError(w, r, http.StatusNotFound, "not_found", "preview job not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load preview job")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   jobID,
		"contacts": page.Contacts,
		"offset":   page.Offset,
		"limit":    page.Limit,
		"total":    page.Total,
	})
}
