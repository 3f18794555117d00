package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/emeka/bulksms-back/internal/policy"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
	"github.com/emeka/bulksms-back/internal/service"
)

type sendRequest struct {
	JobID          string `json:"job_id"`
	Message        string `json:"message"`
	Personalize    bool   `json:"personalize,omitempty"`
	PerSendDelayMS int    `json:"per_send_delay_ms,omitempty"`
}

// CreateSend launches a campaign from a preview job. The response
// returns as soon as the dispatch task is queued; progress is polled
// separately. An Idempotency-Key header makes a retried launch return
// the job created by the first attempt instead of sending twice.
func (api *API) CreateSend(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" && len(idempotencyKey) < 16 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Idempotency-Key must have at least 16 characters")
		return
	}

	var request sendRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.JobID = strings.TrimSpace(request.JobID)
	if request.JobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}
	if request.PerSendDelayMS < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "per_send_delay_ms must not be negative")
		return
	}

	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if entry, exists := api.idempotency.Get(idempotencyKey); exists {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with a different payload")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{
				"send_job_id": entry.JobID,
				"status_url":  "/v1/sends/" + entry.JobID,
				"accepted_at": entry.CreatedAt.Format(time.RFC3339Nano),
			})
			return
		}
	}

	delay := api.defaultPerSendDelay
	if request.PerSendDelayMS > 0 {
		delay = time.Duration(request.PerSendDelayMS) * time.Millisecond
	}

	job, err := api.send.Start(r.Context(), service.SendRequest{
		PreviewJobID: request.JobID,
		Message:      request.Message,
		Personalize:  request.Personalize,
		PerSendDelay: delay,
	})
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrEmptyMessage):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "message is required")
		case errors.Is(err, policy.ErrMessageTooLong):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "message exceeds the length limit")
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "preview job not found")
		case errors.Is(err, service.ErrWrongJobKind):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id must reference a preview job")
		case errors.Is(err, queue.ErrQueueBackpressure):
			writeError(w, r, http.StatusServiceUnavailable, "queue_full", "dispatch queue is full, retry later")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to start send job")
		}
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, job.ID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"send_job_id": job.ID,
		"status":      job.Status,
		"total":       job.Total,
		"status_url":  "/v1/sends/" + job.ID,
		"accepted_at": job.CreatedAt.Format(time.RFC3339Nano),
	})
}

// SendProgress answers one poll with the job's current counters.
func (api *API) SendProgress(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("jobID"))

	snapshot, err := api.send.Progress(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrWrongJobKind):
			writeError(w, r, http.StatusNotFound, "not_found", "send job not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load send job")
		}
		return
	}

	response := map[string]any{
		"job_id":       snapshot.JobID,
		"status":       snapshot.Status,
		"total":        snapshot.Total,
		"sent":         snapshot.Sent,
		"failed":       snapshot.Failed,
		"percent":      snapshot.Percent,
		"errors_count": snapshot.ErrorsCount,
		"last_update":  snapshot.LastUpdate.Format(time.RFC3339Nano),
	}
	if !snapshot.CompletedAt.IsZero() {
		response["completed_at"] = snapshot.CompletedAt.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, response)
}

// SendErrors pages through the delivery failures of a send job in the
// order they happened.
func (api *API) SendErrors(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("jobID"))
	offset, limit, err := parsePage(r, api.previewPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "offset and limit must be non-negative integers")
		return
	}

	page, err := api.send.Errors(r.Context(), jobID, offset, limit)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrWrongJobKind):
			writeError(w, r, http.StatusNotFound, "not_found", "send job not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load send job errors")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"errors": page.Errors,
		"offset": page.Offset,
		"limit":  page.Limit,
		"total":  page.Total,
	})
}
