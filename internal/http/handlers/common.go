// Package handlers implements the JSON API surface: spreadsheet
// uploads, preview paging, campaign launches and progress polling.
package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emeka/bulksms-back/internal/http/middleware"
	"github.com/emeka/bulksms-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

// maxPageLimit caps the limit query value on every paged endpoint.
const maxPageLimit = 500

type API struct {
	preview     *service.PreviewService
	send        *service.SendService
	idempotency *idempotencyStore

	maxUploadBytes      int64
	previewPageSize     int
	defaultPerSendDelay time.Duration
}

type Options struct {
	MaxUploadBytes      int64
	PreviewPageSize     int
	DefaultPerSendDelay time.Duration
}

func NewAPI(preview *service.PreviewService, send *service.SendService, opts Options) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.PreviewPageSize <= 0 {
		opts.PreviewPageSize = 100
	}
	return &API{
		preview:             preview,
		send:                send,
		idempotency:         newIdempotencyStore(),
		maxUploadBytes:      opts.MaxUploadBytes,
		previewPageSize:     opts.PreviewPageSize,
		defaultPerSendDelay: opts.DefaultPerSendDelay,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// parsePage reads the offset and limit query values. Absent values fall
// back to the defaults, malformed or negative values are a payload
// error, oversized limits are clamped.
func parsePage(r *http.Request, defaultLimit int) (int, int, error) {
	offset := 0
	limit := defaultLimit
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, errInvalidPayload
		}
		offset = parsed
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, 0, errInvalidPayload
		}
		limit = parsed
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit, nil
}

const (
	idempotencyTTL        = 15 * time.Minute
	idempotencyMaxEntries = 2000
)

type idempotencyEntry struct {
	PayloadHash uint64
	JobID       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// idempotencyStore remembers which send job a client key produced, so
// a retried launch returns the original job instead of double-sending
// a campaign. Entries expire after a TTL and the map is capped.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func newIdempotencyStore() *idempotencyStore {
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
	}
}

func (s *idempotencyStore) Get(key string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return idempotencyEntry{}, false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		delete(s.entries, key)
		return idempotencyEntry{}, false
	}
	return entry, true
}

func (s *idempotencyStore) Put(key string, payloadHash uint64, jobID string) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= idempotencyMaxEntries {
		s.evictOldest()
	}
	s.entries[key] = idempotencyEntry{
		PayloadHash: payloadHash,
		JobID:       jobID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(idempotencyTTL),
	}
}

func (s *idempotencyStore) evictOldest() {
	oldestKey := ""
	var oldest time.Time
	for key, entry := range s.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
