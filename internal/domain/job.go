package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobKindPreview JobKind = "preview"
	JobKindSend    JobKind = "send"
)

type JobStatus string

const (
	JobStatusPreview   JobStatus = "preview"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
)

// PersonalizationPlaceholder is the literal marker replaced per contact
// with the first token of the contact's name.
const PersonalizationPlaceholder = "{name}"

// Contact is one extracted recipient. Phone is always in canonical form
// and unique within a single extraction result.
type Contact struct {
	Fullname string `json:"fullname"`
	Phone    string `json:"phone"`
}

// DeliveryError records one failed send together with the raw provider
// payload (or a synthesized one for transport errors).
type DeliveryError struct {
	Contact  Contact         `json:"contact"`
	Response json.RawMessage `json:"response"`
}

// Job is either an upload preview or a send campaign, tagged by Kind.
// Preview jobs carry the extracted contact list and never change after
// creation. Send jobs carry counters mutated by exactly one dispatch
// worker and read concurrently by progress pollers.
type Job struct {
	ID          string
	Kind        JobKind
	Status      JobStatus
	Contacts    []Contact
	Total       int
	Sent        int
	Failed      int
	Errors      []DeliveryError
	CreatedAt   time.Time
	LastUpdate  time.Time
	CompletedAt time.Time
}

// DispatchTask is the unit handed to the dispatch queue. It carries the
// frozen contact list so the worker never re-reads the preview job.
type DispatchTask struct {
	JobID        string
	Contacts     []Contact
	Message      string
	Personalize  bool
	PerSendDelay time.Duration
	RequestedAt  time.Time
}
