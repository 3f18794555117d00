package service

import (
	"context"
	"time"

	"github.com/emeka/bulksms-back/internal/domain"
)

// ProgressSnapshot is a point-in-time view of a send job. Counters are
// copied out together, so Sent+Failed never exceeds Total within one
// snapshot even while the worker keeps counting.
type ProgressSnapshot struct {
	JobID       string
	Status      domain.JobStatus
	Total       int
	Sent        int
	Failed      int
	Percent     int
	ErrorsCount int
	LastUpdate  time.Time
	CompletedAt time.Time
}

// Progress reports the counters of a send job.
func (s *SendService) Progress(ctx context.Context, jobID string) (ProgressSnapshot, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	if job.Kind != domain.JobKindSend {
		return ProgressSnapshot{}, ErrWrongJobKind
	}

	return ProgressSnapshot{
		JobID:       job.ID,
		Status:      job.Status,
		Total:       job.Total,
		Sent:        job.Sent,
		Failed:      job.Failed,
		Percent:     progressPercent(job.Sent, job.Failed, job.Total),
		ErrorsCount: len(job.Errors),
		LastUpdate:  job.LastUpdate,
		CompletedAt: job.CompletedAt,
	}, nil
}

// ErrorPage is one window of a send job's delivery failures.
type ErrorPage struct {
	Errors []domain.DeliveryError
	Offset int
	Limit  int
	Total  int
}

// Errors returns the delivery failures of a send job starting at
// offset, in the order they happened.
func (s *SendService) Errors(ctx context.Context, jobID string, offset, limit int) (ErrorPage, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return ErrorPage{}, err
	}
	if job.Kind != domain.JobKindSend {
		return ErrorPage{}, ErrWrongJobKind
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = fallbackPageSize
	}

	total := len(job.Errors)
	if offset >= total {
		return ErrorPage{Errors: []domain.DeliveryError{}, Offset: offset, Limit: limit, Total: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return ErrorPage{
		Errors: job.Errors[offset:end],
		Offset: offset,
		Limit:  limit,
		Total:  total,
	}, nil
}

// progressPercent is integer math on purpose: pollers see whole
// percentage steps and 100 only once every contact is accounted for.
func progressPercent(sent, failed, total int) int {
	if total <= 0 {
		return 0
	}
	return (sent + failed) * 100 / total
}
