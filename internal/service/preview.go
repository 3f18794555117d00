package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/domain"
	"github.com/emeka/bulksms-back/internal/extract"
	"github.com/emeka/bulksms-back/internal/repository"
	"github.com/emeka/bulksms-back/internal/spreadsheet"
)

// ErrWrongJobKind reports an operation aimed at a job of the wrong
// kind, like paging the contacts of a send job.
var ErrWrongJobKind = errors.New("job kind mismatch")

const fallbackPageSize = 100

// PreviewService turns uploaded spreadsheets into preview jobs that
// hold the cleaned contact list a send can later be started from.
type PreviewService struct {
	repo      repository.JobsRepository
	extractor *extract.Extractor
	logger    zerolog.Logger
}

func NewPreviewService(
	repo repository.JobsRepository,
	extractor *extract.Extractor,
	logger zerolog.Logger,
) *PreviewService {
	return &PreviewService{
		repo:      repo,
		extractor: extractor,
		logger:    logger,
	}
}

// CreateFromUpload parses the upload, extracts its contacts and stores
// them as a new preview job. Parse and extraction sentinels pass
// through untouched so callers can map them to responses.
func (s *PreviewService) CreateFromUpload(ctx context.Context, filename string, file io.Reader) (*domain.Job, error) {
	table, err := spreadsheet.Read(filename, file)
	if err != nil {
		return nil, err
	}

	contacts, err := s.extractor.Extract(table)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:         uuid.NewString(),
		Kind:       domain.JobKindPreview,
		Status:     domain.JobStatusPreview,
		Contacts:   contacts,
		Total:      len(contacts),
		CreatedAt:  now,
		LastUpdate: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "create preview job")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("filename", filename).
		Int("rows", len(table.Rows)).
		Int("contacts", job.Total).
		Msg("preview job created")
	return job, nil
}

// PreviewPage is one window of a preview job's contact list.
type PreviewPage struct {
	Contacts []domain.Contact
	Offset   int
	Limit    int
	Total    int
}

// Page returns the contacts of a preview job starting at offset.
func (s *PreviewService) Page(ctx context.Context, jobID string, offset, limit int) (PreviewPage, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return PreviewPage{}, err
	}
	if job.Kind != domain.JobKindPreview {
		return PreviewPage{}, ErrWrongJobKind
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = fallbackPageSize
	}

	total := len(job.Contacts)
	if offset >= total {
		return PreviewPage{Contacts: []domain.Contact{}, Offset: offset, Limit: limit, Total: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return PreviewPage{
		Contacts: job.Contacts[offset:end],
		Offset:   offset,
		Limit:    limit,
		Total:    total,
	}, nil
}
