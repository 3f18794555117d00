package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/domain"
	"github.com/emeka/bulksms-back/internal/policy"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
)

// maxPerSendDelay caps how far apart a campaign may space its sends.
const maxPerSendDelay = 5 * time.Second

// SendDependencies wires a SendService.
type SendDependencies struct {
	Repo     repository.JobsRepository
	Producer queue.Producer
	Rules    policy.MessageRules
	Logger   zerolog.Logger
}

// SendService starts send jobs from previews and answers progress and
// error queries about them.
type SendService struct {
	repo     repository.JobsRepository
	producer queue.Producer
	rules    policy.MessageRules
	logger   zerolog.Logger
}

func NewSendService(deps SendDependencies) *SendService {
	return &SendService{
		repo:     deps.Repo,
		producer: deps.Producer,
		rules:    deps.Rules,
		logger:   deps.Logger,
	}
}

// SendRequest describes one campaign start. PerSendDelay below zero is
// treated as zero and anything above the cap is clamped down.
type SendRequest struct {
	PreviewJobID string
	Message      string
	Personalize  bool
	PerSendDelay time.Duration
}

// Start snapshots the preview's contacts into a new send job and
// enqueues its dispatch task. When the queue refuses the task the job
// is removed again, so a rejected start leaves no trace.
func (s *SendService) Start(ctx context.Context, request SendRequest) (*domain.Job, error) {
	if err := s.rules.ValidateTemplate(request.Message); err != nil {
		return nil, err
	}

	preview, err := s.repo.GetJob(ctx, request.PreviewJobID)
	if err != nil {
		return nil, err
	}
	if preview.Kind != domain.JobKindPreview {
		return nil, ErrWrongJobKind
	}

	delay := request.PerSendDelay
	if delay < 0 {
		delay = 0
	}
	if delay > maxPerSendDelay {
		delay = maxPerSendDelay
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:         uuid.NewString(),
		Kind:       domain.JobKindSend,
		Status:     domain.JobStatusQueued,
		Contacts:   preview.Contacts,
		Total:      len(preview.Contacts),
		CreatedAt:  now,
		LastUpdate: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "create send job")
	}

	task := domain.DispatchTask{
		JobID:        job.ID,
		Contacts:     preview.Contacts,
		Message:      request.Message,
		Personalize:  request.Personalize,
		PerSendDelay: delay,
		RequestedAt:  now,
	}
	if err := s.producer.Enqueue(ctx, task); err != nil {
		_ = s.repo.DeleteJob(ctx, job.ID)
		return nil, eris.Wrap(err, "enqueue dispatch task")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("preview_job_id", preview.ID).
		Int("contacts", job.Total).
		Bool("personalize", request.Personalize).
		Dur("per_send_delay", delay).
		Msg("send job queued")
	return job, nil
}
