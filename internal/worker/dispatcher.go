// Package worker drives send jobs: it consumes dispatch tasks from the
// queue, pushes every contact through the delivery client exactly once
// and keeps the job's progress counters current while doing so.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/emeka/bulksms-back/internal/delivery"
	"github.com/emeka/bulksms-back/internal/domain"
	"github.com/emeka/bulksms-back/internal/policy"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
)

// Dispatcher consumes dispatch tasks and persists status transitions.
type Dispatcher struct {
	consumer queue.Consumer
	repo     repository.JobsRepository
	client   delivery.Client
	logger   zerolog.Logger
}

func NewDispatcher(
	consumer queue.Consumer,
	repo repository.JobsRepository,
	client delivery.Client,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		consumer: consumer,
		repo:     repo,
		client:   client,
		logger:   logger,
	}
}

// Start runs the consume loop until ctx is canceled. Consume errors
// other than cancellation back off briefly and resume.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := d.consumer.Consume(ctx, d.processTask)
		if err == nil || ctx.Err() != nil {
			return
		}
		d.logger.Error().Err(err).Msg("worker consume loop error")

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// processTask walks one job's contact list front to back. Every
// contact gets exactly one send attempt; whatever interrupts the walk
// (shutdown, panic) fails the remaining contacts and completes the job
// so pollers are never left hanging on a running status.
func (d *Dispatcher) processTask(ctx context.Context, task domain.DispatchTask) (err error) {
	processed := 0
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("job_id", task.JobID).Interface("panic", r).Msg("dispatch task panicked")
			d.failRemaining(task, processed, fmt.Sprintf("dispatch aborted: %v", r))
			err = eris.Errorf("dispatch task panicked: %v", r)
		}
	}()

	startedAt := time.Now().UTC()
	if updateErr := d.repo.UpdateJob(ctx, task.JobID, func(job *domain.Job) {
		job.Status = domain.JobStatusRunning
		job.Total = len(task.Contacts)
		job.LastUpdate = startedAt
	}); updateErr != nil {
		return eris.Wrapf(updateErr, "mark job %s running", task.JobID)
	}

	// The limiter starts with one free token, so the first contact is
	// sent immediately and only the gaps between sends are paced.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if task.PerSendDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(task.PerSendDelay), 1)
	}

	sent, failed := 0, 0
	for _, contact := range task.Contacts {
		if waitErr := limiter.Wait(ctx); waitErr != nil {
			d.logger.Warn().
				Str("job_id", task.JobID).
				Int("remaining", len(task.Contacts)-processed).
				Msg("dispatch interrupted, failing remaining contacts")
			d.failRemaining(task, processed, "dispatch interrupted before send")
			return nil
		}

		text := resolveMessage(task.Message, task.Personalize, contact.Fullname)
		outcome, sendErr := d.client.Send(ctx, contact.Phone, text)

		masked := policy.MaskPhone(contact.Phone)
		switch {
		case sendErr != nil:
			failed++
			d.recordOutcome(task.JobID, contact, false, errorResponse(sendErr.Error()))
			d.logger.Warn().Str("job_id", task.JobID).Str("phone", masked).Err(sendErr).Msg("send failed")
		case outcome.Accepted:
			sent++
			d.recordOutcome(task.JobID, contact, true, nil)
			d.logger.Debug().
				Str("job_id", task.JobID).
				Str("phone", masked).
				Str("message_id", outcome.MessageID).
				Msg("message accepted")
		default:
			failed++
			d.recordOutcome(task.JobID, contact, false, outcome.Raw)
			d.logger.Warn().Str("job_id", task.JobID).Str("phone", masked).Msg("message rejected by provider")
		}
		processed++
	}

	completedAt := time.Now().UTC()
	if updateErr := d.repo.UpdateJob(context.Background(), task.JobID, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = completedAt
		job.LastUpdate = completedAt
	}); updateErr != nil {
		return eris.Wrapf(updateErr, "mark job %s completed", task.JobID)
	}

	d.logger.Info().
		Str("job_id", task.JobID).
		Int("sent", sent).
		Int("failed", failed).
		Int("total", len(task.Contacts)).
		Msg("send job completed")
	return nil
}

// recordOutcome lands one contact's verdict. A background context keeps
// counter writes working during shutdown.
func (d *Dispatcher) recordOutcome(jobID string, contact domain.Contact, accepted bool, response json.RawMessage) {
	now := time.Now().UTC()
	_ = d.repo.UpdateJob(context.Background(), jobID, func(job *domain.Job) {
		if accepted {
			job.Sent++
		} else {
			job.Failed++
			job.Errors = append(job.Errors, domain.DeliveryError{Contact: contact, Response: response})
		}
		job.LastUpdate = now
	})
}

// failRemaining marks every contact from position processed onward as
// failed and completes the job in a single repository update.
func (d *Dispatcher) failRemaining(task domain.DispatchTask, processed int, reason string) {
	response := errorResponse(reason)
	now := time.Now().UTC()
	_ = d.repo.UpdateJob(context.Background(), task.JobID, func(job *domain.Job) {
		for _, contact := range task.Contacts[processed:] {
			job.Failed++
			job.Errors = append(job.Errors, domain.DeliveryError{Contact: contact, Response: response})
		}
		job.Status = domain.JobStatusCompleted
		job.CompletedAt = now
		job.LastUpdate = now
	})
}

// resolveMessage renders the outgoing text. Personalization swaps the
// {name} placeholder for the contact's first name; without it the
// template is sent verbatim, placeholder included.
func resolveMessage(template string, personalize bool, fullname string) string {
	if !personalize {
		return template
	}
	firstName := ""
	if fields := strings.Fields(fullname); len(fields) > 0 {
		firstName = fields[0]
	}
	return strings.ReplaceAll(template, domain.PersonalizationPlaceholder, firstName)
}

func errorResponse(message string) json.RawMessage {
	encoded, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return json.RawMessage(`{"error":"dispatch failure"}`)
	}
	return encoded
}
