package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emeka/bulksms-back/internal/domain"
)

func TestMemoryJobsRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	job := &domain.Job{
		ID:     "job-1",
		Kind:   domain.JobKindPreview,
		Status: domain.JobStatusPreview,
		Contacts: []domain.Contact{
			{Fullname: "Jane Doe", Phone: "08031234567"},
		},
		Total:     1,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	stored, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Kind != domain.JobKindPreview || len(stored.Contacts) != 1 {
		t.Fatalf("unexpected stored job: %+v", stored)
	}
}

func TestMemoryJobsRepositoryGetReturnsCopy(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	if err := repo.CreateJob(ctx, &domain.Job{
		ID:       "job-1",
		Kind:     domain.JobKindSend,
		Status:   domain.JobStatusQueued,
		Contacts: []domain.Contact{{Fullname: "Jane", Phone: "08031234567"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Status = domain.JobStatusCompleted
	first.Contacts[0].Fullname = "mutated"

	second, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Status != domain.JobStatusQueued {
		t.Fatalf("mutating a returned job must not touch the store, got status %q", second.Status)
	}
	if second.Contacts[0].Fullname != "Jane" {
		t.Fatalf("mutating returned contacts must not touch the store, got %q", second.Contacts[0].Fullname)
	}
}

func TestMemoryJobsRepositoryUpdateMutatesAtomically(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	if err := repo.CreateJob(ctx, &domain.Job{
		ID:     "job-1",
		Kind:   domain.JobKindSend,
		Status: domain.JobStatusRunning,
		Total:  100,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.UpdateJob(ctx, "job-1", func(job *domain.Job) {
				job.Sent++
			})
		}()
	}
	wg.Wait()

	job, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Sent != 100 {
		t.Fatalf("expected 100 increments to land, got %d", job.Sent)
	}
}

func TestMemoryJobsRepositoryMissingJob(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	if _, err := repo.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if err := repo.UpdateJob(ctx, "missing", func(*domain.Job) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from update, got %v", err)
	}
	if err := repo.DeleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from delete, got %v", err)
	}
}

func TestMemoryJobsRepositoryDelete(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	if err := repo.CreateJob(ctx, &domain.Job{ID: "job-1", Kind: domain.JobKindSend}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeleteJob(ctx, "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetJob(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted job to be gone, got %v", err)
	}
}
