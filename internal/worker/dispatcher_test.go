package worker

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeka/bulksms-back/internal/delivery"
	"github.com/emeka/bulksms-back/internal/domain"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
)

type sentMessage struct {
	phone string
	text  string
	at    time.Time
}

type fakeClient struct {
	mu     sync.Mutex
	calls  []sentMessage
	script func(call int, phone, text string) (delivery.Outcome, error)
}

func (f *fakeClient) Send(_ context.Context, phone, text string) (delivery.Outcome, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, sentMessage{phone: phone, text: text, at: time.Now()})
	f.mu.Unlock()

	if f.script != nil {
		return f.script(call, phone, text)
	}
	return delivery.Outcome{Accepted: true, MessageID: "msg-" + strconv.Itoa(call)}, nil
}

func (f *fakeClient) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.calls...)
}

func seedSendJob(t *testing.T, repo repository.JobsRepository, id string, contacts []domain.Contact) {
	t.Helper()
	require.NoError(t, repo.CreateJob(context.Background(), &domain.Job{
		ID:        id,
		Kind:      domain.JobKindSend,
		Status:    domain.JobStatusQueued,
		Contacts:  contacts,
		Total:     len(contacts),
		CreatedAt: time.Now().UTC(),
	}))
}

func TestProcessTaskCountsEveryOutcome(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{
		{Fullname: "Jane Doe", Phone: "08031111111"},
		{Fullname: "John Smith", Phone: "08032222222"},
		{Fullname: "Mary Major", Phone: "08033333333"},
	}
	seedSendJob(t, repo, "job-1", contacts)

	client := &fakeClient{script: func(call int, _, _ string) (delivery.Outcome, error) {
		switch call {
		case 0:
			return delivery.Outcome{Accepted: true, MessageID: "ok-1"}, nil
		case 1:
			return delivery.Outcome{Accepted: false, Raw: []byte(`{"code":"insufficient_balance"}`)}, nil
		default:
			return delivery.Outcome{}, context.DeadlineExceeded
		}
	}}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	err := d.processTask(context.Background(), domain.DispatchTask{JobID: "job-1", Contacts: contacts, Message: "hello"})
	require.NoError(t, err)

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 1, job.Sent)
	assert.Equal(t, 2, job.Failed)
	require.Len(t, job.Errors, 2)
	assert.Equal(t, "08032222222", job.Errors[0].Contact.Phone)
	assert.Contains(t, string(job.Errors[0].Response), "insufficient_balance")
	assert.Equal(t, "08033333333", job.Errors[1].Contact.Phone)
	assert.Contains(t, string(job.Errors[1].Response), "deadline")
	assert.False(t, job.CompletedAt.IsZero())
	assert.False(t, job.LastUpdate.IsZero())
}

func TestProcessTaskPersonalizesWithFirstName(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{
		{Fullname: "Jane Doe", Phone: "08031111111"},
		{Fullname: "", Phone: "08032222222"},
	}
	seedSendJob(t, repo, "job-1", contacts)

	client := &fakeClient{}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	task := domain.DispatchTask{
		JobID:       "job-1",
		Contacts:    contacts,
		Message:     "Hi {name}, offer ends soon",
		Personalize: true,
	}
	require.NoError(t, d.processTask(context.Background(), task))

	sent := client.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Hi Jane, offer ends soon", sent[0].text)
	assert.Equal(t, "Hi , offer ends soon", sent[1].text, "missing names resolve to an empty first name")
}

func TestProcessTaskSendsTemplateVerbatimWithoutPersonalization(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{{Fullname: "Jane Doe", Phone: "08031111111"}}
	seedSendJob(t, repo, "job-1", contacts)

	client := &fakeClient{}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	task := domain.DispatchTask{JobID: "job-1", Contacts: contacts, Message: "Hi {name}"}
	require.NoError(t, d.processTask(context.Background(), task))

	sent := client.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi {name}", sent[0].text)
}

func TestProcessTaskPacesSendsAfterTheFirst(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{
		{Phone: "08031111111"},
		{Phone: "08032222222"},
		{Phone: "08033333333"},
	}
	seedSendJob(t, repo, "job-1", contacts)

	client := &fakeClient{}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	start := time.Now()
	task := domain.DispatchTask{
		JobID:        "job-1",
		Contacts:     contacts,
		Message:      "hello",
		PerSendDelay: 50 * time.Millisecond,
	}
	require.NoError(t, d.processTask(context.Background(), task))

	sent := client.sent()
	require.Len(t, sent, 3)
	assert.Less(t, sent[0].at.Sub(start), 40*time.Millisecond, "first send should not be delayed")
	assert.GreaterOrEqual(t, sent[2].at.Sub(start), 100*time.Millisecond, "two paced gaps expected")
}

func TestProcessTaskCancellationFailsRemaining(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{
		{Phone: "08031111111"},
		{Phone: "08032222222"},
		{Phone: "08033333333"},
	}
	seedSendJob(t, repo, "job-1", contacts)

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{script: func(call int, _, _ string) (delivery.Outcome, error) {
		if call == 0 {
			cancel()
		}
		return delivery.Outcome{Accepted: true}, nil
	}}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	task := domain.DispatchTask{
		JobID:        "job-1",
		Contacts:     contacts,
		Message:      "hello",
		PerSendDelay: 10 * time.Millisecond,
	}
	require.NoError(t, d.processTask(ctx, task))

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status, "interrupted jobs still finish")
	assert.Equal(t, 1, job.Sent)
	assert.Equal(t, 2, job.Failed)
	require.Len(t, job.Errors, 2)
	assert.Contains(t, string(job.Errors[0].Response), "interrupted")
	assert.Len(t, client.sent(), 1, "no contact may be attempted after cancellation")
}

func TestProcessTaskPanicFailsRemaining(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{
		{Phone: "08031111111"},
		{Phone: "08032222222"},
		{Phone: "08033333333"},
	}
	seedSendJob(t, repo, "job-1", contacts)

	client := &fakeClient{script: func(call int, _, _ string) (delivery.Outcome, error) {
		if call == 1 {
			panic("boom")
		}
		return delivery.Outcome{Accepted: true}, nil
	}}
	d := NewDispatcher(nil, repo, client, zerolog.Nop())

	err := d.processTask(context.Background(), domain.DispatchTask{JobID: "job-1", Contacts: contacts, Message: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	job, getErr := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Sent)
	assert.Equal(t, 2, job.Failed)
	require.Len(t, job.Errors, 2)
	assert.Contains(t, string(job.Errors[0].Response), "aborted")
}

func TestProcessTaskUnknownJob(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	d := NewDispatcher(nil, repo, &fakeClient{}, zerolog.Nop())

	err := d.processTask(context.Background(), domain.DispatchTask{JobID: "ghost", Message: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProcessTaskEmptyContactList(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	seedSendJob(t, repo, "job-1", nil)

	d := NewDispatcher(nil, repo, &fakeClient{}, zerolog.Nop())
	require.NoError(t, d.processTask(context.Background(), domain.DispatchTask{JobID: "job-1", Message: "hello"}))

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Zero(t, job.Total)
	assert.Zero(t, job.Sent)
	assert.Zero(t, job.Failed)
}

func TestStartDrainsQueue(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryJobsRepository()
	contacts := []domain.Contact{{Fullname: "Jane", Phone: "08031111111"}}
	seedSendJob(t, repo, "job-1", contacts)

	q := queue.NewLocalQueue(4, zerolog.Nop())
	client := &fakeClient{}
	d := NewDispatcher(q, repo, client, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, domain.DispatchTask{JobID: "job-1", Contacts: contacts, Message: "hello"}))

	require.Eventually(t, func() bool {
		job, err := repo.GetJob(context.Background(), "job-1")
		return err == nil && job.Status == domain.JobStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Sent)
}

func TestResolveMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		template    string
		personalize bool
		fullname    string
		want        string
	}{
		{name: "first name only", template: "Hi {name}!", personalize: true, fullname: "Jane Doe Smith", want: "Hi Jane!"},
		{name: "placeholder repeated", template: "{name}, {name}", personalize: true, fullname: "Jane", want: "Jane, Jane"},
		{name: "no placeholder", template: "Flat message", personalize: true, fullname: "Jane", want: "Flat message"},
		{name: "personalization off", template: "Hi {name}", personalize: false, fullname: "Jane", want: "Hi {name}"},
		{name: "blank name", template: "Hi {name}", personalize: true, fullname: "   ", want: "Hi "},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := resolveMessage(tt.template, tt.personalize, tt.fullname)
			assert.Equal(t, tt.want, got)
			if !tt.personalize {
				assert.True(t, strings.Contains(got, "{name}") == strings.Contains(tt.template, "{name}"))
			}
		})
	}
}
