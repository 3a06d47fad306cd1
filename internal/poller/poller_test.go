package poller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ripclass/lcvalidate/internal/poller"
	"github.com/ripclass/lcvalidate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 15 * time.Millisecond

// scriptedClient returns one scripted status per call; the last entry
// repeats. A non-nil err is returned on the call at errAt (1-based).
type scriptedClient struct {
	mu     sync.Mutex
	script []models.JobStatus
	calls  int
	errAt  int
	err    error
}

func (c *scriptedClient) JobStatus(_ context.Context, jobID string) (*models.ValidationJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.errAt > 0 && c.calls >= c.errAt {
		return nil, c.err
	}
	idx := c.calls - 1
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	return &models.ValidationJob{ID: jobID, Status: c.script[idx]}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recorder captures hook invocations.
type recorder struct {
	mu          sync.Mutex
	transitions []string
	terminals   []models.JobStatus
	pollErrs    []*models.ValidationError
	updates     int
	done        chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) hooks() poller.Hooks {
	return poller.Hooks{
		OnUpdate: func(job *models.ValidationJob) {
			r.mu.Lock()
			r.updates++
			r.mu.Unlock()
		},
		OnTransition: func(jobID string, from, to models.JobStatus) {
			r.mu.Lock()
			r.transitions = append(r.transitions, string(from)+"->"+string(to))
			r.mu.Unlock()
		},
		OnTerminal: func(job *models.ValidationJob) {
			r.mu.Lock()
			r.terminals = append(r.terminals, job.Status)
			r.mu.Unlock()
			close(r.done)
		},
		OnPollError: func(jobID string, verr *models.ValidationError) {
			r.mu.Lock()
			r.pollErrs = append(r.pollErrs, verr)
			r.mu.Unlock()
			close(r.done)
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to finish")
	}
}

func (r *recorder) snapshot() ([]string, []models.JobStatus, []*models.ValidationError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...),
		append([]models.JobStatus(nil), r.terminals...),
		append([]*models.ValidationError(nil), r.pollErrs...)
}

func TestWatch_PollsUntilTerminal(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{
		models.StatusCreated,
		models.StatusProcessing,
		models.StatusCompleted,
	}}
	rec := newRecorder()
	tr := poller.New(client, testInterval, rec.hooks())

	started := tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: models.StatusCreated})
	require.True(t, started)

	rec.wait(t)

	// One poll per script entry, then the loop stopped.
	assert.Equal(t, 3, client.callCount())

	transitions, terminals, _ := rec.snapshot()
	assert.Equal(t, []string{"created->processing", "processing->completed"}, transitions)
	require.Len(t, terminals, 1)
	assert.Equal(t, models.StatusCompleted, terminals[0])

	assert.Eventually(t, func() bool { return !tr.Active("job-1") },
		time.Second, 5*time.Millisecond)
}

func TestWatch_NoDuplicateTransitionsOnRepeatedStatus(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{
		models.StatusProcessing,
		models.StatusProcessing,
		models.StatusProcessing,
		models.StatusCompleted,
	}}
	rec := newRecorder()
	tr := poller.New(client, testInterval, rec.hooks())

	tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: models.StatusCreated})
	rec.wait(t)

	transitions, _, _ := rec.snapshot()
	assert.Equal(t, []string{"created->processing", "processing->completed"}, transitions)
}

func TestWatch_TerminalInitialNeverPolls(t *testing.T) {
	for _, status := range []models.JobStatus{models.StatusCompleted, models.StatusFailed, models.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			client := &scriptedClient{script: []models.JobStatus{status}}
			rec := newRecorder()
			tr := poller.New(client, testInterval, rec.hooks())

			tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: status})
			rec.wait(t)

			// Give a would-be poll time to fire.
			time.Sleep(3 * testInterval)
			assert.Equal(t, 0, client.callCount())

			_, terminals, _ := rec.snapshot()
			require.Len(t, terminals, 1)
			assert.Equal(t, status, terminals[0])
		})
	}
}

func TestWatch_SecondLoopForSameJobIsNoop(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{models.StatusProcessing}}
	tr := poller.New(client, testInterval, poller.Hooks{})

	job := &models.ValidationJob{ID: "job-1", Status: models.StatusProcessing}
	require.True(t, tr.Watch(context.Background(), job))
	assert.False(t, tr.Watch(context.Background(), job))
	assert.True(t, tr.Active("job-1"))

	tr.Stop("job-1")

	// After a clean stop the id can be watched again.
	assert.True(t, tr.Watch(context.Background(), job))
	tr.Stop("job-1")
}

func TestStop_NoPollFiresAfterwards(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{models.StatusProcessing}}
	rec := newRecorder()
	tr := poller.New(client, testInterval, rec.hooks())

	tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: models.StatusProcessing})

	// Let a few polls happen, then stop.
	require.Eventually(t, func() bool { return client.callCount() >= 2 },
		time.Second, time.Millisecond)
	tr.Stop("job-1")
	calls := client.callCount()

	time.Sleep(4 * testInterval)
	assert.Equal(t, calls, client.callCount(), "a poll fired after Stop")
	assert.False(t, tr.Active("job-1"))

	_, terminals, pollErrs := rec.snapshot()
	assert.Empty(t, terminals)
	assert.Empty(t, pollErrs)
}

func TestStop_IdempotentOnStoppedLoop(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{models.StatusProcessing}}
	tr := poller.New(client, testInterval, poller.Hooks{})

	tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: models.StatusProcessing})
	tr.Stop("job-1")
	tr.Stop("job-1")
	tr.Stop("never-watched")
}

func TestWatch_PollFailureStopsLoop(t *testing.T) {
	verr := &models.ValidationError{Kind: models.KindNetwork, Message: "connection refused", Op: "poll job status"}
	client := &scriptedClient{
		script: []models.JobStatus{models.StatusProcessing},
		errAt:  2,
		err:    verr,
	}
	rec := newRecorder()
	tr := poller.New(client, testInterval, rec.hooks())

	tr.Watch(context.Background(), &models.ValidationJob{ID: "job-1", Status: models.StatusCreated})
	rec.wait(t)

	calls := client.callCount()
	time.Sleep(3 * testInterval)
	assert.Equal(t, calls, client.callCount(), "loop kept polling after a failed attempt")

	_, terminals, pollErrs := rec.snapshot()
	assert.Empty(t, terminals)
	require.Len(t, pollErrs, 1)
	assert.Equal(t, models.KindNetwork, pollErrs[0].Kind)
}

func TestWatch_ContextCancelStopsLoop(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{models.StatusProcessing}}
	rec := newRecorder()
	tr := poller.New(client, testInterval, rec.hooks())

	ctx, cancel := context.WithCancel(context.Background())
	tr.Watch(ctx, &models.ValidationJob{ID: "job-1", Status: models.StatusProcessing})

	require.Eventually(t, func() bool { return client.callCount() >= 1 },
		time.Second, time.Millisecond)
	cancel()

	require.Eventually(t, func() bool { return !tr.Active("job-1") },
		time.Second, 5*time.Millisecond)

	calls := client.callCount()
	time.Sleep(3 * testInterval)
	assert.Equal(t, calls, client.callCount())
}

func TestStopAll(t *testing.T) {
	client := &scriptedClient{script: []models.JobStatus{models.StatusProcessing}}
	tr := poller.New(client, testInterval, poller.Hooks{})

	for _, id := range []string{"a", "b", "c"} {
		tr.Watch(context.Background(), &models.ValidationJob{ID: id, Status: models.StatusProcessing})
	}
	tr.StopAll()

	for _, id := range []string{"a", "b", "c"} {
		assert.False(t, tr.Active(id))
	}
}

func TestIndependentJobsPollIndependently(t *testing.T) {
	clientA := &scriptedClient{script: []models.JobStatus{models.StatusProcessing, models.StatusCompleted}}
	recA := newRecorder()
	trA := poller.New(clientA, testInterval, recA.hooks())

	clientB := &scriptedClient{script: []models.JobStatus{models.StatusCompleted}}
	recB := newRecorder()
	trB := poller.New(clientB, testInterval, recB.hooks())

	trA.Watch(context.Background(), &models.ValidationJob{ID: "a", Status: models.StatusCreated})
	trB.Watch(context.Background(), &models.ValidationJob{ID: "b", Status: models.StatusCreated})

	recA.wait(t)
	recB.wait(t)

	_, terminalsA, _ := recA.snapshot()
	_, terminalsB, _ := recB.snapshot()
	require.Len(t, terminalsA, 1)
	require.Len(t, terminalsB, 1)
}
