// Package poller owns the job status polling loops: one cancellable loop per
// job id, strictly sequential polls, and a transition event on each actual
// status change.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ripclass/lcvalidate/pkg/models"
)

// DefaultInterval is the fixed delay between polls. The server sends no
// backoff signal; the interval is constant.
const DefaultInterval = 2 * time.Second

// StatusClient is the slice of the API client the tracker needs.
type StatusClient interface {
	JobStatus(ctx context.Context, jobID string) (*models.ValidationJob, error)
}

// Hooks receive lifecycle events for a tracked job. All hooks are optional.
// They are invoked from the job's polling goroutine, so for one job they are
// strictly sequential; hooks for different jobs may run concurrently.
type Hooks struct {
	// OnUpdate fires after every successful poll with the latest snapshot.
	OnUpdate func(job *models.ValidationJob)
	// OnTransition fires at most once per actual status change, never once
	// per poll tick.
	OnTransition func(jobID string, from, to models.JobStatus)
	// OnTerminal fires exactly once, when a terminal status is observed.
	OnTerminal func(job *models.ValidationJob)
	// OnPollError fires when a poll attempt itself fails; the loop stops.
	OnPollError func(jobID string, verr *models.ValidationError)
}

// Tracker runs the polling loops. Starting a second loop for a job id that
// already has an active one is a no-op.
type Tracker struct {
	client   StatusClient
	interval time.Duration
	hooks    Hooks

	mu    sync.Mutex
	loops map[string]*loop
}

type loop struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Tracker polling through client at the given interval.
// A non-positive interval falls back to DefaultInterval.
func New(client StatusClient, interval time.Duration, hooks Hooks) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		client:   client,
		interval: interval,
		hooks:    hooks,
		loops:    make(map[string]*loop),
	}
}

// Watch starts tracking a job from its last known snapshot. It returns false
// without side effects when a loop for the job id is already active. When
// the initial status is already terminal, OnTerminal fires once and no poll
// is ever scheduled.
func (t *Tracker) Watch(ctx context.Context, job *models.ValidationJob) bool {
	t.mu.Lock()
	if _, active := t.loops[job.ID]; active {
		t.mu.Unlock()
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l := &loop{jobID: job.ID, cancel: cancel, done: make(chan struct{})}
	t.loops[job.ID] = l
	t.mu.Unlock()

	go t.run(loopCtx, l, job)
	return true
}

// Active reports whether a loop for jobID is currently running.
func (t *Tracker) Active(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.loops[jobID]
	return ok
}

// Stop cancels the loop for jobID and waits until it has fully wound down,
// so no hook fires after Stop returns. Stopping an unknown or already
// stopped job is a no-op.
func (t *Tracker) Stop(jobID string) {
	t.mu.Lock()
	l, ok := t.loops[jobID]
	if ok {
		delete(t.loops, jobID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	l.cancel()
	<-l.done
}

// StopAll stops every active loop. Used on context teardown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	loops := make([]*loop, 0, len(t.loops))
	for id, l := range t.loops {
		loops = append(loops, l)
		delete(t.loops, id)
	}
	t.mu.Unlock()

	for _, l := range loops {
		l.cancel()
		<-l.done
	}
}

func (t *Tracker) run(ctx context.Context, l *loop, initial *models.ValidationJob) {
	defer close(l.done)
	defer t.remove(l)
	defer l.cancel()

	last := initial.Status
	if last.Terminal() {
		t.emitTerminal(initial)
		return
	}

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		job, err := t.client.JobStatus(ctx, l.jobID)

		// A response that lands after cancellation is discarded; no hook
		// fires once the loop is stopped.
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			verr := asValidationError(err, l.jobID)
			slog.Error("job poll failed",
				"job_id", l.jobID,
				"kind", string(verr.Kind),
				"error", verr.Message,
			)
			if t.hooks.OnPollError != nil {
				t.hooks.OnPollError(l.jobID, verr)
			}
			return
		}

		if job.Status != last {
			slog.Info("job status changed",
				"job_id", l.jobID,
				"from", string(last),
				"to", string(job.Status),
			)
			if t.hooks.OnTransition != nil {
				t.hooks.OnTransition(l.jobID, last, job.Status)
			}
			last = job.Status
		}

		if t.hooks.OnUpdate != nil {
			t.hooks.OnUpdate(job)
		}

		if job.Status.Terminal() {
			t.emitTerminal(job)
			return
		}

		// Exactly one future poll per active status.
		timer.Reset(t.interval)
	}
}

func (t *Tracker) remove(l *loop) {
	t.mu.Lock()
	if cur, ok := t.loops[l.jobID]; ok && cur == l {
		delete(t.loops, l.jobID)
	}
	t.mu.Unlock()
}

func (t *Tracker) emitTerminal(job *models.ValidationJob) {
	slog.Info("job reached terminal status", "job_id", job.ID, "status", string(job.Status))
	if t.hooks.OnTerminal != nil {
		t.hooks.OnTerminal(job)
	}
}

// asValidationError recovers the classified error from a poll failure. The
// client always returns classified errors; anything else is wrapped as
// unknown rather than leaked raw.
func asValidationError(err error, jobID string) *models.ValidationError {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &models.ValidationError{
		Kind:    models.KindUnknown,
		Message: err.Error(),
		Op:      "poll job " + jobID,
	}
}
