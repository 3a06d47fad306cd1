// Package orchestrator drives one validation job from submission through
// polling to a consistent read of its results. It is the job-tracking
// context: it owns the tracker and tears every loop down on Close.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ripclass/lcvalidate/internal/artifact"
	"github.com/ripclass/lcvalidate/internal/cache"
	"github.com/ripclass/lcvalidate/internal/lchub"
	"github.com/ripclass/lcvalidate/internal/poller"
	"github.com/ripclass/lcvalidate/internal/results"
	"github.com/ripclass/lcvalidate/pkg/models"
)

// Outcome is the terminal state of one tracked job: either a final job
// snapshot, or the classified error that stopped tracking.
type Outcome struct {
	Job *models.ValidationJob
	Err *models.ValidationError
}

// Orchestrator wires the API client, tracker, result fetcher and artifact
// service together behind one façade.
type Orchestrator struct {
	client   lchub.Client
	fetcher  *results.Fetcher
	packages *artifact.Service
	tracker  *poller.Tracker

	mu      sync.Mutex
	waiters map[string]chan Outcome
}

// Config bundles the orchestrator's tunables.
type Config struct {
	PollInterval time.Duration // defaults to poller.DefaultInterval
	ResultTTL    time.Duration // defaults to results.DefaultTTL
	HTTPClient   *http.Client  // used for artifact downloads
}

// New creates an Orchestrator around the given client and cache.
func New(client lchub.Client, c cache.Cache, cfg Config) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		fetcher:  results.NewFetcher(client, c, cfg.ResultTTL),
		packages: artifact.NewService(client, cfg.HTTPClient),
		waiters:  make(map[string]chan Outcome),
	}
	o.tracker = poller.New(client, cfg.PollInterval, poller.Hooks{
		OnTransition: func(jobID string, from, to models.JobStatus) {
			slog.Info("validation job transition", "job_id", jobID, "from", string(from), "to", string(to))
		},
		OnTerminal:  o.onTerminal,
		OnPollError: o.onPollError,
	})
	return o
}

// Run submits the request and blocks until the job reaches a terminal state
// or ctx is cancelled. On completion it performs the forced-fresh results
// read. For jobs that end in failed or error, the final snapshot is returned
// with nil results and a nil error; the job's own status is not a transport
// failure.
func (o *Orchestrator) Run(ctx context.Context, req *models.ValidationRequest) (*models.ValidationResults, *models.ValidationJob, error) {
	job, err := o.client.SubmitValidation(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("validation job submitted", "job_id", job.ID, "status", string(job.Status))

	ch := o.register(job.ID)
	defer o.unregister(job.ID)

	if !o.tracker.Watch(ctx, job) {
		return nil, nil, fmt.Errorf("job %s is already being tracked", job.ID)
	}

	select {
	case <-ctx.Done():
		o.tracker.Stop(job.ID)
		return nil, job, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, job, out.Err
		}
		job = out.Job
	}

	if job.Status != models.StatusCompleted {
		return nil, job, nil
	}

	res, err := o.fetcher.FreshResults(ctx, job.ID)
	if err != nil {
		return nil, job, err
	}
	return res, job, nil
}

// Results is the read-through path for a job's results, for callers that do
// not need the post-terminal consistency guarantee.
func (o *Orchestrator) Results(ctx context.Context, jobID string) (*models.ValidationResults, error) {
	return o.fetcher.CachedResults(ctx, jobID)
}

// DownloadPackage generates a compliance package for a completed job and
// downloads it into destDir, returning the final path.
func (o *Orchestrator) DownloadPackage(ctx context.Context, jobID, destDir string) (string, error) {
	art, err := o.packages.Generate(ctx, jobID)
	if err != nil {
		return "", err
	}
	return o.packages.Download(ctx, art, destDir)
}

// History lists past jobs.
func (o *Orchestrator) History(ctx context.Context, limit int, statusFilter string) (*models.JobPage, error) {
	return o.client.ListJobs(ctx, lchub.ListJobsParams{Limit: limit, StatusFilter: statusFilter})
}

// Close stops all active polling loops.
func (o *Orchestrator) Close() {
	o.tracker.StopAll()
}

func (o *Orchestrator) register(jobID string) chan Outcome {
	ch := make(chan Outcome, 1)
	o.mu.Lock()
	o.waiters[jobID] = ch
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) unregister(jobID string) {
	o.mu.Lock()
	delete(o.waiters, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) notify(jobID string, out Outcome) {
	o.mu.Lock()
	ch, ok := o.waiters[jobID]
	o.mu.Unlock()
	if ok {
		ch <- out
	}
}

func (o *Orchestrator) onTerminal(job *models.ValidationJob) {
	o.notify(job.ID, Outcome{Job: job})
}

func (o *Orchestrator) onPollError(jobID string, verr *models.ValidationError) {
	o.notify(jobID, Outcome{Err: verr})
}
