package models

import "strings"

// JobStatus is the closed set of validation job states. The server reports
// status as free-case text; NormalizeStatus is the only place that text is
// turned into a JobStatus.
type JobStatus string

const (
	StatusCreated    JobStatus = "created"
	StatusQueued     JobStatus = "queued"
	StatusUploading  JobStatus = "uploading"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusError      JobStatus = "error"
)

var knownStatuses = map[JobStatus]bool{
	StatusCreated:    true,
	StatusQueued:     true,
	StatusUploading:  true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusError:      true,
}

// NormalizeStatus lowercases and trims raw server status text. ok is false
// when the text does not match a known status; callers treat such jobs as
// still in flight rather than inventing a terminal state.
func NormalizeStatus(raw string) (JobStatus, bool) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, knownStatuses[s]
}

// Terminal reports whether no further transition can occur from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusError
}

// Active reports whether the job is still in flight and worth polling.
func (s JobStatus) Active() bool {
	return !s.Terminal()
}

// ValidationJob tracks one server-side validation job. The API returns a job
// id on POST /api/validate; the tracker polls GET /api/jobs/{id} until the
// status is terminal.
type ValidationJob struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Progress     *int      `json:"progress,omitempty"`
	LCNumber     string    `json:"lc_number,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// JobPage is one page of the job history listing.
type JobPage struct {
	Jobs  []ValidationJob `json:"jobs"`
	Total int             `json:"total"`
}
