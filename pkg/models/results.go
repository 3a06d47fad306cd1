package models

import "encoding/json"

// DocumentResult is the per-document outcome within a completed job.
type DocumentResult struct {
	FileName     string `json:"file_name"`
	DocumentType string `json:"document_type"`
	Status       string `json:"status"`
	Summary      string `json:"summary,omitempty"`
}

// Issue is one discrepancy raised against the document set.
type Issue struct {
	Severity string `json:"severity"`
	Rule     string `json:"rule,omitempty"`
	Document string `json:"document,omitempty"`
	Message  string `json:"message"`
}

// Analytics aggregates issue counts for a completed job.
type Analytics struct {
	DocumentCount int `json:"document_count"`
	IssueCount    int `json:"issue_count"`
	CriticalCount int `json:"critical_count"`
	WarningCount  int `json:"warning_count"`
}

// TimelineEntry is one processing milestone reported by the server.
type TimelineEntry struct {
	Stage     string `json:"stage"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// ValidationResults is the canonical view of a completed job, produced
// exactly once per job from the raw server payload. Raw preserves the
// payload verbatim for callers that need fields outside the normalized view.
type ValidationResults struct {
	JobID     string           `json:"job_id"`
	Documents []DocumentResult `json:"documents"`
	Issues    []Issue          `json:"issues"`
	Analytics Analytics        `json:"analytics"`
	Timeline  []TimelineEntry  `json:"timeline"`
	Raw       json.RawMessage  `json:"raw"`
}
