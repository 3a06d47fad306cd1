// Package stubserver is an in-memory stand-in for the remote validation API,
// used by the end-to-end tests and the stubapi dev binary. Jobs advance
// through a configurable status script one poll at a time, and quota and
// rate-limit exhaustion can be simulated.
package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ripclass/lcvalidate/pkg/models"
)

// DefaultStatusScript drives a job from creation to completion over three
// polls. Mixed casing is deliberate: the real API reports status text with
// inconsistent case and clients must normalize.
var DefaultStatusScript = []string{"Created", "Processing", "COMPLETED"}

// Options configures the simulated API behavior.
type Options struct {
	// StatusScript is returned entry by entry on successive polls; the last
	// entry repeats. Defaults to DefaultStatusScript.
	StatusScript []string
	// QuotaLimit caps accepted submissions; past it, POST /api/validate
	// returns 402 with a quota snapshot. Zero means unlimited.
	QuotaLimit int
	// UpgradeURL is the next-action URL carried by quota errors.
	UpgradeURL string
	// RatePerMin caps requests per fixed one-minute window; past it the
	// server returns 429. Zero means unlimited.
	RatePerMin int
	// PackageBytes is the artifact content served at the download URL.
	PackageBytes []byte
}

// Server holds the in-memory job table.
type Server struct {
	opts Options

	mu          sync.Mutex
	jobs        map[string]*stubJob
	order       []string
	submits     int
	reqCount    int
	windowStart time.Time
}

type stubJob struct {
	id        string
	lcNumber  string
	files     []string
	tags      map[string]string
	script    []string
	pollCount int
}

// New creates a stub server with the given options.
func New(opts Options) *Server {
	if len(opts.StatusScript) == 0 {
		opts.StatusScript = DefaultStatusScript
	}
	if opts.UpgradeURL == "" {
		opts.UpgradeURL = "https://billing.example.com/upgrade"
	}
	if len(opts.PackageBytes) == 0 {
		opts.PackageBytes = []byte("PK\x03\x04 stub compliance package")
	}
	return &Server{opts: opts, jobs: make(map[string]*stubJob)}
}

// Handler builds the chi router with the middleware stack and all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(recovery)
	if s.opts.RatePerMin > 0 {
		r.Use(s.rateLimit)
	}

	r.Post("/api/validate", s.handleSubmit)
	r.Get("/api/jobs", s.handleList)
	r.Get("/api/jobs/{jobID}", s.handleStatus)
	r.Get("/api/results/{jobID}", s.handleResults)
	r.Post("/api/package/{jobID}", s.handlePackage)
	r.Get("/download/{jobID}", s.handleDownload)

	return r
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.opts.QuotaLimit > 0 && s.submits >= s.opts.QuotaLimit {
		used, limit := s.submits, s.opts.QuotaLimit
		s.mu.Unlock()
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"message":     "monthly validation quota exhausted",
			"quota":       models.QuotaSnapshot{Used: used, Limit: limit, Remaining: 0},
			"upgrade_url": s.opts.UpgradeURL,
		})
		return
	}
	s.mu.Unlock()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart body", "BAD_MULTIPART")
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required", "NO_FILES")
		return
	}

	tags := map[string]string{}
	if raw := r.FormValue("document_tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			writeError(w, http.StatusBadRequest, "document_tags is not valid JSON", "BAD_TAGS")
			return
		}
	}

	job := &stubJob{
		id:       uuid.NewString(),
		lcNumber: r.FormValue("lc_number"),
		tags:     tags,
		script:   s.opts.StatusScript,
	}
	for _, fh := range files {
		job.files = append(job.files, fh.Filename)
	}

	s.mu.Lock()
	s.jobs[job.id] = job
	s.order = append(s.order, job.id)
	s.submits++
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.id,
		"status": job.script[0],
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	idx := job.pollCount
	if idx >= len(job.script) {
		idx = len(job.script) - 1
	}
	job.pollCount++
	status := job.script[idx]
	progress := (idx + 1) * 100 / len(job.script)
	lcNumber := job.lcNumber
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    jobID,
		"status":    status,
		"progress":  progress,
		"lc_number": lcNumber,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	payload, done := s.resultsPayloadLocked(job)
	s.mu.Unlock()

	if !done {
		writeError(w, http.StatusBadRequest, "job has not completed", "JOB_NOT_COMPLETED")
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

// resultsPayloadLocked builds the structured result payload for a job whose
// current script position is a completed status. Caller holds s.mu.
func (s *Server) resultsPayloadLocked(job *stubJob) (map[string]any, bool) {
	idx := job.pollCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(job.script) {
		idx = len(job.script) - 1
	}
	if !strings.EqualFold(job.script[idx], "completed") {
		return nil, false
	}

	docs := make([]map[string]any, 0, len(job.files))
	for _, name := range job.files {
		docType := job.tags[name]
		if docType == "" {
			docType = "unclassified"
		}
		docs = append(docs, map[string]any{
			"file_name":     name,
			"document_type": docType,
			"status":        "validated",
		})
	}

	issues := []map[string]any{}
	if job.lcNumber == "" {
		issues = append(issues, map[string]any{
			"severity": "warning",
			"rule":     "LC-REF-MISSING",
			"message":  "no LC reference number was supplied",
		})
	}

	return map[string]any{
		"documents": docs,
		"issues":    issues,
		"analytics": map[string]any{
			"document_count": len(docs),
			"issue_count":    len(issues),
			"critical_count": 0,
			"warning_count":  len(issues),
		},
		"timeline": []map[string]any{
			{"stage": "received", "timestamp": time.Now().UTC().Format(time.RFC3339)},
			{"stage": "completed", "timestamp": time.Now().UTC().Format(time.RFC3339)},
		},
	}, true
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	_, ok := s.jobs[jobID]
	size := len(s.opts.PackageBytes)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"downloadUrl": fmt.Sprintf("http://%s/download/%s", r.Host, jobID),
		"fileName":    fmt.Sprintf("compliance-package-%s.zip", jobID[:8]),
		"fileSize":    size,
		"expiresAt":   time.Now().Add(15 * time.Minute).UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	_, ok := s.jobs[jobID]
	body := s.opts.PackageBytes
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Write(body)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	statusFilter := r.URL.Query().Get("status_filter")

	s.mu.Lock()
	entries := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		idx := job.pollCount - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(job.script) {
			idx = len(job.script) - 1
		}
		status := job.script[idx]
		if statusFilter != "" && !strings.EqualFold(status, statusFilter) {
			continue
		}
		entries = append(entries, map[string]any{
			"job_id":    id,
			"status":    status,
			"lc_number": job.lcNumber,
		})
	}
	s.mu.Unlock()

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  entries,
		"total": total,
	})
}
