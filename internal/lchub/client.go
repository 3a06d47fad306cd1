package lchub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ripclass/lcvalidate/pkg/models"
)

// Client is the interface for the remote validation API. Every method
// returns a *models.ValidationError on failure.
type Client interface {
	SubmitValidation(ctx context.Context, req *models.ValidationRequest) (*models.ValidationJob, error)
	JobStatus(ctx context.Context, jobID string) (*models.ValidationJob, error)
	RawResults(ctx context.Context, jobID string) ([]byte, error)
	GeneratePackage(ctx context.Context, jobID string) (*models.PackageArtifact, error)
	ListJobs(ctx context.Context, p ListJobsParams) (*models.JobPage, error)
}

// ListJobsParams filters the job history listing.
type ListJobsParams struct {
	Limit        int
	StatusFilter string
}

// HTTPClient implements Client over the validation service's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new validation API client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// jobResponse is the wire shape shared by the submit and status endpoints.
type jobResponse struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress *int    `json:"progress,omitempty"`
	LCNumber string  `json:"lc_number,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// toJob normalizes the raw status text exactly once, at the wire boundary.
// Unrecognized statuses are carried through lowercased; they are not
// terminal, so trackers keep polling them.
func (jr *jobResponse) toJob() *models.ValidationJob {
	status, _ := models.NormalizeStatus(jr.Status)
	return &models.ValidationJob{
		ID:           jr.JobID,
		Status:       status,
		Progress:     jr.Progress,
		LCNumber:     jr.LCNumber,
		ErrorMessage: jr.Error,
	}
}

// SubmitValidation uploads the document set and returns the created job.
// It does not retry; retry is a caller decision.
func (c *HTTPClient) SubmitValidation(ctx context.Context, req *models.ValidationRequest) (*models.ValidationJob, error) {
	const op = "submit validation"

	if len(req.Files) == 0 {
		return nil, localError(op, models.KindValidation, "at least one file is required")
	}

	body, contentType, err := buildSubmissionBody(req)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/validate", body)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, ClassifyResponse(op, resp.StatusCode, raw)
	}

	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, ClassifyParsing(op, err)
	}
	if jr.JobID == "" {
		return nil, ClassifyParsing(op, fmt.Errorf("response missing job_id"))
	}

	return jr.toJob(), nil
}

// JobStatus fetches the current snapshot of one job.
func (c *HTTPClient) JobStatus(ctx context.Context, jobID string) (*models.ValidationJob, error) {
	const op = "poll job status"

	u := fmt.Sprintf("%s/api/jobs/%s", c.baseURL, url.PathEscape(jobID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, ClassifyResponse(op, resp.StatusCode, raw)
	}

	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, ClassifyParsing(op, err)
	}
	if jr.JobID == "" {
		jr.JobID = jobID
	}

	return jr.toJob(), nil
}

// RawResults fetches the full structured result payload for a completed job
// without interpreting it. Normalization happens in ParseResults.
func (c *HTTPClient) RawResults(ctx context.Context, jobID string) ([]byte, error) {
	const op = "fetch results"

	u := fmt.Sprintf("%s/api/results/%s", c.baseURL, url.PathEscape(jobID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyResponse(op, resp.StatusCode, raw)
	}

	return raw, nil
}

// GeneratePackage asks the server to build a downloadable compliance package
// for a completed job.
func (c *HTTPClient) GeneratePackage(ctx context.Context, jobID string) (*models.PackageArtifact, error) {
	const op = "generate package"

	u := fmt.Sprintf("%s/api/package/%s", c.baseURL, url.PathEscape(jobID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, ClassifyResponse(op, resp.StatusCode, raw)
	}

	var artifact models.PackageArtifact
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return nil, ClassifyParsing(op, err)
	}
	if artifact.DownloadURL == "" {
		return nil, ClassifyParsing(op, fmt.Errorf("response missing downloadUrl"))
	}

	return &artifact, nil
}

// ListJobs returns one page of past jobs, optionally filtered by status.
func (c *HTTPClient) ListJobs(ctx context.Context, p ListJobsParams) (*models.JobPage, error) {
	const op = "list jobs"

	params := url.Values{}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.StatusFilter != "" {
		params.Set("status_filter", p.StatusFilter)
	}

	u := c.baseURL + "/api/jobs"
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, localError(op, models.KindUnknown, err.Error())
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, ClassifyResponse(op, resp.StatusCode, raw)
	}

	var lr struct {
		Jobs  []jobResponse `json:"jobs"`
		Total int           `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, ClassifyParsing(op, err)
	}

	page := &models.JobPage{Total: lr.Total, Jobs: make([]models.ValidationJob, 0, len(lr.Jobs))}
	for i := range lr.Jobs {
		page.Jobs = append(page.Jobs, *lr.Jobs[i].toJob())
	}

	return page, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// buildSubmissionBody assembles the multipart form for POST /api/validate.
func buildSubmissionBody(req *models.ValidationRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range req.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files[]"; filename="%s"`, escapeQuotes(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating file part %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("writing file part %q: %w", f.Name, err)
		}
	}

	if req.LCNumber != "" {
		if err := w.WriteField("lc_number", req.LCNumber); err != nil {
			return nil, "", err
		}
	}
	if req.Notes != "" {
		if err := w.WriteField("notes", req.Notes); err != nil {
			return nil, "", err
		}
	}

	if len(req.DocumentTags) > 0 {
		tags, err := json.Marshal(req.DocumentTags)
		if err != nil {
			return nil, "", fmt.Errorf("marshal document tags: %w", err)
		}
		if err := w.WriteField("document_tags", string(tags)); err != nil {
			return nil, "", err
		}
	}

	userType := req.UserType
	if userType == "" {
		userType = models.DefaultUserType
	}
	if err := w.WriteField("user_type", userType); err != nil {
		return nil, "", err
	}

	workflowType := req.WorkflowType
	if workflowType == "" {
		workflowType = models.DefaultWorkflowType
	}
	if err := w.WriteField("workflow_type", workflowType); err != nil {
		return nil, "", err
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["client_request_id"]; !ok {
		metadata["client_request_id"] = uuid.NewString()
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := w.WriteField("metadata", string(meta)); err != nil {
		return nil, "", err
	}

	if req.LCTypeOverride != "" && req.LCTypeOverride != models.LCTypeAuto {
		if err := w.WriteField("lc_type_override", req.LCTypeOverride); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
