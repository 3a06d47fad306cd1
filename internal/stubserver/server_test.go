package stubserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitBody(t *testing.T, fileNames ...string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for _, name := range fileNames {
		part, err := mw.CreateFormFile("files[]", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("lc_number", "LC-1"))
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestSubmit_RejectsEmptyUpload(t *testing.T) {
	srv := httptest.NewServer(New(Options{}).Handler())
	defer srv.Close()

	body, contentType := submitBody(t)
	resp, err := http.Post(srv.URL+"/api/validate", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "NO_FILES", errBody.ErrorCode)
}

func TestStatus_AdvancesOneScriptEntryPerPoll(t *testing.T) {
	srv := httptest.NewServer(New(Options{}).Handler())
	defer srv.Close()

	body, contentType := submitBody(t, "invoice.pdf")
	resp, err := http.Post(srv.URL+"/api/validate", contentType, body)
	require.NoError(t, err)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()

	var seen []string
	for i := 0; i < 4; i++ {
		r, err := http.Get(srv.URL + "/api/jobs/" + submitted.JobID)
		require.NoError(t, err)
		var status struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&status))
		r.Body.Close()
		seen = append(seen, status.Status)
	}

	// The last entry repeats once the script is exhausted.
	assert.Equal(t, []string{"Created", "Processing", "COMPLETED", "COMPLETED"}, seen)
}

func TestResults_BeforeCompletionRejected(t *testing.T) {
	srv := httptest.NewServer(New(Options{}).Handler())
	defer srv.Close()

	body, contentType := submitBody(t, "invoice.pdf")
	resp, err := http.Post(srv.URL+"/api/validate", contentType, body)
	require.NoError(t, err)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()

	r, err := http.Get(srv.URL + "/api/results/" + submitted.JobID)
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestRateLimit_WindowExhaustion(t *testing.T) {
	srv := httptest.NewServer(New(Options{RatePerMin: 2}).Handler())
	defer srv.Close()

	for i := 0; i < 2; i++ {
		r, err := http.Get(srv.URL + "/api/jobs")
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusOK, r.StatusCode)
	}

	r, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	defer r.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, r.StatusCode)
	assert.Equal(t, "2", r.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", r.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", r.Header.Get("Retry-After"))

	var errBody struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&errBody))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody.ErrorCode)
}
