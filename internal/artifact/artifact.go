// Package artifact handles compliance-package generation and download. The
// two operations are independent failure domains: a failed download does not
// invalidate the artifact descriptor.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ripclass/lcvalidate/internal/lchub"
	"github.com/ripclass/lcvalidate/pkg/models"
)

// Generator is the slice of the API client that requests package builds.
type Generator interface {
	GeneratePackage(ctx context.Context, jobID string) (*models.PackageArtifact, error)
}

// Service generates package artifacts and downloads their bytes.
type Service struct {
	gen    Generator
	client *http.Client
}

// NewService creates a Service. A nil httpClient falls back to a client with
// a 60 second timeout; package downloads can be large.
func NewService(gen Generator, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Service{gen: gen, client: httpClient}
}

// Generate requests a downloadable package for a completed job.
func (s *Service) Generate(ctx context.Context, jobID string) (*models.PackageArtifact, error) {
	return s.gen.GeneratePackage(ctx, jobID)
}

// Download fetches the artifact bytes into destDir and returns the final
// path. Bytes stream through a temporary file that is removed on every
// failure path; the destination name only appears once the download is
// complete. Expired artifacts are rejected before any network call.
func (s *Service) Download(ctx context.Context, art *models.PackageArtifact, destDir string) (string, error) {
	const op = "download package"

	if art.Expired(time.Now()) {
		return "", &models.ValidationError{
			Kind:    models.KindValidation,
			Message: fmt.Sprintf("artifact expired at %s", art.ExpiresAt.Format(time.RFC3339)),
			Op:      op,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, art.DownloadURL, nil)
	if err != nil {
		return "", &models.ValidationError{Kind: models.KindUnknown, Message: err.Error(), Op: op}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", lchub.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", lchub.ClassifyResponse(op, resp.StatusCode, raw)
	}

	tmp, err := os.CreateTemp(destDir, ".lcpackage-*")
	if err != nil {
		return "", &models.ValidationError{Kind: models.KindUnknown, Message: err.Error(), Op: op}
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		removeTemp(tmpName)
		return "", lchub.ClassifyTransport(op, err)
	}
	if err := tmp.Close(); err != nil {
		removeTemp(tmpName)
		return "", &models.ValidationError{Kind: models.KindUnknown, Message: err.Error(), Op: op}
	}

	name := art.FileName
	if name == "" {
		name = "validation-package.zip"
	}
	dest := filepath.Join(destDir, filepath.Base(name))

	if err := os.Rename(tmpName, dest); err != nil {
		removeTemp(tmpName)
		return "", &models.ValidationError{Kind: models.KindUnknown, Message: err.Error(), Op: op}
	}

	return dest, nil
}

func removeTemp(name string) {
	if err := os.Remove(name); err != nil {
		slog.Warn("removing temp download failed", "path", name, "error", err)
	}
}
