package models

import "time"

// PackageArtifact describes a generated compliance package download. It is
// ephemeral; the URL is only valid until ExpiresAt.
type PackageArtifact struct {
	DownloadURL string    `json:"downloadUrl"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the artifact's validity window has passed.
func (a *PackageArtifact) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
