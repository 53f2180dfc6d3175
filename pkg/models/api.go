package models

import "time"

// PreviewRequest represents a request to generate a preview
type PreviewRequest struct {
	Input string `json:"input" binding:"required"` // Source path, relative to the media root
	Token string `json:"token"`                    // Submit token, when auth is enabled
}

// PreviewResponse is returned when a job is accepted
type PreviewResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	StatusURL string `json:"statusUrl"`
}

// JobInfo represents job status returned by the API
type JobInfo struct {
	JobStatus
	CueURL      string   `json:"cueUrl,omitempty"`
	MetadataURL string   `json:"metadataUrl,omitempty"`
	SheetURLs   []string `json:"sheetUrls,omitempty"`
	Metadata    any      `json:"metadata,omitempty"` // metadata document once done
}

// JobListResponse represents a list of jobs
type JobListResponse struct {
	Jobs  []JobInfo `json:"jobs"`
	Total int       `json:"total"`
}

// TokenRequest asks for a submit token
type TokenRequest struct {
	Input     string `json:"input" binding:"required"`
	ExpiresIn int    `json:"expiresIn"` // seconds, optional
}

// TokenResponse carries an issued submit token
type TokenResponse struct {
	Token     string    `json:"token"`
	Input     string    `json:"input"`
	ExpiresAt time.Time `json:"expiresAt"`
}
