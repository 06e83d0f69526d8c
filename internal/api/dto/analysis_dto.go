package dto

import "encoding/json"

type CreateUploadRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	Filename     string `json:"filename" binding:"required"`
	ContentType  string `json:"content_type" binding:"required"`
	Size         int64  `json:"size" binding:"required"`
	LastModified int64  `json:"last_modified" binding:"required"`
	Context      string `json:"context"`
}

type CreateUploadResponse struct {
	Cached      bool            `json:"cached"`
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Status      string          `json:"status,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Upload      *UploadTarget   `json:"upload,omitempty"`
}

// UploadTarget tells the client where and how to write the artifact. The
// headers must be sent verbatim on the PUT; the signature covers the key,
// the content type, and the expiry.
type UploadTarget struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt string            `json:"expires_at"`
}

type PutObjectResponse struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	Size        int64  `json:"size"`
	Status      string `json:"status"`
}

// AnalysisStatusResponse is the poll response. Status is "processing" for
// every unresolved or unreadable state; Data is present only alongside
// completed or degraded.
type AnalysisStatusResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type AnalysisDTO struct {
	UserID      string          `json:"user_id"`
	Fingerprint string          `json:"fingerprint"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type ListAnalysesResponse struct {
	Analyses []AnalysisDTO `json:"analyses"`
}

type FailAnalysisRequest struct {
	Reason string `json:"reason" binding:"required"`
}
