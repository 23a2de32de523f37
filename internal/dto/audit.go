package dto

import "time"

// AuditQuery mirrors supported audit trail filters. From and To are RFC 3339.
type AuditQuery struct {
	EntityID string `form:"entity_id"`
	ActorID  string `form:"actor_id"`
	Action   string `form:"action"`
	From     string `form:"from"`
	To       string `form:"to"`
	Format   string `form:"format"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// EvidenceUploadResponse describes a stored evidence file.
type EvidenceUploadResponse struct {
	Ref         string    `json:"ref"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
}
