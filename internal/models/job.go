package models

import "time"

// Job statuses for asynchronous archive requests.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ArchiveJob is a queued archive request. The terminal envelope is stored
// alongside the job once a worker finishes it.
type ArchiveJob struct {
	ID        string           `json:"id"`
	Request   CreateZipRequest `json:"request"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Result    *ArchiveResult   `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ArchiveResult is the stored outcome of a completed archive job.
type ArchiveResult struct {
	StatusCode  int       `json:"status_code"`
	ZipData     string    `json:"zip_data,omitempty"`
	ByteSize    int64     `json:"byte_size,omitempty"`
	ErrorDetail string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
