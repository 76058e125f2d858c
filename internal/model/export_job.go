package model

import "time"

type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
	ExportStatusCancelled ExportStatus = "cancelled"
)

// Terminal reports whether no further transition may leave the status.
func (s ExportStatus) Terminal() bool {
	switch s {
	case ExportStatusCompleted, ExportStatusFailed, ExportStatusCancelled:
		return true
	}
	return false
}

// ExportJob is the persisted unit of export work. The job store is the sole
// owner of these records; everything else works on snapshots.
type ExportJob struct {
	ID        string            `json:"id" db:"id"`
	WebsiteID string            `json:"website_id" db:"website_id"`
	Params    map[string]string `json:"params,omitempty" db:"params"`
	Format    string            `json:"format" db:"format"`
	FileName  string            `json:"file_name,omitempty" db:"file_name"`
	Status    ExportStatus      `json:"status" db:"status"`
	Processed int64             `json:"processed,omitempty" db:"processed"`
	Total     int64             `json:"total,omitempty" db:"total"`
	// ArtifactRef is set only when Status is completed.
	ArtifactRef string `json:"artifact_ref,omitempty" db:"artifact_ref"`
	// Error is set only when Status is failed.
	Error string `json:"error,omitempty" db:"error"`
	// RetryOf links a retried job back to the record it re-attempts.
	RetryOf         string    `json:"retry_of,omitempty" db:"retry_of"`
	CancelRequested bool      `json:"cancel_requested,omitempty" db:"cancel_requested"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate stored state.
func (j *ExportJob) Clone() *ExportJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.Params != nil {
		out.Params = make(map[string]string, len(j.Params))
		for k, v := range j.Params {
			out.Params[k] = v
		}
	}
	return &out
}
