package store

import (
	"context"
	"time"

	"github.com/likaia/nginxpulse-exporter/internal/model"
)

type Store interface {
	Job() JobStore

	// ------------ Database Management ------------ //
	Open() error
	Close() error
}

// JobStore is the single owner of ExportJob records. Every mutation is
// atomic: the status change, the counters and the updated_at bump become
// visible together, and terminal states are never overwritten.
type JobStore interface {
	// Create persists a fresh job in status queued and returns its snapshot.
	Create(ctx context.Context, job *model.ExportJob) (*model.ExportJob, error)
	Get(ctx context.Context, id string) (*model.ExportJob, error)
	// List returns one page of a website's jobs ordered by created_at
	// descending, together with the total count.
	List(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, error)

	// Claim transitions queued→running as a compare-and-swap: at most one
	// caller wins a given job, the rest get InvalidTransition.
	Claim(ctx context.Context, id string) (*model.ExportJob, error)
	// UpdateProgress bumps the counters of a running job; counters never
	// regress as observed by pollers. total<=0 leaves the stored total, and
	// a known total is raised to processed so processed never exceeds it.
	UpdateProgress(ctx context.Context, id string, processed, total int64) error
	Complete(ctx context.Context, id, artifactRef string) error
	Fail(ctx context.Context, id, reason string) error

	// Cancel handles an explicit cancel request: a queued job goes straight
	// to cancelled, a running job keeps running with cancel_requested set,
	// a terminal job yields InvalidTransition.
	Cancel(ctx context.Context, id string) (*model.ExportJob, error)
	// CancelRequested is polled by workers at batch boundaries.
	CancelRequested(ctx context.Context, id string) (bool, error)
	// ConfirmCancel is the worker's terminal path after it observed the
	// cancel signal: running→cancelled.
	ConfirmCancel(ctx context.Context, id string) error

	// QueuedIDs lists jobs still queued, oldest first, for requeue on
	// restart.
	QueuedIDs(ctx context.Context) ([]string, error)
	// FailStale fails running jobs without progress for longer than maxAge.
	FailStale(ctx context.Context, maxAge time.Duration, reason string) (int64, error)
	// Sweep deletes terminal jobs not updated for longer than maxAge and
	// returns their artifact refs so the caller can remove the files.
	Sweep(ctx context.Context, maxAge time.Duration) ([]string, error)
}
