package cache

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Pop when no job id arrived within the timeout.
var ErrEmpty = errors.New("queue empty (timeout)")

// Queue dispatches queued job ids to export workers. It carries no job
// state: the job store stays the single source of truth, so an id popped
// here is only a hint that a claim may succeed.
type Queue interface {
	Push(ctx context.Context, jobID string) error
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Close() error
}
