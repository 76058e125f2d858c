// Package memory is the embedded-mode queue: an in-process channel with the
// same hand-off semantics as the redis list.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/likaia/nginxpulse-exporter/internal/cache"
)

const defaultCapacity = 1024

type Queue struct {
	ch     chan string
	once   sync.Once
	closed chan struct{}
}

func New() *Queue {
	return &Queue{
		ch:     make(chan string, defaultCapacity),
		closed: make(chan struct{}),
	}
}

func (q *Queue) Push(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-q.closed:
		return errors.New("queue closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-q.ch:
		return id, nil
	case <-timer.C:
		return "", cache.ErrEmpty
	case <-q.closed:
		return "", cache.ErrEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *Queue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
