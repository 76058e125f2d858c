package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likaia/nginxpulse-exporter/internal/cache"
)

func TestPushPopFIFO(t *testing.T) {
	ctx := context.Background()
	q := New()
	defer q.Close()

	require.NoError(t, q.Push(ctx, "a"))
	require.NoError(t, q.Push(ctx, "b"))

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestPopTimesOutEmpty(t *testing.T) {
	q := New()
	defer q.Close()

	_, err := q.Pop(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, cache.ErrEmpty)
}

func TestPopHonorsContext(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx, time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrEmpty)
}

func TestCloseIsIdempotent(t *testing.T) {
	q := New()
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}
