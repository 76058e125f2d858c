package app

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	cfg "github.com/likaia/nginxpulse-exporter/config"
	memqueue "github.com/likaia/nginxpulse-exporter/internal/cache/memory"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/logsource"
	"github.com/likaia/nginxpulse-exporter/internal/model"
	"github.com/likaia/nginxpulse-exporter/internal/store/inmem"
)

// slowSource releases one page per tick so tests can catch a job running.
type slowSource struct {
	inner *logsource.Static
	tick  time.Duration
}

func (s *slowSource) Query(ctx context.Context, params map[string]string, page, pageSize int) ([]logsource.LogEntry, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(s.tick):
	}
	return s.inner.Query(ctx, params, page, pageSize)
}

func newTestApp(t *testing.T, logs logsource.Source) *App {
	t.Helper()
	if logs == nil {
		logs = logsource.NewStatic(sampleEntries(25))
	}
	return &App{
		Config: &cfg.AppConfig{
			HTTP:     &cfg.HTTPConfig{Addr: "localhost:0"},
			Database: &cfg.DatabaseConfig{},
			Export: &cfg.ExportConfig{
				Workers:   1,
				Dir:       t.TempDir(),
				BatchSize: 10,
			},
		},
		Store:    inmem.New(),
		Queue:    memqueue.New(),
		Logs:     logs,
		validate: validator.New(),
		tracer:   otel.Tracer("test"),
	}
}

func startWorkers(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	app.StartExportWorkers(ctx)
	t.Cleanup(func() {
		cancel()
		_ = app.workers.Wait()
	})
}

func waitForStatus(t *testing.T, app *App, jobID string, status model.ExportStatus) *model.ExportJob {
	t.Helper()
	var job *model.ExportJob
	require.Eventually(t, func() bool {
		var err error
		job, err = app.GetStatus(context.Background(), jobID)
		return err == nil && job.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, status)
	return job
}

func TestStartExportValidation(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	_, err := app.StartExport(ctx, &model.ExportRequest{})
	assert.True(t, errors.IsInvalidArgument(err))

	_, err = app.StartExport(ctx, &model.ExportRequest{WebsiteID: "site-1", Format: "xlsx"})
	assert.True(t, errors.IsInvalidArgument(err))

	app.Config.Websites = []string{"site-1"}
	_, err = app.StartExport(ctx, &model.ExportRequest{WebsiteID: "site-2"})
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestStartExportCanonicalizesParams(t *testing.T) {
	app := newTestApp(t, nil)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{
		WebsiteID:     "site-1",
		TimeRange:     "7d",
		ExcludeSpider: true,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ExportStatusQueued, job.Status)
	assert.Equal(t, "csv", job.Format)
	assert.Equal(t, "site-1", job.Params["id"])
	assert.Equal(t, "7d", job.Params["timeRange"])
	assert.Equal(t, "true", job.Params["excludeSpider"])
	assert.NotContains(t, job.Params, "excludeInternal")
	assert.Equal(t, "timestamp", job.Params["sortField"])
}

func TestExportRunsToCompletion(t *testing.T) {
	app := newTestApp(t, nil)
	startWorkers(t, app)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{
		WebsiteID: "site-1",
		Lang:      "en",
	})
	require.NoError(t, err)

	done := waitForStatus(t, app, job.ID, model.ExportStatusCompleted)
	assert.EqualValues(t, 25, done.Processed)
	assert.EqualValues(t, 25, done.Total)
	assert.NotEmpty(t, done.ArtifactRef)

	artifact, meta, err := app.OpenArtifact(context.Background(), job.ID)
	require.NoError(t, err)
	defer artifact.Close()

	body, err := io.ReadAll(artifact)
	require.NoError(t, err)
	assert.Equal(t, done.ArtifactRef, meta.ArtifactRef)
	assert.True(t, strings.HasPrefix(string(body), "\ufeff"))
	assert.Contains(t, string(body), "203.0.113.7")
}

func TestOpenArtifactRequiresCompleted(t *testing.T) {
	app := newTestApp(t, nil)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)

	_, _, err = app.OpenArtifact(context.Background(), job.ID)
	assert.True(t, errors.IsNotFound(err))

	_, _, err = app.OpenArtifact(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelQueuedJob(t *testing.T) {
	app := newTestApp(t, nil)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)

	cancelled, err := app.CancelExport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExportStatusCancelled, cancelled.Status)

	// the worker must skip the stale queue entry
	startWorkers(t, app)
	time.Sleep(50 * time.Millisecond)
	got, err := app.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExportStatusCancelled, got.Status)
}

func TestCancelRunningJobIsCooperative(t *testing.T) {
	slow := &slowSource{inner: logsource.NewStatic(sampleEntries(100)), tick: 30 * time.Millisecond}
	app := newTestApp(t, slow)
	startWorkers(t, app)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)

	waitForStatus(t, app, job.ID, model.ExportStatusRunning)

	cancelled, err := app.CancelExport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExportStatusRunning, cancelled.Status)
	assert.True(t, cancelled.CancelRequested)

	waitForStatus(t, app, job.ID, model.ExportStatusCancelled)

	_, _, err = app.OpenArtifact(context.Background(), job.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	app := newTestApp(t, nil)
	startWorkers(t, app)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)
	waitForStatus(t, app, job.ID, model.ExportStatusCompleted)

	_, err = app.CancelExport(context.Background(), job.ID)
	assert.True(t, errors.IsInvalidTransition(err))
}

func TestRetryExport(t *testing.T) {
	app := newTestApp(t, nil)

	job, err := app.StartExport(context.Background(), &model.ExportRequest{
		WebsiteID: "site-1",
		TimeRange: "24h",
	})
	require.NoError(t, err)

	// retry of a non-terminal job is rejected
	_, err = app.RetryExport(context.Background(), job.ID)
	assert.True(t, errors.IsInvalidTransition(err))

	_, err = app.CancelExport(context.Background(), job.ID)
	require.NoError(t, err)

	retried, err := app.RetryExport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, retried.ID)
	assert.Equal(t, job.ID, retried.RetryOf)
	assert.Equal(t, job.Params, retried.Params)
	assert.Equal(t, model.ExportStatusQueued, retried.Status)

	// the original record is untouched
	orig, err := app.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExportStatusCancelled, orig.Status)
}

func TestListJobs(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := app.StartExport(ctx, &model.ExportRequest{WebsiteID: "site-1"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	jobs, total, hasMore, err := app.ListJobs(ctx, "site-1", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 3)
	assert.False(t, hasMore)

	jobs, total, hasMore, err = app.ListJobs(ctx, "site-1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, jobs, 2)
	assert.True(t, hasMore)

	_, _, _, err = app.ListJobs(ctx, "site-1", -1, 10)
	assert.True(t, errors.IsInvalidArgument(err))

	jobs, _, _, err = app.ListJobs(ctx, "unknown", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRequeuePending(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	job, err := app.StartExport(ctx, &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)

	// simulate a restart: fresh queue, job still queued in the store
	require.NoError(t, app.Queue.Close())
	app.Queue = memqueue.New()
	require.NoError(t, app.requeuePending(ctx))

	startWorkers(t, app)
	waitForStatus(t, app, job.ID, model.ExportStatusCompleted)
}

func TestCrashedRunningJobRecoversViaStaleTimeout(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	job, err := app.StartExport(ctx, &model.ExportRequest{WebsiteID: "site-1"})
	require.NoError(t, err)

	// a worker claimed the job and died without finishing it
	_, err = app.Store.Job().Claim(ctx, job.ID)
	require.NoError(t, err)

	// retry is blocked only while the job still looks running
	_, err = app.RetryExport(ctx, job.ID)
	assert.True(t, errors.IsInvalidTransition(err))

	time.Sleep(5 * time.Millisecond)
	n, err := app.Store.Job().FailStale(ctx, time.Millisecond, "export timed out")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	retried, err := app.RetryExport(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retried.RetryOf)

	startWorkers(t, app)
	waitForStatus(t, app, retried.ID, model.ExportStatusCompleted)
}
