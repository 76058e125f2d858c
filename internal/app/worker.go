package app

import (
	"bufio"
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/likaia/nginxpulse-exporter/internal/cache"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/model"
)

const (
	popTimeout      = 2 * time.Second
	janitorInterval = time.Minute
)

// StartExportWorkers launches background workers to process export jobs
// concurrently. If too many workers are configured, the number is limited
// based on available CPU cores.
func (app *App) StartExportWorkers(ctx context.Context) {
	numWorkers := app.Config.Export.Workers
	if numWorkers <= 0 {
		numWorkers = 4
	}

	maxWorkers := runtime.NumCPU() * 2
	if numWorkers > maxWorkers {
		numWorkers = maxWorkers
	}

	slog.InfoContext(ctx, "exporter.worker.starting", slog.Int("count", numWorkers))

	g, ctx := errgroup.WithContext(ctx)
	app.workers = g
	for i := 0; i < numWorkers; i++ {
		workerID := i + 1
		g.Go(func() error {
			return app.workerLoop(ctx, workerID)
		})
	}
	if app.Config.Export.StaleAfter > 0 || app.Config.Export.RetentionTTL > 0 {
		g.Go(func() error {
			return app.janitorLoop(ctx)
		})
	}
}

func (app *App) workerLoop(ctx context.Context, workerID int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		jobID, err := app.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if stderrors.Is(err, cache.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.ErrorContext(ctx, "exporter.worker.pop_failed",
				slog.Int("worker_id", workerID), slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		job, err := app.Store.Job().Claim(ctx, jobID)
		if err != nil {
			// Lost the claim race, or the job was cancelled/swept while
			// its id sat in the queue.
			if errors.IsInvalidTransition(err) || errors.IsNotFound(err) {
				continue
			}
			slog.ErrorContext(ctx, "exporter.worker.claim_failed",
				slog.Int("worker_id", workerID),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
			continue
		}

		slog.InfoContext(ctx, "exporter.worker.claimed",
			slog.Int("worker_id", workerID), slog.String("job_id", job.ID))
		app.runExport(ctx, job)
	}
}

// runExport drives one claimed job to exactly one terminal state.
func (app *App) runExport(ctx context.Context, job *model.ExportJob) {
	jobs := app.Store.Job()

	if requested, err := jobs.CancelRequested(ctx, job.ID); err == nil && requested {
		_ = jobs.ConfirmCancel(ctx, job.ID)
		return
	}

	path := filepath.Join(app.Config.Export.Dir, job.ID+"."+job.Format)
	file, err := os.Create(path)
	if err != nil {
		_ = jobs.Fail(ctx, job.ID, err.Error())
		return
	}

	buffered := bufio.NewWriter(file)
	batchSize := app.Config.Export.BatchSize
	lang := job.Params["lang"]
	progress := func(processed, total int64) {
		_ = jobs.UpdateProgress(ctx, job.ID, processed, total)
	}
	cancelled := func() bool {
		requested, err := jobs.CancelRequested(ctx, job.ID)
		return err == nil && requested
	}

	switch job.Format {
	case model.ExportFormatPDF:
		err = writeLogsPDF(ctx, buffered, app.Logs, job.Params, lang, batchSize, progress, cancelled)
	default:
		err = writeLogsCSV(ctx, buffered, app.Logs, job.Params, lang, batchSize, progress, cancelled)
	}
	if flushErr := buffered.Flush(); err == nil && flushErr != nil {
		err = flushErr
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		if stderrors.Is(err, errExportCancelled) {
			_ = jobs.ConfirmCancel(ctx, job.ID)
		} else {
			slog.ErrorContext(ctx, "exporter.worker.export_failed",
				slog.String("job_id", job.ID), slog.String("error", err.Error()))
			_ = jobs.Fail(ctx, job.ID, err.Error())
		}
		return
	}

	if err := jobs.Complete(ctx, job.ID, path); err != nil {
		// The job reached a terminal state some other way (e.g. failed as
		// stale); the record wins and the orphan artifact goes away.
		_ = os.Remove(path)
		slog.WarnContext(ctx, "exporter.worker.complete_conflict",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	slog.InfoContext(ctx, "exporter.worker.completed",
		slog.String("job_id", job.ID), slog.String("artifact", path))
}

// janitorLoop applies the optional policy extensions: failing stale running
// jobs and sweeping expired terminal jobs together with their artifacts.
func (app *App) janitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		jobs := app.Store.Job()
		if staleAfter := app.Config.Export.StaleAfter; staleAfter > 0 {
			n, err := jobs.FailStale(ctx, staleAfter, "export timed out: no progress for "+staleAfter.String())
			if err != nil {
				slog.ErrorContext(ctx, "exporter.janitor.fail_stale_error", slog.String("error", err.Error()))
			} else if n > 0 {
				slog.WarnContext(ctx, "exporter.janitor.failed_stale_jobs", slog.Int64("count", n))
			}
		}
		if ttl := app.Config.Export.RetentionTTL; ttl > 0 {
			refs, err := jobs.Sweep(ctx, ttl)
			if err != nil {
				slog.ErrorContext(ctx, "exporter.janitor.sweep_error", slog.String("error", err.Error()))
				continue
			}
			for _, ref := range refs {
				_ = os.Remove(ref)
			}
			if len(refs) > 0 {
				slog.InfoContext(ctx, "exporter.janitor.swept_artifacts", slog.Int("count", len(refs)))
			}
		}
	}
}
