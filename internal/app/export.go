package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/likaia/nginxpulse-exporter/internal/canonical"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/model"
)

const maxListPageSize = 100

// StartExport validates and canonicalizes the request, persists a queued
// job and hands its id to the worker queue. It never waits for a worker;
// repeated identical requests always create new jobs.
func (app *App) StartExport(ctx context.Context, req *model.ExportRequest) (*model.ExportJob, error) {
	ctx, span := app.tracer.Start(ctx, "export.start")
	defer span.End()

	req.Normalize()
	if err := app.validate.Struct(req); err != nil {
		return nil, errors.InvalidArgument(err.Error(),
			errors.WithID("app.export.start.validate.error"), errors.WithCause(err))
	}
	if !app.websiteKnown(req.WebsiteID) {
		return nil, errors.InvalidArgument(fmt.Sprintf("unknown website %q", req.WebsiteID),
			errors.WithID("app.export.start.unknown_website"))
	}

	params := canonical.Canonicalize(req.Options())
	job := &model.ExportJob{
		ID:        uuid.NewString(),
		WebsiteID: req.WebsiteID,
		Params:    params,
		Format:    req.Format,
		FileName:  exportFileName(req.Format),
	}

	created, err := app.Store.Job().Create(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := app.Queue.Push(ctx, created.ID); err != nil {
		// The record stays queued; a requeue pass picks it up on restart.
		slog.ErrorContext(ctx, "exporter.export.enqueue_failed",
			slog.String("job_id", created.ID), slog.String("error", err.Error()))
	}

	slog.InfoContext(ctx, "exporter.export.started",
		slog.String("job_id", created.ID),
		slog.String("website_id", created.WebsiteID),
		slog.String("format", created.Format))
	return created, nil
}

// GetStatus returns the current job snapshot.
func (app *App) GetStatus(ctx context.Context, jobID string) (*model.ExportJob, error) {
	if jobID == "" {
		return nil, errors.InvalidArgument("job id is required",
			errors.WithID("app.export.status.missing_id"))
	}
	return app.Store.Job().Get(ctx, jobID)
}

// ListJobs pages a website's job history, newest first. page/pageSize
// default to 1/20; explicit non-positive values are rejected.
func (app *App) ListJobs(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, bool, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = 20
	}
	if page < 1 || pageSize < 1 {
		return nil, 0, false, errors.InvalidArgument("page and pageSize must be positive",
			errors.WithID("app.export.list.bad_page"))
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}

	jobs, total, err := app.Store.Job().List(ctx, websiteID, page, pageSize)
	if err != nil {
		return nil, 0, false, err
	}
	hasMore := int64(page)*int64(pageSize) < total
	return jobs, total, hasMore, nil
}

// CancelExport requests cooperative cancellation. A queued job flips to
// cancelled immediately; a running job keeps running with the pending-cancel
// flag set until its worker reaches the next batch boundary.
func (app *App) CancelExport(ctx context.Context, jobID string) (*model.ExportJob, error) {
	ctx, span := app.tracer.Start(ctx, "export.cancel")
	defer span.End()

	if jobID == "" {
		return nil, errors.InvalidArgument("job id is required",
			errors.WithID("app.export.cancel.missing_id"))
	}
	job, err := app.Store.Job().Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "exporter.export.cancel_requested",
		slog.String("job_id", job.ID), slog.String("status", string(job.Status)))
	return job, nil
}

// RetryExport re-attempts a failed or cancelled export as a brand-new job
// linked through retry_of; the original record is never touched.
func (app *App) RetryExport(ctx context.Context, jobID string) (*model.ExportJob, error) {
	ctx, span := app.tracer.Start(ctx, "export.retry")
	defer span.End()

	if jobID == "" {
		return nil, errors.InvalidArgument("job id is required",
			errors.WithID("app.export.retry.missing_id"))
	}
	prev, err := app.Store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch prev.Status {
	case model.ExportStatusFailed, model.ExportStatusCancelled:
	default:
		return nil, errors.InvalidTransition(
			fmt.Sprintf("export job %s is %s", prev.ID, prev.Status),
			errors.WithID("app.export.retry.conflict"))
	}

	job := &model.ExportJob{
		ID:        uuid.NewString(),
		WebsiteID: prev.WebsiteID,
		Params:    prev.Params,
		Format:    prev.Format,
		FileName:  exportFileName(prev.Format),
		RetryOf:   prev.ID,
	}
	created, err := app.Store.Job().Create(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := app.Queue.Push(ctx, created.ID); err != nil {
		slog.ErrorContext(ctx, "exporter.export.enqueue_failed",
			slog.String("job_id", created.ID), slog.String("error", err.Error()))
	}

	slog.InfoContext(ctx, "exporter.export.retried",
		slog.String("job_id", created.ID), slog.String("retry_of", prev.ID))
	return created, nil
}

// OpenArtifact serves DownloadExport: the artifact stream of a completed
// job. Unknown ids, non-terminal jobs and artifacts removed from disk all
// surface as NotFound.
func (app *App) OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error) {
	job, err := app.GetStatus(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.ExportStatusCompleted || job.ArtifactRef == "" {
		return nil, nil, errors.NotFound(
			fmt.Sprintf("export job %s has no artifact (status %s)", job.ID, job.Status),
			errors.WithID("app.export.download.not_completed"))
	}
	file, err := os.Open(job.ArtifactRef)
	if err != nil {
		return nil, nil, errors.NotFound(
			fmt.Sprintf("artifact for export job %s is gone", job.ID),
			errors.WithID("app.export.download.artifact_missing"), errors.WithCause(err))
	}
	return file, job, nil
}

func (app *App) websiteKnown(id string) bool {
	if len(app.Config.Websites) == 0 {
		return true
	}
	for _, known := range app.Config.Websites {
		if known == id {
			return true
		}
	}
	return false
}

func exportFileName(format string) string {
	return fmt.Sprintf("nginxpulse_logs_%s.%s", time.Now().Format("20060102_150405"), format)
}
