package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	dberr "github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/model"
	"github.com/likaia/nginxpulse-exporter/internal/store"
)

const jobTable = "exporter.export_job"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var jobColumns = []string{
	"id",
	"website_id",
	"params",
	"format",
	"file_name",
	"status",
	"processed",
	"total",
	"artifact_ref",
	"error",
	"retry_of",
	"cancel_requested",
	"created_at",
	"updated_at",
}

type Job struct {
	storage *Store
}

func NewJobStore(s *Store) (store.JobStore, error) {
	if s == nil {
		return nil, dberr.Internal("store is nil", dberr.WithID("store.postgres.new_job_store.error"))
	}
	return &Job{storage: s}, nil
}

func (m *Job) Create(ctx context.Context, job *model.ExportJob) (*model.ExportJob, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(id, website_id, params, format, file_name, status, retry_of, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING %s
	`, jobTable, columnList())

	now := time.Now().UTC()
	row := db.QueryRow(ctx, query,
		job.ID,
		job.WebsiteID,
		job.Params,
		job.Format,
		job.FileName,
		model.ExportStatusQueued,
		job.RetryOf,
		now,
	)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, dberr.InvalidArgument(pgErr.Message,
				dberr.WithID("store.export_job.create.duplicate_id"), dberr.WithCause(err))
		}
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.create.error"), dberr.WithCause(err))
	}
	return created, nil
}

func (m *Job) Get(ctx context.Context, id string) (*model.ExportJob, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	sqlStr, args, err := psql.
		Select(jobColumns...).
		From(jobTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, dberr.Internal(err.Error(), dberr.WithID("store.export_job.get.build.error"))
	}

	job, err := scanJob(db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.NotFound(fmt.Sprintf("export job %s not found", id),
				dberr.WithID("store.export_job.get.not_found"))
		}
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.get.error"), dberr.WithCause(err))
	}
	return job, nil
}

func (m *Job) List(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := int64(page-1) * int64(pageSize)

	countQuery := psql.Select("count(*)").From(jobTable)
	listQuery := psql.
		Select(jobColumns...).
		From(jobTable).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(offset)).
		Limit(uint64(pageSize))
	if websiteID != "" {
		countQuery = countQuery.Where(sq.Eq{"website_id": websiteID})
		listQuery = listQuery.Where(sq.Eq{"website_id": websiteID})
	}

	sqlStr, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, dberr.Internal(err.Error(), dberr.WithID("store.export_job.list.build.error"))
	}
	var total int64
	if err := db.QueryRow(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.list.count.error"), dberr.WithCause(err))
	}

	sqlStr, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, dberr.Internal(err.Error(), dberr.WithID("store.export_job.list.build.error"))
	}
	rows, err := db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.list.query.error"), dberr.WithCause(err))
	}
	defer rows.Close()

	jobs := make([]*model.ExportJob, 0, pageSize)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, dberr.Internal(err.Error(),
				dberr.WithID("store.export_job.list.scan.error"), dberr.WithCause(err))
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.list.rows.error"), dberr.WithCause(err))
	}
	return jobs, total, nil
}

// Claim is the worker-side compare-and-swap: only a queued job may move to
// running, so concurrent claims on the same id leave exactly one winner.
func (m *Job) Claim(ctx context.Context, id string) (*model.ExportJob, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING %s
	`, jobTable, columnList())

	job, err := scanJob(db.QueryRow(ctx, query, id, model.ExportStatusRunning, model.ExportStatusQueued))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, m.transitionConflict(ctx, id, "claim")
		}
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.claim.error"), dberr.WithCause(err))
	}
	return job, nil
}

func (m *Job) UpdateProgress(ctx context.Context, id string, processed, total int64) error {
	db, err := m.storage.Database()
	if err != nil {
		return err
	}

	// GREATEST keeps the counters monotonic even if a worker reports out of
	// order. While total is unknown it stays 0; once known it is also raised
	// to processed, so a shrinking source can never leave processed > total.
	query := fmt.Sprintf(`
		UPDATE %s
		SET processed = GREATEST(processed, $2),
		    total = CASE WHEN GREATEST(total, $3) > 0
		                 THEN GREATEST(total, $3, processed, $2)
		                 ELSE total END,
		    updated_at = now()
		WHERE id = $1 AND status = $4
	`, jobTable)

	cmd, err := db.Exec(ctx, query, id, processed, total, model.ExportStatusRunning)
	if err != nil {
		return dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.update_progress.error"), dberr.WithCause(err))
	}
	if cmd.RowsAffected() == 0 {
		return m.transitionConflict(ctx, id, "update_progress")
	}
	return nil
}

func (m *Job) Complete(ctx context.Context, id, artifactRef string) error {
	return m.finish(ctx, id, model.ExportStatusCompleted, artifactRef, "")
}

func (m *Job) Fail(ctx context.Context, id, reason string) error {
	return m.finish(ctx, id, model.ExportStatusFailed, "", reason)
}

func (m *Job) ConfirmCancel(ctx context.Context, id string) error {
	return m.finish(ctx, id, model.ExportStatusCancelled, "", "")
}

// finish performs the worker's single terminal transition. Only a running
// job may finish, which also guarantees terminal states are never
// overwritten: completed⇒artifact_ref, failed⇒error, cancelled⇒neither.
func (m *Job) finish(ctx context.Context, id string, status model.ExportStatus, artifactRef, reason string) error {
	db, err := m.storage.Database()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, artifact_ref = $3, error = $4, updated_at = now()
		WHERE id = $1 AND status = $5
	`, jobTable)

	cmd, err := db.Exec(ctx, query, id, status, artifactRef, reason, model.ExportStatusRunning)
	if err != nil {
		return dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.finish.error"), dberr.WithCause(err))
	}
	if cmd.RowsAffected() == 0 {
		return m.transitionConflict(ctx, id, "finish")
	}
	return nil
}

func (m *Job) Cancel(ctx context.Context, id string) (*model.ExportJob, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	// One atomic statement: queued flips to cancelled, running keeps its
	// status and gets the pending-cancel flag, terminal rows are untouched.
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = CASE WHEN status = $2 THEN $3 ELSE status END,
		    cancel_requested = true,
		    updated_at = now()
		WHERE id = $1 AND status IN ($2, $4)
		RETURNING %s
	`, jobTable, columnList())

	job, err := scanJob(db.QueryRow(ctx, query, id,
		model.ExportStatusQueued, model.ExportStatusCancelled, model.ExportStatusRunning))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, m.transitionConflict(ctx, id, "cancel")
		}
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.cancel.error"), dberr.WithCause(err))
	}
	return job, nil
}

func (m *Job) CancelRequested(ctx context.Context, id string) (bool, error) {
	db, err := m.storage.Database()
	if err != nil {
		return false, err
	}

	var requested bool
	err = db.QueryRow(ctx,
		fmt.Sprintf("SELECT cancel_requested FROM %s WHERE id = $1", jobTable), id).
		Scan(&requested)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return false, dberr.NotFound(fmt.Sprintf("export job %s not found", id),
				dberr.WithID("store.export_job.cancel_requested.not_found"))
		}
		return false, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.cancel_requested.error"), dberr.WithCause(err))
	}
	return requested, nil
}

func (m *Job) QueuedIDs(ctx context.Context) ([]string, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE status = $1 ORDER BY created_at", jobTable),
		model.ExportStatusQueued)
	if err != nil {
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.queued_ids.error"), dberr.WithCause(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Internal(err.Error(),
				dberr.WithID("store.export_job.queued_ids.scan.error"), dberr.WithCause(err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.queued_ids.rows.error"), dberr.WithCause(err))
	}
	return ids, nil
}

func (m *Job) FailStale(ctx context.Context, maxAge time.Duration, reason string) (int64, error) {
	db, err := m.storage.Database()
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, error = $2, updated_at = now()
		WHERE status = $3 AND updated_at < now() - $4::interval
	`, jobTable)

	cmd, err := db.Exec(ctx, query,
		model.ExportStatusFailed, reason, model.ExportStatusRunning, maxAge.String())
	if err != nil {
		return 0, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.fail_stale.error"), dberr.WithCause(err))
	}
	return cmd.RowsAffected(), nil
}

func (m *Job) Sweep(ctx context.Context, maxAge time.Duration) ([]string, error) {
	db, err := m.storage.Database()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE status IN ($1, $2, $3) AND updated_at < now() - $4::interval
		RETURNING artifact_ref
	`, jobTable)

	rows, err := db.Query(ctx, query,
		model.ExportStatusCompleted, model.ExportStatusFailed, model.ExportStatusCancelled,
		maxAge.String())
	if err != nil {
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.sweep.error"), dberr.WithCause(err))
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, dberr.Internal(err.Error(),
				dberr.WithID("store.export_job.sweep.scan.error"), dberr.WithCause(err))
		}
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Internal(err.Error(),
			dberr.WithID("store.export_job.sweep.rows.error"), dberr.WithCause(err))
	}
	return refs, nil
}

// transitionConflict turns a zero-row conditional update into the precise
// failure: NotFound for an unknown id, InvalidTransition otherwise.
func (m *Job) transitionConflict(ctx context.Context, id, op string) error {
	job, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return dberr.InvalidTransition(
		fmt.Sprintf("export job %s is %s", id, job.Status),
		dberr.WithID(fmt.Sprintf("store.export_job.%s.conflict", op)))
}

func columnList() string {
	list := jobColumns[0]
	for _, col := range jobColumns[1:] {
		list += ", " + col
	}
	return list
}

func scanJob(row pgx.Row) (*model.ExportJob, error) {
	var job model.ExportJob
	err := row.Scan(
		&job.ID,
		&job.WebsiteID,
		&job.Params,
		&job.Format,
		&job.FileName,
		&job.Status,
		&job.Processed,
		&job.Total,
		&job.ArtifactRef,
		&job.Error,
		&job.RetryOf,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
