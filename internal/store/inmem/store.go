// Package inmem is the embedded-mode job store: the same contract as the
// postgres driver, backed by a mutex-guarded map. The dashboard runs with
// it when no database is configured; tests run against it everywhere.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	dberr "github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/model"
	"github.com/likaia/nginxpulse-exporter/internal/store"
)

type Store struct {
	jobStore *Job
}

func New() *Store {
	return &Store{jobStore: &Job{jobs: make(map[string]*model.ExportJob)}}
}

func (s *Store) Job() store.JobStore { return s.jobStore }
func (s *Store) Open() error         { return nil }
func (s *Store) Close() error        { return nil }

type Job struct {
	mu   sync.Mutex
	jobs map[string]*model.ExportJob
}

func (m *Job) Create(_ context.Context, job *model.ExportJob) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return nil, dberr.InvalidArgument(fmt.Sprintf("export job %s already exists", job.ID),
			dberr.WithID("store.export_job.create.duplicate_id"))
	}

	stored := job.Clone()
	now := time.Now().UTC()
	stored.Status = model.ExportStatusQueued
	stored.Processed = 0
	stored.Total = 0
	stored.ArtifactRef = ""
	stored.Error = ""
	stored.CancelRequested = false
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.jobs[stored.ID] = stored
	return stored.Clone(), nil
}

func (m *Job) Get(_ context.Context, id string) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Job) List(_ context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]*model.ExportJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		if websiteID != "" && job.WebsiteID != websiteID {
			continue
		}
		items = append(items, job)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})

	total := int64(len(items))
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []*model.ExportJob{}, total, nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	out := make([]*model.ExportJob, 0, end-start)
	for _, job := range items[start:end] {
		out = append(out, job.Clone())
	}
	return out, total, nil
}

func (m *Job) Claim(_ context.Context, id string) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getRawLocked(id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.ExportStatusQueued {
		return nil, transitionConflict(job, "claim")
	}
	job.Status = model.ExportStatusRunning
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), nil
}

func (m *Job) UpdateProgress(_ context.Context, id string, processed, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getRawLocked(id)
	if err != nil {
		return err
	}
	if job.Status != model.ExportStatusRunning {
		return transitionConflict(job, "update_progress")
	}
	if processed > job.Processed {
		job.Processed = processed
	}
	if total > job.Total {
		job.Total = total
	}
	// a known total is raised to processed, so a shrinking source can never
	// leave processed > total
	if job.Total > 0 && job.Processed > job.Total {
		job.Total = job.Processed
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Job) Complete(ctx context.Context, id, artifactRef string) error {
	return m.finish(id, model.ExportStatusCompleted, artifactRef, "")
}

func (m *Job) Fail(ctx context.Context, id, reason string) error {
	return m.finish(id, model.ExportStatusFailed, "", reason)
}

func (m *Job) ConfirmCancel(ctx context.Context, id string) error {
	return m.finish(id, model.ExportStatusCancelled, "", "")
}

func (m *Job) finish(id string, status model.ExportStatus, artifactRef, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getRawLocked(id)
	if err != nil {
		return err
	}
	if job.Status != model.ExportStatusRunning {
		return transitionConflict(job, "finish")
	}
	job.Status = status
	job.ArtifactRef = artifactRef
	job.Error = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Job) Cancel(_ context.Context, id string) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getRawLocked(id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.ExportStatusQueued:
		job.Status = model.ExportStatusCancelled
	case model.ExportStatusRunning:
		// Cooperative: the worker finalizes at the next batch boundary.
	default:
		return nil, transitionConflict(job, "cancel")
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), nil
}

func (m *Job) CancelRequested(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getRawLocked(id)
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

func (m *Job) QueuedIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queued := make([]*model.ExportJob, 0)
	for _, job := range m.jobs {
		if job.Status == model.ExportStatusQueued {
			queued = append(queued, job)
		}
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	ids := make([]string, 0, len(queued))
	for _, job := range queued {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (m *Job) FailStale(_ context.Context, maxAge time.Duration, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var failed int64
	for _, job := range m.jobs {
		if job.Status == model.ExportStatusRunning && job.UpdatedAt.Before(cutoff) {
			job.Status = model.ExportStatusFailed
			job.Error = reason
			job.UpdatedAt = time.Now().UTC()
			failed++
		}
	}
	return failed, nil
}

func (m *Job) Sweep(_ context.Context, maxAge time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var refs []string
	for id, job := range m.jobs {
		if !job.Status.Terminal() || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if job.ArtifactRef != "" {
			refs = append(refs, job.ArtifactRef)
		}
		delete(m.jobs, id)
	}
	return refs, nil
}

func (m *Job) getLocked(id string) (*model.ExportJob, error) {
	job, err := m.getRawLocked(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

func (m *Job) getRawLocked(id string) (*model.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, dberr.NotFound(fmt.Sprintf("export job %s not found", id),
			dberr.WithID("store.export_job.get.not_found"))
	}
	return job, nil
}

func transitionConflict(job *model.ExportJob, op string) error {
	return dberr.InvalidTransition(
		fmt.Sprintf("export job %s is %s", job.ID, job.Status),
		dberr.WithID(fmt.Sprintf("store.export_job.%s.conflict", op)))
}
