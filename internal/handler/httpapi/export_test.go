package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/model"
)

type stubService struct {
	startFn  func(ctx context.Context, req *model.ExportRequest) (*model.ExportJob, error)
	statusFn func(ctx context.Context, jobID string) (*model.ExportJob, error)
	listFn   func(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, bool, error)
	cancelFn func(ctx context.Context, jobID string) (*model.ExportJob, error)
	retryFn  func(ctx context.Context, jobID string) (*model.ExportJob, error)
	openFn   func(ctx context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error)
}

func (s *stubService) StartExport(ctx context.Context, req *model.ExportRequest) (*model.ExportJob, error) {
	return s.startFn(ctx, req)
}

func (s *stubService) GetStatus(ctx context.Context, jobID string) (*model.ExportJob, error) {
	return s.statusFn(ctx, jobID)
}

func (s *stubService) ListJobs(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, bool, error) {
	return s.listFn(ctx, websiteID, page, pageSize)
}

func (s *stubService) CancelExport(ctx context.Context, jobID string) (*model.ExportJob, error) {
	return s.cancelFn(ctx, jobID)
}

func (s *stubService) RetryExport(ctx context.Context, jobID string) (*model.ExportJob, error) {
	return s.retryFn(ctx, jobID)
}

func (s *stubService) OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error) {
	return s.openFn(ctx, jobID)
}

func TestStartExportEndpoint(t *testing.T) {
	svc := &stubService{
		startFn: func(_ context.Context, req *model.ExportRequest) (*model.ExportJob, error) {
			assert.Equal(t, "site-1", req.WebsiteID)
			assert.Equal(t, "pdf", req.Format)
			return &model.ExportJob{ID: "job-1", WebsiteID: req.WebsiteID, Format: req.Format, Status: model.ExportStatusQueued}, nil
		},
	}
	router := NewRouter(svc)

	body := bytes.NewBufferString(`{"id":"site-1","format":"pdf","timeRange":"7d"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs/export", body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var job model.ExportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.ExportStatusQueued, job.Status)
}

func TestStartExportMalformedBody(t *testing.T) {
	router := NewRouter(&stubService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs/export", strings.NewReader("{broken")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var appErr errors.AppError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appErr))
	assert.Equal(t, "api.export.start.decode.error", appErr.ID)
}

func TestGetStatusEndpoint(t *testing.T) {
	svc := &stubService{
		statusFn: func(_ context.Context, jobID string) (*model.ExportJob, error) {
			if jobID != "job-1" {
				return nil, errors.NotFound("no such job")
			}
			return &model.ExportJob{ID: jobID, Status: model.ExportStatusRunning, Processed: 40, Total: 100}, nil
		},
	}
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/status?id=job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.ExportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.EqualValues(t, 40, job.Processed)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/status?id=other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsEndpoint(t *testing.T) {
	svc := &stubService{
		listFn: func(_ context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, bool, error) {
			assert.Equal(t, "site-1", websiteID)
			assert.Equal(t, 2, page)
			assert.Equal(t, 10, pageSize)
			return []*model.ExportJob{{ID: "job-9"}}, 11, false, nil
		},
	}
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/list?id=site-1&page=2&pageSize=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 11, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.False(t, resp.HasMore)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-9", resp.Jobs[0].ID)
}

func TestListJobsBadPage(t *testing.T) {
	router := NewRouter(&stubService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/list?page=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndRetryEndpoints(t *testing.T) {
	svc := &stubService{
		cancelFn: func(_ context.Context, jobID string) (*model.ExportJob, error) {
			return nil, errors.InvalidTransition("export job " + jobID + " is completed")
		},
		retryFn: func(_ context.Context, jobID string) (*model.ExportJob, error) {
			return &model.ExportJob{ID: "job-2", RetryOf: jobID, Status: model.ExportStatusQueued}, nil
		},
	}
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs/export/cancel?id=job-1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs/export/retry?id=job-1", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job model.ExportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.RetryOf)
}

func TestDownloadEndpoint(t *testing.T) {
	svc := &stubService{
		openFn: func(_ context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error) {
			job := &model.ExportJob{
				ID:       jobID,
				Format:   model.ExportFormatCSV,
				FileName: "nginxpulse_logs.csv",
				Status:   model.ExportStatusCompleted,
			}
			return io.NopCloser(strings.NewReader("a,b,c\n")), job, nil
		},
	}
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/download?id=job-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="nginxpulse_logs.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b,c\n", rec.Body.String())
}

func TestDownloadNotReady(t *testing.T) {
	svc := &stubService{
		openFn: func(_ context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error) {
			return nil, nil, errors.NotFound("export job " + jobID + " has no artifact")
		},
	}
	router := NewRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/export/download?id=job-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLabelsEndpoint(t *testing.T) {
	router := NewRouter(&stubService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/labels?lang=en", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var table map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, "Location", table["location"])

	// Accept-Language fallback
	req := httptest.NewRequest(http.MethodGet, "/api/labels", nil)
	req.Header.Set("Accept-Language", "zh-CN")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, "位置", table["location"])
}
