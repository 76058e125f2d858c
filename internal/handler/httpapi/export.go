// Package httpapi exposes the export lifecycle over REST. It depends only
// on the ExportService interface so the transport stays decoupled from the
// application wiring behind it.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/i18n"
	"github.com/likaia/nginxpulse-exporter/internal/model"
)

// ExportService is the application surface the handlers call into.
type ExportService interface {
	StartExport(ctx context.Context, req *model.ExportRequest) (*model.ExportJob, error)
	GetStatus(ctx context.Context, jobID string) (*model.ExportJob, error)
	ListJobs(ctx context.Context, websiteID string, page, pageSize int) ([]*model.ExportJob, int64, bool, error)
	CancelExport(ctx context.Context, jobID string) (*model.ExportJob, error)
	RetryExport(ctx context.Context, jobID string) (*model.ExportJob, error)
	OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, *model.ExportJob, error)
}

type Handler struct {
	svc ExportService
}

// NewRouter mounts the export API onto a fresh mux router.
func NewRouter(svc ExportService) *mux.Router {
	h := &Handler{svc: svc}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/logs/export", h.StartExport).Methods(http.MethodPost)
	api.HandleFunc("/logs/export/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/logs/export/list", h.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/logs/export/cancel", h.CancelExport).Methods(http.MethodPost)
	api.HandleFunc("/logs/export/retry", h.RetryExport).Methods(http.MethodPost)
	api.HandleFunc("/logs/export/download", h.DownloadExport).Methods(http.MethodGet)
	api.HandleFunc("/labels", h.GetLabels).Methods(http.MethodGet)

	return r
}

func (h *Handler) StartExport(w http.ResponseWriter, r *http.Request) {
	var req model.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.InvalidArgument("malformed request body",
			errors.WithID("api.export.start.decode.error"), errors.WithCause(err)))
		return
	}

	job, err := h.svc.StartExport(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetStatus(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type listResponse struct {
	Jobs    []*model.ExportJob `json:"jobs"`
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	HasMore bool               `json:"hasMore"`
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := queryInt(query.Get("page"))
	if err != nil {
		writeError(w, r, errors.InvalidArgument("page must be an integer",
			errors.WithID("api.export.list.bad_page"), errors.WithCause(err)))
		return
	}
	pageSize, err := queryInt(query.Get("pageSize"))
	if err != nil {
		writeError(w, r, errors.InvalidArgument("pageSize must be an integer",
			errors.WithID("api.export.list.bad_page_size"), errors.WithCause(err)))
		return
	}

	jobs, total, hasMore, err := h.svc.ListJobs(r.Context(), query.Get("id"), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page == 0 {
		page = 1
	}
	if jobs == nil {
		jobs = []*model.ExportJob{}
	}
	writeJSON(w, http.StatusOK, listResponse{Jobs: jobs, Total: total, Page: page, HasMore: hasMore})
}

func (h *Handler) CancelExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.CancelExport(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) RetryExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.RetryExport(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	artifact, job, err := h.svc.OpenArtifact(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer artifact.Close()

	w.Header().Set("Content-Type", contentTypeFor(job.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, artifact); err != nil {
		// Headers are out; all we can do is log the broken stream.
		slog.ErrorContext(r.Context(), "exporter.api.download_stream_error",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (h *Handler) GetLabels(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	writeJSON(w, http.StatusOK, i18n.Table(lang))
}

func contentTypeFor(format string) string {
	switch format {
	case model.ExportFormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "exporter.api.request_failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Internal(err.Error())
	}
	writeJSON(w, status, appErr)
}
