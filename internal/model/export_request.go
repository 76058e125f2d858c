package model

import "strings"

const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportRequest is the full filter-options structure accepted by StartExport.
// It replaces the dashboard's long optional-parameter lists with named
// fields; zero values mean "omit", explicit booleans mean "filter on".
// Immutable once submitted: the controller canonicalizes it into a params
// map and only that map is persisted with the job.
type ExportRequest struct {
	WebsiteID string `json:"id" validate:"required"`
	Format    string `json:"format" validate:"omitempty,oneof=csv pdf"`
	Lang      string `json:"lang" validate:"omitempty,oneof=en zh"`

	Filter         string `json:"filter"`
	TimeRange      string `json:"timeRange"`
	TimeStart      string `json:"timeStart"`
	TimeEnd        string `json:"timeEnd"`
	StatusClass    string `json:"statusClass" validate:"omitempty,oneof=2xx 3xx 4xx 5xx"`
	StatusCode     string `json:"statusCode" validate:"omitempty,numeric"`
	IPFilter       string `json:"ipFilter"`
	URLFilter      string `json:"urlFilter"`
	LocationFilter string `json:"locationFilter"`
	NewVisitor     string `json:"newVisitor"`

	ExcludeInternal bool `json:"excludeInternal"`
	ExcludeSpider   bool `json:"excludeSpider"`
	ExcludeForeign  bool `json:"excludeForeign"`
	PageviewOnly    bool `json:"pageviewOnly"`
	DistinctIP      bool `json:"distinctIp"`

	SortField string `json:"sortField" validate:"omitempty,oneof=timestamp ip url status bytes_sent"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// Normalize trims identifiers and fills the defaulted fields.
func (r *ExportRequest) Normalize() {
	r.WebsiteID = strings.TrimSpace(r.WebsiteID)
	if r.Format == "" {
		r.Format = ExportFormatCSV
	}
	if r.SortField == "" {
		r.SortField = "timestamp"
	}
	if r.SortOrder == "" {
		r.SortOrder = "desc"
	}
}

// Options flattens the request into the option set consumed by the
// canonicalizer. Absent and false values are left out entirely so that two
// semantically identical requests flatten to the same map.
func (r *ExportRequest) Options() map[string]any {
	opts := map[string]any{
		"id":        r.WebsiteID,
		"format":    r.Format,
		"sortField": r.SortField,
		"sortOrder": r.SortOrder,
	}
	put := func(key, val string) {
		if val != "" {
			opts[key] = val
		}
	}
	put("lang", r.Lang)
	put("filter", r.Filter)
	put("timeRange", r.TimeRange)
	put("timeStart", r.TimeStart)
	put("timeEnd", r.TimeEnd)
	put("statusClass", r.StatusClass)
	put("statusCode", r.StatusCode)
	put("ipFilter", r.IPFilter)
	put("urlFilter", r.URLFilter)
	put("locationFilter", r.LocationFilter)
	put("newVisitor", r.NewVisitor)
	if r.ExcludeInternal {
		opts["excludeInternal"] = true
	}
	if r.ExcludeSpider {
		opts["excludeSpider"] = true
	}
	if r.ExcludeForeign {
		opts["excludeForeign"] = true
	}
	if r.PageviewOnly {
		opts["pageviewOnly"] = true
	}
	if r.DistinctIP {
		opts["distinctIp"] = true
	}
	return opts
}
