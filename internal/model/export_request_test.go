package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	req := &ExportRequest{WebsiteID: "  site-1  "}
	req.Normalize()

	assert.Equal(t, "site-1", req.WebsiteID)
	assert.Equal(t, ExportFormatCSV, req.Format)
	assert.Equal(t, "timestamp", req.SortField)
	assert.Equal(t, "desc", req.SortOrder)
}

func TestOptionsElidesAbsentFields(t *testing.T) {
	req := &ExportRequest{
		WebsiteID:     "site-1",
		TimeRange:     "7d",
		ExcludeSpider: true,
	}
	req.Normalize()
	opts := req.Options()

	assert.Equal(t, "site-1", opts["id"])
	assert.Equal(t, "7d", opts["timeRange"])
	assert.Equal(t, true, opts["excludeSpider"])
	assert.NotContains(t, opts, "filter")
	assert.NotContains(t, opts, "excludeInternal")
	assert.NotContains(t, opts, "lang")
}

func TestOptionsStableAcrossEquivalentRequests(t *testing.T) {
	a := &ExportRequest{WebsiteID: "site-1", Format: "csv", SortField: "timestamp", SortOrder: "desc"}
	b := &ExportRequest{WebsiteID: "site-1"}
	a.Normalize()
	b.Normalize()

	assert.Equal(t, a.Options(), b.Options())
}
