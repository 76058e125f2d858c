// Package logsource is the read-only collaborator the export worker pages
// through: enriched access-log rows, filtered by a canonical params map.
package logsource

import "context"

type LogEntry struct {
	Timestamp        int64  `json:"timestamp" db:"ts"`
	Time             string `json:"time,omitempty" db:"-"`
	IP               string `json:"ip" db:"ip"`
	Method           string `json:"method" db:"method"`
	URL              string `json:"url" db:"url"`
	StatusCode       int    `json:"status_code" db:"status_code"`
	BytesSent        int64  `json:"bytes_sent" db:"bytes_sent"`
	Referer          string `json:"referer" db:"referer"`
	UserBrowser      string `json:"browser" db:"browser"`
	UserOS           string `json:"os" db:"os"`
	UserDevice       string `json:"device" db:"device"`
	DomesticLocation string `json:"domestic_location" db:"location_cn"`
	GlobalLocation   string `json:"global_location" db:"location_global"`
	PageviewFlag     bool   `json:"pageview" db:"pageview"`
}

// Source serves one page of log rows matching the canonical params of an
// export request. total is the full match count when the backend knows it,
// 0 when it does not (yet).
type Source interface {
	Query(ctx context.Context, params map[string]string, page, pageSize int) (entries []LogEntry, total int64, err error)
}
