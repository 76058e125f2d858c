package logsource

import (
	"context"
	"fmt"
	"sync"
)

// Static serves a fixed slice of entries. Embedded mode seeds it with demo
// traffic; tests seed it with whatever the scenario needs.
type Static struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func NewStatic(entries []LogEntry) *Static {
	return &Static{entries: entries}
}

// NewDemo generates n deterministic sample rows for embedded mode.
func NewDemo(n int) *Static {
	methods := []string{"GET", "GET", "GET", "POST"}
	urls := []string{"/", "/docs", "/api/stats", "/blog/hello", "/favicon.ico"}
	devices := []string{"desktop", "mobile", "tablet"}
	entries := make([]LogEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, LogEntry{
			Timestamp:        1700000000 + int64(i)*60,
			IP:               fmt.Sprintf("203.0.113.%d", i%254+1),
			Method:           methods[i%len(methods)],
			URL:              urls[i%len(urls)],
			StatusCode:       200,
			BytesSent:        int64(512 + i%2048),
			Referer:          "direct",
			UserBrowser:      "Chrome",
			UserOS:           "Linux",
			UserDevice:       devices[i%len(devices)],
			DomesticLocation: "",
			GlobalLocation:   "United States",
			PageviewFlag:     i%len(methods) != 3,
		})
	}
	return NewStatic(entries)
}

func (s *Static) Query(_ context.Context, _ map[string]string, page, pageSize int) ([]LogEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1000
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := int64(len(s.entries))
	start := (page - 1) * pageSize
	if start >= len(s.entries) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]LogEntry, end-start)
	copy(out, s.entries[start:end])
	return out, total, nil
}
