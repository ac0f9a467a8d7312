package app

import (
	"sync"
	"time"
)

const apiLogMaxEntries = 200

// APILogEntry records a single external API call.
type APILogEntry struct {
	Time     time.Time     `json:"time"`
	Service  string        `json:"service"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

var (
	apiLogMu      sync.Mutex
	apiLogEntries []*APILogEntry
	apiLogCounts  = map[string]int{}
)

// RecordAPICall appends an external API call record to the in-memory log.
// Status is the provider's own status string (e.g. "OK", "OVER_QUERY_LIMIT").
// When the log exceeds apiLogMaxEntries the oldest entry is dropped.
func RecordAPICall(service, method, url, status string, duration time.Duration, callErr error) {
	entry := &APILogEntry{
		Time:     time.Now(),
		Service:  service,
		Method:   method,
		URL:      url,
		Status:   status,
		Duration: duration,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	apiLogMu.Lock()
	apiLogEntries = append(apiLogEntries, entry)
	if len(apiLogEntries) > apiLogMaxEntries {
		apiLogEntries = apiLogEntries[len(apiLogEntries)-apiLogMaxEntries:]
	}
	apiLogCounts[service]++
	apiLogMu.Unlock()
}

// GetAPILog returns a copy of the API log entries in reverse-chronological order.
func GetAPILog() []*APILogEntry {
	apiLogMu.Lock()
	defer apiLogMu.Unlock()
	result := make([]*APILogEntry, len(apiLogEntries))
	for i, e := range apiLogEntries {
		result[len(apiLogEntries)-1-i] = e
	}
	return result
}

// APICallCounts returns the number of calls made per service since start.
// Unlike the log itself the counts are never truncated.
func APICallCounts() map[string]int {
	apiLogMu.Lock()
	defer apiLogMu.Unlock()
	out := make(map[string]int, len(apiLogCounts))
	for k, v := range apiLogCounts {
		out[k] = v
	}
	return out
}
