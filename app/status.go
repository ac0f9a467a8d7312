package app

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"
)

var startTime = time.Now()

// ChecksFunc is injected by main so packages can report their own state
// without app importing them.
var ChecksFunc func() []StatusCheck

// StatusCheck represents a single status check result
type StatusCheck struct {
	Name    string `json:"name"`
	Status  bool   `json:"status"`
	Details string `json:"details,omitempty"`
}

// StatusResponse represents the full status response
type StatusResponse struct {
	Healthy   bool           `json:"healthy"`
	Uptime    string         `json:"uptime"`
	GoVersion string         `json:"go_version"`
	Memory    MemoryStatus   `json:"memory"`
	Checks    []StatusCheck  `json:"checks"`
	APICalls  map[string]int `json:"api_calls"`
	APILog    []*APILogEntry `json:"api_log"`
	SysLog    []*SysLogEntry `json:"sys_log"`
}

// MemoryStatus represents memory usage
type MemoryStatus struct {
	Alloc      uint64 `json:"alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// StatusHandler handles the /status endpoint
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := buildStatus(r.URL.Query().Get("pkg"))

	if WantsJSON(r) {
		RespondJSON(w, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(RenderHTML("Status", "Server status and logs", renderStatusHTML(status))))
}

func buildStatus(pkg string) StatusResponse {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var checks []StatusCheck
	if ChecksFunc != nil {
		checks = ChecksFunc()
	}

	healthy := true
	for _, c := range checks {
		if !c.Status {
			healthy = false
		}
	}

	syslog := GetSysLog(pkg)
	if len(syslog) > 100 {
		syslog = syslog[:100]
	}
	apilog := GetAPILog()
	if len(apilog) > 50 {
		apilog = apilog[:50]
	}

	return StatusResponse{
		Healthy:   healthy,
		Uptime:    formatUptime(time.Since(startTime)),
		GoVersion: runtime.Version(),
		Memory: MemoryStatus{
			Alloc:      m.Alloc / 1024 / 1024,
			Sys:        m.Sys / 1024 / 1024,
			NumGC:      m.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
		Checks:   checks,
		APICalls: APICallCounts(),
		APILog:   apilog,
		SysLog:   syslog,
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func renderStatusHTML(status StatusResponse) string {
	var sb strings.Builder

	statusText := "Healthy"
	if !status.Healthy {
		statusText = "Issues Detected"
	}
	sb.WriteString(fmt.Sprintf(`<h2>%s</h2>`, statusText))
	sb.WriteString(Meta(fmt.Sprintf("Uptime %s &middot; %s &middot; %dMB / %dMB &middot; %d goroutines",
		status.Uptime, status.GoVersion, status.Memory.Alloc, status.Memory.Sys, status.Memory.Goroutines)))

	sb.WriteString(`<h3>Checks</h3>`)
	for _, c := range status.Checks {
		icon := "✓"
		if !c.Status {
			icon = "✗"
		}
		sb.WriteString(CardDiv(fmt.Sprintf(`%s %s <span class="text-muted">%s</span>`,
			icon, html.EscapeString(c.Name), html.EscapeString(c.Details))))
	}

	sb.WriteString(`<h3>API calls</h3>`)
	services := make([]string, 0, len(status.APICalls))
	for s := range status.APICalls {
		services = append(services, s)
	}
	sort.Strings(services)
	if len(services) == 0 {
		sb.WriteString(Empty("No external calls yet"))
	}
	for _, s := range services {
		sb.WriteString(Meta(fmt.Sprintf("%s: %d", html.EscapeString(s), status.APICalls[s])))
	}

	sb.WriteString(`<h3>Log</h3><pre>`)
	for _, e := range status.SysLog {
		sb.WriteString(html.EscapeString(fmt.Sprintf("%s [%s] %s\n", e.Time.Format(time.TimeOnly), e.Package, e.Message)))
	}
	sb.WriteString(`</pre>`)

	b, _ := json.MarshalIndent(status.APILog, "", "  ")
	sb.WriteString(`<h3>Recent API log</h3><pre>` + html.EscapeString(string(b)) + `</pre>`)

	return sb.String()
}
