package app

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const sysLogMaxEntries = 500

// SysLogEntry is a single system log line.
type SysLogEntry struct {
	Time    time.Time
	Package string
	Message string
}

var (
	sysLogMu      sync.Mutex
	sysLogEntries []*SysLogEntry
)

// Log writes a package-tagged line to the process log and keeps a copy in
// the in-memory ring buffer shown on /status.
func Log(pkg, format string, args ...interface{}) {
	log.Printf("["+pkg+"] "+format, args...)
	appendSysLog(pkg, format, args...)
}

// appendSysLog stores a log message in the in-memory ring buffer.
func appendSysLog(pkg, format string, args ...interface{}) {
	entry := &SysLogEntry{
		Time:    time.Now(),
		Package: pkg,
		Message: fmt.Sprintf(format, args...),
	}
	sysLogMu.Lock()
	sysLogEntries = append(sysLogEntries, entry)
	if len(sysLogEntries) > sysLogMaxEntries {
		sysLogEntries = sysLogEntries[len(sysLogEntries)-sysLogMaxEntries:]
	}
	sysLogMu.Unlock()
}

// GetSysLog returns a copy of the system log in reverse-chronological order.
// When pkg is non-empty only that package's lines are returned.
func GetSysLog(pkg string) []*SysLogEntry {
	sysLogMu.Lock()
	defer sysLogMu.Unlock()
	result := make([]*SysLogEntry, 0, len(sysLogEntries))
	for i := len(sysLogEntries) - 1; i >= 0; i-- {
		e := sysLogEntries[i]
		if pkg != "" && e.Package != pkg {
			continue
		}
		result = append(result, e)
	}
	return result
}
