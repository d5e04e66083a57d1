package models

import (
	"fmt"
	"strings"
	"time"
)

// LogKind classifies a log entry.
type LogKind string

const (
	LogInfo     LogKind = "INFO"
	LogSuccess  LogKind = "SUCCESS"
	LogWarning  LogKind = "WARNING"
	LogError    LogKind = "ERROR"
	LogProgress LogKind = "PROGRESS"
	LogFinal    LogKind = "FINAL"
)

var logKinds = map[LogKind]bool{
	LogInfo:     true,
	LogSuccess:  true,
	LogWarning:  true,
	LogError:    true,
	LogProgress: true,
	LogFinal:    true,
}

// ParseLogKind accepts any casing of a known kind.
func ParseLogKind(s string) (LogKind, error) {
	k := LogKind(strings.ToUpper(strings.TrimSpace(s)))
	if !logKinds[k] {
		return "", fmt.Errorf("unknown log kind %q", s)
	}
	return k, nil
}

func (k LogKind) Valid() bool {
	return logKinds[k]
}

// LogEntry is an append-only record attached to a job. For PROGRESS entries
// Message holds the progress id, and Progress is filled in when the entry is
// read back.
type LogEntry struct {
	ID        int64             `db:"id"         json:"id"`
	JobID     int64             `db:"func_id"    json:"job_id"`
	EventTime time.Time         `db:"row_date"   json:"event_time"`
	Kind      LogKind           `db:"type"       json:"kind"`
	Message   string            `db:"message"    json:"message"`
	Traceback *string           `db:"trace_back" json:"traceback,omitempty"`
	Progress  *ProgressSnapshot `db:"-"          json:"progress,omitempty"`
}
