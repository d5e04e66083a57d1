package models

import (
	"encoding/json"
	"time"
)

const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// FunctionHeader names a kind of job. Headers are created lazily the first
// time a job of that name starts and are never modified afterwards.
type FunctionHeader struct {
	ID   int64  `db:"id"        json:"id"`
	Name string `db:"func_name" json:"name"`
	Slug string `db:"func_slug" json:"slug"`
}

// Job is one execution of a FunctionHeader. A job with a nil ParentID is a
// root; EndTime is set exactly when Finished is true.
type Job struct {
	ID         int64           `db:"func_id"        json:"id"`
	HeaderID   int64           `db:"func_header_id" json:"header_id"`
	HeaderName string          `db:"func_name"      json:"header_name,omitempty"`
	HeaderSlug string          `db:"func_slug"      json:"header_slug,omitempty"`
	ParentID   *int64          `db:"parent_id"      json:"parent_id,omitempty"`
	Slug       *string         `db:"slug"           json:"slug,omitempty"`
	StartTime  time.Time       `db:"start_date"     json:"start_time"`
	EndTime    *time.Time      `db:"end_date"       json:"end_time,omitempty"`
	Finished   bool            `db:"finished"       json:"finished"`
	Succeeded  bool            `db:"success"        json:"succeeded"`
	Source     string          `db:"source"         json:"source"`
	Arguments  json.RawMessage `db:"args"           json:"args,omitempty"`
}

// Status collapses the finished/succeeded pair into a single label.
func (j *Job) Status() string {
	switch {
	case !j.Finished:
		return JobStatusRunning
	case j.Succeeded:
		return JobStatusSucceeded
	default:
		return JobStatusFailed
	}
}

// ChildSummary counts the direct children of a job by state.
type ChildSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Running    int `json:"running"`
}

// FinishResult is returned by a normal finish. Children is nil when the job
// had no children at the time it finished.
type FinishResult struct {
	JobID     int64         `json:"job_id"`
	Succeeded bool          `json:"succeeded"`
	Message   string        `json:"message"`
	Children  *ChildSummary `json:"children_status"`
}

// StatusSummary counts jobs matching a search filter by state.
type StatusSummary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunsSummary aggregates the runs of one header over a time window.
type RunsSummary struct {
	HeaderID        int64    `json:"header_id"`
	Count           int      `json:"count"`
	AvgDurationSecs *float64 `json:"avg_duration_secs"`
	Pending         int      `json:"pending"`
}
