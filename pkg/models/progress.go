package models

import "time"

// ProgressMetric is the current state of one named progress counter of a job.
// There is at most one metric per (JobID, ProgressID).
type ProgressMetric struct {
	ID           int64     `db:"id"            json:"id"`
	JobID        int64     `db:"func_id"       json:"job_id"`
	ProgressID   string    `db:"prog_id"       json:"progress_id"`
	Title        string    `db:"title"         json:"title"`
	Description  string    `db:"description"   json:"description"`
	CurrentValue float64   `db:"current_value" json:"current_value"`
	MaxValue     *float64  `db:"max_value"     json:"max_value"`
	Duration     *float64  `db:"duration"      json:"duration,omitempty"`
	LastUpdated  time.Time `db:"last_updated"  json:"last_updated"`
	Completed    bool      `db:"completed"     json:"completed"`
}

// IsComplete reports whether value has reached max. Without a max a metric
// is never complete.
func IsComplete(value float64, max *float64) bool {
	return max != nil && value >= *max
}

// Percentage returns current/max as a percentage, capped at 100. It is nil
// when no positive max is known.
func (m *ProgressMetric) Percentage() *float64 {
	if m.MaxValue == nil || *m.MaxValue <= 0 {
		return nil
	}
	p := m.CurrentValue / *m.MaxValue * 100
	if p > 100 {
		p = 100
	}
	return &p
}

// Snapshot renders the metric for inclusion in a log stream.
func (m *ProgressMetric) Snapshot() *ProgressSnapshot {
	return &ProgressSnapshot{
		ProgressID:  m.ProgressID,
		Title:       m.Title,
		Description: m.Description,
		Current:     m.CurrentValue,
		Max:         m.MaxValue,
		Percentage:  m.Percentage(),
		Completed:   m.Completed,
		LastUpdated: m.LastUpdated,
	}
}

type ProgressSnapshot struct {
	ProgressID  string    `json:"progress_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Current     float64   `json:"current"`
	Max         *float64  `json:"max"`
	Percentage  *float64  `json:"percentage,omitempty"`
	Completed   bool      `json:"completed"`
	LastUpdated time.Time `json:"last_updated"`
}
