package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kiranshivaraju/jobtracker/internal/client"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

var (
	// Colors
	Primary = lipgloss.Color("#7C3AED")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Cyan    = lipgloss.Color("#06B6D4")
	Dim     = lipgloss.Color("#6B7280")

	Title   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	Succeeded = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Failed    = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Running   = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

	kindStyles = map[models.LogKind]lipgloss.Style{
		models.LogInfo:     lipgloss.NewStyle().Foreground(Cyan),
		models.LogSuccess:  lipgloss.NewStyle().Foreground(Green),
		models.LogWarning:  lipgloss.NewStyle().Foreground(Yellow),
		models.LogError:    lipgloss.NewStyle().Foreground(Red).Bold(true),
		models.LogProgress: lipgloss.NewStyle().Foreground(Primary),
		models.LogFinal:    lipgloss.NewStyle().Bold(true),
	}
)

func statusText(j *models.Job) string {
	switch j.Status() {
	case models.JobStatusSucceeded:
		return Succeeded.Render("succeeded")
	case models.JobStatusFailed:
		return Failed.Render("failed")
	default:
		return Running.Render("running")
	}
}

func renderJob(j *models.Job) string {
	var b strings.Builder
	name := j.HeaderName
	if j.Slug != nil {
		name += " (" + *j.Slug + ")"
	}
	fmt.Fprintf(&b, "%s %s\n", Title.Render(fmt.Sprintf("#%d", j.ID)), name)
	fmt.Fprintf(&b, "  status   %s\n", statusText(j))
	fmt.Fprintf(&b, "  started  %s\n", j.StartTime.Format(time.RFC3339))
	if j.EndTime != nil {
		fmt.Fprintf(&b, "  ended    %s (%s)\n", j.EndTime.Format(time.RFC3339), j.EndTime.Sub(j.StartTime).Round(time.Millisecond))
	}
	if j.ParentID != nil {
		fmt.Fprintf(&b, "  parent   #%d\n", *j.ParentID)
	}
	if j.Source != "" {
		fmt.Fprintf(&b, "  source   %s\n", j.Source)
	}
	return b.String()
}

func renderJobLine(j *models.Job) string {
	slug := ""
	if j.Slug != nil {
		slug = DimText.Render(" " + *j.Slug)
	}
	return fmt.Sprintf("#%-6d %-10s %s%s", j.ID, statusText(j), j.HeaderName, slug)
}

func renderEntry(e *models.LogEntry) string {
	style, ok := kindStyles[e.Kind]
	if !ok {
		style = lipgloss.NewStyle()
	}
	line := fmt.Sprintf("%s %s #%d %s",
		DimText.Render(e.EventTime.Format("15:04:05.000")),
		style.Render(fmt.Sprintf("%-8s", e.Kind)),
		e.JobID,
		e.Message,
	)
	if e.Progress != nil {
		line += " " + renderSnapshot(e.Progress)
	}
	if e.Traceback != nil && *e.Traceback != "" {
		line += "\n" + DimText.Render(*e.Traceback)
	}
	return line
}

func renderSnapshot(p *models.ProgressSnapshot) string {
	s := fmt.Sprintf("%g", p.Current)
	if p.Max != nil {
		s += fmt.Sprintf("/%g", *p.Max)
	}
	if p.Percentage != nil {
		s += fmt.Sprintf(" (%.0f%%)", *p.Percentage)
	}
	if p.Completed {
		return Succeeded.Render(s)
	}
	return s
}

func renderProgress(p *client.Progress) string {
	title := p.Title
	if title == "" {
		title = p.ProgressID
	}
	snap := &models.ProgressSnapshot{
		Current:    p.CurrentValue,
		Max:        p.MaxValue,
		Percentage: p.Percentage,
		Completed:  p.Completed,
	}
	return fmt.Sprintf("%-24s %s", title, renderSnapshot(snap))
}
