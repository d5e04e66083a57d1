package api

import (
	"github.com/kiranshivaraju/jobtracker/internal/api/handler"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
)

// TrackerHandlers fills the handler fields of Dependencies from the tracker
// services. RateLimit and StreamLogs are left for the caller.
func TrackerHandlers(tr *tracker.Tracker, db, cache handler.Pinger) Dependencies {
	return Dependencies{
		HealthHandler: handler.NewHealthHandler(db, cache),

		EnsureHeader: handler.NewEnsureHeaderHandler(tr.Registry),
		ListHeaders:  handler.NewListHeadersHandler(tr.Catalog),
		RunsSummary:  handler.NewRunsSummaryHandler(tr.Catalog),

		StartJob:    handler.NewStartJobHandler(tr.Registry, tr.Hierarchy, tr.Lifecycle, tr.Logs),
		SearchJobs:  handler.NewSearchJobsHandler(tr.Catalog),
		ListSources: handler.NewListSourcesHandler(tr.Catalog),
		GetJob:      handler.NewGetJobHandler(tr.Hierarchy),
		Children:    handler.NewChildrenHandler(tr.Hierarchy),
		FinishJob:   handler.NewFinishJobHandler(tr.Hierarchy, tr.Lifecycle),
		ForceFail:   handler.NewForceFailHandler(tr.Hierarchy, tr.Lifecycle),

		AppendLog:      handler.NewAppendLogHandler(tr.Hierarchy, tr.Logs),
		AppendLogBatch: handler.NewAppendLogBatchHandler(tr.Hierarchy, tr.Logs),
		TailLogs:       handler.NewTailLogsHandler(tr.Hierarchy, tr.Logs),

		UpsertProgress: handler.NewUpsertProgressHandler(tr.Hierarchy, tr.Progress),
		LatestProgress: handler.NewLatestProgressHandler(tr.Hierarchy, tr.Progress),
		ListProgress:   handler.NewListProgressHandler(tr.Hierarchy, tr.Progress),
	}
}
