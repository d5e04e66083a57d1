package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
	inTx bool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) withTx(tx pgx.Tx) *PostgresStore {
	return &PostgresStore{pool: s.pool, db: tx, inTx: true}
}

// --- Transactions ---

func (s *PostgresStore) Snapshot(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return wrapErr("begin snapshot", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, s.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit snapshot", err)
	}
	return nil
}

func (s *PostgresStore) WithJobLock(ctx context.Context, jobID int64, fn func(ctx context.Context, s Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, jobID); err != nil {
			return wrapErr("acquire job lock", err)
		}
		return fn(ctx, s.withTx(tx))
	})
}

// --- Headers ---

func (s *PostgresStore) GetHeaderBySlug(ctx context.Context, slug string) (*models.FunctionHeader, error) {
	var h models.FunctionHeader
	err := s.db.QueryRow(ctx,
		`SELECT id, func_name, func_slug FROM function_headers WHERE func_slug = $1`, slug,
	).Scan(&h.ID, &h.Name, &h.Slug)
	if err != nil {
		return nil, wrapErr("get header by slug", err)
	}
	return &h, nil
}

func (s *PostgresStore) CreateHeader(ctx context.Context, h *models.FunctionHeader) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO function_headers (func_name, func_slug) VALUES ($1, $2) RETURNING id`,
		h.Name, h.Slug,
	).Scan(&h.ID)
	if err != nil {
		return wrapErr("create header", err)
	}
	return nil
}

func (s *PostgresStore) ListHeaders(ctx context.Context, search string, limit int) ([]*models.FunctionHeader, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, func_name, func_slug FROM function_headers
		 WHERE $1 = '' OR func_name ILIKE '%' || $1 || '%' OR func_slug ILIKE '%' || $1 || '%'
		 ORDER BY func_name LIMIT $2`, search, limit)
	if err != nil {
		return nil, wrapErr("list headers", err)
	}
	defer rows.Close()

	headers := []*models.FunctionHeader{}
	for rows.Next() {
		var h models.FunctionHeader
		if err := rows.Scan(&h.ID, &h.Name, &h.Slug); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		headers = append(headers, &h)
	}
	return headers, rows.Err()
}

// --- Jobs ---

const jobColumns = `p.func_id, p.func_header_id, h.func_name, h.func_slug, p.parent_id, p.slug,
	p.start_date, p.end_date, p.finished, p.success, p.source, p.args`

const jobFrom = `function_progress p JOIN function_headers h ON h.id = p.func_header_id`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.HeaderID, &j.HeaderName, &j.HeaderSlug, &j.ParentID, &j.Slug,
		&j.StartTime, &j.EndTime, &j.Finished, &j.Succeeded, &j.Source, &j.Arguments)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()
	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO function_progress (func_header_id, parent_id, slug, start_date, source, args)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING func_id`,
		job.HeaderID, job.ParentID, job.Slug, job.StartTime, job.Source, job.Arguments,
	).Scan(&job.ID)
	if err != nil {
		return wrapErr("create job", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM `+jobFrom+` WHERE p.func_id = $1`, id))
	if err != nil {
		return nil, wrapErr("get job", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobBySlug(ctx context.Context, slug string) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM `+jobFrom+` WHERE p.slug = $1`, slug))
	if err != nil {
		return nil, wrapErr("get job by slug", err)
	}
	return j, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, parentID int64) ([]*models.Job, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM `+jobFrom+` WHERE p.parent_id = $1 ORDER BY p.func_id`, parentID)
	if err != nil {
		return nil, wrapErr("list children", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) ListChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	if len(parentIDs) == 0 {
		return []int64{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT func_id FROM function_progress WHERE parent_id = ANY($1) ORDER BY func_id`, parentIDs)
	if err != nil {
		return nil, wrapErr("list child ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan child ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id int64, succeeded bool, endTime time.Time) (*models.Job, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE function_progress SET finished = TRUE, success = $2, end_date = $3
		 WHERE func_id = $1 AND NOT finished`, id, succeeded, endTime)
	if err != nil {
		return nil, wrapErr("finish job", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyFinished
	}
	return s.GetJob(ctx, id)
}

const failJobSQL = `UPDATE function_progress p SET finished = TRUE, success = FALSE,
	   end_date = COALESCE((SELECT MAX(l.row_date) FROM function_logs l WHERE l.func_id = p.func_id), $2)
	 WHERE p.func_id = $1`

func (s *PostgresStore) ForceFailJob(ctx context.Context, id int64, now time.Time) (*models.Job, error) {
	tag, err := s.db.Exec(ctx, failJobSQL, id, now)
	if err != nil {
		return nil, wrapErr("force fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetJob(ctx, id)
}

func (s *PostgresStore) ExpireJob(ctx context.Context, id int64, now time.Time) (*models.Job, error) {
	tag, err := s.db.Exec(ctx, failJobSQL+` AND NOT p.finished`, id, now)
	if err != nil {
		return nil, wrapErr("expire job", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyFinished
	}
	return s.GetJob(ctx, id)
}

func (s *PostgresStore) SearchJobs(ctx context.Context, filter JobFilter) ([]*models.Job, *models.StatusSummary, error) {
	filter.Normalize()

	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf("(h.func_name ILIKE $%d OR h.func_slug ILIKE $%d OR p.slug ILIKE $%d)", argIdx, argIdx, argIdx))
		args = append(args, "%"+filter.Query+"%")
		argIdx++
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("p.source = $%d", argIdx))
		args = append(args, filter.Source)
		argIdx++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("p.start_date >= $%d", argIdx))
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("p.start_date <= $%d", argIdx))
		args = append(args, filter.To)
		argIdx++
	}
	if filter.RootOnly {
		conditions = append(conditions, "p.parent_id IS NULL")
	}

	where := strings.Join(conditions, " AND ")

	// Summary over the filter, before the status restriction
	var summary models.StatusSummary
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE NOT p.finished),
		        COUNT(*) FILTER (WHERE p.finished AND p.success),
		        COUNT(*) FILTER (WHERE p.finished AND NOT p.success)
		 FROM `+jobFrom+` WHERE `+where, args...,
	).Scan(&summary.Total, &summary.Running, &summary.Succeeded, &summary.Failed)
	if err != nil {
		return nil, nil, wrapErr("summarize jobs", err)
	}

	switch filter.Status {
	case models.JobStatusRunning:
		where += " AND NOT p.finished"
	case models.JobStatusSucceeded:
		where += " AND p.finished AND p.success"
	case models.JobStatusFailed:
		where += " AND p.finished AND NOT p.success"
	}

	offset := (filter.Page - 1) * filter.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY p.start_date DESC, p.func_id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, jobFrom, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, nil, wrapErr("search jobs", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, nil, err
	}
	return jobs, &summary, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT source FROM function_progress WHERE source <> '' ORDER BY source`)
	if err != nil {
		return nil, wrapErr("list sources", err)
	}
	sources, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	return sources, nil
}

func (s *PostgresStore) RunsSummary(ctx context.Context, filter RunsFilter) (*models.RunsSummary, error) {
	conditions := []string{"func_header_id = $1", "start_date >= $2"}
	args := []any{filter.HeaderID, filter.Since}
	argIdx := 3

	keys := make([]string, 0, len(filter.Args))
	for k := range filter.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conditions = append(conditions, fmt.Sprintf("args ->> $%d = $%d", argIdx, argIdx+1))
		args = append(args, k, filter.Args[k])
		argIdx += 2
	}

	summary := models.RunsSummary{HeaderID: filter.HeaderID}
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        (AVG(EXTRACT(EPOCH FROM (end_date - start_date))) FILTER (WHERE finished))::float8,
		        COUNT(*) FILTER (WHERE NOT finished)
		 FROM function_progress WHERE `+strings.Join(conditions, " AND "), args...,
	).Scan(&summary.Count, &summary.AvgDurationSecs, &summary.Pending)
	if err != nil {
		return nil, wrapErr("runs summary", err)
	}
	return &summary, nil
}

func (s *PostgresStore) ListStaleJobs(ctx context.Context, inactiveSince time.Time, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.func_id FROM function_progress p
		 WHERE NOT p.finished
		   AND GREATEST(p.start_date,
		         COALESCE((SELECT MAX(l.row_date) FROM function_logs l WHERE l.func_id = p.func_id), p.start_date)) < $1
		 ORDER BY p.func_id LIMIT $2`, inactiveSince, limit)
	if err != nil {
		return nil, wrapErr("list stale jobs", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan stale jobs: %w", err)
	}
	return ids, nil
}

// --- Logs ---

const insertLogSQL = `INSERT INTO function_logs (func_id, row_date, type, message, trace_back)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	err := s.db.QueryRow(ctx, insertLogSQL,
		entry.JobID, entry.EventTime, string(entry.Kind), entry.Message, entry.Traceback,
	).Scan(&entry.ID)
	if err != nil {
		return wrapErr("append log", err)
	}
	return nil
}

func (s *PostgresStore) AppendLogs(ctx context.Context, entries []*models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(insertLogSQL, e.JobID, e.EventTime, string(e.Kind), e.Message, e.Traceback)
		}
		br := tx.SendBatch(ctx, batch)
		for _, e := range entries {
			if err := br.QueryRow().Scan(&e.ID); err != nil {
				_ = br.Close()
				return wrapErr("append logs", err)
			}
		}
		if err := br.Close(); err != nil {
			return wrapErr("append logs", err)
		}
		return nil
	})
}

func (s *PostgresStore) TailLogs(ctx context.Context, jobIDs []int64, since *time.Time) ([]*models.LogEntry, error) {
	if len(jobIDs) == 0 {
		return []*models.LogEntry{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, func_id, row_date, type, message, trace_back FROM function_logs
		 WHERE func_id = ANY($1) AND ($2::timestamptz IS NULL OR row_date > $2)
		 ORDER BY row_date ASC, id ASC`, jobIDs, since)
	if err != nil {
		return nil, wrapErr("tail logs", err)
	}
	defer rows.Close()

	entries := []*models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.JobID, &e.EventTime, &kind, &e.Message, &e.Traceback); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Kind = models.LogKind(kind)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Progress ---

const progressColumns = `id, func_id, prog_id, title, description, current_value, max_value, duration, last_updated, completed`

func scanProgress(row pgx.Row) (*models.ProgressMetric, error) {
	var m models.ProgressMetric
	err := row.Scan(&m.ID, &m.JobID, &m.ProgressID, &m.Title, &m.Description,
		&m.CurrentValue, &m.MaxValue, &m.Duration, &m.LastUpdated, &m.Completed)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertProgress inserts or merges the metric in a single statement. On
// update a missing max, duration or title keeps the stored value, and
// completed is recomputed from the merged row.
func (s *PostgresStore) UpsertProgress(ctx context.Context, m *models.ProgressMetric) (*models.ProgressMetric, error) {
	result, err := scanProgress(s.db.QueryRow(ctx,
		`INSERT INTO function_progress_tracking
		   (func_id, prog_id, title, description, current_value, max_value, duration, last_updated, completed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $6::float8 IS NOT NULL AND $5 >= $6::float8)
		 ON CONFLICT (func_id, prog_id) DO UPDATE SET
		   title = COALESCE(NULLIF(EXCLUDED.title, ''), function_progress_tracking.title),
		   description = COALESCE(NULLIF(EXCLUDED.description, ''), function_progress_tracking.description),
		   current_value = EXCLUDED.current_value,
		   max_value = COALESCE(EXCLUDED.max_value, function_progress_tracking.max_value),
		   duration = COALESCE(EXCLUDED.duration, function_progress_tracking.duration),
		   last_updated = EXCLUDED.last_updated,
		   completed = COALESCE(EXCLUDED.max_value, function_progress_tracking.max_value) IS NOT NULL
		     AND EXCLUDED.current_value >= COALESCE(EXCLUDED.max_value, function_progress_tracking.max_value)
		 RETURNING `+progressColumns,
		m.JobID, m.ProgressID, m.Title, m.Description, m.CurrentValue, m.MaxValue, m.Duration, m.LastUpdated,
	))
	if err != nil {
		return nil, wrapErr("upsert progress", err)
	}
	return result, nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, jobID int64, progressID string) (*models.ProgressMetric, error) {
	m, err := scanProgress(s.db.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM function_progress_tracking WHERE func_id = $1 AND prog_id = $2`,
		jobID, progressID))
	if err != nil {
		return nil, wrapErr("get progress", err)
	}
	return m, nil
}

func (s *PostgresStore) LatestProgress(ctx context.Context, jobID int64) (*models.ProgressMetric, error) {
	m, err := scanProgress(s.db.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM function_progress_tracking WHERE func_id = $1
		 ORDER BY last_updated DESC, id DESC LIMIT 1`, jobID))
	if err != nil {
		return nil, wrapErr("latest progress", err)
	}
	return m, nil
}

func (s *PostgresStore) ListProgress(ctx context.Context, jobIDs []int64) ([]*models.ProgressMetric, error) {
	if len(jobIDs) == 0 {
		return []*models.ProgressMetric{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+progressColumns+` FROM function_progress_tracking WHERE func_id = ANY($1)
		 ORDER BY func_id, last_updated DESC, id DESC`, jobIDs)
	if err != nil {
		return nil, wrapErr("list progress", err)
	}
	defer rows.Close()

	metrics := []*models.ProgressMetric{}
	for rows.Next() {
		m, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// --- Errors ---

// wrapErr maps driver errors onto the package sentinels.
func wrapErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isDuplicateKeyError(err):
		return ErrDuplicateKey
	case isForeignKeyError(err):
		return fmt.Errorf("%s: referenced %w", op, ErrNotFound)
	case isUnavailable(err):
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}

var _ Store = (*PostgresStore)(nil)
