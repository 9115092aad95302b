package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stemd/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// EnqueueIfNew inserts a job unless one with the same dedup key exists.
// The boolean reports whether a row was actually inserted; false means the
// submission was a duplicate and no state changed.
func (s *Store) EnqueueIfNew(ctx context.Context, spec Spec) (*Job, bool, error) {
	if spec.InputPath == "" {
		return nil, false, errors.New("input path required")
	}
	if spec.Fingerprint == "" {
		return nil, false, errors.New("fingerprint required")
	}
	kind := spec.Kind
	if kind == "" {
		kind = KindSingle
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO jobs
            (input_path, input_sha256, model, stem_set, sample_rate, bit_depth, codec, status, kind, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.InputPath,
		spec.Fingerprint,
		spec.Model,
		spec.StemSet,
		spec.SampleRate,
		spec.BitDepth,
		spec.Codec,
		StatusQueued,
		kind,
		timestamp(time.Now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// NextQueued returns the oldest queued job, with album jobs taking strict
// priority over singles regardless of arrival order.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ?
         ORDER BY CASE WHEN kind = ? THEN 0 ELSE 1 END, id LIMIT 1`,
		StatusQueued,
		KindAlbum,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued: %w", err)
	}
	return job, nil
}

// MarkRunning transitions a job to running and records the start time.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		StatusRunning,
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// MarkDone finalizes a successful job with its output, manifest, and notes.
func (s *Store) MarkDone(ctx context.Context, id int64, outputPath, manifestPath string, notes map[string]any) error {
	notesJSON, err := marshalNotes(notes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, output_path = ?, manifest_path = ?, notes = ? WHERE id = ?`,
		StatusDone,
		timestamp(time.Now()),
		outputPath,
		manifestPath,
		notesJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkError finalizes a failed job, recording the diagnostic text verbatim.
func (s *Store) MarkError(ctx context.Context, id int64, message string, notes map[string]any) error {
	notesJSON, err := marshalNotes(notes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, error = ?, notes = ? WHERE id = ?`,
		StatusError,
		timestamp(time.Now()),
		message,
		notesJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// Requeue resets a job back to queued and clears its start time. Used when
// album exclusivity could not be acquired.
func (s *Store) Requeue(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, started_at = NULL WHERE id = ?`,
		StatusQueued,
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// RequeueRunning returns jobs left running by a crashed worker to the queue.
func (s *Store) RequeueRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, started_at = NULL WHERE status = ?`,
		StatusQueued,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue running jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryErrored moves errored jobs back to queued. With no ids every errored
// job is retried.
func (s *Store) RetryErrored(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, started_at = NULL, finished_at = NULL, error = '' WHERE status = ?`,
			StatusQueued,
			StatusError,
		)
		if err != nil {
			return 0, fmt.Errorf("retry errored jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusQueued, string(StatusError))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs SET status = ?, started_at = NULL, finished_at = NULL, error = ''
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// List returns jobs filtered by status set (or all jobs when none given).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusRunning:
			health.Running += count
		case StatusDone:
			health.Done += count
		case StatusError:
			health.Errored += count
		}
	}
	return health, nil
}

// Clear removes all jobs. Operator action via the CLI only.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, input_path, input_sha256, model, stem_set, sample_rate, bit_depth, codec, status, kind, created_at, started_at, finished_at, output_path, manifest_path, notes, error"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		inputPath   string
		inputSHA    string
		model       string
		stemSet     string
		sampleRate  int
		bitDepth    int
		codec       string
		statusStr   string
		kindStr     string
		createdRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		outputPath  sql.NullString
		manifest    sql.NullString
		notes       sql.NullString
		errMessage  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&inputPath,
		&inputSHA,
		&model,
		&stemSet,
		&sampleRate,
		&bitDepth,
		&codec,
		&statusStr,
		&kindStr,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&outputPath,
		&manifest,
		&notes,
		&errMessage,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		InputPath:    inputPath,
		InputSHA256:  inputSHA,
		Model:        model,
		StemSet:      stemSet,
		SampleRate:   sampleRate,
		BitDepth:     bitDepth,
		Codec:        codec,
		Status:       Status(statusStr),
		Kind:         Kind(kindStr),
		OutputPath:   outputPath.String,
		ManifestPath: manifest.String,
		NotesJSON:    notes.String,
		ErrorMessage: errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return job, nil
}

func marshalNotes(notes map[string]any) (string, error) {
	if notes == nil {
		notes = map[string]any{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return "", fmt.Errorf("marshal notes: %w", err)
	}
	return string(data), nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	return b.String()
}
