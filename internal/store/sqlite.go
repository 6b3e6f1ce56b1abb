package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/comp-pricer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. All access goes
// through one connection so every transaction is a serialized writer.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pricing_requests (
	id                 TEXT PRIMARY KEY,
	fingerprint        TEXT NOT NULL UNIQUE,
	job_title          TEXT NOT NULL,
	location_text      TEXT NOT NULL,
	job_description    TEXT NOT NULL DEFAULT '',
	requested_by       INTEGER NOT NULL,
	request_count      INTEGER NOT NULL DEFAULT 1,
	first_requested_at DATETIME NOT NULL,
	last_requested_at  DATETIME NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS pricing_results (
	id                TEXT PRIMARY KEY,
	request_id        TEXT NOT NULL REFERENCES pricing_requests(id),
	version           INTEGER NOT NULL,
	is_latest         INTEGER NOT NULL DEFAULT 1,
	calculated_at     DATETIME NOT NULL,
	expires_at        DATETIME NOT NULL,
	cache_hit         INTEGER NOT NULL DEFAULT 0,
	recommended_min   REAL NOT NULL,
	recommended_max   REAL NOT NULL,
	target_salary     REAL NOT NULL,
	p10               REAL NOT NULL,
	p25               REAL NOT NULL,
	p50               REAL NOT NULL,
	p75               REAL NOT NULL,
	p90               REAL NOT NULL,
	confidence_score  REAL NOT NULL,
	confidence_level  TEXT NOT NULL,
	scenarios         TEXT NOT NULL DEFAULT '[]',
	explanation       TEXT NOT NULL DEFAULT '',
	total_data_points INTEGER NOT NULL DEFAULT 0,
	sources_used      TEXT NOT NULL DEFAULT '[]',
	UNIQUE (request_id, version)
);

CREATE TABLE IF NOT EXISTS result_contributions (
	id             TEXT PRIMARY KEY,
	result_id      TEXT NOT NULL REFERENCES pricing_results(id),
	source_name    TEXT NOT NULL,
	weight_applied REAL NOT NULL,
	sample_size    INTEGER NOT NULL,
	match_quality  REAL NOT NULL,
	recency_weight REAL NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pricing_results_one_latest ON pricing_results(request_id) WHERE is_latest = 1;
CREATE INDEX IF NOT EXISTS idx_pricing_results_calculated_at ON pricing_results(calculated_at);
CREATE INDEX IF NOT EXISTS idx_result_contributions_result_id ON result_contributions(result_id);
`

const requestColumns = `id, fingerprint, job_title, location_text, job_description, requested_by, request_count, first_requested_at, last_requested_at, status`

const resultColumns = `id, request_id, version, is_latest, calculated_at, expires_at, cache_hit,
	recommended_min, recommended_max, target_salary, p10, p25, p50, p75, p90,
	confidence_score, confidence_level, scenarios, explanation, total_data_points, sources_used`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindOrCreateRequest(ctx context.Context, in RequestInput, now time.Time) (*model.PricingRequest, error) {
	now = now.UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pricing_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			request_count = pricing_requests.request_count + 1,
			last_requested_at = excluded.last_requested_at
		RETURNING `+requestColumns,
		uuid.New().String(), in.Fingerprint, in.JobTitle, in.LocationText, in.JobDescription,
		in.RequestedBy, now, now, string(model.RequestStatusPending),
	)
	req, err := scanRequest(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find or create request %s", in.Fingerprint)
	}
	return req, nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (*model.PricingRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM pricing_requests WHERE id = ?`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get request %s", requestID)
	}
	return req, nil
}

func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pricing_requests SET status = ? WHERE id = ?`,
		string(status), requestID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update request status %s", requestID)
	}
	return checkRowsAffected(res, "request", requestID)
}

// GetFreshResult returns the latest unexpired result, or nil on a miss.
func (s *SQLiteStore) GetFreshResult(ctx context.Context, requestID string, now time.Time) (*model.PricingResult, error) {
	r, err := s.GetLatestResult(ctx, requestID)
	if err != nil || r == nil {
		return nil, err
	}
	if r.Expired(now) {
		return nil, nil
	}
	return r, nil
}

// GetLatestResult returns the latest result regardless of expiry, or nil if
// the request has none.
func (s *SQLiteStore) GetLatestResult(ctx context.Context, requestID string) (*model.PricingResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM pricing_results WHERE request_id = ? AND is_latest = 1`,
		requestID,
	)
	r, err := scanResult(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get latest result %s", requestID)
	}
	if err := s.loadContributions(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) MarkCacheHit(ctx context.Context, resultID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pricing_results SET cache_hit = 1 WHERE id = ?`, resultID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark cache hit %s", resultID)
	}
	return checkRowsAffected(res, "result", resultID)
}

func (s *SQLiteStore) SaveResultVersion(ctx context.Context, result *model.PricingResult, retain int) (saved *model.PricingResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save result")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists string
	if err = tx.QueryRowContext(ctx, `SELECT id FROM pricing_requests WHERE id = ?`, result.RequestID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: request %s", result.RequestID)
		}
		return nil, eris.Wrap(err, "sqlite: lock request")
	}

	var current int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM pricing_results WHERE request_id = ?`,
		result.RequestID,
	).Scan(&current); err != nil {
		return nil, eris.Wrap(err, "sqlite: next version")
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE pricing_results SET is_latest = 0 WHERE request_id = ? AND is_latest = 1`,
		result.RequestID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: demote latest")
	}

	saved = newVersion(result, uuid.New().String(), current+1, func() string { return uuid.New().String() })
	scenarios, sources, err := encodeResultJSON(saved)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO pricing_results (`+resultColumns+`)
		VALUES (?, ?, ?, 1, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		saved.ID, saved.RequestID, saved.Version, saved.CalculatedAt, saved.ExpiresAt,
		saved.RecommendedMin, saved.RecommendedMax, saved.TargetSalary,
		saved.P10, saved.P25, saved.P50, saved.P75, saved.P90,
		saved.ConfidenceScore, string(saved.ConfidenceLevel), string(scenarios),
		saved.Explanation, saved.TotalDataPoints, string(sources),
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert result")
	}

	for _, c := range saved.Contributions {
		if _, err = tx.ExecContext(ctx, `INSERT INTO result_contributions
			(id, result_id, source_name, weight_applied, sample_size, match_quality, recency_weight)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ResultID, c.SourceName, c.WeightApplied, c.SampleSize, c.MatchQuality, c.RecencyWeight,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert contribution %s", c.SourceName)
		}
	}

	cutoff := expiredVersion(saved.Version, retain)
	if cutoff > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM result_contributions WHERE result_id IN
			(SELECT id FROM pricing_results WHERE request_id = ? AND version <= ?)`,
			saved.RequestID, cutoff,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: prune contributions")
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM pricing_results WHERE request_id = ? AND version <= ?`,
			saved.RequestID, cutoff,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: prune versions")
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE pricing_requests SET status = ? WHERE id = ?`,
		string(model.RequestStatusCompleted), saved.RequestID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: complete request")
	}

	if err = tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save result")
	}
	return saved, nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, resultID string) (*model.PricingResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM pricing_results WHERE id = ?`, resultID)
	r, err := scanResult(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", resultID)
	}
	if err := s.loadContributions(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListResultVersions(ctx context.Context, requestID string) ([]model.PricingResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM pricing_results WHERE request_id = ? ORDER BY version DESC`,
		requestID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list versions %s", requestID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PricingResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate versions")
	}
	for i := range out {
		if err := s.loadContributions(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.PricingResultSummary, error) {
	filter = clampPage(filter)

	query := `SELECT r.id, r.request_id, q.job_title, q.location_text, r.version, r.is_latest,
		r.target_salary, r.confidence_score, r.confidence_level, r.calculated_at, r.expires_at
		FROM pricing_results r JOIN pricing_requests q ON q.id = r.request_id`
	var conds []string
	var args []any
	if filter.RequestID != "" {
		conds = append(conds, "r.request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.LatestOnly {
		conds = append(conds, "r.is_latest = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY r.calculated_at DESC, r.version DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PricingResultSummary
	for rows.Next() {
		var sum model.PricingResultSummary
		var level string
		if err := rows.Scan(&sum.ResultID, &sum.RequestID, &sum.JobTitle, &sum.LocationText,
			&sum.Version, &sum.IsLatest, &sum.TargetSalary, &sum.ConfidenceScore, &level,
			&sum.CalculatedAt, &sum.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result summary")
		}
		sum.ConfidenceLevel = model.ConfidenceLevel(level)
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) loadContributions(ctx context.Context, r *model.PricingResult) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, result_id, source_name, weight_applied, sample_size, match_quality, recency_weight
		FROM result_contributions WHERE result_id = ? ORDER BY source_name`, r.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: load contributions %s", r.ID)
	}
	defer rows.Close() //nolint:errcheck

	r.Contributions = nil
	for rows.Next() {
		var c model.DataSourceContribution
		if err := rows.Scan(&c.ID, &c.ResultID, &c.SourceName, &c.WeightApplied, &c.SampleSize, &c.MatchQuality, &c.RecencyWeight); err != nil {
			return eris.Wrap(err, "sqlite: scan contribution")
		}
		r.Contributions = append(r.Contributions, c)
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate contributions")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*model.PricingRequest, error) {
	var r model.PricingRequest
	var status string
	err := row.Scan(&r.ID, &r.Fingerprint, &r.JobTitle, &r.LocationText, &r.JobDescription,
		&r.RequestedBy, &r.RequestCount, &r.FirstRequestedAt, &r.LastRequestedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan request")
	}
	r.Status = model.RequestStatus(status)
	return &r, nil
}

func scanResult(row scannable) (*model.PricingResult, error) {
	var r model.PricingResult
	var level, scenarios, sources string
	err := row.Scan(&r.ID, &r.RequestID, &r.Version, &r.IsLatest, &r.CalculatedAt, &r.ExpiresAt, &r.CacheHit,
		&r.RecommendedMin, &r.RecommendedMax, &r.TargetSalary, &r.P10, &r.P25, &r.P50, &r.P75, &r.P90,
		&r.ConfidenceScore, &level, &scenarios, &r.Explanation, &r.TotalDataPoints, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan result")
	}
	r.ConfidenceLevel = model.ConfidenceLevel(level)
	if err := decodeResultJSON(&r, []byte(scenarios), []byte(sources)); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeResultJSON(r *model.PricingResult) (scenarios, sources []byte, err error) {
	scen := r.AlternativeScenarios
	if scen == nil {
		scen = []model.Scenario{}
	}
	if scenarios, err = json.Marshal(scen); err != nil {
		return nil, nil, eris.Wrap(err, "marshal scenarios")
	}
	used := r.DataSourcesUsed
	if used == nil {
		used = []string{}
	}
	if sources, err = json.Marshal(used); err != nil {
		return nil, nil, eris.Wrap(err, "marshal sources used")
	}
	return scenarios, sources, nil
}

func decodeResultJSON(r *model.PricingResult, scenarios, sources []byte) error {
	if len(scenarios) > 0 {
		if err := json.Unmarshal(scenarios, &r.AlternativeScenarios); err != nil {
			return eris.Wrap(err, "unmarshal scenarios")
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &r.DataSourcesUsed); err != nil {
			return eris.Wrap(err, "unmarshal sources used")
		}
	}
	return nil
}
