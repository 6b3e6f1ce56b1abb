package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comp-pricer/internal/db"
	"github.com/sells-group/comp-pricer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pricing_requests (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint        TEXT NOT NULL UNIQUE,
	job_title          TEXT NOT NULL,
	location_text      TEXT NOT NULL,
	job_description    TEXT NOT NULL DEFAULT '',
	requested_by       BIGINT NOT NULL,
	request_count      INTEGER NOT NULL DEFAULT 1,
	first_requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_requested_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	status             TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS pricing_results (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request_id        TEXT NOT NULL REFERENCES pricing_requests(id),
	version           INTEGER NOT NULL,
	is_latest         BOOLEAN NOT NULL DEFAULT true,
	calculated_at     TIMESTAMPTZ NOT NULL,
	expires_at        TIMESTAMPTZ NOT NULL,
	cache_hit         BOOLEAN NOT NULL DEFAULT false,
	recommended_min   DOUBLE PRECISION NOT NULL,
	recommended_max   DOUBLE PRECISION NOT NULL,
	target_salary     DOUBLE PRECISION NOT NULL,
	p10               DOUBLE PRECISION NOT NULL,
	p25               DOUBLE PRECISION NOT NULL,
	p50               DOUBLE PRECISION NOT NULL,
	p75               DOUBLE PRECISION NOT NULL,
	p90               DOUBLE PRECISION NOT NULL,
	confidence_score  DOUBLE PRECISION NOT NULL,
	confidence_level  TEXT NOT NULL,
	scenarios         JSONB NOT NULL DEFAULT '[]',
	explanation       TEXT NOT NULL DEFAULT '',
	total_data_points INTEGER NOT NULL DEFAULT 0,
	sources_used      JSONB NOT NULL DEFAULT '[]',
	UNIQUE (request_id, version)
);

CREATE TABLE IF NOT EXISTS result_contributions (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	result_id      TEXT NOT NULL REFERENCES pricing_results(id) ON DELETE CASCADE,
	source_name    TEXT NOT NULL,
	weight_applied DOUBLE PRECISION NOT NULL,
	sample_size    INTEGER NOT NULL,
	match_quality  DOUBLE PRECISION NOT NULL,
	recency_weight DOUBLE PRECISION NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pricing_results_one_latest ON pricing_results(request_id) WHERE is_latest;
CREATE INDEX IF NOT EXISTS idx_pricing_results_calculated_at ON pricing_results(calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_result_contributions_result_id ON result_contributions(result_id);
`

var contributionColumns = []string{"id", "result_id", "source_name", "weight_applied", "sample_size", "match_quality", "recency_weight"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindOrCreateRequest(ctx context.Context, in RequestInput, now time.Time) (*model.PricingRequest, error) {
	now = now.UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pricing_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7, $8)
		ON CONFLICT (fingerprint) DO UPDATE SET
			request_count = pricing_requests.request_count + 1,
			last_requested_at = EXCLUDED.last_requested_at
		RETURNING `+requestColumns,
		uuid.New().String(), in.Fingerprint, in.JobTitle, in.LocationText, in.JobDescription,
		in.RequestedBy, now, string(model.RequestStatusPending),
	)
	req, err := scanPgRequest(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find or create request %s", in.Fingerprint)
	}
	return req, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (*model.PricingRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM pricing_requests WHERE id = $1`, requestID)
	req, err := scanPgRequest(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get request %s", requestID)
	}
	return req, nil
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pricing_requests SET status = $1 WHERE id = $2`, string(status), requestID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update request status %s", requestID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "request %s", requestID)
	}
	return nil
}

func (s *PostgresStore) GetFreshResult(ctx context.Context, requestID string, now time.Time) (*model.PricingResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM pricing_results WHERE request_id = $1 AND is_latest AND expires_at > $2`,
		requestID, now.UTC(),
	)
	return s.optionalResult(ctx, row, requestID)
}

func (s *PostgresStore) GetLatestResult(ctx context.Context, requestID string) (*model.PricingResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM pricing_results WHERE request_id = $1 AND is_latest`,
		requestID,
	)
	return s.optionalResult(ctx, row, requestID)
}

func (s *PostgresStore) optionalResult(ctx context.Context, row pgx.Row, requestID string) (*model.PricingResult, error) {
	r, err := scanPgResult(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result for request %s", requestID)
	}
	if err := s.loadContributions(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) MarkCacheHit(ctx context.Context, resultID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pricing_results SET cache_hit = true WHERE id = $1`, resultID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark cache hit %s", resultID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "result %s", resultID)
	}
	return nil
}

// SaveResultVersion publishes result as the request's newest version. The
// request row lock serializes concurrent savers across processes.
func (s *PostgresStore) SaveResultVersion(ctx context.Context, result *model.PricingResult, retain int) (saved *model.PricingResult, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save result")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked string
	if err = tx.QueryRow(ctx, `SELECT id FROM pricing_requests WHERE id = $1 FOR UPDATE`, result.RequestID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: request %s", result.RequestID)
		}
		return nil, eris.Wrap(err, "postgres: lock request")
	}

	var current int
	if err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM pricing_results WHERE request_id = $1`,
		result.RequestID,
	).Scan(&current); err != nil {
		return nil, eris.Wrap(err, "postgres: next version")
	}

	if _, err = tx.Exec(ctx,
		`UPDATE pricing_results SET is_latest = false WHERE request_id = $1 AND is_latest`,
		result.RequestID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: demote latest")
	}

	saved = newVersion(result, uuid.New().String(), current+1, func() string { return uuid.New().String() })
	scenarios, sources, err := encodeResultJSON(saved)
	if err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO pricing_results (`+resultColumns+`)
		VALUES ($1, $2, $3, true, $4, $5, false, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		saved.ID, saved.RequestID, saved.Version, saved.CalculatedAt, saved.ExpiresAt,
		saved.RecommendedMin, saved.RecommendedMax, saved.TargetSalary,
		saved.P10, saved.P25, saved.P50, saved.P75, saved.P90,
		saved.ConfidenceScore, string(saved.ConfidenceLevel), scenarios,
		saved.Explanation, saved.TotalDataPoints, sources,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert result")
	}

	rows := make([][]any, len(saved.Contributions))
	for i, c := range saved.Contributions {
		rows[i] = []any{c.ID, c.ResultID, c.SourceName, c.WeightApplied, c.SampleSize, c.MatchQuality, c.RecencyWeight}
	}
	if _, err = db.CopyFrom(ctx, tx, "result_contributions", contributionColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: insert contributions")
	}

	if cutoff := expiredVersion(saved.Version, retain); cutoff > 0 {
		if _, err = tx.Exec(ctx,
			`DELETE FROM pricing_results WHERE request_id = $1 AND version <= $2`,
			saved.RequestID, cutoff,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: prune versions")
		}
	}

	if _, err = tx.Exec(ctx,
		`UPDATE pricing_requests SET status = $1 WHERE id = $2`,
		string(model.RequestStatusCompleted), saved.RequestID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: complete request")
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit save result")
	}
	return saved, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, resultID string) (*model.PricingResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM pricing_results WHERE id = $1`, resultID)
	r, err := scanPgResult(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", resultID)
	}
	if err := s.loadContributions(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListResultVersions(ctx context.Context, requestID string) ([]model.PricingResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM pricing_results WHERE request_id = $1 ORDER BY version DESC`,
		requestID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list versions %s", requestID)
	}
	defer rows.Close()

	var out []model.PricingResult
	for rows.Next() {
		r, err := scanPgResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate versions")
	}
	for i := range out {
		if err := s.loadContributions(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.PricingResultSummary, error) {
	filter = clampPage(filter)

	query := `SELECT r.id, r.request_id, q.job_title, q.location_text, r.version, r.is_latest,
		r.target_salary, r.confidence_score, r.confidence_level, r.calculated_at, r.expires_at
		FROM pricing_results r JOIN pricing_requests q ON q.id = r.request_id`
	var conds []string
	var args []any
	argN := 1
	if filter.RequestID != "" {
		conds = append(conds, fmt.Sprintf("r.request_id = $%d", argN))
		args = append(args, filter.RequestID)
		argN++
	}
	if filter.LatestOnly {
		conds = append(conds, "r.is_latest")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY r.calculated_at DESC, r.version DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.PricingResultSummary
	for rows.Next() {
		var sum model.PricingResultSummary
		var level string
		if err := rows.Scan(&sum.ResultID, &sum.RequestID, &sum.JobTitle, &sum.LocationText,
			&sum.Version, &sum.IsLatest, &sum.TargetSalary, &sum.ConfidenceScore, &level,
			&sum.CalculatedAt, &sum.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result summary")
		}
		sum.ConfidenceLevel = model.ConfidenceLevel(level)
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func (s *PostgresStore) loadContributions(ctx context.Context, r *model.PricingResult) error {
	rows, err := s.pool.Query(ctx, `SELECT id, result_id, source_name, weight_applied, sample_size, match_quality, recency_weight
		FROM result_contributions WHERE result_id = $1 ORDER BY source_name`, r.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: load contributions %s", r.ID)
	}
	defer rows.Close()

	r.Contributions = nil
	for rows.Next() {
		var c model.DataSourceContribution
		if err := rows.Scan(&c.ID, &c.ResultID, &c.SourceName, &c.WeightApplied, &c.SampleSize, &c.MatchQuality, &c.RecencyWeight); err != nil {
			return eris.Wrap(err, "postgres: scan contribution")
		}
		r.Contributions = append(r.Contributions, c)
	}
	return eris.Wrap(rows.Err(), "postgres: iterate contributions")
}

func scanPgRequest(row pgx.Row) (*model.PricingRequest, error) {
	var r model.PricingRequest
	var status string
	err := row.Scan(&r.ID, &r.Fingerprint, &r.JobTitle, &r.LocationText, &r.JobDescription,
		&r.RequestedBy, &r.RequestCount, &r.FirstRequestedAt, &r.LastRequestedAt, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan request")
	}
	r.Status = model.RequestStatus(status)
	return &r, nil
}

func scanPgResult(row pgx.Row) (*model.PricingResult, error) {
	var r model.PricingResult
	var level string
	var scenarios, sources []byte
	err := row.Scan(&r.ID, &r.RequestID, &r.Version, &r.IsLatest, &r.CalculatedAt, &r.ExpiresAt, &r.CacheHit,
		&r.RecommendedMin, &r.RecommendedMax, &r.TargetSalary, &r.P10, &r.P25, &r.P50, &r.P75, &r.P90,
		&r.ConfidenceScore, &level, &scenarios, &r.Explanation, &r.TotalDataPoints, &sources)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan result")
	}
	r.ConfidenceLevel = model.ConfidenceLevel(level)
	if err := decodeResultJSON(&r, scenarios, sources); err != nil {
		return nil, err
	}
	return &r, nil
}
