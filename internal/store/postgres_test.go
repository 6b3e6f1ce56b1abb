package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comp-pricer/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var (
	pgRequestCols = []string{"id", "fingerprint", "job_title", "location_text", "job_description",
		"requested_by", "request_count", "first_requested_at", "last_requested_at", "status"}
	pgResultCols = []string{"id", "request_id", "version", "is_latest", "calculated_at", "expires_at", "cache_hit",
		"recommended_min", "recommended_max", "target_salary", "p10", "p25", "p50", "p75", "p90",
		"confidence_score", "confidence_level", "scenarios", "explanation", "total_data_points", "sources_used"}
	pgContributionCols = []string{"id", "result_id", "source_name", "weight_applied", "sample_size", "match_quality", "recency_weight"}
)

func pgResultRow(id string, version int, latest bool) []any {
	return []any{id, "req-1", version, latest, baseTime, baseTime.Add(time.Hour), false,
		95000.0, 105000.0, 100000.0, 90000.0, 95000.0, 100000.0, 105000.0, 110000.0,
		82.5, "High", []byte(`[{"name":"market","min":95000,"max":105000,"use_case":"standard offer"}]`),
		"explained", 240, []byte(`["job_board","salary_survey"]`)}
}

// insertResultArgs matches the 19 bound values of the result INSERT.
func insertResultArgs(requestID string, version int) []any {
	args := []any{pgxmock.AnyArg(), requestID, version}
	for range 16 {
		args = append(args, pgxmock.AnyArg())
	}
	return args
}

func TestPostgresStore_FindOrCreateRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO pricing_requests .* ON CONFLICT \(fingerprint\) DO UPDATE SET .* RETURNING`).
		WithArgs(pgxmock.AnyArg(), "fp1", "Software Engineer", "Singapore", "", int64(1), baseTime, "pending").
		WillReturnRows(pgxmock.NewRows(pgRequestCols).
			AddRow("req-1", "fp1", "Software Engineer", "Singapore", "", int64(1), 3, baseTime.Add(-time.Hour), baseTime, "completed"))

	req, err := s.FindOrCreateRequest(context.Background(), testRequestInput("fp1"), baseTime)
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, 3, req.RequestCount)
	assert.Equal(t, model.RequestStatusCompleted, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRequest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM pricing_requests WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRequest(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRequestStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pricing_requests SET status = \$1 WHERE id = \$2`).
		WithArgs("failed", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRequestStatus(context.Background(), "missing", model.RequestStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFreshResult_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pricing_results WHERE request_id = \$1 AND is_latest AND expires_at > \$2`).
		WithArgs("req-1", baseTime).
		WillReturnError(pgx.ErrNoRows)

	r, err := s.GetFreshResult(context.Background(), "req-1", baseTime)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatestResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pricing_results WHERE request_id = \$1 AND is_latest`).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows(pgResultCols).AddRow(pgResultRow("res-1", 2, true)...))
	mock.ExpectQuery(`FROM result_contributions WHERE result_id = \$1`).
		WithArgs("res-1").
		WillReturnRows(pgxmock.NewRows(pgContributionCols).
			AddRow("c-1", "res-1", "job_board", 0.4, 40, 0.7, 0.99))

	r, err := s.GetLatestResult(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Version)
	assert.Equal(t, model.ConfidenceHigh, r.ConfidenceLevel)
	assert.Equal(t, []string{"job_board", "salary_survey"}, r.DataSourcesUsed)
	require.Len(t, r.AlternativeScenarios, 1)
	require.Len(t, r.Contributions, 1)
	assert.Equal(t, 40, r.Contributions[0].SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResultVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM pricing_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("req-1"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM pricing_results`).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(5))
	mock.ExpectExec(`UPDATE pricing_results SET is_latest = false`).
		WithArgs("req-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO pricing_results`).
		WithArgs(insertResultArgs("req-1", 6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"result_contributions"}, contributionColumns).
		WillReturnResult(2)
	mock.ExpectExec(`DELETE FROM pricing_results WHERE request_id = \$1 AND version <= \$2`).
		WithArgs("req-1", 1).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`UPDATE pricing_requests SET status = \$1 WHERE id = \$2`).
		WithArgs("completed", "req-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	saved, err := s.SaveResultVersion(context.Background(), testResult("req-1", baseTime, time.Hour, 100000), 5)
	require.NoError(t, err)
	assert.Equal(t, 6, saved.Version)
	assert.True(t, saved.IsLatest)
	require.Len(t, saved.Contributions, 2)
	assert.NotEmpty(t, saved.Contributions[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResultVersion_FirstVersionSkipsPrune(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("req-1"))
	mock.ExpectQuery(`SELECT COALESCE`).WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(`UPDATE pricing_results SET is_latest = false`).
		WithArgs("req-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO pricing_results`).
		WithArgs(insertResultArgs("req-1", 1)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE pricing_requests SET status`).
		WithArgs("completed", "req-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	in := testResult("req-1", baseTime, time.Hour, 100000)
	in.Contributions = nil
	saved, err := s.SaveResultVersion(context.Background(), in, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResultVersion_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("req-1"))
	mock.ExpectQuery(`SELECT COALESCE`).WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectExec(`UPDATE pricing_results SET is_latest = false`).
		WithArgs("req-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO pricing_results`).
		WithArgs(insertResultArgs("req-1", 2)...).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := s.SaveResultVersion(context.Background(), testResult("req-1", baseTime, time.Hour, 1), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert result")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResultVersion_UnknownRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.SaveResultVersion(context.Background(), testResult("missing", baseTime, time.Hour, 1), 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListResults_BuildsArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE r.request_id = \$1 AND r.is_latest ORDER BY r.calculated_at DESC, r.version DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("req-1", 100, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "request_id", "job_title", "location_text", "version", "is_latest",
			"target_salary", "confidence_score", "confidence_level", "calculated_at", "expires_at"}).
			AddRow("res-1", "req-1", "Software Engineer", "Singapore", 3, true, 100000.0, 82.5, "High", baseTime, baseTime.Add(time.Hour)))

	out, err := s.ListResults(context.Background(), ResultFilter{RequestID: "req-1", LatestOnly: true, Limit: 500, Offset: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Software Engineer", out[0].JobTitle)
	assert.Equal(t, model.ConfidenceHigh, out[0].ConfidenceLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkCacheHit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pricing_results SET cache_hit = true WHERE id = \$1`).
		WithArgs("res-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkCacheHit(context.Background(), "res-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PingAndMigrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pricing_requests`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
