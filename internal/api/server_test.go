package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comp-pricer/internal/metrics"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/pricing"
)

type mockService struct{ mock.Mock }

func (m *mockService) Price(ctx context.Context, req pricing.PriceRequest) (*pricing.PricingResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.PricingResponse), args.Error(1)
}

func (m *mockService) GetHistory(ctx context.Context, limit, offset int) ([]model.PricingResultSummary, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricingResultSummary), args.Error(1)
}

func (m *mockService) GetByID(ctx context.Context, id string) (*pricing.PricingResultDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.PricingResultDetail), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, svc PricingService, ping Pinger) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	srv := httptest.NewServer(NewRouter(svc, ping, Options{Gatherer: reg}))
	t.Cleanup(srv.Close)
	return srv
}

func decodeError(t *testing.T, resp *http.Response) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestPrice_OK(t *testing.T) {
	svc := &mockService{}
	want := pricing.PriceRequest{JobTitle: "Engineer", Location: "Singapore", RequesterID: 3, Deadline: 1500 * time.Millisecond}
	svc.On("Price", mock.Anything, want).Return(&pricing.PricingResponse{
		ResultID:     "r1",
		TargetSalary: 120000,
		Cache:        pricing.CacheInfo{Version: 1},
	}, nil)
	srv := newTestServer(t, svc, nil)

	resp, err := http.Post(srv.URL+"/v1/price", "application/json",
		strings.NewReader(`{"job_title":"Engineer","location":"Singapore","requester_id":3,"deadline_ms":1500}`))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var got pricing.PricingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "r1", got.ResultID)
	assert.Equal(t, 120000.0, got.TargetSalary)
	svc.AssertExpectations(t)
}

func TestPrice_BadBody(t *testing.T) {
	srv := newTestServer(t, &mockService{}, nil)

	for _, body := range []string{`{`, `{"job_title":"x","unknown":1}`} {
		resp, err := http.Post(srv.URL+"/v1/price", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(pricing.KindInvalidRequest), decodeError(t, resp).Kind)
		resp.Body.Close() //nolint:errcheck
	}
}

func TestPrice_ErrorKinds(t *testing.T) {
	tests := []struct {
		kind   pricing.Kind
		status int
	}{
		{pricing.KindInvalidRequest, http.StatusBadRequest},
		{pricing.KindBusy, http.StatusConflict},
		{pricing.KindInsufficientData, http.StatusUnprocessableEntity},
		{pricing.KindSourceUnavailable, http.StatusBadGateway},
		{pricing.KindStoreError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := &mockService{}
			svc.On("Price", mock.Anything, mock.Anything).Return(nil, &pricing.Error{Kind: tt.kind, Err: errors.New("boom")})
			srv := newTestServer(t, svc, nil)

			resp, err := http.Post(srv.URL+"/v1/price", "application/json", strings.NewReader(`{"job_title":"a","location":"b"}`))
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck

			assert.Equal(t, tt.status, resp.StatusCode)
			detail := decodeError(t, resp)
			assert.Equal(t, string(tt.kind), detail.Kind)
			assert.Contains(t, detail.Message, "boom")
		})
	}
}

func TestStatusFor_Unclassified(t *testing.T) {
	status, kind := statusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, pricing.Kind("Timeout"), kind)

	status, _ = statusFor(errors.New("x"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestListResults(t *testing.T) {
	svc := &mockService{}
	svc.On("GetHistory", mock.Anything, 5, 10).Return([]model.PricingResultSummary{{ResultID: "r1"}}, nil)
	srv := newTestServer(t, svc, nil)

	resp, err := http.Get(srv.URL + "/v1/results?limit=5&offset=10")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Results []model.PricingResultSummary `json:"results"`
		Limit   int                          `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "r1", body.Results[0].ResultID)
	assert.Equal(t, 5, body.Limit)
}

func TestListResults_InvalidPaging(t *testing.T) {
	srv := newTestServer(t, &mockService{}, nil)

	for _, q := range []string{"limit=abc", "offset=-1"} {
		resp, err := http.Get(srv.URL + "/v1/results?" + q)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		resp.Body.Close() //nolint:errcheck
	}
}

func TestGetResult(t *testing.T) {
	svc := &mockService{}
	svc.On("GetByID", mock.Anything, "abc").Return(&pricing.PricingResultDetail{IsLatest: true}, nil)
	svc.On("GetByID", mock.Anything, "missing").Return(nil, &pricing.Error{Kind: pricing.KindNotFound, Err: errors.New("no result")})
	srv := newTestServer(t, svc, nil)

	resp, err := http.Get(srv.URL + "/v1/results/abc")
	require.NoError(t, err)
	var got pricing.PricingResultDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.IsLatest)

	resp, err = http.Get(srv.URL + "/v1/results/missing")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(pricing.KindNotFound), decodeError(t, resp).Kind)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockService{}, pingFunc(func(context.Context) error { return nil }))
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, &mockService{}, pingFunc(func(context.Context) error { return errors.New("db down") }))
	resp, err = http.Get(down.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &mockService{}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &mockService{}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/price", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
