package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/engine"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	status    engine.Status
	positions []domain.Position
	orders    []domain.Order
	trades    []domain.CompletedTrade
	curve     []domain.EquitySnapshot
}

func (f *fakeProvider) Status() engine.Status                { return f.status }
func (f *fakeProvider) Positions() []domain.Position         { return f.positions }
func (f *fakeProvider) ActiveOrders() []domain.Order         { return f.orders }
func (f *fakeProvider) Trades() []domain.CompletedTrade      { return f.trades }
func (f *fakeProvider) EquityCurve() []domain.EquitySnapshot { return f.curve }

func nullLogger() *logrus.Entry {
	logger, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func newProvider() *fakeProvider {
	return &fakeProvider{
		status: engine.Status{EngineID: "eng-1", State: engine.StateRunning, Mode: engine.ModeDryRun, Equity: 10050, TotalOrders: 3},
		positions: []domain.Position{
			{Symbol: "BTCUSDT", Side: domain.LongPosition, Quantity: 0.5, AverageEntryPrice: 100},
			{Symbol: "ETHUSDT", Side: domain.LongPosition, Quantity: 2, AverageEntryPrice: 20},
		},
		orders: []domain.Order{
			{ID: "o-1", Symbol: "BTCUSDT", Side: domain.Buy, Status: domain.OrderSubmitted},
		},
		trades: []domain.CompletedTrade{
			{Symbol: "BTCUSDT", PnL: 1, ExitTime: baseTime},
			{Symbol: "ETHUSDT", PnL: 2, ExitTime: baseTime.Add(time.Hour)},
			{Symbol: "BTCUSDT", PnL: 3, ExitTime: baseTime.Add(2 * time.Hour)},
		},
		curve: []domain.EquitySnapshot{
			{Timestamp: baseTime, TotalEquity: 10000},
			{Timestamp: baseTime.Add(time.Minute), TotalEquity: 10020},
			{Timestamp: baseTime.Add(2 * time.Minute), TotalEquity: 10050},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthcheck(t *testing.T) {
	rec := get(t, New(":0", newProvider(), nullLogger()).Handler(), "/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := get(t, New(":0", newProvider(), nullLogger()).Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "eng-1", body["engineId"])
	assert.Equal(t, "RUNNING", body["state"])
	assert.Equal(t, 10050.0, body["equity"])
}

func TestListEndpoints(t *testing.T) {
	h := New(":0", newProvider(), nullLogger()).Handler()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"전체 포지션", "/positions", 2},
		{"심볼 필터", "/positions?symbol=ethusdt", 1},
		{"활성 주문", "/orders", 1},
		{"다른 심볼 주문", "/orders?symbol=ETHUSDT", 0},
		{"전체 거래", "/trades", 3},
		{"심볼별 거래", "/trades?symbol=BTCUSDT", 2},
		{"최근 거래", "/trades?limit=1", 1},
		{"자산 곡선", "/equity", 3},
		{"최근 자산", "/equity?limit=2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			items := decode[[]map[string]any](t, rec)
			assert.Len(t, items, tt.want)
		})
	}

	latest := decode[[]map[string]any](t, get(t, h, "/trades?limit=1"))
	assert.Equal(t, 3.0, latest[0]["pnl"])

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/equity?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/trades?limit=abc").Code)
}

func TestEmptyListsAreArrays(t *testing.T) {
	h := New(":0", &fakeProvider{}, nullLogger()).Handler()
	for _, path := range []string{"/positions", "/orders", "/trades", "/equity"} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String(), path)
	}
}

func TestPositionBySymbol(t *testing.T) {
	h := New(":0", newProvider(), nullLogger()).Handler()

	rec := get(t, h, "/positions/btcusdt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, decode[map[string]any](t, rec)["quantity"])

	rec = get(t, h, "/positions/SOLUSDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "SOLUSDT")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", newProvider(), nullLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("서버가 종료되지 않음")
	}
}

func TestRunReportsListenError(t *testing.T) {
	s := New("256.0.0.1:-1", newProvider(), nullLogger())
	assert.Error(t, s.Run(context.Background()))
}
