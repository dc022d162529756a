package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/strategy"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(minute int, close float64) domain.Candle {
	open := baseTime.Add(time.Duration(minute) * time.Minute)
	return domain.Candle{
		OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
		Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1,
		Symbol: "BTCUSDT", Interval: domain.Interval1m,
	}
}

// scripted는 n번째 캔들에 정해진 시그널을 내는 테스트 전략입니다
type scripted struct {
	strategy.BaseStrategy
	signals  map[int]domain.Signal
	calls    atomic.Int32
	shutdown atomic.Bool
}

func newScripted(signals map[int]domain.Signal) *scripted {
	return &scripted{BaseStrategy: strategy.BaseStrategy{Name: "Scripted"}, signals: signals}
}

func (s *scripted) OnCandle(ctx context.Context, c domain.Candle, sc *strategy.Context) (domain.Signal, error) {
	n := int(s.calls.Add(1)) - 1
	if sig, ok := s.signals[n]; ok {
		return sig, nil
	}
	return domain.Hold(), nil
}

func (s *scripted) Shutdown(ctx context.Context, sc *strategy.Context) error {
	s.shutdown.Store(true)
	return nil
}

func (s *scripted) Reset() {}

// restingBackend는 주문을 받기만 하고 체결하지 않는 백엔드입니다
type restingBackend struct {
	mu        sync.Mutex
	orders    []domain.Order
	cancelled []string
	syncs     int
}

func (b *restingBackend) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, o)
	return o.ID, nil
}

func (b *restingBackend) CancelOrder(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, id)
	return nil
}

func (b *restingBackend) SyncOrders(ctx context.Context) ([]domain.OrderUpdate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncs++
	return nil, nil
}

func testConfig(mode string) Config {
	return Config{
		Mode:               mode,
		Symbols:            []string{"BTCUSDT"},
		InitialCapital:     10_000,
		MaxOrdersPerSecond: 5,
		HeartbeatInterval:  time.Hour,
		CommissionRate:     0.001,
	}
}

func nullLogger() *logrus.Entry {
	logger, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestDryRunRoundTrip(t *testing.T) {
	strat := newScripted(map[int]domain.Signal{
		0: domain.BuySignal("BTCUSDT", 1),
		2: domain.CloseSignal("BTCUSDT"),
	})
	var trades []domain.CompletedTrade
	var mu sync.Mutex
	e := New(testConfig(ModeDryRun), strat, WithLogger(nullLogger()),
		WithTradeHook(func(tr domain.CompletedTrade) {
			mu.Lock()
			defer mu.Unlock()
			trades = append(trades, tr)
		}))

	events := make(chan domain.MarketEvent, 8)
	require.NoError(t, e.Start(context.Background(), events))
	assert.ErrorIs(t, e.Start(context.Background(), events), domain.ErrAlreadyRunning)

	events <- domain.NewCandleEvent(candle(0, 100))
	events <- domain.NewCandleEvent(candle(1, 105))
	events <- domain.NewCandleEvent(candle(2, 110))
	events <- domain.NewErrorEvent(domain.ErrMarketData)
	close(events)

	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("엔진이 종료되지 않음")
	}

	status := e.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Equal(t, 2, status.TotalOrders)
	assert.Equal(t, 2, status.TotalFills)
	assert.Equal(t, 0, status.OpenPositions)
	assert.Equal(t, int64(4), status.EventsProcessed)
	assert.Equal(t, int64(0), status.Errors)
	assert.InDelta(t, 10_000+10-0.1-0.11, status.Equity, 1e-9)
	assert.True(t, strat.shutdown.Load())

	require.Len(t, e.Trades(), 1)
	assert.Equal(t, 10.0, e.Trades()[0].GrossPnL)
	mu.Lock()
	assert.Len(t, trades, 1)
	mu.Unlock()
}

func TestStartValidation(t *testing.T) {
	events := make(chan domain.MarketEvent)

	tests := []struct {
		name string
		e    *Engine
	}{
		{"전략 없음", New(testConfig(ModeDryRun), nil, WithLogger(nullLogger()))},
		{"잘못된 모드", New(Config{Mode: "PAPER", InitialCapital: 1, MaxOrdersPerSecond: 1, HeartbeatInterval: time.Second}, newScripted(nil), WithLogger(nullLogger()))},
		{"실거래 백엔드 없음", New(testConfig(ModeLive), newScripted(nil), WithLogger(nullLogger()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Start(context.Background(), events)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			assert.Equal(t, StateIdle, tt.e.State())
		})
	}
}

func TestPauseResume(t *testing.T) {
	strat := newScripted(nil)
	e := New(testConfig(ModeDryRun), strat, WithLogger(nullLogger()))
	events := make(chan domain.MarketEvent)
	require.NoError(t, e.Start(context.Background(), events))

	assert.ErrorIs(t, e.Resume(), ErrNotRunning)
	require.NoError(t, e.Pause())
	assert.Equal(t, StatePaused, e.Status().State)

	events <- domain.NewCandleEvent(candle(0, 100))
	events <- domain.NewCandleEvent(candle(1, 101))
	require.Eventually(t, func() bool { return e.Status().EventsProcessed == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), strat.calls.Load(), "일시정지 중에는 전략을 호출하지 않음")

	require.NoError(t, e.Resume())
	events <- domain.NewCandleEvent(candle(2, 102))
	require.Eventually(t, func() bool { return strat.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, e.Pause(), ErrNotRunning)
}

func TestLiveModeLimitAndTeardownCancels(t *testing.T) {
	backend := &restingBackend{}
	strat := newScripted(map[int]domain.Signal{0: domain.BuySignal("BTCUSDT", 0.5)})
	cfg := testConfig(ModeLive)
	cfg.HeartbeatInterval = 10 * time.Millisecond
	e := New(cfg, strat, WithLogger(nullLogger()), WithBackend(backend))

	events := make(chan domain.MarketEvent)
	require.NoError(t, e.Start(context.Background(), events))
	events <- domain.NewCandleEvent(candle(0, 100))

	require.Eventually(t, func() bool { return e.Status().ActiveOrders == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(e.EquityCurve()) > 0 }, time.Second, 5*time.Millisecond,
		"하트비트마다 자산 스냅샷 기록")

	active := e.ActiveOrders()
	require.Len(t, active, 1)
	assert.Equal(t, domain.Limit, active[0].Type, "가격 미지정 주문은 종가 지정가로 전환")
	assert.Equal(t, 100.0, active[0].Price)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))

	backend.mu.Lock()
	assert.Equal(t, []string{active[0].ID}, backend.cancelled)
	assert.Greater(t, backend.syncs, 0)
	backend.mu.Unlock()
	assert.Equal(t, 0, e.Status().ActiveOrders)
}

// shutdownState는 전략 종료 시점의 엔진 상태를 기록합니다
type shutdownState struct {
	*scripted
	engine *Engine
	seen   atomic.Int32
}

func (s *shutdownState) Shutdown(ctx context.Context, sc *strategy.Context) error {
	s.seen.Store(int32(s.engine.State()))
	return s.scripted.Shutdown(ctx, sc)
}

func TestTeardownPassesThroughShuttingDown(t *testing.T) {
	strat := &shutdownState{scripted: newScripted(nil)}
	strat.seen.Store(-1)
	e := New(testConfig(ModeDryRun), strat, WithLogger(nullLogger()))
	strat.engine = e

	events := make(chan domain.MarketEvent, 1)
	require.NoError(t, e.Start(context.Background(), events))
	events <- domain.NewCandleEvent(candle(0, 100))
	close(events)
	<-e.Done()

	assert.Equal(t, int32(StateShuttingDown), strat.seen.Load(), "데이터 소진 후 정리 중에는 종료 중 상태")
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, strat.shutdown.Load())
}

func TestNonFiniteCandleCountedAsError(t *testing.T) {
	strat := newScripted(map[int]domain.Signal{0: domain.BuySignal("BTCUSDT", 1)})
	e := New(testConfig(ModeDryRun), strat, WithLogger(nullLogger()))

	bad := candle(1, 100)
	bad.Close = math.NaN()
	events := make(chan domain.MarketEvent, 3)
	events <- domain.NewCandleEvent(candle(0, 100))
	events <- domain.NewCandleEvent(bad)
	events <- domain.NewCandleEvent(candle(2, 101))
	close(events)

	require.NoError(t, e.Start(context.Background(), events))
	<-e.Done()

	status := e.Status()
	assert.Equal(t, int64(1), status.Errors)
	assert.Equal(t, int32(2), strat.calls.Load(), "잘못된 캔들은 전략에 전달되지 않음")
	assert.Equal(t, 1, status.OpenPositions)
	assert.False(t, math.IsNaN(status.Equity))
}

func TestOrderUpdateEvent(t *testing.T) {
	backend := &restingBackend{}
	strat := newScripted(map[int]domain.Signal{0: domain.BuySignal("BTCUSDT", 1).WithLimit(99)})
	e := New(testConfig(ModeLive), strat, WithLogger(nullLogger()), WithBackend(backend))

	events := make(chan domain.MarketEvent)
	require.NoError(t, e.Start(context.Background(), events))
	events <- domain.NewCandleEvent(candle(0, 100))
	require.Eventually(t, func() bool { return e.Status().ActiveOrders == 1 }, time.Second, 5*time.Millisecond)

	id := e.ActiveOrders()[0].ID
	events <- domain.NewOrderUpdateEvent(domain.OrderUpdate{OrderID: id, Status: domain.OrderRejected, Timestamp: baseTime, Error: "insufficient balance"})
	events <- domain.NewOrderUpdateEvent(domain.OrderUpdate{OrderID: "unknown", Status: domain.OrderFilled, Timestamp: baseTime})
	close(events)
	<-e.Done()

	status := e.Status()
	assert.Equal(t, 0, status.ActiveOrders)
	assert.Equal(t, int64(1), status.Errors, "알 수 없는 주문 업데이트는 에러로 집계되지만 루프는 계속")
	backend.mu.Lock()
	assert.Empty(t, backend.cancelled)
	backend.mu.Unlock()
}

func TestStatusTask(t *testing.T) {
	e := New(testConfig(ModeDryRun), newScripted(nil), WithLogger(nullLogger()))
	var got []Status
	task := NewStatusTask(e, nullLogger(), func(ctx context.Context, s Status) error {
		got = append(got, s)
		return nil
	})

	require.NoError(t, task.Execute(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, StateIdle, got[0].State)
	assert.Equal(t, 10_000.0, got[0].Equity)
	assert.Equal(t, "Scripted", got[0].Strategy)
}
