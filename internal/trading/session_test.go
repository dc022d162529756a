package trading

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/execution"
	"github.com/assist-by/phoenix-engine/internal/ledger"
	"github.com/assist-by/phoenix-engine/internal/order"
	"github.com/assist-by/phoenix-engine/internal/ratelimit"
	"github.com/assist-by/phoenix-engine/internal/strategy"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(hour int, close float64) domain.Candle {
	open := baseTime.Add(time.Duration(hour) * time.Hour)
	return domain.Candle{
		OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
		Open: close, High: close + 5, Low: close - 5, Close: close, Volume: 1,
		Symbol: "BTCUSDT", Interval: domain.Interval1h,
	}
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	entry := logrus.NewEntry(logger)
	return NewSession(
		order.NewRegistry(ratelimit.NewLimiter(5), entry),
		ledger.NewLedger(10_000, entry),
		strategy.NewContext(10_000, 0),
		entry,
		opts...,
	)
}

type recordingVenue struct {
	orders    []domain.Order
	cancelled []string
	err       error
}

func (v *recordingVenue) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	v.orders = append(v.orders, o)
	return o.ID, nil
}

func (v *recordingVenue) CancelOrder(ctx context.Context, id string) error {
	v.cancelled = append(v.cancelled, id)
	return nil
}

func TestExecuteBuyThenFill(t *testing.T) {
	var trades []domain.CompletedTrade
	var fills []domain.Fill
	s := newTestSession(t,
		WithTradeHook(func(tr domain.CompletedTrade) { trades = append(trades, tr) }),
		WithFillHook(func(f domain.Fill) { fills = append(fills, f) }),
	)
	venue := &recordingVenue{}
	ctx := context.Background()

	require.NoError(t, s.MarkToMarket(candle(0, 100)))
	id, err := s.Execute(ctx, domain.BuySignal("BTCUSDT", 2), candle(0, 100), venue)
	require.NoError(t, err)
	require.Len(t, venue.orders, 1)
	assert.Equal(t, id, venue.orders[0].ID)
	assert.Equal(t, domain.Market, venue.orders[0].Type)

	o, ok := s.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.OrderSubmitted, o.Status)

	// 두 번에 나눠 체결
	trade, err := s.ApplyFill(domain.Fill{OrderID: id, Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1, Price: 100, Commission: 0.1, Timestamp: baseTime})
	require.NoError(t, err)
	assert.Nil(t, trade)
	o, _ = s.Registry().Get(id)
	assert.Equal(t, domain.OrderPartiallyFilled, o.Status)

	_, err = s.ApplyFill(domain.Fill{OrderID: id, Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1, Price: 102, Commission: 0.102, Timestamp: baseTime})
	require.NoError(t, err)
	o, _ = s.Registry().Get(id)
	assert.Equal(t, domain.OrderFilled, o.Status)
	assert.Equal(t, 101.0, o.AverageFillPrice)
	assert.Len(t, fills, 2)

	sc := s.Context()
	pos, ok := sc.Position("BTCUSDT")
	require.True(t, ok, "원장 포지션이 전략 컨텍스트에 반영")
	assert.Equal(t, 2.0, pos.Quantity)
	assert.InDelta(t, s.Ledger().Cash(), sc.AvailableCapital(), 1e-9)

	// 같은 주문의 추가 체결은 거부되고 원장은 그대로
	cash := s.Ledger().Cash()
	_, err = s.ApplyFill(domain.Fill{OrderID: id, Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1, Price: 100, Timestamp: baseTime})
	assert.ErrorIs(t, err, domain.ErrOrderError)
	assert.Equal(t, cash, s.Ledger().Cash())

	// 청산
	require.NoError(t, s.MarkToMarket(candle(1, 110)))
	closeID, err := s.Execute(ctx, domain.CloseSignal("BTCUSDT"), candle(1, 110), venue)
	require.NoError(t, err)
	closing := venue.orders[1]
	assert.Equal(t, domain.Sell, closing.Side)
	assert.Equal(t, 2.0, closing.Quantity)

	trade, err = s.ApplyFill(domain.Fill{OrderID: closeID, Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 2, Price: 110, Timestamp: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, 18.0, trade.GrossPnL)
	require.Len(t, trades, 1)
	assert.False(t, sc.HasPosition("BTCUSDT"))
	assert.Len(t, sc.RecentTrades("BTCUSDT", 0), 1)
}

func TestExecuteErrors(t *testing.T) {
	ctx := context.Background()
	venue := &recordingVenue{}

	tests := []struct {
		name   string
		signal domain.Signal
		err    error
	}{
		{"포지션 없는 청산", domain.CloseSignal("BTCUSDT"), domain.ErrOrderError},
		{"주문 정정", domain.ModifySignal("abc", 1, 100), domain.ErrOrderError},
		{"수량 0", domain.BuySignal("BTCUSDT", 0), domain.ErrInvalidOrder},
		{"음수 수량", domain.SellSignal("BTCUSDT", -1), domain.ErrInvalidOrder},
		{"NaN 수량", domain.BuySignal("BTCUSDT", math.NaN()), domain.ErrInvalidOrder},
		{"무한대 수량", domain.BuySignal("BTCUSDT", math.Inf(1)), domain.ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t)
			_, err := s.Execute(ctx, tt.signal, candle(0, 100), venue)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 10_000.0, s.Ledger().Cash())
		})
	}

	s := newTestSession(t)
	id, err := s.Execute(ctx, domain.Hold(), candle(0, 100), venue)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 0, s.Registry().TotalOrders())
}

func TestExecuteNonFiniteSignalWithHandler(t *testing.T) {
	ctx := context.Background()
	logger, _ := logrustest.NewNullLogger()
	h := execution.NewHandler(0.001, logrus.NewEntry(logger))
	h.OnPrice("BTCUSDT", 100, baseTime)

	for _, qty := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		s := newTestSession(t)
		assert.NotPanics(t, func() {
			_, err := s.Execute(ctx, domain.BuySignal("BTCUSDT", qty), candle(0, 100), h)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
		assert.Empty(t, h.DrainFills())
		assert.Equal(t, 10_000.0, s.Ledger().Cash())
	}
}

func TestExecuteVenueFailure(t *testing.T) {
	s := newTestSession(t)
	venueErr := errors.New("connection refused")
	venue := &recordingVenue{err: venueErr}

	id, err := s.Execute(context.Background(), domain.BuySignal("BTCUSDT", 1), candle(0, 100), venue)
	require.Error(t, err)
	assert.ErrorIs(t, err, venueErr)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "submit", execErr.Phase)

	o, ok := s.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.OrderFailed, o.Status)
	assert.Equal(t, "connection refused", o.Error)
}

func TestExecuteRateLimited(t *testing.T) {
	s := newTestSession(t)
	venue := &recordingVenue{}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Execute(ctx, domain.BuySignal("BTCUSDT", 1), candle(0, 100), venue)
		require.NoError(t, err)
	}
	_, err := s.Execute(ctx, domain.BuySignal("BTCUSDT", 1), candle(0, 100), venue)
	assert.ErrorIs(t, err, domain.ErrRateLimitExceeded)
	assert.Len(t, venue.orders, 5)

	// 한 시간 뒤 캔들은 새 윈도우
	_, err = s.Execute(ctx, domain.BuySignal("BTCUSDT", 1), candle(1, 100), venue)
	assert.NoError(t, err)
}

func TestApplyFillRejectsUnknownOrMismatched(t *testing.T) {
	s := newTestSession(t)
	venue := &recordingVenue{}

	_, err := s.ApplyFill(domain.Fill{OrderID: "nope", Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	id, err := s.Execute(context.Background(), domain.BuySignal("BTCUSDT", 1), candle(0, 100), venue)
	require.NoError(t, err)
	_, err = s.ApplyFill(domain.Fill{OrderID: id, Symbol: "BTCUSDT", Side: domain.Sell, Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, domain.ErrOrderError)
	assert.Equal(t, 0, s.Ledger().FillCount())
}

func TestSimulatorAsVenue(t *testing.T) {
	s := newTestSession(t)
	sim := execution.NewSimulator(execution.Config{CommissionRate: 0.001})
	venue := VenueFunc(func(ctx context.Context, o domain.Order) (string, error) {
		return sim.SubmitOrder(o)
	})

	id, err := s.Execute(context.Background(), domain.BuySignal("BTCUSDT", 1), candle(0, 100), venue)
	require.NoError(t, err)
	assert.Equal(t, 1, sim.PendingCount())

	fills := sim.OnMarketUpdate(candle(1, 120))
	require.Len(t, fills, 1)
	assert.Equal(t, id, fills[0].OrderID)

	trades, err := s.ApplyFills(fills)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.InDelta(t, 10_000-0.12, s.Ledger().Cash(), 1e-9)
}

func TestCancelActive(t *testing.T) {
	s := newTestSession(t)
	venue := &recordingVenue{}
	ctx := context.Background()

	first, err := s.Execute(ctx, domain.BuySignal("BTCUSDT", 1).WithLimit(90), candle(0, 100), venue)
	require.NoError(t, err)
	second, err := s.Execute(ctx, domain.SellSignal("BTCUSDT", 1).WithLimit(120), candle(0, 100), venue)
	require.NoError(t, err)

	require.NoError(t, s.CancelActive(ctx, venue, baseTime.Add(time.Hour)))
	assert.Equal(t, []string{first, second}, venue.cancelled)
	assert.Empty(t, s.Registry().ActiveOrders())
	assert.Equal(t, 2, s.Registry().Counts().Completed)
}
