package order

import (
	"errors"
	"math"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/ratelimit"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestRegistry(maxPerSecond int) *Registry {
	logger, _ := logrustest.NewNullLogger()
	var limiter *ratelimit.Limiter
	if maxPerSecond > 0 {
		limiter = ratelimit.NewLimiter(maxPerSecond)
	}
	return NewRegistry(limiter, logrus.NewEntry(logger))
}

func marketOrder(symbol string, qty float64, at time.Time) domain.Order {
	return domain.NewOrder(symbol, domain.Buy, domain.Market, qty, 0, 0, at)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		order   domain.Order
		wantErr error
	}{
		{"정상 시장가", marketOrder("BTCUSDT", 1, baseTime), nil},
		{"수량 0", marketOrder("BTCUSDT", 0, baseTime), domain.ErrInvalidOrder},
		{"음수 수량", marketOrder("BTCUSDT", -1, baseTime), domain.ErrInvalidOrder},
		{"심볼 없음", marketOrder("", 1, baseTime), domain.ErrInvalidOrder},
		{"가격 없는 지정가", domain.NewOrder("BTCUSDT", domain.Sell, domain.Limit, 1, 0, 0, baseTime), domain.ErrInvalidOrder},
		{"정상 지정가", domain.NewOrder("BTCUSDT", domain.Sell, domain.Limit, 1, 50000, 0, baseTime), nil},
		{"스탑 가격 없는 스탑", domain.NewOrder("BTCUSDT", domain.Sell, domain.StopMarket, 1, 0, 0, baseTime), domain.ErrInvalidOrder},
		{"NaN 수량", marketOrder("BTCUSDT", math.NaN(), baseTime), domain.ErrInvalidOrder},
		{"+Inf 수량", marketOrder("BTCUSDT", math.Inf(1), baseTime), domain.ErrInvalidOrder},
		{"-Inf 수량", marketOrder("BTCUSDT", math.Inf(-1), baseTime), domain.ErrInvalidOrder},
		{"NaN 지정가", domain.NewOrder("BTCUSDT", domain.Sell, domain.Limit, 1, math.NaN(), 0, baseTime), domain.ErrInvalidOrder},
		{"무한대 스탑 가격", domain.NewOrder("BTCUSDT", domain.Sell, domain.StopMarket, 1, 0, math.Inf(1), baseTime), domain.ErrInvalidOrder},
		{"시장가에 NaN 가격", domain.NewOrder("BTCUSDT", domain.Buy, domain.Market, 1, math.NaN(), 0, baseTime), domain.ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(0)
			id, err := r.Submit(tt.order)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				assert.Equal(t, 0, r.TotalOrders())
				assert.Empty(t, r.AuditTrail())
				return
			}
			require.NoError(t, err)
			got, ok := r.Get(id)
			require.True(t, ok)
			assert.Equal(t, domain.OrderPending, got.Status)

			trail := r.AuditTrail()
			require.Len(t, trail, 1)
			assert.Equal(t, EventCreated, trail[0].Kind)
		})
	}
}

func TestSubmitRateLimited(t *testing.T) {
	r := newTestRegistry(2)

	_, err := r.Submit(marketOrder("BTCUSDT", 1, baseTime))
	require.NoError(t, err)
	_, err = r.Submit(marketOrder("BTCUSDT", 1, baseTime.Add(100*time.Millisecond)))
	require.NoError(t, err)

	_, err = r.Submit(marketOrder("BTCUSDT", 1, baseTime.Add(200*time.Millisecond)))
	var rlErr *domain.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, 2, rlErr.Max)
	assert.Equal(t, 2, r.TotalOrders())

	_, err = r.Submit(marketOrder("BTCUSDT", 1, baseTime.Add(time.Second)))
	assert.NoError(t, err)
}

func TestOrderLifecycle(t *testing.T) {
	r := newTestRegistry(0)
	id, err := r.Submit(marketOrder("BTCUSDT", 2, baseTime))
	require.NoError(t, err)

	require.NoError(t, r.MarkSubmitted(id, baseTime.Add(time.Second)))
	assert.Equal(t, Counts{Pending: 0, Active: 1, Completed: 0}, r.Counts())

	require.NoError(t, r.ApplyUpdate(domain.OrderUpdate{
		OrderID: id, Status: domain.OrderPartiallyFilled, FilledQuantity: 1, AveragePrice: 100, Timestamp: baseTime.Add(2 * time.Second),
	}))
	got, _ := r.Get(id)
	assert.Equal(t, domain.OrderPartiallyFilled, got.Status)
	assert.Equal(t, 1.0, got.FilledQuantity)

	require.NoError(t, r.ApplyUpdate(domain.OrderUpdate{
		OrderID: id, Status: domain.OrderFilled, FilledQuantity: 2, AveragePrice: 101, Timestamp: baseTime.Add(3 * time.Second),
	}))
	assert.Equal(t, Counts{Pending: 0, Active: 0, Completed: 1}, r.Counts())

	// 두 번째 최종 체결은 거부되어야 함
	err = r.ApplyUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderFilled, FilledQuantity: 2, Timestamp: baseTime})
	assert.ErrorIs(t, err, domain.ErrOrderError)

	history := r.History(id)
	require.Len(t, history, 4)
	assert.Equal(t, []EventKind{EventCreated, EventSubmitted, EventPartiallyFilled, EventFilled},
		[]EventKind{history[0].Kind, history[1].Kind, history[2].Kind, history[3].Kind})
	assert.Equal(t, "Filled: 2.00000000/2.00000000 @ 101.00000000", history[3].Details)
}

func TestApplyUpdateErrors(t *testing.T) {
	r := newTestRegistry(0)
	id, err := r.Submit(marketOrder("BTCUSDT", 1, baseTime))
	require.NoError(t, err)

	t.Run("존재하지 않는 주문", func(t *testing.T) {
		err := r.ApplyUpdate(domain.OrderUpdate{OrderID: "missing", Status: domain.OrderFilled})
		var nf *domain.OrderNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "missing", nf.ID)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("주문 수량 초과 체결", func(t *testing.T) {
		err := r.ApplyUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderFilled, FilledQuantity: 1.5})
		assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	})

	t.Run("역방향 전이", func(t *testing.T) {
		require.NoError(t, r.MarkSubmitted(id, baseTime))
		err := r.ApplyUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderPending})
		assert.ErrorIs(t, err, domain.ErrOrderError)
	})

	t.Run("제출 중복", func(t *testing.T) {
		assert.ErrorIs(t, r.MarkSubmitted(id, baseTime), domain.ErrOrderError)
		assert.ErrorIs(t, r.MarkSubmitted("missing", baseTime), domain.ErrOrderNotFound)
	})
}

func TestCancel(t *testing.T) {
	r := newTestRegistry(0)

	pendingID, err := r.Submit(marketOrder("BTCUSDT", 1, baseTime))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Cancel(pendingID, baseTime), domain.ErrOrderError, "제출 전 주문은 취소 불가")

	require.NoError(t, r.MarkSubmitted(pendingID, baseTime))
	require.NoError(t, r.Cancel(pendingID, baseTime.Add(time.Second)))

	got, ok := r.Get(pendingID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Len(t, r.CompletedOrders(), 1)

	assert.ErrorIs(t, r.Cancel(pendingID, baseTime), domain.ErrOrderError)
	assert.ErrorIs(t, r.Cancel("missing", baseTime), domain.ErrOrderNotFound)

	history := r.History(pendingID)
	assert.Equal(t, EventCancelled, history[len(history)-1].Kind)
}

func TestQueriesKeepSubmissionOrder(t *testing.T) {
	r := newTestRegistry(0)

	var ids []string
	for i, symbol := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", "SOLUSDT"} {
		id, err := r.Submit(marketOrder(symbol, float64(i+1), baseTime.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		require.NoError(t, r.MarkSubmitted(id, baseTime))
	}

	active := r.ActiveOrders()
	require.Len(t, active, 4)
	for i, o := range active {
		assert.Equal(t, ids[i], o.ID)
	}

	btc := r.OrdersBySymbol("BTCUSDT")
	require.Len(t, btc, 2)
	assert.Equal(t, ids[0], btc[0].ID)
	assert.Equal(t, ids[2], btc[1].ID)

	assert.Empty(t, r.PendingOrders())
	assert.Equal(t, 4, r.TotalOrders())
	assert.Len(t, r.AuditTrail(), 8)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(domain.OrderPending, domain.OrderSubmitted))
	assert.True(t, CanTransition(domain.OrderSubmitted, domain.OrderFilled))
	assert.True(t, CanTransition(domain.OrderPartiallyFilled, domain.OrderPartiallyFilled))
	assert.False(t, CanTransition(domain.OrderSubmitted, domain.OrderPending))
	assert.False(t, CanTransition(domain.OrderPartiallyFilled, domain.OrderRejected))

	for _, terminal := range []domain.OrderStatus{domain.OrderFilled, domain.OrderCancelled, domain.OrderRejected, domain.OrderFailed} {
		assert.False(t, CanTransition(terminal, domain.OrderFilled), string(terminal))
	}
}
