package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLedger(capital float64) *Ledger {
	logger, _ := logrustest.NewNullLogger()
	return NewLedger(capital, logrus.NewEntry(logger))
}

func fill(side domain.OrderSide, qty, price, commission float64, hour int) domain.Fill {
	return domain.Fill{
		OrderID:    "o",
		Symbol:     "BTCUSDT",
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		Timestamp:  baseTime.Add(time.Duration(hour) * time.Hour),
	}
}

func TestOpenPosition(t *testing.T) {
	l := newTestLedger(10_000)

	trade, err := l.ApplyFill(fill(domain.Buy, 1, 100, 0.1, 0))
	require.NoError(t, err)
	assert.Nil(t, trade)

	pos, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.LongPosition, pos.Side)
	assert.Equal(t, 1.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AverageEntryPrice)
	assert.Equal(t, 0.0, pos.UnrealizedPnL)
	assert.Equal(t, baseTime, pos.OpenedAt)
	assert.Equal(t, 9_999.9, l.Cash())
	assert.Equal(t, 1, l.FillCount())
}

func TestWeightedAverageAdd(t *testing.T) {
	l := newTestLedger(10_000)

	_, err := l.ApplyFill(fill(domain.Buy, 1, 100, 0, 0))
	require.NoError(t, err)
	_, err = l.ApplyFill(fill(domain.Buy, 3, 120, 0, 1))
	require.NoError(t, err)

	pos, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 4.0, pos.Quantity)
	assert.Equal(t, 115.0, pos.AverageEntryPrice)
	assert.Equal(t, baseTime, pos.OpenedAt, "추가 진입은 진입 시각을 유지")
	assert.Empty(t, l.Trades())
}

func TestReversal(t *testing.T) {
	l := newTestLedger(10_000)

	_, err := l.ApplyFill(fill(domain.Buy, 1, 100, 0.1, 0))
	require.NoError(t, err)

	trade, err := l.ApplyFill(fill(domain.Sell, 3, 110, 0.33, 5))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, domain.LongPosition, trade.Side)
	assert.Equal(t, 1.0, trade.Quantity)
	assert.Equal(t, 100.0, trade.EntryPrice)
	assert.Equal(t, 110.0, trade.ExitPrice)
	assert.Equal(t, 10.0, trade.GrossPnL)
	assert.Equal(t, 0.21, trade.Commission)
	assert.Equal(t, 9.79, trade.PnL)
	assert.InDelta(t, 9.79, trade.PnLPct, 1e-9)
	assert.Equal(t, 5*time.Hour, trade.HoldingPeriod())

	pos, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.ShortPosition, pos.Side)
	assert.Equal(t, 2.0, pos.Quantity)
	assert.Equal(t, 110.0, pos.AverageEntryPrice)
	assert.Equal(t, baseTime.Add(5*time.Hour), pos.OpenedAt)

	assert.Equal(t, 10_009.57, l.Cash())
	assert.Equal(t, 10.0, l.RealizedPnL())
	assert.Equal(t, 0.43, l.TotalCommission())

	// 반전 포지션 청산 시 남은 체결 수수료(0.22)가 진입 수수료로 배정됨
	trade, err = l.ApplyFill(fill(domain.Buy, 2, 100, 0, 6))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, domain.ShortPosition, trade.Side)
	assert.Equal(t, 20.0, trade.GrossPnL)
	assert.Equal(t, 0.22, trade.Commission)
	assert.Equal(t, 19.78, trade.PnL)

	_, ok = l.Position("BTCUSDT")
	assert.False(t, ok)
}

func TestPartialClose(t *testing.T) {
	l := newTestLedger(10_000)

	_, err := l.ApplyFill(fill(domain.Buy, 4, 100, 0.4, 0))
	require.NoError(t, err)

	trade, err := l.ApplyFill(fill(domain.Sell, 1, 130, 0.13, 1))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, 30.0, trade.GrossPnL)
	assert.Equal(t, 0.23, trade.Commission) // 진입 0.1 + 청산 0.13
	assert.Equal(t, 29.77, trade.PnL)

	pos, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AverageEntryPrice)
	assert.Equal(t, 30.0, pos.RealizedPnL)
	assert.Equal(t, 90.0, pos.UnrealizedPnL)

	// 나머지 청산에는 남은 진입 수수료 0.3만 배정
	trade, err = l.ApplyFill(fill(domain.Sell, 3, 90, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, -30.0, trade.GrossPnL)
	assert.Equal(t, 0.3, trade.Commission)
	assert.Equal(t, -30.3, trade.PnL)
	assert.Len(t, l.Trades(), 2)
}

func TestShortPnL(t *testing.T) {
	l := newTestLedger(1_000)

	_, err := l.ApplyFill(fill(domain.Sell, 2, 100, 0, 0))
	require.NoError(t, err)
	require.NoError(t, l.UpdatePrice("BTCUSDT", 95, baseTime.Add(time.Hour)))

	pos, _ := l.Position("BTCUSDT")
	assert.Equal(t, 10.0, pos.UnrealizedPnL)
	assert.Equal(t, 10.0, l.UnrealizedPnL())

	trade, err := l.ApplyFill(fill(domain.Buy, 2, 90, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 20.0, trade.PnL)
	assert.True(t, trade.IsWin())
	assert.Equal(t, 1_020.0, l.Cash())
}

func TestMoneyConservation(t *testing.T) {
	l := newTestLedger(10_000)

	fills := []domain.Fill{
		fill(domain.Buy, 0.5, 42_000, 21, 0),
		fill(domain.Buy, 0.25, 43_000, 10.75, 1),
		fill(domain.Sell, 0.3, 44_100.5, 13.23015, 2),
		fill(domain.Sell, 1.2, 43_500, 52.2, 3),
		fill(domain.Buy, 0.75, 41_000, 30.75, 4),
	}

	for _, f := range fills {
		_, err := l.ApplyFill(f)
		require.NoError(t, err)
	}

	_, open := l.Position("BTCUSDT")
	assert.False(t, open, "최종적으로 포지션이 없어야 함")

	expected := 10_000 - l.TotalCommission() + l.RealizedPnL()
	assert.InDelta(t, expected, l.Cash(), 1e-9)
	assert.Equal(t, l.Cash(), l.Equity())

	var gross, commission float64
	for _, trade := range l.Trades() {
		gross += trade.GrossPnL
		commission += trade.Commission
	}
	assert.InDelta(t, l.RealizedPnL(), gross, 1e-9)
	assert.InDelta(t, l.TotalCommission(), commission, 1e-9, "로트별 수수료 배분 합계는 전체 수수료와 같아야 함")
}

func TestEquityIncludesOpenPositions(t *testing.T) {
	l := newTestLedger(10_000)

	_, err := l.ApplyFill(fill(domain.Buy, 2, 100, 0.2, 0))
	require.NoError(t, err)
	require.NoError(t, l.UpdatePrice("BTCUSDT", 110, baseTime))
	require.NoError(t, l.UpdatePrice("ETHUSDT", 3_000, baseTime), "보유하지 않은 심볼은 무시")

	snap, err := l.RecordSnapshot(baseTime)
	require.NoError(t, err)
	assert.Equal(t, 9_999.8, snap.Cash)
	assert.Equal(t, 220.0, snap.PositionsValue)
	assert.Equal(t, snap.Cash+snap.PositionsValue, snap.TotalEquity)
	assert.Equal(t, 20.0, snap.UnrealizedPnL)
	assert.Equal(t, 0.0, snap.RealizedPnL)

	assert.ErrorIs(t, l.UpdatePrice("BTCUSDT", 0, baseTime), domain.ErrMarketData)
}

func TestUpdatePriceRejectsNonFinite(t *testing.T) {
	l := newTestLedger(10_000)
	_, err := l.ApplyFill(fill(domain.Buy, 2, 100, 0, 0))
	require.NoError(t, err)
	require.NoError(t, l.UpdatePrice("BTCUSDT", 110, baseTime))

	for _, price := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5} {
		assert.NotPanics(t, func() {
			assert.ErrorIs(t, l.UpdatePrice("BTCUSDT", price, baseTime), domain.ErrMarketData)
		})
	}

	snap, err := l.RecordSnapshot(baseTime)
	require.NoError(t, err)
	assert.Equal(t, 220.0, snap.PositionsValue, "거부된 시세는 마지막 가격을 바꾸지 않음")
}

func TestRecordSnapshotOrdering(t *testing.T) {
	l := newTestLedger(1_000)

	_, err := l.RecordSnapshot(baseTime.Add(time.Hour))
	require.NoError(t, err)
	_, err = l.RecordSnapshot(baseTime.Add(time.Hour))
	require.NoError(t, err, "같은 시각은 허용")

	_, err = l.RecordSnapshot(baseTime)
	assert.ErrorIs(t, err, ErrSnapshotOutOfOrder)
	assert.Len(t, l.EquityCurve(), 2)
}

func TestInvalidFillLeavesLedgerUntouched(t *testing.T) {
	l := newTestLedger(1_000)

	tests := []struct {
		name string
		fill domain.Fill
	}{
		{"수량 0", fill(domain.Buy, 0, 100, 0, 0)},
		{"가격 0", fill(domain.Buy, 1, 0, 0, 0)},
		{"수수료 음수", fill(domain.Buy, 1, 100, -1, 0)},
		{"NaN 수량", fill(domain.Buy, math.NaN(), 100, 0, 0)},
		{"+Inf 수량", fill(domain.Buy, math.Inf(1), 100, 0, 0)},
		{"NaN 가격", fill(domain.Buy, 1, math.NaN(), 0, 0)},
		{"-Inf 가격", fill(domain.Sell, 1, math.Inf(-1), 0, 0)},
		{"NaN 수수료", fill(domain.Buy, 1, 100, math.NaN(), 0)},
		{"+Inf 수수료", fill(domain.Buy, 1, 100, math.Inf(1), 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := l.ApplyFill(tt.fill)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
			assert.Nil(t, trade)
		})
	}

	assert.Equal(t, 1_000.0, l.Cash())
	assert.Equal(t, 0, l.FillCount())
	assert.Empty(t, l.Positions())
}

func TestPositionsSortedBySymbol(t *testing.T) {
	l := newTestLedger(1_000)
	for _, symbol := range []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"} {
		f := fill(domain.Buy, 1, 10, 0, 0)
		f.Symbol = symbol
		_, err := l.ApplyFill(f)
		require.NoError(t, err)
	}

	positions := l.Positions()
	require.Len(t, positions, 3)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, "ETHUSDT", positions[1].Symbol)
	assert.Equal(t, "SOLUSDT", positions[2].Symbol)
	assert.Equal(t, 30.0, l.PositionsValue())
}
