package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// ErrSnapshotOutOfOrder는 직전 스냅샷보다 이른 시각으로 기록하려 할 때 반환됩니다
var ErrSnapshotOutOfOrder = errors.New("스냅샷 시각이 직전 기록보다 이릅니다")

var hundred = decimal.NewFromInt(100)

// lot은 심볼별 보유 포지션의 내부 표현입니다. 금액은 모두 decimal로 관리합니다.
type lot struct {
	symbol          string
	side            domain.PositionSide
	quantity        decimal.Decimal
	avgEntry        decimal.Decimal
	current         decimal.Decimal
	realized        decimal.Decimal
	entryCommission decimal.Decimal // 아직 청산되지 않은 수량에 배정된 진입 수수료
	openedAt        time.Time
	lastUpdated     time.Time
}

func (l *lot) unrealized() decimal.Decimal {
	diff := l.current.Sub(l.avgEntry)
	if l.side == domain.ShortPosition {
		diff = diff.Neg()
	}
	return l.quantity.Mul(diff)
}

func (l *lot) marketValue() decimal.Decimal {
	return l.quantity.Mul(l.current)
}

func (l *lot) toPosition() domain.Position {
	return domain.Position{
		Symbol:            l.symbol,
		Side:              l.side,
		Quantity:          l.quantity.InexactFloat64(),
		AverageEntryPrice: l.avgEntry.InexactFloat64(),
		CurrentPrice:      l.current.InexactFloat64(),
		UnrealizedPnL:     l.unrealized().InexactFloat64(),
		RealizedPnL:       l.realized.InexactFloat64(),
		OpenedAt:          l.openedAt,
		LastUpdated:       l.lastUpdated,
	}
}

// Ledger는 현금, 심볼별 포지션, 완료 거래, 자산 스냅샷을 관리합니다.
// 현금은 수수료 차감과 실현 손익으로만 변하며, 단일 호출자(엔진 루프)를 가정합니다.
type Ledger struct {
	logger *logrus.Entry

	initialCapital  decimal.Decimal
	cash            decimal.Decimal
	positions       map[string]*lot
	realizedPnL     decimal.Decimal // 실현 손익 합계 (수수료 제외)
	totalCommission decimal.Decimal
	fillCount       int

	trades []domain.CompletedTrade
	curve  []domain.EquitySnapshot
}

// NewLedger는 초기 자본으로 새로운 원장을 생성합니다
func NewLedger(initialCapital float64, logger *logrus.Entry) *Ledger {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	capital := decimal.NewFromFloat(initialCapital)
	return &Ledger{
		logger:         logger.WithField("component", "ledger"),
		initialCapital: capital,
		cash:           capital,
		positions:      make(map[string]*lot),
	}
}

// ApplyFill은 체결 한 건을 원장에 반영합니다.
// 반대 방향 체결로 포지션이 (부분) 청산되면 완료 거래를 반환합니다.
func (l *Ledger) ApplyFill(f domain.Fill) (*domain.CompletedTrade, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	qty := decimal.NewFromFloat(f.Quantity)
	price := decimal.NewFromFloat(f.Price)
	commission := decimal.NewFromFloat(f.Commission)

	l.cash = l.cash.Sub(commission)
	l.totalCommission = l.totalCommission.Add(commission)
	l.fillCount++

	pos, exists := l.positions[f.Symbol]
	switch {
	case !exists:
		l.positions[f.Symbol] = &lot{
			symbol:          f.Symbol,
			side:            domain.PositionSideFor(f.Side),
			quantity:        qty,
			avgEntry:        price,
			current:         price,
			entryCommission: commission,
			openedAt:        f.Timestamp,
			lastUpdated:     f.Timestamp,
		}
		return nil, nil

	case pos.side.EntrySide() == f.Side:
		newQty := pos.quantity.Add(qty)
		pos.avgEntry = pos.quantity.Mul(pos.avgEntry).Add(qty.Mul(price)).Div(newQty)
		pos.quantity = newQty
		pos.current = price
		pos.entryCommission = pos.entryCommission.Add(commission)
		pos.lastUpdated = f.Timestamp
		return nil, nil
	}

	return l.reduce(pos, f, qty, price, commission), nil
}

// reduce는 반대 방향 체결로 포지션을 줄이거나 청산/반전합니다
func (l *Ledger) reduce(pos *lot, f domain.Fill, qty, price, commission decimal.Decimal) *domain.CompletedTrade {
	closing := decimal.Min(qty, pos.quantity)

	delta := closing.Mul(price.Sub(pos.avgEntry))
	if pos.side == domain.ShortPosition {
		delta = delta.Neg()
	}
	l.cash = l.cash.Add(delta)
	l.realizedPnL = l.realizedPnL.Add(delta)

	entryShare := pos.entryCommission.Mul(closing).Div(pos.quantity)
	exitShare := commission.Mul(closing).Div(qty)
	tradeCommission := entryShare.Add(exitShare)
	net := delta.Sub(tradeCommission)

	pnlPct := decimal.Zero
	if basis := pos.avgEntry.Mul(closing); !basis.IsZero() {
		pnlPct = net.Div(basis).Mul(hundred)
	}

	trade := domain.CompletedTrade{
		Symbol:     pos.symbol,
		Side:       pos.side,
		EntryTime:  pos.openedAt,
		ExitTime:   f.Timestamp,
		EntryPrice: pos.avgEntry.InexactFloat64(),
		ExitPrice:  f.Price,
		Quantity:   closing.InexactFloat64(),
		GrossPnL:   delta.InexactFloat64(),
		Commission: tradeCommission.InexactFloat64(),
		PnL:        net.InexactFloat64(),
		PnLPct:     pnlPct.InexactFloat64(),
	}
	l.trades = append(l.trades, trade)

	l.logger.WithFields(logrus.Fields{
		"symbol":     trade.Symbol,
		"side":       trade.Side,
		"quantity":   trade.Quantity,
		"entry":      trade.EntryPrice,
		"exit":       trade.ExitPrice,
		"pnl":        trade.PnL,
		"commission": trade.Commission,
	}).Debug("포지션 청산 기록")

	switch qty.Cmp(pos.quantity) {
	case 0:
		delete(l.positions, pos.symbol)
	case -1:
		pos.quantity = pos.quantity.Sub(closing)
		pos.entryCommission = pos.entryCommission.Sub(entryShare)
		pos.realized = pos.realized.Add(delta)
		pos.current = price
		pos.lastUpdated = f.Timestamp
	default:
		l.positions[pos.symbol] = &lot{
			symbol:          pos.symbol,
			side:            domain.PositionSideFor(f.Side),
			quantity:        qty.Sub(closing),
			avgEntry:        price,
			current:         price,
			entryCommission: commission.Sub(exitShare),
			openedAt:        f.Timestamp,
			lastUpdated:     f.Timestamp,
		}
	}

	return &trade
}

// UpdatePrice는 보유 중인 포지션의 현재가를 갱신합니다. 포지션이 없으면 아무것도 하지 않습니다.
func (l *Ledger) UpdatePrice(symbol string, price float64, ts time.Time) error {
	if !domain.IsPositiveFinite(price) {
		return fmt.Errorf("%w: %s 가격은 0보다 큰 유한값이어야 합니다 (%.8f)", domain.ErrMarketData, symbol, price)
	}
	pos, ok := l.positions[symbol]
	if !ok {
		return nil
	}
	pos.current = decimal.NewFromFloat(price)
	if !ts.IsZero() {
		pos.lastUpdated = ts
	}
	return nil
}

// RecordSnapshot은 현재 상태로 자산 스냅샷을 추가합니다
func (l *Ledger) RecordSnapshot(ts time.Time) (domain.EquitySnapshot, error) {
	if n := len(l.curve); n > 0 && ts.Before(l.curve[n-1].Timestamp) {
		return domain.EquitySnapshot{}, fmt.Errorf("%w (%s < %s)", ErrSnapshotOutOfOrder,
			ts.Format(time.RFC3339), l.curve[n-1].Timestamp.Format(time.RFC3339))
	}

	positionsValue := l.positionsValue()
	snap := domain.EquitySnapshot{
		Timestamp:      ts,
		TotalEquity:    l.cash.Add(positionsValue).InexactFloat64(),
		Cash:           l.cash.InexactFloat64(),
		PositionsValue: positionsValue.InexactFloat64(),
		UnrealizedPnL:  l.unrealizedPnL().InexactFloat64(),
		RealizedPnL:    l.realizedPnL.InexactFloat64(),
	}
	l.curve = append(l.curve, snap)
	return snap, nil
}

// Cash는 현재 현금을 반환합니다
func (l *Ledger) Cash() float64 {
	return l.cash.InexactFloat64()
}

// InitialCapital은 초기 자본을 반환합니다
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital.InexactFloat64()
}

// Position은 심볼의 포지션을 조회합니다
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return pos.toPosition(), true
}

// Positions는 보유 포지션 목록을 심볼 순으로 반환합니다
func (l *Ledger) Positions() []domain.Position {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]domain.Position, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, l.positions[symbol].toPosition())
	}
	return out
}

// Trades는 완료 거래 목록 복사본을 반환합니다
func (l *Ledger) Trades() []domain.CompletedTrade {
	out := make([]domain.CompletedTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

// EquityCurve는 자산 스냅샷 목록 복사본을 반환합니다
func (l *Ledger) EquityCurve() []domain.EquitySnapshot {
	out := make([]domain.EquitySnapshot, len(l.curve))
	copy(out, l.curve)
	return out
}

// Equity는 현금 + 포지션 가치를 반환합니다
func (l *Ledger) Equity() float64 {
	return l.cash.Add(l.positionsValue()).InexactFloat64()
}

// PositionsValue는 보유 포지션의 시가 평가 합계를 반환합니다
func (l *Ledger) PositionsValue() float64 {
	return l.positionsValue().InexactFloat64()
}

// UnrealizedPnL은 보유 포지션의 미실현 손익 합계를 반환합니다
func (l *Ledger) UnrealizedPnL() float64 {
	return l.unrealizedPnL().InexactFloat64()
}

// RealizedPnL은 수수료 차감 전 실현 손익 합계를 반환합니다
func (l *Ledger) RealizedPnL() float64 {
	return l.realizedPnL.InexactFloat64()
}

// TotalCommission은 지불한 수수료 합계를 반환합니다
func (l *Ledger) TotalCommission() float64 {
	return l.totalCommission.InexactFloat64()
}

// FillCount는 반영된 체결 수를 반환합니다
func (l *Ledger) FillCount() int {
	return l.fillCount
}

func (l *Ledger) positionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.positions {
		total = total.Add(pos.marketValue())
	}
	return total
}

func (l *Ledger) unrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.positions {
		total = total.Add(pos.unrealized())
	}
	return total
}
