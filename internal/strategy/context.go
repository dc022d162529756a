package strategy

import (
	"sort"
	"sync"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

const (
	// DefaultHistoryLimit는 심볼별로 보관하는 캔들 수의 기본값입니다
	DefaultHistoryLimit = 500
	// DefaultTradeLimit는 심볼별로 보관하는 완료 거래 수의 기본값입니다
	DefaultTradeLimit = 100
)

// MarketSnapshot은 심볼의 최신 시장 상태입니다
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Context는 전략에 노출되는 계좌/시장 상태입니다.
// 테이블마다 독립적으로 잠기므로 상태 조회가 엔진 루프를 막지 않습니다.
type Context struct {
	capitalMu        sync.RWMutex
	availableCapital float64
	totalCapital     float64

	positions *Table[string, domain.Position]
	snapshots *Table[string, MarketSnapshot]
	candles   *Table[string, domain.CandleList]
	trades    *Table[string, []domain.CompletedTrade]

	historyLimit int
	tradeLimit   int
}

// NewContext는 초기 자본으로 새로운 전략 컨텍스트를 생성합니다.
// historyLimit가 0 이하이면 DefaultHistoryLimit를 사용합니다.
func NewContext(initialCapital float64, historyLimit int) *Context {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Context{
		availableCapital: initialCapital,
		totalCapital:     initialCapital,
		positions:        NewTable[string, domain.Position](),
		snapshots:        NewTable[string, MarketSnapshot](),
		candles:          NewTable[string, domain.CandleList](),
		trades:           NewTable[string, []domain.CompletedTrade](),
		historyLimit:     historyLimit,
		tradeLimit:       DefaultTradeLimit,
	}
}

// AvailableCapital은 주문에 사용할 수 있는 자본을 반환합니다
func (c *Context) AvailableCapital() float64 {
	c.capitalMu.RLock()
	defer c.capitalMu.RUnlock()
	return c.availableCapital
}

// TotalCapital은 포지션 가치를 포함한 총 자산을 반환합니다
func (c *Context) TotalCapital() float64 {
	c.capitalMu.RLock()
	defer c.capitalMu.RUnlock()
	return c.totalCapital
}

// UpdateCapital은 가용 자본과 총 자산을 갱신합니다
func (c *Context) UpdateCapital(available, total float64) {
	c.capitalMu.Lock()
	defer c.capitalMu.Unlock()
	c.availableCapital = available
	c.totalCapital = total
}

// Position은 심볼의 포지션을 조회합니다
func (c *Context) Position(symbol string) (domain.Position, bool) {
	return c.positions.Get(symbol)
}

// Positions는 보유 포지션을 심볼 순으로 반환합니다
func (c *Context) Positions() []domain.Position {
	out := make([]domain.Position, 0, c.positions.Len())
	c.positions.ForEach(func(_ string, p domain.Position) {
		out = append(out, p)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// HasPosition은 심볼의 포지션 보유 여부를 확인합니다
func (c *Context) HasPosition(symbol string) bool {
	_, ok := c.positions.Get(symbol)
	return ok
}

// UpdatePosition은 포지션을 저장합니다
func (c *Context) UpdatePosition(p domain.Position) {
	c.positions.Set(p.Symbol, p)
}

// RemovePosition은 포지션을 삭제합니다
func (c *Context) RemovePosition(symbol string) {
	c.positions.Delete(symbol)
}

// PositionCount는 보유 포지션 수를 반환합니다
func (c *Context) PositionCount() int {
	return c.positions.Len()
}

// TotalUnrealizedPnL은 보유 포지션의 미실현 손익 합계를 반환합니다
func (c *Context) TotalUnrealizedPnL() float64 {
	var total float64
	c.positions.ForEach(func(_ string, p domain.Position) {
		total += p.UnrealizedPnL
	})
	return total
}

// MarketSnapshot은 심볼의 최신 시장 상태를 조회합니다
func (c *Context) MarketSnapshot(symbol string) (MarketSnapshot, bool) {
	return c.snapshots.Get(symbol)
}

// UpdateMarketSnapshot은 캔들로 시장 상태를 갱신합니다
func (c *Context) UpdateMarketSnapshot(candle domain.Candle) {
	c.snapshots.Set(candle.Symbol, MarketSnapshot{
		Symbol:    candle.Symbol,
		Price:     candle.Close,
		High:      candle.High,
		Low:       candle.Low,
		Volume:    candle.Volume,
		Timestamp: candle.Timestamp(),
	})
}

// LastPrice는 심볼의 최신 가격을 반환합니다
func (c *Context) LastPrice(symbol string) (float64, bool) {
	snap, ok := c.snapshots.Get(symbol)
	if !ok {
		return 0, false
	}
	return snap.Price, true
}

// AddCandle은 캔들 히스토리에 캔들을 추가합니다.
// 마지막 캔들과 시작 시각이 같으면 교체하고, 한도를 넘으면 오래된 캔들부터 버립니다.
func (c *Context) AddCandle(candle domain.Candle) {
	limit := c.historyLimit
	c.candles.Update(candle.Symbol, func(list domain.CandleList, _ bool) domain.CandleList {
		if n := len(list); n > 0 && list[n-1].OpenTime.Equal(candle.OpenTime) {
			replaced := make(domain.CandleList, n)
			copy(replaced, list)
			replaced[n-1] = candle
			return replaced
		}
		list = append(list, candle)
		if len(list) > limit {
			trimmed := make(domain.CandleList, limit)
			copy(trimmed, list[len(list)-limit:])
			list = trimmed
		}
		return list
	})
}

// Candles는 심볼의 캔들 히스토리 복사본을 반환합니다
func (c *Context) Candles(symbol string) domain.CandleList {
	list, _ := c.candles.Get(symbol)
	out := make(domain.CandleList, len(list))
	copy(out, list)
	return out
}

// Closes는 심볼의 종가 히스토리를 반환합니다
func (c *Context) Closes(symbol string) []float64 {
	list, _ := c.candles.Get(symbol)
	return list.Closes()
}

// AddTrade는 완료 거래를 기록합니다
func (c *Context) AddTrade(trade domain.CompletedTrade) {
	limit := c.tradeLimit
	c.trades.Update(trade.Symbol, func(list []domain.CompletedTrade, _ bool) []domain.CompletedTrade {
		list = append(list, trade)
		if len(list) > limit {
			list = append([]domain.CompletedTrade(nil), list[len(list)-limit:]...)
		}
		return list
	})
}

// RecentTrades는 심볼의 최근 완료 거래를 최대 n건 반환합니다 (오래된 순)
func (c *Context) RecentTrades(symbol string, n int) []domain.CompletedTrade {
	list, _ := c.trades.Get(symbol)
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]domain.CompletedTrade, n)
	copy(out, list[len(list)-n:])
	return out
}

// UpdatePositionPrices는 최신 시장 가격으로 포지션의 현재가와 미실현 손익을 갱신합니다
func (c *Context) UpdatePositionPrices() {
	prices := make(map[string]float64)
	c.snapshots.ForEach(func(symbol string, snap MarketSnapshot) {
		prices[symbol] = snap.Price
	})

	for symbol, price := range prices {
		c.positions.Modify(symbol, func(p domain.Position) domain.Position {
			p.CurrentPrice = price
			diff := price - p.AverageEntryPrice
			if p.Side == domain.ShortPosition {
				diff = -diff
			}
			p.UnrealizedPnL = p.Quantity * diff
			return p
		})
	}
}

// Reset은 포지션/시장/거래 기록을 비우고 자본을 초기화합니다
func (c *Context) Reset(initialCapital float64) {
	c.UpdateCapital(initialCapital, initialCapital)
	c.positions.Clear()
	c.snapshots.Clear()
	c.candles.Clear()
	c.trades.Clear()
}
