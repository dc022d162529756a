package domain

import "time"

// Position은 심볼별 보유 포지션을 표현합니다
type Position struct {
	Symbol            string       `json:"symbol"`            // 심볼 (예: BTCUSDT)
	Side              PositionSide `json:"side"`              // 롱/숏
	Quantity          float64      `json:"quantity"`          // 보유 수량 (항상 양수)
	AverageEntryPrice float64      `json:"averageEntryPrice"` // 평균 진입가
	CurrentPrice      float64      `json:"currentPrice"`      // 최근 시세
	UnrealizedPnL     float64      `json:"unrealizedPnl"`     // 미실현 손익
	RealizedPnL       float64      `json:"realizedPnl"`       // 부분 청산으로 실현된 손익
	OpenedAt          time.Time    `json:"openedAt"`
	LastUpdated       time.Time    `json:"lastUpdated"`
}

// MarketValue는 현재가 기준 포지션 가치를 반환합니다
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// IsLong은 롱 포지션인지 확인합니다
func (p Position) IsLong() bool {
	return p.Side == LongPosition
}

// CompletedTrade는 청산(부분 청산 포함) 한 건의 결과를 기록합니다
type CompletedTrade struct {
	Symbol     string       `json:"symbol"`
	Side       PositionSide `json:"side"`
	EntryTime  time.Time    `json:"entryTime"`
	ExitTime   time.Time    `json:"exitTime"`
	EntryPrice float64      `json:"entryPrice"`
	ExitPrice  float64      `json:"exitPrice"`
	Quantity   float64      `json:"quantity"`
	GrossPnL   float64      `json:"grossPnl"`   // 수수료 차감 전 실현 손익
	Commission float64      `json:"commission"` // 진입 + 청산 수수료 (로트별 배분)
	PnL        float64      `json:"pnl"`        // 수수료 차감 후 손익
	PnLPct     float64      `json:"pnlPct"`     // 진입 금액 대비 손익률 (%)
}

// HoldingPeriod는 보유 기간을 반환합니다
func (t CompletedTrade) HoldingPeriod() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// IsWin은 수익 거래인지 확인합니다
func (t CompletedTrade) IsWin() bool {
	return t.PnL > 0
}

// EquitySnapshot은 특정 시점의 자산 상태입니다
type EquitySnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	TotalEquity    float64   `json:"totalEquity"` // 현금 + 포지션 가치
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positionsValue"`
	UnrealizedPnL  float64   `json:"unrealizedPnl"`
	RealizedPnL    float64   `json:"realizedPnl"`
}
