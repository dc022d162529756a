package storage

import (
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/order"
)

// CandleRecord는 수집한 캔들 한 개입니다. (symbol, interval, open_time)이 유일합니다.
type CandleRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_candles_symbol_interval_open,priority:1"`
	Interval  string    `gorm:"column:timeframe;type:varchar(8);not null;uniqueIndex:ux_candles_symbol_interval_open,priority:2"`
	OpenTime  time.Time `gorm:"not null;uniqueIndex:ux_candles_symbol_interval_open,priority:3"`
	CloseTime time.Time `gorm:"not null"`
	Open      float64   `gorm:"not null"`
	High      float64   `gorm:"not null"`
	Low       float64   `gorm:"not null"`
	Close     float64   `gorm:"not null"`
	Volume    float64   `gorm:"not null"`
}

func (CandleRecord) TableName() string { return "candles" }

func candleRecordFrom(c domain.Candle) CandleRecord {
	return CandleRecord{
		Symbol:    c.Symbol,
		Interval:  string(c.Interval),
		OpenTime:  c.OpenTime.UTC(),
		CloseTime: c.CloseTime.UTC(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

func (r CandleRecord) toDomain() domain.Candle {
	return domain.Candle{
		OpenTime:  r.OpenTime.UTC(),
		CloseTime: r.CloseTime.UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Symbol:    r.Symbol,
		Interval:  domain.TimeInterval(r.Interval),
	}
}

// AuditRecord는 실행(run)별 주문 감사 기록입니다
type AuditRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"type:varchar(64);not null;index:idx_audit_run_seq,priority:1"`
	Seq       int       `gorm:"not null;index:idx_audit_run_seq,priority:2"`
	OrderID   string    `gorm:"type:varchar(64);not null;index"`
	Kind      string    `gorm:"type:varchar(32);not null"`
	Status    string    `gorm:"type:varchar(32);not null"`
	Timestamp time.Time `gorm:"column:event_time;not null"`
	Details   string    `gorm:"type:text"`
}

func (AuditRecord) TableName() string { return "order_audit_events" }

func (r AuditRecord) toDomain() order.AuditEvent {
	return order.AuditEvent{
		Seq:       r.Seq,
		OrderID:   r.OrderID,
		Kind:      order.EventKind(r.Kind),
		Status:    domain.OrderStatus(r.Status),
		Timestamp: r.Timestamp.UTC(),
		Details:   r.Details,
	}
}

// TradeRecord는 완료 거래(청산) 한 건입니다
type TradeRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      string    `gorm:"type:varchar(64);not null;index:idx_trades_run_exit,priority:1"`
	Symbol     string    `gorm:"type:varchar(32);not null"`
	Side       string    `gorm:"type:varchar(8);not null"`
	EntryTime  time.Time `gorm:"not null"`
	ExitTime   time.Time `gorm:"not null;index:idx_trades_run_exit,priority:2"`
	EntryPrice float64   `gorm:"not null"`
	ExitPrice  float64   `gorm:"not null"`
	Quantity   float64   `gorm:"not null"`
	GrossPnL   float64   `gorm:"column:gross_pnl"`
	Commission float64
	PnL        float64 `gorm:"column:pnl"`
	PnLPct     float64 `gorm:"column:pnl_pct"`
}

func (TradeRecord) TableName() string { return "trades" }

func tradeRecordFrom(runID string, t domain.CompletedTrade) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		EntryTime:  t.EntryTime.UTC(),
		ExitTime:   t.ExitTime.UTC(),
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Quantity:   t.Quantity,
		GrossPnL:   t.GrossPnL,
		Commission: t.Commission,
		PnL:        t.PnL,
		PnLPct:     t.PnLPct,
	}
}

func (r TradeRecord) toDomain() domain.CompletedTrade {
	return domain.CompletedTrade{
		Symbol:     r.Symbol,
		Side:       domain.PositionSide(r.Side),
		EntryTime:  r.EntryTime.UTC(),
		ExitTime:   r.ExitTime.UTC(),
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		Quantity:   r.Quantity,
		GrossPnL:   r.GrossPnL,
		Commission: r.Commission,
		PnL:        r.PnL,
		PnLPct:     r.PnLPct,
	}
}

// EquityRecord는 자산 곡선의 한 점입니다
type EquityRecord struct {
	ID             uint      `gorm:"primaryKey"`
	RunID          string    `gorm:"type:varchar(64);not null;index:idx_equity_run_ts,priority:1"`
	Timestamp      time.Time `gorm:"column:snapshot_time;not null;index:idx_equity_run_ts,priority:2"`
	TotalEquity    float64
	Cash           float64
	PositionsValue float64
	UnrealizedPnL  float64 `gorm:"column:unrealized_pnl"`
	RealizedPnL    float64 `gorm:"column:realized_pnl"`
}

func (EquityRecord) TableName() string { return "equity_snapshots" }

func equityRecordFrom(runID string, s domain.EquitySnapshot) EquityRecord {
	return EquityRecord{
		RunID:          runID,
		Timestamp:      s.Timestamp.UTC(),
		TotalEquity:    s.TotalEquity,
		Cash:           s.Cash,
		PositionsValue: s.PositionsValue,
		UnrealizedPnL:  s.UnrealizedPnL,
		RealizedPnL:    s.RealizedPnL,
	}
}

func (r EquityRecord) toDomain() domain.EquitySnapshot {
	return domain.EquitySnapshot{
		Timestamp:      r.Timestamp.UTC(),
		TotalEquity:    r.TotalEquity,
		Cash:           r.Cash,
		PositionsValue: r.PositionsValue,
		UnrealizedPnL:  r.UnrealizedPnL,
		RealizedPnL:    r.RealizedPnL,
	}
}

// RunRecord는 백테스트 실행 요약과 전체 리포트(JSON)입니다
type RunRecord struct {
	RunID       string    `gorm:"primaryKey;type:varchar(64)"`
	Strategy    string    `gorm:"type:varchar(64);not null;index"`
	Symbols     string    `gorm:"type:varchar(255)"` // 쉼표 구분
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`
	FinalEquity float64
	TotalReturn float64
	MaxDrawdown float64
	TotalTrades int
	WinRate     float64
	Report      string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (RunRecord) TableName() string { return "backtest_runs" }

// StatusRecord는 주기 작업이 남기는 엔진 상태 기록입니다
type StatusRecord struct {
	ID            uint      `gorm:"primaryKey"`
	EngineID      string    `gorm:"type:varchar(64);not null;index:idx_status_engine_ts,priority:1"`
	State         string    `gorm:"type:varchar(16)"`
	Mode          string    `gorm:"type:varchar(16)"`
	Strategy      string    `gorm:"type:varchar(64)"`
	TotalOrders   int
	ActiveOrders  int
	TotalFills    int
	OpenPositions int
	Equity        float64
	Cash          float64
	UnrealizedPnL float64 `gorm:"column:unrealized_pnl"`
	RealizedPnL   float64 `gorm:"column:realized_pnl"`
	Errors        int64
	Timestamp     time.Time `gorm:"column:recorded_at;not null;index:idx_status_engine_ts,priority:2"`
}

func (StatusRecord) TableName() string { return "engine_status" }

func allModels() []any {
	return []any{
		&CandleRecord{},
		&AuditRecord{},
		&TradeRecord{},
		&EquityRecord{},
		&RunRecord{},
		&StatusRecord{},
	}
}
