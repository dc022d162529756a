package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Status는 상태 서버와 주기 작업에 노출되는 엔진 요약입니다
type Status struct {
	EngineID        string    `json:"engineId"`
	State           State     `json:"state"`
	Mode            string    `json:"mode"`
	Strategy        string    `json:"strategy"`
	StartedAt       time.Time `json:"startedAt"`
	UptimeSeconds   int64     `json:"uptimeSeconds"`
	TotalOrders     int       `json:"totalOrders"`
	ActiveOrders    int       `json:"activeOrders"`
	TotalFills      int       `json:"totalFills"`
	OpenPositions   int       `json:"openPositions"`
	Equity          float64   `json:"equity"`
	Cash            float64   `json:"cash"`
	UnrealizedPnL   float64   `json:"unrealizedPnl"`
	RealizedPnL     float64   `json:"realizedPnl"`
	TotalCommission float64   `json:"totalCommission"`
	EventsProcessed int64     `json:"eventsProcessed"`
	Errors          int64     `json:"errors"`
	Timestamp       time.Time `json:"timestamp"`
}

// publish는 루프 소유 상태를 복사해 외부 조회용으로 게시합니다
func (e *Engine) publish() {
	reg := e.session.Registry()
	l := e.session.Ledger()

	positions := l.Positions()
	active := reg.ActiveOrders()
	trades := l.Trades()
	curve := l.EquityCurve()

	name := ""
	if e.strategy != nil {
		name = e.strategy.GetName()
	}

	status := Status{
		EngineID:        e.id,
		Mode:            e.cfg.Mode,
		Strategy:        name,
		TotalOrders:     reg.TotalOrders(),
		ActiveOrders:    len(active),
		TotalFills:      l.FillCount(),
		OpenPositions:   len(positions),
		Equity:          l.Equity(),
		Cash:            l.Cash(),
		UnrealizedPnL:   l.UnrealizedPnL(),
		RealizedPnL:     l.RealizedPnL(),
		TotalCommission: l.TotalCommission(),
		EventsProcessed: e.events,
		Errors:          e.errs,
		Timestamp:       e.now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.positions = positions
	e.activeOrders = active
	e.trades = trades
	e.curve = curve
}

// Status는 마지막으로 게시된 상태를 반환합니다. 어느 고루틴에서나 호출할 수 있습니다.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.status
	s.State = e.state
	s.StartedAt = e.startedAt
	if !e.startedAt.IsZero() {
		s.UptimeSeconds = int64(e.now().Sub(e.startedAt) / time.Second)
	}
	return s
}

// Positions는 게시된 보유 포지션 복사본을 반환합니다
func (e *Engine) Positions() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Position(nil), e.positions...)
}

// ActiveOrders는 게시된 활성 주문 복사본을 반환합니다
func (e *Engine) ActiveOrders() []domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Order(nil), e.activeOrders...)
}

// Trades는 게시된 완료 거래 복사본을 반환합니다
func (e *Engine) Trades() []domain.CompletedTrade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.CompletedTrade(nil), e.trades...)
}

// EquityCurve는 게시된 자산 곡선 복사본을 반환합니다
func (e *Engine) EquityCurve() []domain.EquitySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.EquitySnapshot(nil), e.curve...)
}

// StatusSink는 주기적으로 엔진 상태를 받아 저장하거나 알림을 보냅니다
type StatusSink func(ctx context.Context, s Status) error

// StatusTask는 스케줄러에서 실행되는 상태 보고 작업입니다
type StatusTask struct {
	engine *Engine
	logger *logrus.Entry
	sinks  []StatusSink
}

// NewStatusTask는 새로운 상태 보고 작업을 생성합니다
func NewStatusTask(e *Engine, logger *logrus.Entry, sinks ...StatusSink) *StatusTask {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StatusTask{
		engine: e,
		logger: logger.WithField("component", "status_task"),
		sinks:  sinks,
	}
}

// Execute는 상태를 로그로 남기고 등록된 싱크에 전달합니다
func (t *StatusTask) Execute(ctx context.Context) error {
	s := t.engine.Status()

	t.logger.WithFields(logrus.Fields{
		"state":     s.State.String(),
		"uptime":    s.UptimeSeconds,
		"orders":    s.TotalOrders,
		"active":    s.ActiveOrders,
		"fills":     s.TotalFills,
		"positions": s.OpenPositions,
		"equity":    s.Equity,
		"pnl":       s.RealizedPnL + s.UnrealizedPnL,
	}).Info("엔진 상태")

	var errs []error
	for _, sink := range t.sinks {
		if err := sink(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
