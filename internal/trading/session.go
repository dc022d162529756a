package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/execution"
	"github.com/assist-by/phoenix-engine/internal/ledger"
	"github.com/assist-by/phoenix-engine/internal/order"
	"github.com/assist-by/phoenix-engine/internal/strategy"
)

// Session은 실시간 엔진과 백테스트가 공유하는 캔들/체결/시그널 처리 파이프라인입니다.
// 주문 레지스트리, 원장, 전략 컨텍스트를 함께 갱신해 두 모드의 회계가 동일하게 유지됩니다.
type Session struct {
	registry *order.Registry
	ledger   *ledger.Ledger
	sc       *strategy.Context
	logger   *logrus.Entry

	tradeHooks []TradeHook
	fillHooks  []FillHook
}

// Option은 Session 설정 함수입니다
type Option func(*Session)

// WithTradeHook은 완료 거래 콜백을 추가합니다
func WithTradeHook(h TradeHook) Option {
	return func(s *Session) {
		s.tradeHooks = append(s.tradeHooks, h)
	}
}

// WithFillHook은 체결 콜백을 추가합니다
func WithFillHook(h FillHook) Option {
	return func(s *Session) {
		s.fillHooks = append(s.fillHooks, h)
	}
}

// NewSession은 새로운 세션을 생성합니다
func NewSession(registry *order.Registry, l *ledger.Ledger, sc *strategy.Context, logger *logrus.Entry, opts ...Option) *Session {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		registry: registry,
		ledger:   l,
		sc:       sc,
		logger:   logger.WithField("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.syncContext()
	return s
}

// Registry는 주문 레지스트리를 반환합니다
func (s *Session) Registry() *order.Registry {
	return s.registry
}

// Ledger는 원장을 반환합니다
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Context는 전략 컨텍스트를 반환합니다
func (s *Session) Context() *strategy.Context {
	return s.sc
}

// MarkToMarket은 캔들 종가로 원장과 전략 컨텍스트의 시세를 갱신합니다
func (s *Session) MarkToMarket(candle domain.Candle) error {
	if err := candle.Validate(); err != nil {
		return err
	}
	if err := s.ledger.UpdatePrice(candle.Symbol, candle.Close, candle.Timestamp()); err != nil {
		return err
	}
	s.sc.UpdateMarketSnapshot(candle)
	s.sc.AddCandle(candle)
	s.syncContext()
	return nil
}

// ApplyFill은 체결을 주문 상태와 원장에 반영합니다.
// 주문 상태 전이가 거부되면 원장은 건드리지 않습니다.
func (s *Session) ApplyFill(f domain.Fill) (*domain.CompletedTrade, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	o, ok := s.registry.Get(f.OrderID)
	if !ok {
		return nil, &domain.OrderNotFoundError{ID: f.OrderID}
	}
	if !o.Status.IsActive() {
		return nil, fmt.Errorf("%w: 주문 %s는 이미 %s 상태입니다", domain.ErrOrderError, o.ID, o.Status)
	}
	if o.Symbol != f.Symbol || o.Side != f.Side {
		return nil, fmt.Errorf("%w: 체결(%s %s)이 주문(%s %s)과 맞지 않습니다",
			domain.ErrOrderError, f.Symbol, f.Side, o.Symbol, o.Side)
	}

	if err := s.registry.ApplyUpdate(execution.FillUpdate(o, f)); err != nil {
		return nil, err
	}

	trade, err := s.ledger.ApplyFill(f)
	if err != nil {
		return nil, err
	}

	if trade != nil {
		s.sc.AddTrade(*trade)
	}
	s.syncContext()

	s.logger.WithFields(logrus.Fields{
		"order_id":   f.OrderID,
		"symbol":     f.Symbol,
		"side":       f.Side,
		"quantity":   f.Quantity,
		"price":      f.Price,
		"commission": f.Commission,
	}).Debug("체결 반영")

	for _, h := range s.fillHooks {
		h(f)
	}
	if trade != nil {
		for _, h := range s.tradeHooks {
			h(*trade)
		}
	}
	return trade, nil
}

// ApplyFills는 체결 목록을 순서대로 반영합니다. 첫 에러에서 멈춥니다.
func (s *Session) ApplyFills(fills []domain.Fill) ([]domain.CompletedTrade, error) {
	var trades []domain.CompletedTrade
	for _, f := range fills {
		trade, err := s.ApplyFill(f)
		if err != nil {
			return trades, err
		}
		if trade != nil {
			trades = append(trades, *trade)
		}
	}
	return trades, nil
}

// Execute는 시그널을 주문으로 바꿔 등록하고 venue로 제출합니다.
// HOLD는 아무것도 하지 않으며 빈 주문 ID를 반환합니다.
func (s *Session) Execute(ctx context.Context, sig domain.Signal, candle domain.Candle, venue Venue) (string, error) {
	ts := candle.Timestamp()

	var o domain.Order
	switch sig.Kind {
	case domain.SignalHold:
		return "", nil

	case domain.SignalModify:
		return "", fmt.Errorf("%w: 주문 정정(%s)은 지원하지 않습니다", domain.ErrOrderError, sig.OrderID)

	case domain.SignalClose:
		symbol := sig.Symbol
		if symbol == "" {
			symbol = candle.Symbol
		}
		pos, ok := s.ledger.Position(symbol)
		if !ok {
			return "", fmt.Errorf("%w: %s 청산할 포지션이 없습니다", domain.ErrOrderError, symbol)
		}
		o = domain.NewOrder(symbol, pos.Side.ExitSide(), domain.Market, pos.Quantity, 0, 0, ts)

	case domain.SignalBuy, domain.SignalSell:
		if sig.Symbol == "" {
			sig.Symbol = candle.Symbol
		}
		var err error
		o, err = domain.OrderFromSignal(sig, ts)
		if err != nil {
			return "", err
		}

	default:
		return "", fmt.Errorf("%w: 알 수 없는 시그널 %s", domain.ErrOrderError, sig.Kind)
	}

	id, err := s.registry.Submit(o)
	if err != nil {
		return "", err
	}
	o.ID = id

	if _, err := venue.SubmitOrder(ctx, o); err != nil {
		update := domain.OrderUpdate{
			OrderID:   id,
			Status:    domain.OrderFailed,
			Timestamp: ts,
			Error:     err.Error(),
		}
		if uerr := s.registry.ApplyUpdate(update); uerr != nil {
			s.logger.WithError(uerr).WithField("order_id", id).Error("주문 실패 상태 기록 실패")
		}
		return id, &ExecutionError{Phase: "submit", OrderID: id, Err: err}
	}

	if err := s.registry.MarkSubmitted(id, ts); err != nil {
		return id, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": id,
		"symbol":   o.Symbol,
		"side":     o.Side,
		"type":     o.Type,
		"quantity": o.Quantity,
		"reason":   sig.Reason,
	}).Info("주문 제출")

	return id, nil
}

// CancelActive는 활성 주문을 모두 취소 요청하고 레지스트리에 취소로 기록합니다
func (s *Session) CancelActive(ctx context.Context, c Canceller, ts time.Time) error {
	var errs []error
	for _, o := range s.registry.ActiveOrders() {
		if c != nil {
			if err := c.CancelOrder(ctx, o.ID); err != nil {
				errs = append(errs, fmt.Errorf("주문 %s 취소 요청 실패: %w", o.ID, err))
				continue
			}
		}
		if err := s.registry.Cancel(o.ID, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncContext는 원장의 포지션과 자본을 전략 컨텍스트에 복사합니다
func (s *Session) syncContext() {
	positions := s.ledger.Positions()
	held := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		s.sc.UpdatePosition(p)
		held[p.Symbol] = struct{}{}
	}
	for _, p := range s.sc.Positions() {
		if _, ok := held[p.Symbol]; !ok {
			s.sc.RemovePosition(p.Symbol)
		}
	}
	s.sc.UpdateCapital(s.ledger.Cash(), s.ledger.Equity())
}
