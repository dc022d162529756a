package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Simulator는 캔들 단위로 대기 주문의 체결 여부를 판정하는 백테스트 체결 엔진입니다.
// 주문은 항상 전량 체결되며, 체결된 주문은 대기 목록에서 제거됩니다.
type Simulator struct {
	config  Config
	pending []domain.Order // 제출 순서 유지
	fills   []domain.Fill
}

// NewSimulator는 새로운 체결 시뮬레이터를 생성합니다
func NewSimulator(config Config) *Simulator {
	return &Simulator{config: config}
}

// Config는 시뮬레이터 설정을 반환합니다
func (s *Simulator) Config() Config {
	return s.config
}

// SubmitOrder는 주문을 검증 후 대기 목록에 추가합니다. ID가 비어있으면 새로 발급합니다.
func (s *Simulator) SubmitOrder(o domain.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	for _, p := range s.pending {
		if p.ID == o.ID {
			return "", fmt.Errorf("%w: 중복된 주문 ID %s", domain.ErrInvalidOrder, o.ID)
		}
	}
	o.Status = domain.OrderPending
	s.pending = append(s.pending, o)
	return o.ID, nil
}

// Submit은 매수/매도 시그널을 주문으로 변환해 제출합니다.
// 청산 시그널은 SubmitClose로 처리해야 합니다.
func (s *Simulator) Submit(sig domain.Signal, ts time.Time) (string, error) {
	if sig.Kind == domain.SignalClose {
		return "", fmt.Errorf("%w: 청산 시그널은 SubmitClose로 제출해야 합니다", domain.ErrInvalidOrder)
	}
	o, err := domain.OrderFromSignal(sig, ts)
	if err != nil {
		return "", err
	}
	return s.SubmitOrder(o)
}

// SubmitClose는 포지션 청산용 시장가 주문을 제출합니다. side는 포지션의 반대 방향입니다.
func (s *Simulator) SubmitClose(symbol string, quantity float64, side domain.OrderSide, ts time.Time) (string, error) {
	return s.SubmitOrder(domain.NewOrder(symbol, side, domain.Market, quantity, 0, 0, ts))
}

// OnMarketUpdate는 캔들 심볼의 대기 주문만 제출 순서대로 평가해 체결 목록을 반환합니다
func (s *Simulator) OnMarketUpdate(c domain.Candle) []domain.Fill {
	var fills []domain.Fill
	remaining := s.pending[:0]

	for _, o := range s.pending {
		if o.Symbol != c.Symbol {
			remaining = append(remaining, o)
			continue
		}

		base, ok := triggerPrice(o, c)
		if !ok {
			remaining = append(remaining, o)
			continue
		}

		price := s.fillPrice(o.Side, base, c)
		fill := domain.Fill{
			OrderID:    o.ID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Quantity:   o.Quantity,
			Price:      price,
			Commission: s.config.Commission(o.Quantity, price),
			Timestamp:  c.Timestamp(),
		}
		fills = append(fills, fill)
		s.fills = append(s.fills, fill)
	}

	// 제거된 슬롯의 참조 정리
	for i := len(remaining); i < len(s.pending); i++ {
		s.pending[i] = domain.Order{}
	}
	s.pending = remaining

	return fills
}

// Cancel은 대기 중인 주문을 제거합니다
func (s *Simulator) Cancel(id string) error {
	for i, o := range s.pending {
		if o.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return &domain.OrderNotFoundError{ID: id}
}

// PendingCount는 대기 주문 수를 반환합니다
func (s *Simulator) PendingCount() int {
	return len(s.pending)
}

// PendingOrders는 대기 주문 복사본을 제출 순서대로 반환합니다
func (s *Simulator) PendingOrders() []domain.Order {
	out := make([]domain.Order, len(s.pending))
	copy(out, s.pending)
	return out
}

// Fills는 지금까지 발생한 모든 체결의 복사본을 반환합니다
func (s *Simulator) Fills() []domain.Fill {
	out := make([]domain.Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// triggerPrice는 캔들에서 주문이 체결되는지 판단하고 체결 기준가를 반환합니다
func triggerPrice(o domain.Order, c domain.Candle) (float64, bool) {
	switch o.Type {
	case domain.Market:
		return c.Close, true
	case domain.Limit:
		if limitReached(o.Side, o.Price, c) {
			return o.Price, true
		}
	case domain.StopMarket:
		if stopTriggered(o.Side, o.StopPrice, c) {
			return o.StopPrice, true
		}
	case domain.StopLimit:
		if stopTriggered(o.Side, o.StopPrice, c) && limitReached(o.Side, o.Price, c) {
			return o.Price, true
		}
	}
	return 0, false
}

// limitReached: 매수는 저가가 지정가 이하, 매도는 고가가 지정가 이상
func limitReached(side domain.OrderSide, limit float64, c domain.Candle) bool {
	if side == domain.Buy {
		return c.Low <= limit
	}
	return c.High >= limit
}

// stopTriggered: 매수 스탑은 고가가 스탑 이상, 매도 스탑은 저가가 스탑 이하
func stopTriggered(side domain.OrderSide, stop float64, c domain.Candle) bool {
	if side == domain.Buy {
		return c.High >= stop
	}
	return c.Low <= stop
}

func (s *Simulator) fillPrice(side domain.OrderSide, base float64, c domain.Candle) float64 {
	switch s.config.FillModel {
	case FillRealistic:
		return s.config.Slipped(side, base)
	case FillPessimistic:
		if side == domain.Buy {
			return c.High
		}
		return c.Low
	default:
		return base
	}
}
