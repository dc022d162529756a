package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order는 엔진이 추적하는 주문 정보를 표현합니다
type Order struct {
	ID               string      `json:"id"`               // 주문 ID (UUID)
	ClientOrderID    string      `json:"clientOrderId"`    // 클라이언트 측 주문 ID
	Symbol           string      `json:"symbol"`           // 심볼 (예: BTCUSDT)
	Side             OrderSide   `json:"side"`             // 매수/매도
	Type             OrderType   `json:"type"`             // 주문 유형
	Quantity         float64     `json:"quantity"`         // 주문 수량
	Price            float64     `json:"price"`            // 지정가 (0이면 미지정)
	StopPrice        float64     `json:"stopPrice"`        // 스탑 가격 (0이면 미지정)
	Status           OrderStatus `json:"status"`           // 주문 상태
	FilledQuantity   float64     `json:"filledQuantity"`   // 누적 체결 수량
	AverageFillPrice float64     `json:"averageFillPrice"` // 평균 체결가
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	Error            string      `json:"error,omitempty"` // 거부/실패 사유
}

// NewOrder는 새로운 대기 상태 주문을 생성합니다
func NewOrder(symbol string, side OrderSide, orderType OrderType, quantity, price, stopPrice float64, createdAt time.Time) Order {
	return Order{
		ID:            uuid.NewString(),
		ClientOrderID: "CLT-" + uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		Type:          orderType,
		Quantity:      quantity,
		Price:         price,
		StopPrice:     stopPrice,
		Status:        OrderPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// OrderFromSignal은 매수/매도 시그널을 주문으로 변환합니다
func OrderFromSignal(sig Signal, createdAt time.Time) (Order, error) {
	var side OrderSide
	switch sig.Kind {
	case SignalBuy:
		side = Buy
	case SignalSell:
		side = Sell
	default:
		return Order{}, fmt.Errorf("%w: %s 시그널은 주문으로 변환할 수 없습니다", ErrInvalidOrder, sig.Kind)
	}
	return NewOrder(sig.Symbol, side, sig.OrderType(), sig.Quantity, sig.LimitPrice, sig.StopPrice, createdAt), nil
}

// Validate는 주문 생성 시점의 유효성을 확인합니다
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: 심볼이 비어있습니다", ErrInvalidOrder)
	}
	if !IsPositiveFinite(o.Quantity) {
		return fmt.Errorf("%w: 수량은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, o.Quantity)
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: 알 수 없는 주문 방향 %q", ErrInvalidOrder, o.Side)
	}
	if o.Type.RequiresPrice() && o.Price == 0 {
		return fmt.Errorf("%w: %s 주문에는 가격이 필요합니다", ErrInvalidOrder, o.Type)
	}
	if o.Price != 0 && !IsPositiveFinite(o.Price) {
		return fmt.Errorf("%w: 주문 가격은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, o.Price)
	}
	if o.Type.IsStop() && o.StopPrice == 0 {
		return fmt.Errorf("%w: %s 주문에는 스탑 가격이 필요합니다", ErrInvalidOrder, o.Type)
	}
	if o.StopPrice != 0 && !IsPositiveFinite(o.StopPrice) {
		return fmt.Errorf("%w: 스탑 가격은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, o.StopPrice)
	}
	return nil
}

// RemainingQuantity는 미체결 수량을 반환합니다
func (o Order) RemainingQuantity() float64 {
	remaining := o.Quantity - o.FilledQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OrderUpdate는 거래소 또는 체결에서 발생한 주문 상태 변경입니다
type OrderUpdate struct {
	OrderID        string      `json:"orderId"`
	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filledQuantity"` // 누적 체결 수량
	AveragePrice   float64     `json:"averagePrice"`
	Timestamp      time.Time   `json:"timestamp"`
	Error          string      `json:"error,omitempty"`
}

// Fill은 주문 체결 한 건을 표현합니다
type Fill struct {
	OrderID    string    `json:"orderId"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notional은 체결 명목 금액을 반환합니다
func (f Fill) Notional() float64 {
	return f.Quantity * f.Price
}

// TotalCost는 수수료를 포함한 총 비용(매수) 또는 순 수령액(매도)을 반환합니다
func (f Fill) TotalCost() float64 {
	if f.Side == Buy {
		return f.Notional() + f.Commission
	}
	return f.Notional() - f.Commission
}

// Validate는 체결 값이 원장에 반영 가능한지 확인합니다
func (f Fill) Validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("%w: 체결 심볼이 비어있습니다", ErrInvalidOrder)
	}
	if !IsPositiveFinite(f.Quantity) {
		return fmt.Errorf("%w: 체결 수량은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, f.Quantity)
	}
	if !IsPositiveFinite(f.Price) {
		return fmt.Errorf("%w: 체결 가격은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, f.Price)
	}
	if !IsNonNegativeFinite(f.Commission) {
		return fmt.Errorf("%w: 수수료는 0 이상의 유한값이어야 합니다 (%.8f)", ErrInvalidOrder, f.Commission)
	}
	if f.Side != Buy && f.Side != Sell {
		return fmt.Errorf("%w: 알 수 없는 체결 방향 %q", ErrInvalidOrder, f.Side)
	}
	return nil
}
