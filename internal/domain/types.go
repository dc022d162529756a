package domain

import "math"

// IsPositiveFinite는 값이 0보다 크고 유한한지 확인합니다. NaN과 ±Inf는 거부합니다.
func IsPositiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

// IsNonNegativeFinite는 값이 0 이상이고 유한한지 확인합니다
func IsNonNegativeFinite(x float64) bool {
	return x >= 0 && !math.IsInf(x, 0)
}

// OrderSide는 주문 방향을 정의합니다
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite는 반대 방향의 주문 사이드를 반환합니다
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PositionSide는 포지션 방향을 정의합니다
type PositionSide string

const (
	LongPosition  PositionSide = "LONG"
	ShortPosition PositionSide = "SHORT"
)

// PositionSideFor는 진입 주문 사이드에 해당하는 포지션 방향을 반환합니다
func PositionSideFor(side OrderSide) PositionSide {
	if side == Buy {
		return LongPosition
	}
	return ShortPosition
}

// EntrySide는 포지션 진입을 위한 주문 사이드를 반환합니다
func (p PositionSide) EntrySide() OrderSide {
	if p == LongPosition {
		return Buy
	}
	return Sell
}

// ExitSide는 포지션 청산을 위한 주문 사이드를 반환합니다
func (p PositionSide) ExitSide() OrderSide {
	if p == LongPosition {
		return Sell
	}
	return Buy
}

// OrderType은 주문 유형을 정의합니다
type OrderType string

const (
	Market     OrderType = "MARKET"
	Limit      OrderType = "LIMIT"
	StopLimit  OrderType = "STOP_LIMIT"
	StopMarket OrderType = "STOP_MARKET"
)

// IsStop은 스탑 계열 주문인지 확인합니다
func (t OrderType) IsStop() bool {
	return t == StopLimit || t == StopMarket
}

// RequiresPrice는 지정가가 필요한 주문 유형인지 확인합니다
func (t OrderType) RequiresPrice() bool {
	return t == Limit || t == StopLimit
}

// OrderStatus는 주문 상태를 정의합니다
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderFailed          OrderStatus = "FAILED"
)

// IsActive는 아직 체결 가능성이 남아있는 상태인지 확인합니다
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderPending, OrderSubmitted, OrderPartiallyFilled:
		return true
	default:
		return false
	}
}

// IsTerminal은 더 이상 전이가 불가능한 최종 상태인지 확인합니다
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderFailed:
		return true
	default:
		return false
	}
}

// TimeInterval은 캔들 차트의 시간 간격을 정의합니다
type TimeInterval string

const (
	Interval1m  TimeInterval = "1m"
	Interval3m  TimeInterval = "3m"
	Interval5m  TimeInterval = "5m"
	Interval15m TimeInterval = "15m"
	Interval30m TimeInterval = "30m"
	Interval1h  TimeInterval = "1h"
	Interval2h  TimeInterval = "2h"
	Interval4h  TimeInterval = "4h"
	Interval6h  TimeInterval = "6h"
	Interval8h  TimeInterval = "8h"
	Interval12h TimeInterval = "12h"
	Interval1d  TimeInterval = "1d"
)
