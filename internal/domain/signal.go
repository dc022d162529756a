package domain

import "fmt"

// SignalKind는 전략이 반환하는 매매 의도 유형을 정의합니다
type SignalKind int

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
	SignalClose  // 보유 포지션 전량 청산
	SignalModify // 기존 주문 정정 (하위 실행부에서 미지원)
)

// String은 SignalKind의 문자열 표현을 반환합니다
func (k SignalKind) String() string {
	switch k {
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalClose:
		return "CLOSE"
	case SignalModify:
		return "MODIFY"
	default:
		return "UNKNOWN"
	}
}

// Signal은 전략이 생성한 매매 의도를 담습니다
type Signal struct {
	Kind       SignalKind             // 시그널 유형
	Symbol     string                 // 심볼 (예: BTCUSDT)
	Quantity   float64                // 주문 수량 (Buy/Sell/Modify)
	LimitPrice float64                // 지정가 (0이면 미지정)
	StopPrice  float64                // 스탑 가격 (0이면 미지정)
	OrderID    string                 // 정정 대상 주문 ID (Modify)
	Reason     string                 // 시그널 발생 이유
	Conditions map[string]interface{} // 시그널 발생 조건 상세 (알림용)
}

// Hold는 아무 행동도 하지 않는 시그널을 반환합니다
func Hold() Signal {
	return Signal{Kind: SignalHold}
}

// BuySignal은 매수 시그널을 생성합니다
func BuySignal(symbol string, quantity float64) Signal {
	return Signal{Kind: SignalBuy, Symbol: symbol, Quantity: quantity}
}

// SellSignal은 매도 시그널을 생성합니다
func SellSignal(symbol string, quantity float64) Signal {
	return Signal{Kind: SignalSell, Symbol: symbol, Quantity: quantity}
}

// CloseSignal은 포지션 청산 시그널을 생성합니다
func CloseSignal(symbol string) Signal {
	return Signal{Kind: SignalClose, Symbol: symbol}
}

// ModifySignal은 주문 정정 시그널을 생성합니다
func ModifySignal(orderID string, quantity, price float64) Signal {
	return Signal{Kind: SignalModify, OrderID: orderID, Quantity: quantity, LimitPrice: price}
}

// WithLimit은 지정가를 설정한 복사본을 반환합니다
func (s Signal) WithLimit(price float64) Signal {
	s.LimitPrice = price
	return s
}

// WithStop은 스탑 가격을 설정한 복사본을 반환합니다
func (s Signal) WithStop(price float64) Signal {
	s.StopPrice = price
	return s
}

// WithReason은 시그널 이유를 설정한 복사본을 반환합니다
func (s Signal) WithReason(format string, args ...interface{}) Signal {
	s.Reason = fmt.Sprintf(format, args...)
	return s
}

// SetCondition는 특정 키에 조건 값을 설정합니다
func (s *Signal) SetCondition(key string, value interface{}) {
	if s.Conditions == nil {
		s.Conditions = make(map[string]interface{})
	}
	s.Conditions[key] = value
}

// IsActionable은 실행이 필요한 시그널인지 확인합니다
func (s Signal) IsActionable() bool {
	return s.Kind != SignalHold
}

// OrderType은 지정가/스탑 가격 유무로 주문 유형을 결정합니다
func (s Signal) OrderType() OrderType {
	hasLimit := s.LimitPrice > 0
	hasStop := s.StopPrice > 0

	switch {
	case hasLimit && hasStop:
		return StopLimit
	case hasStop:
		return StopMarket
	case hasLimit:
		return Limit
	default:
		return Market
	}
}
