package domain

// MarketEventKind는 실시간 이벤트 스트림의 이벤트 유형입니다
type MarketEventKind int

const (
	CandleEvent MarketEventKind = iota
	OrderUpdateEvent
	ErrorEvent
	DisconnectedEvent
	ReconnectedEvent
)

// String은 이벤트 유형의 문자열 표현을 반환합니다
func (k MarketEventKind) String() string {
	switch k {
	case CandleEvent:
		return "CANDLE"
	case OrderUpdateEvent:
		return "ORDER_UPDATE"
	case ErrorEvent:
		return "ERROR"
	case DisconnectedEvent:
		return "DISCONNECTED"
	case ReconnectedEvent:
		return "RECONNECTED"
	default:
		return "UNKNOWN"
	}
}

// MarketEvent는 엔진 루프로 전달되는 시장/주문 이벤트입니다
type MarketEvent struct {
	Kind   MarketEventKind
	Candle Candle
	Update OrderUpdate
	Err    error
}

// NewCandleEvent는 캔들 이벤트를 생성합니다
func NewCandleEvent(c Candle) MarketEvent {
	return MarketEvent{Kind: CandleEvent, Candle: c}
}

// NewOrderUpdateEvent는 주문 상태 변경 이벤트를 생성합니다
func NewOrderUpdateEvent(u OrderUpdate) MarketEvent {
	return MarketEvent{Kind: OrderUpdateEvent, Update: u}
}

// NewErrorEvent는 시장 데이터 에러 이벤트를 생성합니다
func NewErrorEvent(err error) MarketEvent {
	return MarketEvent{Kind: ErrorEvent, Err: err}
}
