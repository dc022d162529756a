package trading

import (
	"context"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Venue는 주문을 실제로 내보내는 대상입니다 (거래소 백엔드 또는 체결 시뮬레이터)
type Venue interface {
	SubmitOrder(ctx context.Context, o domain.Order) (string, error)
}

// VenueFunc는 함수를 Venue로 사용할 수 있게 해줍니다
type VenueFunc func(ctx context.Context, o domain.Order) (string, error)

// SubmitOrder는 f(ctx, o)를 호출합니다
func (f VenueFunc) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	return f(ctx, o)
}

// Canceller는 활성 주문 취소를 지원하는 Venue입니다
type Canceller interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// TradeHook은 포지션 청산으로 완료 거래가 생길 때 호출됩니다
type TradeHook func(trade domain.CompletedTrade)

// FillHook은 체결이 원장에 반영된 뒤 호출됩니다
type FillHook func(fill domain.Fill)

// ExecutionError는 거래 실행 중 발생한 오류를 나타내는 구조체입니다.
type ExecutionError struct {
	Phase   string
	OrderID string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.OrderID != "" {
		return "매매 실행 실패 (" + e.Phase + ", 주문 " + e.OrderID + "): " + e.Err.Error()
	}
	return "매매 실행 실패 (" + e.Phase + "): " + e.Err.Error()
}

// Unwrap은 내부 에러를 반환합니다
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
