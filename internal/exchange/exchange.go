package exchange

import (
	"context"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Backend는 엔진이 주문을 전달하는 실행 백엔드 인터페이스입니다
type Backend interface {
	// SubmitOrder는 주문을 제출하고 백엔드 측 주문 ID를 반환합니다
	SubmitOrder(ctx context.Context, order domain.Order) (string, error)
	// CancelOrder는 주문 취소를 요청합니다
	CancelOrder(ctx context.Context, orderID string) error
	// SyncOrders는 마지막 동기화 이후의 주문 상태 변경을 반환합니다
	SyncOrders(ctx context.Context) ([]domain.OrderUpdate, error)
}

// FillSource는 백엔드에서 발생한 체결을 꺼내올 수 있는 경우 구현합니다
type FillSource interface {
	DrainFills() []domain.Fill
}

// PriceObserver는 최신 시세를 필요로 하는 백엔드가 구현합니다
type PriceObserver interface {
	OnPrice(symbol string, price float64, ts time.Time)
}

// KlineSource는 과거 캔들 데이터 조회 인터페이스입니다
type KlineSource interface {
	GetKlines(ctx context.Context, symbol string, interval domain.TimeInterval, start time.Time, limit int) (domain.CandleList, error)
}
