package order

import (
	"fmt"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// transitions는 상태별로 이동 가능한 다음 상태 목록입니다. 최종 상태에서는 어디로도 갈 수 없습니다.
var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderPending: {
		domain.OrderSubmitted,
		domain.OrderPartiallyFilled,
		domain.OrderFilled,
		domain.OrderCancelled,
		domain.OrderRejected,
		domain.OrderFailed,
	},
	domain.OrderSubmitted: {
		domain.OrderPartiallyFilled,
		domain.OrderFilled,
		domain.OrderCancelled,
		domain.OrderRejected,
		domain.OrderFailed,
	},
	domain.OrderPartiallyFilled: {
		domain.OrderPartiallyFilled,
		domain.OrderFilled,
		domain.OrderCancelled,
		domain.OrderFailed,
	},
}

// CanTransition은 from에서 to로의 상태 전이가 허용되는지 확인합니다
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(id string, from, to domain.OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: 주문 %s 상태 전이 불가 (%s -> %s)", domain.ErrOrderError, id, from, to)
	}
	return nil
}
