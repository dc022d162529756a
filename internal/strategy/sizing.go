package strategy

import (
	"fmt"
	"math"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// DefaultStepSize는 수량 최소 단위의 기본값입니다
const DefaultStepSize = 0.00001

// SizingConfig는 포지션 사이즈 계산을 위한 설정을 정의합니다
type SizingConfig struct {
	Capital     float64 // 사용 가능한 자본 (USDT)
	Allocation  float64 // 할당 비율 (0 초과 1 이하)
	StepSize    float64 // 수량 최소 단위
	MinNotional float64 // 최소 주문 가치
}

// QuantityForAllocation은 자본의 일정 비율로 살 수 있는 수량을 최소 단위로 내림해 계산합니다
func QuantityForAllocation(price float64, config SizingConfig) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: 가격은 0보다 커야 합니다 (%.8f)", domain.ErrInvalidOrder, price)
	}
	if config.Allocation <= 0 || config.Allocation > 1 {
		return 0, fmt.Errorf("%w: 할당 비율은 0 초과 1 이하여야 합니다 (%.4f)", domain.ErrInvalidConfig, config.Allocation)
	}
	if config.StepSize <= 0 {
		config.StepSize = DefaultStepSize
	}
	if config.Capital <= 0 {
		return 0, fmt.Errorf("%w: 사용 가능한 자본이 없습니다 (%.2f)", domain.ErrInvalidOrder, config.Capital)
	}

	maxQuantity := config.Capital * config.Allocation / price

	// stepSize가 0.001이면 소수점 3자리
	precision := 0
	for temp := config.StepSize; temp < 1.0 && precision < 16; temp *= 10 {
		precision++
	}
	scale := math.Pow(10, float64(precision))

	steps := math.Floor(maxQuantity/config.StepSize + 1e-9)
	quantity := math.Floor(steps*config.StepSize*scale+1e-6) / scale

	if quantity <= 0 {
		return 0, fmt.Errorf("%w: 계산된 수량이 최소 단위(%.8f)보다 작습니다", domain.ErrInvalidOrder, config.StepSize)
	}
	if notional := quantity * price; notional < config.MinNotional {
		return 0, fmt.Errorf("%w: 계산된 주문 가치(%.2f)가 최소 주문 가치(%.2f)보다 작습니다",
			domain.ErrInvalidOrder, notional, config.MinNotional)
	}
	return quantity, nil
}
