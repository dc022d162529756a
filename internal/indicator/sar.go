package indicator

import (
	"fmt"
	"math"
	"time"
)

// SAR은 Parabolic SAR 지표입니다
type SAR struct {
	AccelerationInitial float64 // 초기 가속도
	AccelerationMax     float64 // 최대 가속도
}

// SARResult는 Parabolic SAR 계산 결과 한 건입니다
type SARResult struct {
	SAR       float64   // SAR 값
	IsLong    bool      // 현재 추세가 상승인지 여부
	Timestamp time.Time // 계산 시점
}

// NewSAR은 새로운 SAR 지표 인스턴스를 생성합니다
func NewSAR(initial, maximum float64) *SAR {
	return &SAR{AccelerationInitial: initial, AccelerationMax: maximum}
}

// NewDefaultSAR은 기본 가속도(0.02, 0.2)의 SAR을 생성합니다
func NewDefaultSAR() *SAR {
	return NewSAR(0.02, 0.2)
}

// GetName은 지표 이름을 반환합니다
func (s *SAR) GetName() string {
	return fmt.Sprintf("SAR(%.2f,%.2f)", s.AccelerationInitial, s.AccelerationMax)
}

// Lookback은 첫 유효 값에 필요한 데이터 수입니다
func (s *SAR) Lookback() int {
	return 2
}

func (s *SAR) validate() error {
	if s.AccelerationInitial <= 0 {
		return &ValidationError{
			Field: "AccelerationInitial",
			Err:   fmt.Errorf("초기 가속도는 0보다 커야 합니다: %f", s.AccelerationInitial),
		}
	}
	if s.AccelerationMax <= s.AccelerationInitial {
		return &ValidationError{
			Field: "AccelerationMax",
			Err: fmt.Errorf("최대 가속도는 초기 가속도보다 커야 합니다: %f <= %f",
				s.AccelerationMax, s.AccelerationInitial),
		}
	}
	return nil
}

// Points는 봉마다 SAR 값과 추세 방향을 계산합니다
func (s *SAR) Points(prices []PriceData) ([]SARResult, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if len(prices) < s.Lookback() {
		return nil, &ValidationError{
			Field: "prices",
			Err:   fmt.Errorf("최소 %d개의 가격 데이터가 필요합니다", s.Lookback()),
		}
	}

	results := make([]SARResult, len(prices))

	isLong := prices[1].Close > prices[0].Close
	af := s.AccelerationInitial
	var sar, extremePoint float64
	if isLong {
		sar = prices[0].Low
		extremePoint = prices[1].High
	} else {
		sar = prices[0].High
		extremePoint = prices[1].Low
	}
	results[0] = SARResult{SAR: sar, IsLong: isLong, Timestamp: prices[0].Time}

	for i := 1; i < len(prices); i++ {
		sar += af * (extremePoint - sar)

		if isLong {
			// 직전 두 봉의 저점을 넘지 않음
			sar = math.Min(sar, prices[i-1].Low)
			if i > 1 {
				sar = math.Min(sar, prices[i-2].Low)
			}
			if prices[i].High > extremePoint {
				extremePoint = prices[i].High
				af = math.Min(af+s.AccelerationInitial, s.AccelerationMax)
			}
			if prices[i].Low < sar {
				isLong = false
				sar = extremePoint
				extremePoint = prices[i].Low
				af = s.AccelerationInitial
			}
		} else {
			sar = math.Max(sar, prices[i-1].High)
			if i > 1 {
				sar = math.Max(sar, prices[i-2].High)
			}
			if prices[i].Low < extremePoint {
				extremePoint = prices[i].Low
				af = math.Min(af+s.AccelerationInitial, s.AccelerationMax)
			}
			if prices[i].High > sar {
				isLong = true
				sar = extremePoint
				extremePoint = prices[i].High
				af = s.AccelerationInitial
			}
		}

		results[i] = SARResult{SAR: sar, IsLong: isLong, Timestamp: prices[i].Time}
	}

	return results, nil
}

// Calculate는 SAR 값을 지표 결과로 반환합니다
func (s *SAR) Calculate(prices []PriceData) ([]Result, error) {
	points, err := s.Points(prices)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = Result{Value: p.SAR, Timestamp: p.Timestamp}
	}
	return results, nil
}
