package indicator

import "fmt"

// SMA는 단순이동평균 지표입니다
type SMA struct {
	Period int
}

// NewSMA는 새로운 SMA 지표 인스턴스를 생성합니다
func NewSMA(period int) *SMA {
	return &SMA{Period: period}
}

// GetName은 지표 이름을 반환합니다
func (s *SMA) GetName() string {
	return fmt.Sprintf("SMA(%d)", s.Period)
}

// Lookback은 첫 유효 값에 필요한 데이터 수입니다
func (s *SMA) Lookback() int {
	return s.Period
}

// Calculate는 슬라이딩 합계로 SMA를 계산합니다. 앞 Period-1개는 NaN입니다.
func (s *SMA) Calculate(prices []PriceData) ([]Result, error) {
	if err := validatePeriod(s.Period, len(prices), s.Period); err != nil {
		return nil, err
	}

	results := make([]Result, len(prices))
	sum := 0.0
	for i, p := range prices {
		sum += p.Close
		if i >= s.Period {
			sum -= prices[i-s.Period].Close
		}
		if i < s.Period-1 {
			results[i] = nanResult(p.Time)
			continue
		}
		results[i] = Result{Value: sum / float64(s.Period), Timestamp: p.Time}
	}
	return results, nil
}
