package indicator

import "fmt"

// EMA는 지수이동평균 지표입니다. 첫 값은 처음 Period개의 단순평균으로 시작합니다.
type EMA struct {
	Period int
}

// NewEMA는 새로운 EMA 지표 인스턴스를 생성합니다
func NewEMA(period int) *EMA {
	return &EMA{Period: period}
}

// GetName은 지표 이름을 반환합니다
func (e *EMA) GetName() string {
	return fmt.Sprintf("EMA(%d)", e.Period)
}

// Lookback은 첫 유효 값에 필요한 데이터 수입니다
func (e *EMA) Lookback() int {
	return e.Period
}

// Calculate는 주어진 가격 데이터에 대해 EMA를 계산합니다
func (e *EMA) Calculate(prices []PriceData) ([]Result, error) {
	if err := validatePeriod(e.Period, len(prices), e.Period); err != nil {
		return nil, err
	}

	p := e.Period
	alpha := 2.0 / float64(p+1)
	results := make([]Result, len(prices))

	seed := 0.0
	for i := 0; i < p; i++ {
		seed += prices[i].Close
		results[i] = nanResult(prices[i].Time)
	}
	ema := seed / float64(p)
	results[p-1] = Result{Value: ema, Timestamp: prices[p-1].Time}

	for i := p; i < len(prices); i++ {
		ema = alpha*prices[i].Close + (1-alpha)*ema
		results[i] = Result{Value: ema, Timestamp: prices[i].Time}
	}

	return results, nil
}
