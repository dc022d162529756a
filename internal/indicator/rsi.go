package indicator

import "fmt"

// RSI는 Wilder 평활을 사용하는 Relative Strength Index 지표입니다
type RSI struct {
	Period int
}

// NewRSI는 새로운 RSI 지표 인스턴스를 생성합니다
func NewRSI(period int) *RSI {
	return &RSI{Period: period}
}

// GetName은 지표 이름을 반환합니다
func (r *RSI) GetName() string {
	return fmt.Sprintf("RSI(%d)", r.Period)
}

// Lookback은 첫 유효 값에 필요한 데이터 수입니다 (변동 Period개 = 가격 Period+1개)
func (r *RSI) Lookback() int {
	return r.Period + 1
}

// Calculate는 주어진 가격 데이터에 대해 RSI(0~100)를 계산합니다
func (r *RSI) Calculate(prices []PriceData) ([]Result, error) {
	if err := validatePeriod(r.Period, len(prices), r.Lookback()); err != nil {
		return nil, err
	}

	p := r.Period
	results := make([]Result, len(prices))
	for i := 0; i < p; i++ {
		results[i] = nanResult(prices[i].Time)
	}

	// 첫 p개의 변동은 단순평균
	sumGain, sumLoss := 0.0, 0.0
	for i := 1; i <= p; i++ {
		gain, loss := splitDelta(prices[i].Close - prices[i-1].Close)
		sumGain += gain
		sumLoss += loss
	}
	avgGain, avgLoss := sumGain/float64(p), sumLoss/float64(p)
	results[p] = Result{Value: rsiValue(avgGain, avgLoss), Timestamp: prices[p].Time}

	// 이후는 Wilder 평활
	for i := p + 1; i < len(prices); i++ {
		gain, loss := splitDelta(prices[i].Close - prices[i-1].Close)
		avgGain = (avgGain*float64(p-1) + gain) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + loss) / float64(p)
		results[i] = Result{Value: rsiValue(avgGain, avgLoss), Timestamp: prices[i].Time}
	}

	return results, nil
}

func splitDelta(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50 // 완전 횡보
	case avgLoss == 0:
		return 100
	default:
		rs := avgGain / avgLoss
		return 100 - 100/(1+rs)
	}
}
