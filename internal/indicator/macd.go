package indicator

import (
	"fmt"
	"math"
	"time"
)

// MACD는 MACD(Moving Average Convergence Divergence) 지표입니다
type MACD struct {
	ShortPeriod  int // 단기 EMA 기간
	LongPeriod   int // 장기 EMA 기간
	SignalPeriod int // 시그널 라인 기간
}

// MACDResult는 MACD 계산 결과 한 건입니다. 계산 불가 구간은 모두 NaN입니다.
type MACDResult struct {
	MACD      float64   // MACD 라인
	Signal    float64   // 시그널 라인
	Histogram float64   // 히스토그램
	Timestamp time.Time // 계산 시점
}

// Valid는 시그널 라인까지 계산된 값인지 확인합니다
func (r MACDResult) Valid() bool {
	return !math.IsNaN(r.Signal)
}

// NewMACD는 새로운 MACD 지표 인스턴스를 생성합니다
func NewMACD(short, long, signal int) *MACD {
	return &MACD{ShortPeriod: short, LongPeriod: long, SignalPeriod: signal}
}

// GetName은 지표 이름을 반환합니다
func (m *MACD) GetName() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.ShortPeriod, m.LongPeriod, m.SignalPeriod)
}

// Lookback은 첫 유효 값에 필요한 데이터 수입니다
func (m *MACD) Lookback() int {
	return m.LongPeriod + m.SignalPeriod - 1
}

func (m *MACD) validate() error {
	if m.ShortPeriod <= 0 {
		return &ValidationError{
			Field: "ShortPeriod",
			Err:   fmt.Errorf("단기 기간은 0보다 커야 합니다: %d", m.ShortPeriod),
		}
	}
	if m.LongPeriod <= m.ShortPeriod {
		return &ValidationError{
			Field: "LongPeriod",
			Err:   fmt.Errorf("장기 기간은 단기 기간보다 커야 합니다: %d <= %d", m.LongPeriod, m.ShortPeriod),
		}
	}
	if m.SignalPeriod <= 0 {
		return &ValidationError{
			Field: "SignalPeriod",
			Err:   fmt.Errorf("시그널 기간은 0보다 커야 합니다: %d", m.SignalPeriod),
		}
	}
	return nil
}

// Lines는 MACD 라인, 시그널 라인, 히스토그램을 계산합니다. 결과 길이는 입력과 같습니다.
func (m *MACD) Lines(prices []PriceData) ([]MACDResult, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if err := validatePeriod(m.LongPeriod, len(prices), m.Lookback()); err != nil {
		return nil, err
	}

	shortEMA, err := NewEMA(m.ShortPeriod).Calculate(prices)
	if err != nil {
		return nil, fmt.Errorf("단기 EMA 계산 실패: %w", err)
	}
	longEMA, err := NewEMA(m.LongPeriod).Calculate(prices)
	if err != nil {
		return nil, fmt.Errorf("장기 EMA 계산 실패: %w", err)
	}

	nan := math.NaN()
	results := make([]MACDResult, len(prices))
	for i := range prices {
		results[i] = MACDResult{MACD: nan, Signal: nan, Histogram: nan, Timestamp: prices[i].Time}
		if i >= m.LongPeriod-1 {
			results[i].MACD = shortEMA[i].Value - longEMA[i].Value
		}
	}

	// 시그널 라인은 MACD 라인의 EMA이며 첫 값은 단순평균으로 시작합니다
	start := m.LongPeriod - 1
	seedEnd := start + m.SignalPeriod - 1
	alpha := 2.0 / float64(m.SignalPeriod+1)

	seed := 0.0
	for i := start; i <= seedEnd; i++ {
		seed += results[i].MACD
	}
	signal := seed / float64(m.SignalPeriod)
	for i := seedEnd; i < len(prices); i++ {
		if i > seedEnd {
			signal = alpha*results[i].MACD + (1-alpha)*signal
		}
		results[i].Signal = signal
		results[i].Histogram = results[i].MACD - signal
	}

	return results, nil
}

// Calculate는 히스토그램 값을 지표 결과로 반환합니다
func (m *MACD) Calculate(prices []PriceData) ([]Result, error) {
	lines, err := m.Lines(prices)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(lines))
	for i, l := range lines {
		results[i] = Result{Value: l.Histogram, Timestamp: l.Timestamp}
	}
	return results, nil
}
