package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// PriceData는 지표 계산에 필요한 가격 정보를 정의합니다
type PriceData struct {
	Time   time.Time // 타임스탬프
	Open   float64   // 시가
	High   float64   // 고가
	Low    float64   // 저가
	Close  float64   // 종가
	Volume float64   // 거래량
}

// Result는 지표 계산 결과 한 건입니다. 계산 불가 구간의 Value는 math.NaN()입니다.
type Result struct {
	Value     float64
	Timestamp time.Time
}

// Valid는 계산된 값인지 확인합니다
func (r Result) Valid() bool {
	return !math.IsNaN(r.Value)
}

// ValidationError는 입력값 검증 에러를 정의합니다
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("유효하지 않은 %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Indicator는 모든 기술적 지표가 구현해야 하는 인터페이스입니다
type Indicator interface {
	// Calculate는 가격 데이터를 기반으로 지표를 계산합니다. 결과 길이는 입력과 같습니다.
	Calculate(data []PriceData) ([]Result, error)

	// GetName은 지표의 이름을 반환합니다
	GetName() string

	// Lookback은 첫 유효 값이 나오기 위해 필요한 최소 데이터 수입니다
	Lookback() int
}

// ConvertCandlesToPriceData는 캔들 데이터를 지표 계산용 PriceData로 변환합니다
func ConvertCandlesToPriceData(candles domain.CandleList) []PriceData {
	priceData := make([]PriceData, len(candles))
	for i, candle := range candles {
		priceData[i] = PriceData{
			Time:   candle.OpenTime,
			Open:   candle.Open,
			High:   candle.High,
			Low:    candle.Low,
			Close:  candle.Close,
			Volume: candle.Volume,
		}
	}
	return priceData
}

// LastTwo는 마지막 두 개의 유효 값(이전, 현재)을 반환합니다. 크로스 판정에 사용합니다.
func LastTwo(results []Result) (prev, curr float64, ok bool) {
	n := len(results)
	if n < 2 || !results[n-1].Valid() || !results[n-2].Valid() {
		return 0, 0, false
	}
	return results[n-2].Value, results[n-1].Value, true
}

// Last는 마지막 유효 값을 반환합니다
func Last(results []Result) (float64, bool) {
	if len(results) == 0 || !results[len(results)-1].Valid() {
		return 0, false
	}
	return results[len(results)-1].Value, true
}

func validatePeriod(period, have, need int) error {
	if period <= 0 {
		return &ValidationError{Field: "period", Err: fmt.Errorf("기간은 0보다 커야 합니다 (%d)", period)}
	}
	if have == 0 {
		return &ValidationError{Field: "prices", Err: fmt.Errorf("가격 데이터가 비어있습니다")}
	}
	if have < need {
		return &ValidationError{
			Field: "prices",
			Err:   fmt.Errorf("가격 데이터가 부족합니다. 필요: %d, 현재: %d", need, have),
		}
	}
	return nil
}

func nanResult(ts time.Time) Result {
	return Result{Value: math.NaN(), Timestamp: ts}
}
