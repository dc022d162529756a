package domain

import (
	"fmt"
	"sort"
	"time"
)

// Candle은 캔들 데이터를 표현합니다
type Candle struct {
	OpenTime  time.Time    `json:"openTime"`  // 캔들 시작 시간
	CloseTime time.Time    `json:"closeTime"` // 캔들 종료 시간
	Open      float64      `json:"open"`      // 시가
	High      float64      `json:"high"`      // 고가
	Low       float64      `json:"low"`       // 저가
	Close     float64      `json:"close"`     // 종가
	Volume    float64      `json:"volume"`    // 거래량
	Symbol    string       `json:"symbol"`    // 심볼 (예: BTCUSDT)
	Interval  TimeInterval `json:"interval"`  // 시간 간격 (예: 15m, 1h)
}

// Timestamp는 캔들의 기준 시각(시작 시간)을 반환합니다
func (c Candle) Timestamp() time.Time {
	return c.OpenTime
}

// Validate는 캔들 가격이 정상 범위인지 확인합니다
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: 캔들 심볼이 비어있습니다", ErrMarketData)
	}
	for _, p := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if !IsPositiveFinite(p) {
			return fmt.Errorf("%w: %s 캔들 가격은 0보다 큰 유한값이어야 합니다 (%.8f)", ErrMarketData, c.Symbol, p)
		}
	}
	if !IsNonNegativeFinite(c.Volume) {
		return fmt.Errorf("%w: %s 거래량이 잘못되었습니다 (%.8f)", ErrMarketData, c.Symbol, c.Volume)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: %s 고가(%.8f)가 저가(%.8f)보다 낮습니다", ErrMarketData, c.Symbol, c.High, c.Low)
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return fmt.Errorf("%w: %s 시가/종가가 고가-저가 범위를 벗어났습니다", ErrMarketData, c.Symbol)
	}
	return nil
}

// CandleList는 캔들 데이터 목록입니다
type CandleList []Candle

// GetLastCandle은 가장 최근 캔들을 반환합니다
func (cl CandleList) GetLastCandle() (Candle, bool) {
	if len(cl) == 0 {
		return Candle{}, false
	}
	return cl[len(cl)-1], true
}

// GetPriceAtIndex는 특정 인덱스의 가격을 반환합니다
func (cl CandleList) GetPriceAtIndex(index int) (float64, bool) {
	if index < 0 || index >= len(cl) {
		return 0, false
	}
	return cl[index].Close, true
}

// GetSubList는 지정된 범위의 부분 리스트를 반환합니다
func (cl CandleList) GetSubList(start, end int) (CandleList, bool) {
	if start < 0 || end > len(cl) || start >= end {
		return nil, false
	}
	return cl[start:end], true
}

// Closes는 종가 배열을 반환합니다
func (cl CandleList) Closes() []float64 {
	closes := make([]float64, len(cl))
	for i, c := range cl {
		closes[i] = c.Close
	}
	return closes
}

// SortByTime은 시간(동일 시각이면 심볼) 순으로 정렬된 복사본을 반환합니다
func (cl CandleList) SortByTime() CandleList {
	sorted := make(CandleList, len(cl))
	copy(sorted, cl)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OpenTime.Equal(sorted[j].OpenTime) {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})
	return sorted
}
