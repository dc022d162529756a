package domain

import (
	"fmt"
	"time"
)

var intervalDurations = map[TimeInterval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseTimeInterval은 문자열을 TimeInterval로 변환합니다
func ParseTimeInterval(s string) (TimeInterval, error) {
	interval := TimeInterval(s)
	if _, ok := intervalDurations[interval]; !ok {
		return "", fmt.Errorf("지원하지 않는 캔들 간격: %s", s)
	}
	return interval, nil
}

// Duration은 캔들 간격의 시간 길이를 반환합니다 (알 수 없는 간격은 0)
func (i TimeInterval) Duration() time.Duration {
	return intervalDurations[i]
}

// CandlesPerDay는 하루에 생성되는 캔들 개수를 반환합니다
func (i TimeInterval) CandlesPerDay() int {
	d := i.Duration()
	if d == 0 {
		return 0
	}
	return int((24 * time.Hour) / d)
}

// Resample은 정렬된 캔들을 더 큰 간격의 캔들로 합칩니다.
// 각 구간의 시가는 첫 캔들, 종가는 마지막 캔들, 고가/저가는 구간 내 극값,
// 거래량은 합계로 계산합니다.
func Resample(candles CandleList, target TimeInterval) (CandleList, error) {
	step := target.Duration()
	if step == 0 {
		return nil, fmt.Errorf("지원하지 않는 캔들 간격: %s", target)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("캔들 데이터가 비어있습니다")
	}

	var result CandleList
	var current *Candle

	for i, c := range candles {
		if i > 0 && c.OpenTime.Before(candles[i-1].OpenTime) {
			return nil, fmt.Errorf("캔들 데이터가 시간순으로 정렬되어 있지 않습니다")
		}

		bucket := c.OpenTime.UTC().Truncate(step)
		if current == nil || !current.OpenTime.Equal(bucket) || current.Symbol != c.Symbol {
			if current != nil {
				result = append(result, *current)
			}
			current = &Candle{
				Symbol:    c.Symbol,
				Interval:  target,
				OpenTime:  bucket,
				CloseTime: bucket.Add(step - time.Millisecond),
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
			}
		}

		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
	}
	result = append(result, *current)

	return result, nil
}
