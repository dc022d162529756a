package backtest

import (
	"math"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// tradingDaysPerYear는 샤프/소르티노 연율화에 쓰는 연간 거래일 수입니다
const tradingDaysPerYear = 252

// CalculateMetrics는 자산 곡선과 완료 거래로 성과 지표를 계산합니다
func CalculateMetrics(curve []domain.EquitySnapshot, trades []domain.CompletedTrade, initialCapital float64) Metrics {
	m := CalculateTradeStats(trades)

	if initialCapital > 0 {
		m.TotalReturn = m.TotalPnL / initialCapital * 100
	}

	if len(curve) >= 2 {
		span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
		m.DurationDays = int(span / (24 * time.Hour))
		if m.DurationDays > 0 {
			m.AnnualizedReturn = CalculateAnnualizedReturn(m.TotalReturn, span)
		}
	}

	returns := DailyReturns(curve)
	m.SharpeRatio = Ratio(SharpeRatio(returns))
	m.SortinoRatio = Ratio(SortinoRatio(returns))
	m.MaxDrawdown, m.AvgDrawdown, m.MaxDrawdownDuration = CalculateDrawdownStats(curve)
	return m
}

// CalculateTradeStats는 완료 거래 목록의 승패, 손익, 보유 기간 통계를 계산합니다
func CalculateTradeStats(trades []domain.CompletedTrade) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	grossProfit := 0.0
	grossLoss := 0.0
	totalHolding := time.Duration(0)

	// 연속 승/패 계산 변수
	currentWins := 0
	currentLosses := 0

	for _, t := range trades {
		m.TotalPnL += t.PnL
		totalHolding += t.HoldingPeriod()

		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossProfit += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
			currentWins++
			currentLosses = 0
			m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, currentWins)

		case t.PnL < 0:
			m.LosingTrades++
			grossLoss += -t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
			currentLosses++
			currentWins = 0
			m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, currentLosses)
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(trades)) * 100
	if m.WinningTrades > 0 {
		m.AvgWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
	}

	// 손실이 없으면 이익이 있을 때만 무한대
	switch {
	case grossLoss > 0:
		m.ProfitFactor = Ratio(grossProfit / grossLoss)
	case grossProfit > 0:
		m.ProfitFactor = Ratio(math.Inf(1))
	}

	m.AvgHoldingHours = totalHolding.Hours() / float64(len(trades))
	return m
}

// DailyReturns는 UTC 일자별 마지막 자산으로 일간 수익률(소수)을 계산합니다.
// 첫 날의 기준값은 첫 스냅샷의 자산입니다.
func DailyReturns(curve []domain.EquitySnapshot) []float64 {
	if len(curve) < 2 {
		return nil
	}

	var closes []float64
	var lastDay time.Time
	for i, snap := range curve {
		day := snap.Timestamp.UTC().Truncate(24 * time.Hour)
		if i > 0 && day.Equal(lastDay) {
			closes[len(closes)-1] = snap.TotalEquity
			continue
		}
		closes = append(closes, snap.TotalEquity)
		lastDay = day
	}

	prev := curve[0].TotalEquity
	returns := make([]float64, 0, len(closes))
	for _, c := range closes {
		if prev != 0 {
			returns = append(returns, (c-prev)/prev)
		}
		prev = c
	}
	return returns
}

// SharpeRatio는 일간 수익률의 연율화 샤프 비율을 계산합니다. 수익률이 없거나 변동이 없으면 0입니다.
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// SortinoRatio는 평균 일간 수익률을 음의 수익률 제곱평균의 제곱근으로 나눈 값입니다.
// 수익률이 없으면 0, 음의 수익률이 없으면 +Inf 입니다.
func SortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)

	sumSq := 0.0
	negatives := 0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			negatives++
		}
	}
	if negatives == 0 {
		return math.Inf(1)
	}
	downside := math.Sqrt(sumSq / float64(negatives))
	if downside == 0 {
		return 0
	}
	return mean / downside
}

// CalculateDrawdownStats는 자산 곡선에서 최대 낙폭(%), 평균 낙폭(%), 최대 낙폭 기간을 계산합니다.
// 기간은 최고점에서 그 이후 가장 깊은 저점까지의 시간 중 가장 긴 값입니다.
func CalculateDrawdownStats(curve []domain.EquitySnapshot) (maxDrawdown float64, avgDrawdown float64, duration time.Duration) {
	if len(curve) == 0 {
		return 0, 0, 0
	}

	highWaterMark := curve[0].TotalEquity
	peakTime := curve[0].Timestamp
	totalDrawdown := 0.0
	drawdownCount := 0

	for _, point := range curve {
		// 신규 최고점 갱신
		if point.TotalEquity > highWaterMark {
			highWaterMark = point.TotalEquity
			peakTime = point.Timestamp
			continue
		}
		if highWaterMark <= 0 {
			continue
		}

		current := (highWaterMark - point.TotalEquity) / highWaterMark * 100
		if current <= 0 {
			continue
		}
		totalDrawdown += current
		drawdownCount++

		// 최대 낙폭 갱신 시 최고점부터의 기간 기록
		if current > maxDrawdown {
			maxDrawdown = current
			if d := point.Timestamp.Sub(peakTime); d > duration {
				duration = d
			}
		}
	}

	if drawdownCount > 0 {
		avgDrawdown = totalDrawdown / float64(drawdownCount)
	}
	return maxDrawdown, avgDrawdown, duration
}

// CalculateAnnualizedReturn은 누적 수익률(%)을 기간에 맞춰 연율화합니다 (%)
func CalculateAnnualizedReturn(totalReturnPct float64, span time.Duration) float64 {
	// 거래 기간 (연 단위)
	years := span.Hours() / 24 / 365.25
	if years <= 0 {
		return totalReturnPct
	}

	growth := 1 + totalReturnPct/100
	if growth <= 0 {
		return -100
	}
	// 연율화 수익률 계산 공식: (1 + totalReturn)^(1/years) - 1
	return (math.Pow(growth, 1/years) - 1) * 100
}

// CalculatePeriodStats는 거래를 진입 시간대, 요일, 월별로 집계합니다
func CalculatePeriodStats(trades []domain.CompletedTrade) (timeOfDay, dayOfWeek map[string]TimePerformance, monthly map[string]float64) {
	timeOfDay = make(map[string]TimePerformance)
	dayOfWeek = make(map[string]TimePerformance)
	monthly = make(map[string]float64)

	days := []string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}
	for _, t := range trades {
		entry := t.EntryTime.UTC()
		addPerformance(timeOfDay, timeOfDayBucket(entry.Hour()), t)
		addPerformance(dayOfWeek, days[entry.Weekday()], t)

		// 월 형식: "2023-01"
		monthly[entry.Format("2006-01")] += t.PnLPct
	}
	return timeOfDay, dayOfWeek, monthly
}

// timeOfDayBucket은 시간대를 결정합니다 (0-5: 새벽, 6-11: 오전, 12-17: 오후, 18-23: 저녁)
func timeOfDayBucket(hour int) string {
	switch {
	case hour < 6:
		return "새벽 (0-5시)"
	case hour < 12:
		return "오전 (6-11시)"
	case hour < 18:
		return "오후 (12-17시)"
	default:
		return "저녁 (18-23시)"
	}
}

func addPerformance(stats map[string]TimePerformance, key string, t domain.CompletedTrade) {
	p := stats[key]
	p.TotalTrades++
	if t.PnL > 0 {
		p.WinningTrades++
	} else if t.PnL < 0 {
		p.LosingTrades++
	}
	p.CumulativeReturn += t.PnLPct

	// 승률 및 평균 수익률 계산
	p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades) * 100
	p.AverageReturn = p.CumulativeReturn / float64(p.TotalTrades)
	stats[key] = p
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
