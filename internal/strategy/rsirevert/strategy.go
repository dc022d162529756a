package rsirevert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/indicator"
	"github.com/assist-by/phoenix-engine/internal/strategy"
)

// Strategy는 RSI 평균 회귀 전략을 구현합니다.
// RSI가 과매도 구간에 들어가면 롱 진입, 과매수 구간에 들어가면 청산합니다.
type Strategy struct {
	strategy.BaseStrategy

	period     int
	oversold   float64
	overbought float64
	allocation float64
	stepSize   float64

	logger *logrus.Entry

	mu      sync.Mutex
	prevRSI map[string]float64
}

// NewStrategy는 새로운 RSI 평균 회귀 전략 인스턴스를 생성합니다
func NewStrategy(config map[string]interface{}) (strategy.Strategy, error) {
	period := strategy.IntParam(config, "rsiPeriod", 14)
	oversold := strategy.FloatParam(config, "oversold", 30)
	overbought := strategy.FloatParam(config, "overbought", 70)
	allocation := strategy.FloatParam(config, "allocation", 0.95)
	stepSize := strategy.FloatParam(config, "stepSize", strategy.DefaultStepSize)

	if period < 2 {
		return nil, fmt.Errorf("%w: rsiPeriod는 2 이상이어야 합니다 (%d)", domain.ErrInvalidConfig, period)
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, fmt.Errorf("%w: RSI 밴드가 잘못되었습니다 (%.1f/%.1f)", domain.ErrInvalidConfig, oversold, overbought)
	}
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("%w: allocation은 0 초과 1 이하여야 합니다 (%.4f)", domain.ErrInvalidConfig, allocation)
	}

	return &Strategy{
		BaseStrategy: strategy.BaseStrategy{
			Name:        strategy.RSIRevertName,
			Description: "RSI 과매도 진입, 과매수 청산 평균 회귀 전략",
			Config: map[string]interface{}{
				"rsiPeriod":  period,
				"oversold":   oversold,
				"overbought": overbought,
				"allocation": allocation,
				"stepSize":   stepSize,
			},
		},
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		allocation: allocation,
		stepSize:   stepSize,
		logger:     logrus.NewEntry(logrus.StandardLogger()).WithField("strategy", strategy.RSIRevertName),
		prevRSI:    make(map[string]float64),
	}, nil
}

// RegisterStrategy는 이 전략을 레지스트리에 등록합니다
func RegisterStrategy(registry *strategy.Registry) {
	registry.Register(strategy.RSIRevertName, NewStrategy)
}

// Initialize는 전략을 초기화합니다
func (s *Strategy) Initialize(ctx context.Context, sc *strategy.Context) error {
	s.logger.WithFields(logrus.Fields{
		"period":     s.period,
		"oversold":   s.oversold,
		"overbought": s.overbought,
	}).Info("전략 초기화")
	s.Reset()
	return nil
}

// Reset은 심볼별 이전 RSI 값을 초기화합니다
func (s *Strategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevRSI = make(map[string]float64)
}

// OnCandle은 RSI 구간 진입 여부를 확인해 시그널을 반환합니다.
// 구간에 머무는 동안 반복 진입하지 않도록 경계를 넘는 캔들에서만 시그널을 냅니다.
func (s *Strategy) OnCandle(ctx context.Context, candle domain.Candle, sc *strategy.Context) (domain.Signal, error) {
	candles := sc.Candles(candle.Symbol)
	rsi := indicator.NewRSI(s.period)
	if len(candles) < rsi.Lookback() {
		return domain.Hold(), nil
	}

	results, err := rsi.Calculate(indicator.ConvertCandlesToPriceData(candles))
	if err != nil {
		return domain.Hold(), fmt.Errorf("RSI 계산 실패: %w", err)
	}
	curr, ok := indicator.Last(results)
	if !ok {
		return domain.Hold(), nil
	}

	s.mu.Lock()
	prev, seen := s.prevRSI[candle.Symbol]
	s.prevRSI[candle.Symbol] = curr
	s.mu.Unlock()
	if !seen {
		return domain.Hold(), nil
	}

	var signal domain.Signal
	switch {
	case prev >= s.oversold && curr < s.oversold && !sc.HasPosition(candle.Symbol):
		qty, err := strategy.QuantityForAllocation(candle.Close, strategy.SizingConfig{
			Capital:    sc.AvailableCapital(),
			Allocation: s.allocation,
			StepSize:   s.stepSize,
		})
		if err != nil {
			return domain.Hold(), err
		}
		signal = domain.BuySignal(candle.Symbol, qty).
			WithReason("RSI 과매도 진입: %.2f < %.1f", curr, s.oversold)

	case prev <= s.overbought && curr > s.overbought:
		pos, ok := sc.Position(candle.Symbol)
		if !ok || !pos.IsLong() {
			return domain.Hold(), nil
		}
		signal = domain.CloseSignal(candle.Symbol).
			WithReason("RSI 과매수 청산: %.2f > %.1f", curr, s.overbought)

	default:
		return domain.Hold(), nil
	}

	signal.SetCondition("rsi", curr)
	signal.SetCondition("prevRsi", prev)
	signal.SetCondition("price", candle.Close)

	s.logger.WithFields(logrus.Fields{
		"symbol": candle.Symbol,
		"kind":   signal.Kind.String(),
		"time":   candle.OpenTime.Format(time.RFC3339),
	}).Info(signal.Reason)

	return signal, nil
}
