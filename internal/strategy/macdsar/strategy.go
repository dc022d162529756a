package macdsar

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

// exitLevels는 진입 시점에 정한 손절/익절 가격입니다
type exitLevels struct {
	stopLoss   float64
	takeProfit float64
}

// Strategy는 MACD + Parabolic SAR + EMA 추세 추종 전략을 구현합니다.
// 가격이 EMA 위이고 MACD가 상향 돌파하며 SAR이 캔들 아래일 때 롱 진입하고,
// SAR 기반 손절가와 1:1 익절가 또는 SAR 반전에서 청산합니다.
type Strategy struct {
	strategy.BaseStrategy

	ema  *indicator.EMA
	macd *indicator.MACD
	sar  *indicator.SAR

	minHistogram float64
	allocation   float64
	stepSize     float64

	logger *logrus.Entry

	mu         sync.Mutex
	levels     map[string]exitLevels
	lastSignal map[string]time.Time
}

// NewStrategy는 새로운 MACD+SAR+EMA 전략 인스턴스를 생성합니다
func NewStrategy(config map[string]interface{}) (strategy.Strategy, error) {
	emaLength := strategy.IntParam(config, "emaLength", 200)
	short := strategy.IntParam(config, "macdShort", 12)
	long := strategy.IntParam(config, "macdLong", 26)
	signal := strategy.IntParam(config, "macdSignal", 9)
	minHistogram := strategy.FloatParam(config, "minHistogram", 0.005)
	allocation := strategy.FloatParam(config, "allocation", 0.95)
	stepSize := strategy.FloatParam(config, "stepSize", strategy.DefaultStepSize)

	if emaLength < 1 {
		return nil, fmt.Errorf("%w: emaLength는 1 이상이어야 합니다 (%d)", domain.ErrInvalidConfig, emaLength)
	}
	if short < 1 || long <= short || signal < 1 {
		return nil, fmt.Errorf("%w: MACD 기간이 잘못되었습니다 (%d/%d/%d)", domain.ErrInvalidConfig, short, long, signal)
	}
	if minHistogram < 0 {
		return nil, fmt.Errorf("%w: minHistogram은 음수일 수 없습니다 (%.5f)", domain.ErrInvalidConfig, minHistogram)
	}
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("%w: allocation은 0 초과 1 이하여야 합니다 (%.4f)", domain.ErrInvalidConfig, allocation)
	}

	return &Strategy{
		BaseStrategy: strategy.BaseStrategy{
			Name:        strategy.MACDSARName,
			Description: "MACD, Parabolic SAR, EMA를 조합한 트렌드 팔로잉 전략",
			Config: map[string]interface{}{
				"emaLength":    emaLength,
				"macdShort":    short,
				"macdLong":     long,
				"macdSignal":   signal,
				"minHistogram": minHistogram,
				"allocation":   allocation,
				"stepSize":     stepSize,
			},
		},
		ema:          indicator.NewEMA(emaLength),
		macd:         indicator.NewMACD(short, long, signal),
		sar:          indicator.NewDefaultSAR(),
		minHistogram: minHistogram,
		allocation:   allocation,
		stepSize:     stepSize,
		logger:       logrus.NewEntry(logrus.StandardLogger()).WithField("strategy", strategy.MACDSARName),
		levels:       make(map[string]exitLevels),
		lastSignal:   make(map[string]time.Time),
	}, nil
}

// RegisterStrategy는 이 전략을 레지스트리에 등록합니다
func RegisterStrategy(registry *strategy.Registry) {
	registry.Register(strategy.MACDSARName, NewStrategy)
}

// Initialize는 전략을 초기화합니다
func (s *Strategy) Initialize(ctx context.Context, sc *strategy.Context) error {
	s.logger.WithFields(logrus.Fields{
		"ema":          s.ema.GetName(),
		"macd":         s.macd.GetName(),
		"minHistogram": s.minHistogram,
	}).Info("전략 초기화")
	s.Reset()
	return nil
}

// Reset은 심볼별 상태를 초기화합니다
func (s *Strategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = make(map[string]exitLevels)
	s.lastSignal = make(map[string]time.Time)
}

func (s *Strategy) lookback() int {
	need := s.ema.Lookback()
	if m := s.macd.Lookback() + 1; m > need {
		need = m
	}
	return need
}

// OnCandle은 보유 중이면 청산 조건을, 아니면 진입 조건을 확인합니다
func (s *Strategy) OnCandle(ctx context.Context, candle domain.Candle, sc *strategy.Context) (domain.Signal, error) {
	candles := sc.Candles(candle.Symbol)
	if len(candles) < s.lookback() {
		return domain.Hold(), nil
	}
	if s.alreadySignaled(candle) {
		return domain.Hold(), nil
	}

	prices := indicator.ConvertCandlesToPriceData(candles)
	emaResults, err := s.ema.Calculate(prices)
	if err != nil {
		return domain.Hold(), fmt.Errorf("EMA 계산 실패: %w", err)
	}
	lines, err := s.macd.Lines(prices)
	if err != nil {
		return domain.Hold(), fmt.Errorf("MACD 계산 실패: %w", err)
	}
	points, err := s.sar.Points(prices)
	if err != nil {
		return domain.Hold(), fmt.Errorf("SAR 계산 실패: %w", err)
	}

	currEMA, ok := indicator.Last(emaResults)
	if !ok {
		return domain.Hold(), nil
	}
	prev, curr := lines[len(lines)-2], lines[len(lines)-1]
	if !prev.Valid() || !curr.Valid() {
		return domain.Hold(), nil
	}
	currSAR := points[len(points)-1].SAR

	var signal domain.Signal
	if pos, held := sc.Position(candle.Symbol); held {
		if !pos.IsLong() {
			return domain.Hold(), nil
		}
		signal = s.checkExit(candle, currSAR)
	} else {
		signal, err = s.checkEntry(candle, sc, currEMA, prev, curr, currSAR)
		if err != nil {
			return domain.Hold(), err
		}
	}
	if !signal.IsActionable() {
		return domain.Hold(), nil
	}

	signal.SetCondition("ema", currEMA)
	signal.SetCondition("macd", curr.MACD)
	signal.SetCondition("macdSignal", curr.Signal)
	signal.SetCondition("histogram", curr.Histogram)
	signal.SetCondition("sar", currSAR)
	signal.SetCondition("price", candle.Close)
	s.markSignaled(candle)

	s.logger.WithFields(logrus.Fields{
		"symbol": candle.Symbol,
		"kind":   signal.Kind.String(),
		"time":   candle.OpenTime.Format(time.RFC3339),
	}).Info(signal.Reason)

	return signal, nil
}

func (s *Strategy) checkEntry(candle domain.Candle, sc *strategy.Context, ema float64, prev, curr indicator.MACDResult, sar float64) (domain.Signal, error) {
	crossUp := prev.MACD <= prev.Signal && curr.MACD > curr.Signal
	if candle.Close <= ema || !crossUp || curr.Histogram < s.minHistogram || sar >= candle.Low {
		return domain.Hold(), nil
	}

	qty, err := strategy.QuantityForAllocation(candle.Close, strategy.SizingConfig{
		Capital:    sc.AvailableCapital(),
		Allocation: s.allocation,
		StepSize:   s.stepSize,
	})
	if err != nil {
		return domain.Hold(), err
	}

	levels := exitLevels{stopLoss: sar, takeProfit: candle.Close + (candle.Close - sar)}
	s.mu.Lock()
	s.levels[candle.Symbol] = levels
	s.mu.Unlock()

	signal := domain.BuySignal(candle.Symbol, qty).
		WithReason("롱 진입: 가격 %.4f > EMA %.4f, MACD 상향 돌파, SAR %.4f 캔들 아래", candle.Close, ema, sar)
	signal.SetCondition("stopLoss", levels.stopLoss)
	signal.SetCondition("takeProfit", levels.takeProfit)
	return signal, nil
}

func (s *Strategy) checkExit(candle domain.Candle, sar float64) domain.Signal {
	s.mu.Lock()
	levels, tracked := s.levels[candle.Symbol]
	s.mu.Unlock()

	var signal domain.Signal
	switch {
	case tracked && candle.Low <= levels.stopLoss:
		signal = domain.CloseSignal(candle.Symbol).WithReason("손절: 저가 %.4f <= %.4f", candle.Low, levels.stopLoss)
	case tracked && candle.High >= levels.takeProfit:
		signal = domain.CloseSignal(candle.Symbol).WithReason("익절: 고가 %.4f >= %.4f", candle.High, levels.takeProfit)
	case sar > candle.High:
		signal = domain.CloseSignal(candle.Symbol).WithReason("SAR 반전: %.4f > 고가 %.4f", sar, candle.High)
	default:
		return domain.Hold()
	}

	s.mu.Lock()
	delete(s.levels, candle.Symbol)
	s.mu.Unlock()
	return signal
}

func (s *Strategy) alreadySignaled(candle domain.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSignal[candle.Symbol]
	return ok && last.Equal(candle.OpenTime)
}

func (s *Strategy) markSignaled(candle domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSignal[candle.Symbol] = candle.OpenTime
}
