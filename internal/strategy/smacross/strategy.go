package smacross

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

// Strategy는 단기/장기 SMA 교차 전략을 구현합니다.
// 골든 크로스에서 롱 진입, 데드 크로스에서 청산합니다.
type Strategy struct {
	strategy.BaseStrategy

	fastPeriod int
	slowPeriod int
	allocation float64
	stepSize   float64

	logger *logrus.Entry

	mu         sync.Mutex
	lastSignal map[string]time.Time // 심볼별 마지막 시그널 캔들 시각
}

// NewStrategy는 새로운 SMA 교차 전략 인스턴스를 생성합니다
func NewStrategy(config map[string]interface{}) (strategy.Strategy, error) {
	fast := strategy.IntParam(config, "fastPeriod", 10)
	slow := strategy.IntParam(config, "slowPeriod", 30)
	allocation := strategy.FloatParam(config, "allocation", 0.95)
	stepSize := strategy.FloatParam(config, "stepSize", strategy.DefaultStepSize)

	if fast < 1 || fast >= slow {
		return nil, fmt.Errorf("%w: fastPeriod(%d)는 1 이상이고 slowPeriod(%d)보다 작아야 합니다",
			domain.ErrInvalidConfig, fast, slow)
	}
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("%w: allocation은 0 초과 1 이하여야 합니다 (%.4f)", domain.ErrInvalidConfig, allocation)
	}

	return &Strategy{
		BaseStrategy: strategy.BaseStrategy{
			Name:        strategy.SMACrossName,
			Description: "단기/장기 이동평균 골든 크로스 진입, 데드 크로스 청산 전략",
			Config: map[string]interface{}{
				"fastPeriod": fast,
				"slowPeriod": slow,
				"allocation": allocation,
				"stepSize":   stepSize,
			},
		},
		fastPeriod: fast,
		slowPeriod: slow,
		allocation: allocation,
		stepSize:   stepSize,
		logger:     logrus.NewEntry(logrus.StandardLogger()).WithField("strategy", strategy.SMACrossName),
		lastSignal: make(map[string]time.Time),
	}, nil
}

// RegisterStrategy는 이 전략을 레지스트리에 등록합니다
func RegisterStrategy(registry *strategy.Registry) {
	registry.Register(strategy.SMACrossName, NewStrategy)
}

// Initialize는 전략을 초기화합니다
func (s *Strategy) Initialize(ctx context.Context, sc *strategy.Context) error {
	s.logger.WithFields(logrus.Fields{
		"fast":       s.fastPeriod,
		"slow":       s.slowPeriod,
		"allocation": s.allocation,
	}).Info("전략 초기화")
	s.Reset()
	return nil
}

// Reset은 심볼별 상태를 초기화합니다
func (s *Strategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSignal = make(map[string]time.Time)
}

// OnCandle은 이동평균 교차를 확인해 시그널을 반환합니다
func (s *Strategy) OnCandle(ctx context.Context, candle domain.Candle, sc *strategy.Context) (domain.Signal, error) {
	candles := sc.Candles(candle.Symbol)
	if len(candles) < s.slowPeriod+1 {
		return domain.Hold(), nil
	}

	prices := indicator.ConvertCandlesToPriceData(candles)
	fastResults, err := indicator.NewSMA(s.fastPeriod).Calculate(prices)
	if err != nil {
		return domain.Hold(), fmt.Errorf("단기 SMA 계산 실패: %w", err)
	}
	slowResults, err := indicator.NewSMA(s.slowPeriod).Calculate(prices)
	if err != nil {
		return domain.Hold(), fmt.Errorf("장기 SMA 계산 실패: %w", err)
	}

	prevFast, currFast, ok := indicator.LastTwo(fastResults)
	if !ok {
		return domain.Hold(), nil
	}
	prevSlow, currSlow, ok := indicator.LastTwo(slowResults)
	if !ok {
		return domain.Hold(), nil
	}

	if s.alreadySignaled(candle) {
		return domain.Hold(), nil
	}

	goldenCross := prevFast <= prevSlow && currFast > currSlow
	deadCross := prevFast >= prevSlow && currFast < currSlow

	var signal domain.Signal
	switch {
	case goldenCross && !sc.HasPosition(candle.Symbol):
		qty, err := strategy.QuantityForAllocation(candle.Close, strategy.SizingConfig{
			Capital:    sc.AvailableCapital(),
			Allocation: s.allocation,
			StepSize:   s.stepSize,
		})
		if err != nil {
			return domain.Hold(), err
		}
		signal = domain.BuySignal(candle.Symbol, qty).
			WithReason("골든 크로스: SMA%d(%.4f) > SMA%d(%.4f)", s.fastPeriod, currFast, s.slowPeriod, currSlow)

	case deadCross && s.holdsLong(sc, candle.Symbol):
		signal = domain.CloseSignal(candle.Symbol).
			WithReason("데드 크로스: SMA%d(%.4f) < SMA%d(%.4f)", s.fastPeriod, currFast, s.slowPeriod, currSlow)

	default:
		return domain.Hold(), nil
	}

	signal.SetCondition("fastSMA", currFast)
	signal.SetCondition("slowSMA", currSlow)
	signal.SetCondition("price", candle.Close)
	s.markSignaled(candle)

	s.logger.WithFields(logrus.Fields{
		"symbol": candle.Symbol,
		"kind":   signal.Kind.String(),
		"time":   candle.OpenTime.Format(time.RFC3339),
	}).Info(signal.Reason)

	return signal, nil
}

func (s *Strategy) holdsLong(sc *strategy.Context, symbol string) bool {
	pos, ok := sc.Position(symbol)
	return ok && pos.IsLong()
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
