package backtest

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/execution"
	"github.com/assist-by/phoenix-engine/internal/ledger"
	"github.com/assist-by/phoenix-engine/internal/order"
	"github.com/assist-by/phoenix-engine/internal/ratelimit"
	"github.com/assist-by/phoenix-engine/internal/strategy"
	"github.com/assist-by/phoenix-engine/internal/trading"
)

// Driver는 과거 캔들을 시간 순서대로 재생하는 백테스트 실행기입니다.
// 실시간 엔진과 같은 세션(레지스트리, 원장, 전략 컨텍스트)을 쓰고 체결만 시뮬레이터가 담당합니다.
type Driver struct {
	cfg      Config
	strategy strategy.Strategy
	logger   *logrus.Entry
	hooks    []trading.Option
}

// NewDriver는 새로운 백테스트 실행기를 생성합니다
func NewDriver(cfg Config, strat strategy.Strategy, logger *logrus.Entry, opts ...trading.Option) *Driver {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{
		cfg:      cfg,
		strategy: strat,
		logger:   logger.WithField("component", "backtest"),
		hooks:    opts,
	}
}

// simVenue는 시뮬레이터를 세션의 주문 대상으로 연결합니다
type simVenue struct {
	sim *execution.Simulator
}

func (v simVenue) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	return v.sim.SubmitOrder(o)
}

func (v simVenue) CancelOrder(ctx context.Context, id string) error {
	return v.sim.Cancel(id)
}

// Run은 캔들을 재생하고 결과 보고서를 반환합니다. 처리 중 에러가 나면 즉시 중단합니다.
func (d *Driver) Run(ctx context.Context, candles []domain.Candle) (*Report, error) {
	if d.strategy == nil {
		return nil, fmt.Errorf("%w: 전략이 설정되지 않았습니다", domain.ErrInvalidConfig)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: 캔들 데이터가 없습니다", domain.ErrInvalidConfig)
	}
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Timestamp(), sorted[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	runID := uuid.NewString()
	logger := d.logger.WithFields(logrus.Fields{"run_id": runID[:8], "strategy": d.strategy.GetName()})

	sim := execution.NewSimulator(d.cfg.Execution)
	venue := simVenue{sim: sim}
	sc := strategy.NewContext(d.cfg.InitialCapital, d.cfg.HistoryLimit)
	session := trading.NewSession(
		order.NewRegistry(ratelimit.NewLimiter(d.cfg.MaxOrdersPerSecond), logger),
		ledger.NewLedger(d.cfg.InitialCapital, logger),
		sc,
		logger,
		d.hooks...,
	)

	d.strategy.Reset()
	if err := d.strategy.Initialize(ctx, sc); err != nil {
		return nil, domain.NewEngineError("", "strategy_init", err)
	}

	logger.WithFields(logrus.Fields{
		"candles":    len(sorted),
		"capital":    d.cfg.InitialCapital,
		"fill_model": d.cfg.Execution.FillModel.String(),
	}).Info("백테스트 시작")

	symbols := make(map[string]struct{})
	for i, c := range sorted {
		if err := ctx.Err(); err != nil {
			d.shutdown(sc, logger)
			return nil, err
		}
		symbols[c.Symbol] = struct{}{}
		if err := d.step(ctx, session, sim, venue, c); err != nil {
			d.shutdown(sc, logger)
			return nil, fmt.Errorf("캔들 %d (%s %s) 처리 실패: %w", i, c.Symbol, c.Timestamp().Format("2006-01-02 15:04"), err)
		}
	}

	// 끝까지 체결되지 않은 주문은 취소합니다
	end := sorted[len(sorted)-1].Timestamp()
	if err := session.CancelActive(ctx, venue, end); err != nil {
		logger.WithError(err).Warn("미체결 주문 취소 실패")
	}
	d.shutdown(sc, logger)

	report := d.buildReport(runID, session, sorted, symbols)
	logger.WithFields(logrus.Fields{
		"trades":       report.Metrics.TotalTrades,
		"total_return": report.Metrics.TotalReturn,
		"max_drawdown": report.Metrics.MaxDrawdown,
		"final_equity": report.FinalEquity,
	}).Info("백테스트 완료")
	return report, nil
}

// step은 캔들 하나를 처리합니다: 평가, 체결 반영, 전략 호출, 주문 실행, 스냅샷 순서입니다
func (d *Driver) step(ctx context.Context, session *trading.Session, sim *execution.Simulator, venue simVenue, c domain.Candle) error {
	if err := session.MarkToMarket(c); err != nil {
		return domain.NewEngineError(c.Symbol, "mark_to_market", err)
	}
	if _, err := session.ApplyFills(sim.OnMarketUpdate(c)); err != nil {
		return domain.NewEngineError(c.Symbol, "apply_fill", err)
	}

	sig, err := d.strategy.OnCandle(ctx, c, session.Context())
	if err != nil {
		return domain.NewEngineError(c.Symbol, "strategy", err)
	}
	if sig.IsActionable() {
		if _, err := session.Execute(ctx, sig, c, venue); err != nil {
			return domain.NewEngineError(c.Symbol, "execute", err)
		}
	}

	if _, err := session.Ledger().RecordSnapshot(c.Timestamp()); err != nil {
		return domain.NewEngineError(c.Symbol, "snapshot", err)
	}
	return nil
}

func (d *Driver) shutdown(sc *strategy.Context, logger *logrus.Entry) {
	if err := d.strategy.Shutdown(context.Background(), sc); err != nil {
		logger.WithError(err).Warn("전략 종료 실패")
	}
}

func (d *Driver) buildReport(runID string, session *trading.Session, candles []domain.Candle, symbols map[string]struct{}) *Report {
	l := session.Ledger()
	curve := l.EquityCurve()
	trades := l.Trades()

	names := make([]string, 0, len(symbols))
	for s := range symbols {
		names = append(names, s)
	}
	sort.Strings(names)

	timeOfDay, dayOfWeek, monthly := CalculatePeriodStats(trades)
	return &Report{
		RunID:          runID,
		Strategy:       d.strategy.GetName(),
		Symbols:        names,
		Config:         d.cfg,
		StartTime:      candles[0].Timestamp(),
		EndTime:        candles[len(candles)-1].Timestamp(),
		Candles:        len(candles),
		Orders:         session.Registry().TotalOrders(),
		Fills:          l.FillCount(),
		FinalEquity:    l.Equity(),
		Commission:     l.TotalCommission(),
		Metrics:        CalculateMetrics(curve, trades, l.InitialCapital()),
		TimeOfDay:      timeOfDay,
		DayOfWeek:      dayOfWeek,
		MonthlyReturns: monthly,
		OpenPositions:  l.Positions(),
		AuditTrail:     session.Registry().AuditTrail(),
		EquityCurve:    curve,
		Trades:         trades,
	}
}
