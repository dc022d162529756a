package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/exchange"
	"github.com/assist-by/phoenix-engine/internal/execution"
	"github.com/assist-by/phoenix-engine/internal/ledger"
	"github.com/assist-by/phoenix-engine/internal/order"
	"github.com/assist-by/phoenix-engine/internal/ratelimit"
	"github.com/assist-by/phoenix-engine/internal/strategy"
	"github.com/assist-by/phoenix-engine/internal/trading"
)

// teardownTimeout은 종료 시 주문 취소와 전략 종료에 허용하는 시간입니다
const teardownTimeout = 10 * time.Second

// Engine은 실시간(모의/실거래) 이벤트 루프입니다.
// 레지스트리, 원장, 체결 핸들러는 루프 고루틴만 다루고,
// 외부에는 이벤트 처리 후 게시한 복사본만 노출합니다.
type Engine struct {
	id       string
	cfg      Config
	strategy strategy.Strategy
	backend  exchange.Backend
	logger   *logrus.Entry
	now      func() time.Time

	sessionOpts []trading.Option
	session     *trading.Session
	sc          *strategy.Context

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// 루프 전용 카운터
	events int64
	errs   int64

	mu           sync.RWMutex
	state        State
	startedAt    time.Time
	status       Status
	positions    []domain.Position
	activeOrders []domain.Order
	trades       []domain.CompletedTrade
	curve        []domain.EquitySnapshot
}

// New는 새로운 엔진을 생성합니다. 설정 검증은 Start에서 합니다.
func New(cfg Config, strat strategy.Strategy, opts ...Option) *Engine {
	e := &Engine{
		id:       uuid.NewString(),
		cfg:      cfg,
		strategy: strat,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithFields(logrus.Fields{"component": "engine", "engine_id": e.id[:8]})

	if e.backend == nil && cfg.Mode != ModeLive {
		e.backend = execution.NewHandler(cfg.CommissionRate, e.logger)
	}

	var limiter *ratelimit.Limiter
	if cfg.MaxOrdersPerSecond > 0 {
		limiter = ratelimit.NewLimiter(cfg.MaxOrdersPerSecond)
	}
	e.sc = strategy.NewContext(cfg.InitialCapital, cfg.HistoryLimit)
	e.session = trading.NewSession(
		order.NewRegistry(limiter, e.logger),
		ledger.NewLedger(cfg.InitialCapital, e.logger),
		e.sc,
		e.logger,
		e.sessionOpts...,
	)
	e.publish()
	return e
}

// ID는 엔진 실행 ID를 반환합니다
func (e *Engine) ID() string {
	return e.id
}

// Start는 전략을 초기화하고 이벤트 루프를 시작합니다
func (e *Engine) Start(ctx context.Context, events <-chan domain.MarketEvent) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	e.mu.Unlock()

	if e.strategy == nil {
		return fmt.Errorf("%w: 전략이 설정되지 않았습니다", domain.ErrInvalidConfig)
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if e.backend == nil {
		return fmt.Errorf("%w: %s 모드에는 거래소 백엔드가 필요합니다", domain.ErrInvalidConfig, e.cfg.Mode)
	}
	if events == nil {
		return fmt.Errorf("%w: 이벤트 채널이 없습니다", domain.ErrInvalidConfig)
	}

	if err := e.strategy.Initialize(ctx, e.sc); err != nil {
		return domain.NewEngineError("", "strategy_init", err)
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	e.state = StateRunning
	e.startedAt = e.now()
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"mode":     e.cfg.Mode,
		"strategy": e.strategy.GetName(),
		"symbols":  e.cfg.Symbols,
		"capital":  e.cfg.InitialCapital,
	}).Info("엔진 시작")

	go e.loop(ctx, events)
	return nil
}

// Stop은 루프에 종료를 요청하고 정리가 끝날 때까지 기다립니다
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateIdle:
		e.state = StateStopped
		e.mu.Unlock()
		e.shutdownOnce.Do(func() { close(e.shutdown) })
		close(e.done)
		return nil
	case StateRunning, StatePaused:
		e.state = StateShuttingDown
	}
	e.mu.Unlock()

	e.shutdownOnce.Do(func() { close(e.shutdown) })

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause는 전략 호출을 멈춥니다. 시세와 체결 반영은 계속됩니다.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return fmt.Errorf("%w (현재 상태: %s)", ErrNotRunning, e.state)
	}
	e.state = StatePaused
	e.logger.Info("엔진 일시정지")
	return nil
}

// Resume은 일시정지된 엔진을 재개합니다
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return fmt.Errorf("%w (현재 상태: %s)", ErrNotRunning, e.state)
	}
	e.state = StateRunning
	e.logger.Info("엔진 재개")
	return nil
}

// State는 현재 상태를 반환합니다
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Done은 루프 정리가 끝나면 닫히는 채널을 반환합니다
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) loop(ctx context.Context, events <-chan domain.MarketEvent) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer e.teardown()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("이벤트 스트림 종료")
				return
			}
			e.events++
			if err := e.handleEvent(ctx, ev); err != nil {
				e.errs++
				e.logger.WithError(err).WithField("event", ev.Kind.String()).Error("이벤트 처리 실패")
			}
			e.publish()

		case <-ticker.C:
			if err := e.heartbeat(ctx); err != nil {
				e.errs++
				e.logger.WithError(err).Warn("하트비트 처리 실패")
			}
			e.publish()

		case <-e.shutdown:
			e.logger.Info("종료 요청 수신")
			return

		case <-ctx.Done():
			e.logger.WithError(ctx.Err()).Info("컨텍스트 종료")
			return
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev domain.MarketEvent) error {
	switch ev.Kind {
	case domain.CandleEvent:
		return e.handleCandle(ctx, ev.Candle)

	case domain.OrderUpdateEvent:
		return e.session.Registry().ApplyUpdate(ev.Update)

	case domain.ErrorEvent:
		e.logger.WithError(ev.Err).Warn("시장 데이터 에러 수신")
		return nil

	case domain.DisconnectedEvent:
		e.logger.Warn("시장 데이터 연결 끊김")
		return nil

	case domain.ReconnectedEvent:
		e.logger.Info("시장 데이터 재연결")
		return nil

	default:
		return fmt.Errorf("%w: 알 수 없는 이벤트 %d", domain.ErrMarketData, ev.Kind)
	}
}

func (e *Engine) handleCandle(ctx context.Context, c domain.Candle) error {
	if err := e.session.MarkToMarket(c); err != nil {
		return domain.NewEngineError(c.Symbol, "mark_to_market", err)
	}
	if obs, ok := e.backend.(exchange.PriceObserver); ok {
		obs.OnPrice(c.Symbol, c.Close, c.Timestamp())
	}
	if err := e.drainFills(); err != nil {
		return domain.NewEngineError(c.Symbol, "apply_fill", err)
	}

	if e.State() == StatePaused {
		return nil
	}

	sig, err := e.strategy.OnCandle(ctx, c, e.sc)
	if err != nil {
		return domain.NewEngineError(c.Symbol, "strategy", err)
	}
	if !sig.IsActionable() {
		return nil
	}

	// 실거래에서 가격 미지정 주문은 봉 종가 지정가로 보냅니다
	if e.cfg.Mode == ModeLive && (sig.Kind == domain.SignalBuy || sig.Kind == domain.SignalSell) &&
		sig.LimitPrice == 0 && sig.StopPrice == 0 {
		sig = sig.WithLimit(c.Close)
	}

	if _, err := e.session.Execute(ctx, sig, c, e.backend); err != nil {
		return domain.NewEngineError(c.Symbol, "execute", err)
	}
	if err := e.drainFills(); err != nil {
		return domain.NewEngineError(c.Symbol, "apply_fill", err)
	}
	return nil
}

// drainFills는 백엔드에 쌓인 체결을 모두 반영합니다. 개별 실패는 모아서 반환합니다.
func (e *Engine) drainFills() error {
	source, ok := e.backend.(exchange.FillSource)
	if !ok {
		return nil
	}
	var errs []error
	for _, f := range source.DrainFills() {
		if _, err := e.session.ApplyFill(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) heartbeat(ctx context.Context) error {
	var errs []error

	if _, err := e.session.Ledger().RecordSnapshot(e.now()); err != nil {
		errs = append(errs, err)
	}

	updates, err := e.backend.SyncOrders(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("주문 동기화 실패: %w", err))
	}
	for _, u := range updates {
		if err := e.session.Registry().ApplyUpdate(u); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.drainFills(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	// 컨텍스트 취소나 데이터 소진으로 끝난 경우에도 정리 단계를 거친다
	e.mu.Lock()
	e.state = StateShuttingDown
	e.mu.Unlock()
	e.publish()

	if err := e.drainFills(); err != nil {
		e.logger.WithError(err).Warn("종료 중 체결 반영 실패")
	}

	var canceller trading.Canceller = e.backend
	if err := e.session.CancelActive(ctx, canceller, e.now()); err != nil {
		e.logger.WithError(err).Warn("활성 주문 취소 실패")
	}

	if err := e.strategy.Shutdown(ctx, e.sc); err != nil {
		e.logger.WithError(err).Warn("전략 종료 실패")
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.publish()

	status := e.Status()
	e.logger.WithFields(logrus.Fields{
		"events":    status.EventsProcessed,
		"errors":    status.Errors,
		"orders":    status.TotalOrders,
		"fills":     status.TotalFills,
		"equity":    status.Equity,
		"realized":  status.RealizedPnL,
		"positions": status.OpenPositions,
	}).Info("엔진 종료")

	close(e.done)
}
