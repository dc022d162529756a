package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/exchange"
	"github.com/assist-by/phoenix-engine/internal/trading"
)

// 실행 모드
const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

// Config는 엔진 실행 설정입니다
type Config struct {
	Mode               string
	Symbols            []string
	InitialCapital     float64
	MaxOrdersPerSecond int
	HeartbeatInterval  time.Duration
	CommissionRate     float64 // 모의 실행 체결 수수료율
	HistoryLimit       int     // 전략 컨텍스트 심볼별 캔들 보관 수
}

// Validate는 엔진 설정을 확인합니다
func (c Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("%w: 알 수 없는 실행 모드 %q", domain.ErrInvalidConfig, c.Mode)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: 초기 자본은 0보다 커야 합니다", domain.ErrInvalidConfig)
	}
	if c.MaxOrdersPerSecond < 1 {
		return fmt.Errorf("%w: 초당 주문 한도는 1 이상이어야 합니다", domain.ErrInvalidConfig)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: 하트비트 간격은 0보다 커야 합니다", domain.ErrInvalidConfig)
	}
	if c.CommissionRate < 0 {
		return fmt.Errorf("%w: 수수료율은 음수일 수 없습니다", domain.ErrInvalidConfig)
	}
	return nil
}

// Option은 Engine 설정 함수입니다
type Option func(*Engine)

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBackend는 주문을 보낼 백엔드를 설정합니다. 모의 실행에서 생략하면 즉시 체결 핸들러를 사용합니다.
func WithBackend(b exchange.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithTradeHook은 완료 거래 콜백을 추가합니다
func WithTradeHook(h trading.TradeHook) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, trading.WithTradeHook(h))
	}
}

// WithFillHook은 체결 콜백을 추가합니다
func WithFillHook(h trading.FillHook) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, trading.WithFillHook(h))
	}
}

// WithClock은 현재 시각 함수를 교체합니다 (테스트용)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
