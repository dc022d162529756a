package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/exchange"
	"github.com/assist-by/phoenix-engine/internal/notification"
)

// CandleStore는 수집한 캔들을 저장하는 저장소입니다
type CandleStore interface {
	SaveCandles(ctx context.Context, candles []domain.Candle) (int, error)
}

// RetryConfig는 재시도 설정을 정의합니다
type RetryConfig struct {
	MaxRetries int           // 최대 재시도 횟수
	BaseDelay  time.Duration // 기본 대기 시간
	MaxDelay   time.Duration // 최대 대기 시간
	Factor     float64       // 대기 시간 증가 계수
}

// DefaultRetryConfig는 기본 재시도 설정을 반환합니다
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Factor:     2,
	}
}

// Collector는 거래소에서 과거 캔들을 페이지 단위로 받아 저장합니다
type Collector struct {
	source    exchange.KlineSource
	store     CandleStore
	notifier  notification.Notifier
	logger    *logrus.Entry
	retry     RetryConfig
	pageLimit int
}

// CollectorOption은 수집기의 옵션을 정의합니다
type CollectorOption func(*Collector)

// WithPageLimit은 한 번에 조회할 캔들 개수를 설정합니다
func WithPageLimit(limit int) CollectorOption {
	return func(c *Collector) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// WithRetryConfig는 재시도 설정을 지정합니다
func WithRetryConfig(config RetryConfig) CollectorOption {
	return func(c *Collector) {
		c.retry = config
	}
}

// WithNotifier는 최종 실패를 알릴 Notifier를 설정합니다
func WithNotifier(n notification.Notifier) CollectorOption {
	return func(c *Collector) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithCollectorLogger는 로거를 설정합니다
func WithCollectorLogger(logger *logrus.Entry) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollector는 새로운 데이터 수집기를 생성합니다. store가 nil이면 저장 없이 캔들만 반환합니다.
func NewCollector(source exchange.KlineSource, store CandleStore, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:    source,
		store:     store,
		notifier:  notification.Nop{},
		logger:    logrus.NewEntry(logrus.StandardLogger()),
		retry:     DefaultRetryConfig(),
		pageLimit: 1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "collector")
	return c
}

// Collect는 [start, end) 구간의 캔들을 모두 받아 저장하고 반환합니다
func (c *Collector) Collect(ctx context.Context, symbol string, interval domain.TimeInterval, start, end time.Time) (domain.CandleList, error) {
	step := interval.Duration()
	if step == 0 {
		return nil, fmt.Errorf("%w: 지원하지 않는 캔들 간격 %q", domain.ErrInvalidConfig, interval)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: 수집 구간이 비어있습니다 (%s ~ %s)", domain.ErrInvalidConfig,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	logger := c.logger.WithFields(logrus.Fields{"symbol": symbol, "interval": string(interval)})
	var all domain.CandleList
	cursor := start

	for cursor.Before(end) {
		var page domain.CandleList
		err := c.withRetry(ctx, fmt.Sprintf("%s 캔들 데이터 조회", symbol), func() error {
			var err error
			page, err = c.source.GetKlines(ctx, symbol, interval, cursor, c.pageLimit)
			return err
		})
		if err != nil {
			return all, err
		}

		// 구간 밖 캔들은 버립니다
		kept := make(domain.CandleList, 0, len(page))
		for _, candle := range page {
			if candle.OpenTime.Before(cursor) || !candle.OpenTime.Before(end) {
				continue
			}
			kept = append(kept, candle)
		}

		if len(kept) > 0 && c.store != nil {
			saved, err := c.store.SaveCandles(ctx, kept)
			if err != nil {
				return all, fmt.Errorf("%s 캔들 저장 실패: %w", symbol, err)
			}
			logger.WithFields(logrus.Fields{
				"from":  kept[0].OpenTime.Format(time.RFC3339),
				"count": len(kept),
				"saved": saved,
			}).Debug("캔들 페이지 저장")
		}
		all = append(all, kept...)

		if len(page) < c.pageLimit || len(page) == 0 {
			break
		}
		next := page[len(page)-1].OpenTime.Add(step)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}

	logger.WithField("count", len(all)).Info("캔들 데이터 수집 완료")
	return all, nil
}

// withRetry는 재시도 가능한 오류에 대해 지수 백오프로 fn을 다시 실행합니다
func (c *Collector) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// 재시도가 필요 없는 오류는 바로 반환
		if !IsRetryableError(err) {
			c.logger.WithError(err).Warnf("%s 실패 (재시도 불필요)", operation)
			return err
		}

		if attempt == c.retry.MaxRetries {
			// 마지막 시도에서 실패하면 에러 알림 전송
			final := fmt.Errorf("%s 실패 (최대 재시도 횟수 초과): %w", operation, lastErr)
			if notifyErr := c.notifier.SendError(ctx, final); notifyErr != nil {
				c.logger.WithError(notifyErr).Warn("에러 알림 전송 실패")
			}
			return final
		}

		c.logger.WithError(err).Warnf("%s 실패 (attempt %d/%d)", operation, attempt+1, c.retry.MaxRetries)

		// 다음 재시도 전 대기
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// 대기 시간을 증가시키되, 최대 대기 시간을 넘지 않도록 함
			delay = time.Duration(float64(delay) * c.retry.Factor)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}
	}
	return lastErr
}

// IsRetryableError는 일시적인 오류인지 판단합니다. 설정 오류와 컨텍스트 종료는 재시도하지 않습니다.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidConfig) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, domain.ErrMarketData)
}
