package discord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/notification"
)

var _ notification.Notifier = (*Client)(nil)

// Client는 Discord 웹훅 클라이언트입니다. 비어 있는 웹훅 채널은 전송을 건너뜁니다.
type Client struct {
	tradeWebhook string
	errorWebhook string
	infoWebhook  string
	http         *resty.Client
	logger       *logrus.Entry
	now          func() time.Time
}

// ClientOption은 클라이언트 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// WithRetry는 429/5xx 응답의 재시도 횟수와 대기 시간을 설정합니다
func WithRetry(count int, wait time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(wait * 4)
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient는 새로운 Discord 클라이언트를 생성합니다
func NewClient(tradeWebhook, errorWebhook, infoWebhook string, opts ...ClientOption) *Client {
	c := &Client{
		tradeWebhook: tradeWebhook,
		errorWebhook: errorWebhook,
		infoWebhook:  infoWebhook,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(isRetryable),
		logger: logrus.NewEntry(logrus.StandardLogger()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "discord")
	return c
}

// Enabled는 웹훅이 하나라도 설정되어 있는지 확인합니다
func (c *Client) Enabled() bool {
	return c.tradeWebhook != "" || c.errorWebhook != "" || c.infoWebhook != ""
}

// SendTrade는 완료 거래 알림을 전송합니다
func (c *Client) SendTrade(ctx context.Context, t domain.CompletedTrade) error {
	embed := NewEmbed(fmt.Sprintf("거래 완료: %s %s", t.Symbol, t.Side), notification.ColorForPnL(t.PnL), t.ExitTime).
		SetDescription(fmt.Sprintf("**진입**: %s @ $%.2f\n**청산**: %s @ $%.2f",
			t.EntryTime.UTC().Format("2006-01-02 15:04"), t.EntryPrice,
			t.ExitTime.UTC().Format("2006-01-02 15:04"), t.ExitPrice)).
		AddFloat("수량", "%.8f", t.Quantity).
		AddFloat("손익", "$%.2f", t.PnL).
		AddFloat("수익률", "%.2f%%", t.PnLPct).
		AddFloat("수수료", "$%.4f", t.Commission).
		AddField("보유 기간", t.HoldingPeriod().String(), true)

	return c.sendToWebhook(ctx, c.tradeWebhook, embed.Message())
}

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(ctx context.Context, err error) error {
	embed := NewEmbed("에러 발생", notification.ColorError, c.now()).
		SetDescription(fmt.Sprintf("```%v```", err))

	return c.sendToWebhook(ctx, c.errorWebhook, embed.Message())
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(ctx context.Context, message string) error {
	embed := NewEmbed("", notification.ColorInfo, c.now()).
		SetDescription(message)

	return c.sendToWebhook(ctx, c.infoWebhook, embed.Message())
}

func (c *Client) sendToWebhook(ctx context.Context, webhook string, msg WebhookMessage) error {
	if webhook == "" {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(webhook)
	if err != nil {
		return fmt.Errorf("웹훅 전송 실패: %w", err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		c.logger.WithField("status", resp.StatusCode()).Warn("웹훅 응답 오류")
		return fmt.Errorf("웹훅 응답 오류 (HTTP %d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// isRetryable은 일시적인 실패(네트워크, 429, 5xx)만 재시도합니다
func isRetryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
