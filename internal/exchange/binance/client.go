package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance_connector "github.com/binance/binance-connector-go"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/exchange"
)

// DefaultBaseURL은 바이낸스 현물 REST 엔드포인트입니다
const DefaultBaseURL = "https://api.binance.com"

// MaxKlinesLimit은 한 번의 요청으로 받을 수 있는 최대 캔들 수입니다
const MaxKlinesLimit = 1000

var _ exchange.KlineSource = (*Client)(nil)

// Client는 바이낸스 시장 데이터(캔들) 조회 클라이언트입니다.
// 주문 기능은 없으며 API 키는 선택 사항입니다.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	conn       *binance_connector.Client
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 클라이언트의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTestnet은 테스트넷 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *Client) {
		if useTestnet {
			c.baseURL = "https://testnet.binance.vision"
		} else {
			c.baseURL = DefaultBaseURL
		}
	}
}

// NewClient는 새로운 바이낸스 시장 데이터 클라이언트를 생성합니다
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.conn = binance_connector.NewClient(c.apiKey, c.secretKey, c.baseURL)
	c.conn.HTTPClient = c.httpClient

	return c
}

// GetKlines는 start 시각부터 최대 limit개의 캔들을 조회합니다. start가 0이면 최근 캔들을 조회합니다.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval domain.TimeInterval, start time.Time, limit int) (domain.CandleList, error) {
	if limit <= 0 || limit > MaxKlinesLimit {
		limit = MaxKlinesLimit
	}

	svc := c.conn.NewKlinesService().
		Symbol(symbol).
		Interval(string(interval)).
		Limit(limit)
	if !start.IsZero() {
		svc = svc.StartTime(uint64(start.UnixMilli()))
	}

	raw, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s 캔들 조회 실패: %v", domain.ErrMarketData, symbol, err)
	}

	candles := make(domain.CandleList, 0, len(raw))
	for _, k := range raw {
		candle, err := toCandle(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

func toCandle(symbol string, interval domain.TimeInterval, k *binance_connector.KlinesResponse) (domain.Candle, error) {
	var prices [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%w: 캔들 데이터 파싱 실패 (%q): %v", domain.ErrMarketData, s, err)
		}
		prices[i] = v
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(int64(k.OpenTime)).UTC(),
		CloseTime: time.UnixMilli(int64(k.CloseTime)).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Symbol:    symbol,
		Interval:  interval,
	}, nil
}
