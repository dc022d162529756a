package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// DefaultStreamURL은 바이낸스 현물 웹소켓 엔드포인트입니다
const DefaultStreamURL = "wss://stream.binance.com:9443"

// klineMessage는 결합 스트림(/stream?streams=...)의 캔들 메시지입니다
type klineMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			OpenTime  int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// Stream은 바이낸스 캔들 웹소켓을 구독해 마감된 캔들을 이벤트로 내보냅니다.
// 연결이 끊기면 일정 간격으로 재연결하며 연결 상태 변화도 이벤트로 알립니다.
type Stream struct {
	baseURL        string
	symbols        []string
	interval       domain.TimeInterval
	reconnectDelay time.Duration
	maxAttempts    int
	dialer         *websocket.Dialer
	logger         *logrus.Entry
}

// StreamOption은 스트림 생성 옵션을 정의합니다
type StreamOption func(*Stream)

// WithReconnectDelay는 재연결 대기 시간을 설정합니다
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithMaxReconnectAttempts는 연속 재연결 시도 한도를 설정합니다
func WithMaxReconnectAttempts(n int) StreamOption {
	return func(s *Stream) {
		s.maxAttempts = n
	}
}

// WithStreamLogger는 로거를 설정합니다
func WithStreamLogger(logger *logrus.Entry) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStream은 새로운 캔들 스트림을 생성합니다
func NewStream(baseURL string, symbols []string, interval domain.TimeInterval, opts ...StreamOption) *Stream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	s := &Stream{
		baseURL:        strings.TrimRight(baseURL, "/"),
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: 5 * time.Second,
		maxAttempts:    10,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "market_stream")
	return s
}

// URL은 구독할 결합 스트림 주소를 반환합니다
func (s *Stream) URL() string {
	names := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		names[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), s.interval)
	}
	return s.baseURL + "/stream?streams=" + strings.Join(names, "/")
}

// Start는 스트림을 백그라운드에서 실행하고 이벤트 채널을 반환합니다.
// 컨텍스트가 끝나거나 재연결 한도를 넘으면 채널이 닫힙니다.
func (s *Stream) Start(ctx context.Context) <-chan domain.MarketEvent {
	out := make(chan domain.MarketEvent, 64)
	go func() {
		defer close(out)
		if err := s.Run(ctx, out); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("캔들 스트림 종료")
		}
	}()
	return out
}

// Run은 컨텍스트가 끝날 때까지 스트림을 읽어 out으로 보냅니다
func (s *Stream) Run(ctx context.Context, out chan<- domain.MarketEvent) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("%w: 구독할 심볼이 없습니다", domain.ErrInvalidConfig)
	}
	if s.interval.Duration() == 0 {
		return fmt.Errorf("%w: 지원하지 않는 캔들 간격 %q", domain.ErrInvalidConfig, s.interval)
	}

	attempts := 0
	connectedOnce := false
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.URL(), nil)
		if err == nil {
			attempts = 0
			if connectedOnce {
				s.logger.Info("캔들 스트림 재연결")
				if !send(ctx, out, domain.MarketEvent{Kind: domain.ReconnectedEvent}) {
					conn.Close()
					return ctx.Err()
				}
			} else {
				s.logger.WithField("url", s.URL()).Info("캔들 스트림 연결")
			}
			connectedOnce = true

			err = s.readLoop(ctx, conn, out)
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Warn("캔들 스트림 연결 끊김")
			if !send(ctx, out, domain.MarketEvent{Kind: domain.DisconnectedEvent, Err: err}) {
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		if attempts > s.maxAttempts {
			final := fmt.Errorf("%w: 재연결 %d회 실패: %v", domain.ErrMarketData, s.maxAttempts, err)
			send(ctx, out, domain.NewErrorEvent(final))
			return final
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"max":     s.maxAttempts,
			"delay":   s.reconnectDelay.String(),
		}).Warn("캔들 스트림 재연결 대기")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.MarketEvent) error {
	// 컨텍스트 종료 시 블록된 ReadMessage를 깨웁니다
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		candle, closed, err := parseKline(msg, s.interval)
		if err != nil {
			s.logger.WithError(err).Debug("캔들 메시지 파싱 실패")
			if !send(ctx, out, domain.NewErrorEvent(err)) {
				return ctx.Err()
			}
			continue
		}
		if !closed {
			continue
		}
		if !send(ctx, out, domain.NewCandleEvent(candle)) {
			return ctx.Err()
		}
	}
}

// parseKline은 결합 스트림 메시지를 캔들로 변환합니다. 두 번째 값은 캔들 마감 여부입니다.
func parseKline(msg []byte, interval domain.TimeInterval) (domain.Candle, bool, error) {
	var m klineMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return domain.Candle{}, false, fmt.Errorf("%w: 캔들 메시지 디코딩 실패: %v", domain.ErrMarketData, err)
	}
	if m.Data.EventType != "kline" {
		return domain.Candle{}, false, fmt.Errorf("%w: 알 수 없는 이벤트 %q", domain.ErrMarketData, m.Data.EventType)
	}

	k := m.Data.Kline
	var prices [5]float64
	for i, v := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Candle{}, false, fmt.Errorf("%w: 캔들 가격 파싱 실패 (%q): %v", domain.ErrMarketData, v, err)
		}
		prices[i] = f
	}

	if k.Interval != "" {
		interval = domain.TimeInterval(k.Interval)
	}
	candle := domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Symbol:    m.Data.Symbol,
		Interval:  interval,
	}
	return candle, k.Closed, nil
}

func send(ctx context.Context, out chan<- domain.MarketEvent, ev domain.MarketEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
