package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func nullLogger() *logrus.Entry {
	logger, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func candleAt(symbol string, hour int, close float64) domain.Candle {
	open := baseTime.Add(time.Duration(hour) * time.Hour)
	return domain.Candle{
		OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
		Open: close, High: close, Low: close, Close: close, Volume: 1,
		Symbol: symbol, Interval: domain.Interval1h,
	}
}

func drain(t *testing.T, events <-chan domain.MarketEvent, timeout time.Duration) []domain.MarketEvent {
	t.Helper()
	var out []domain.MarketEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("이벤트 채널이 닫히지 않음")
		}
	}
}

func TestReplaySortsCandles(t *testing.T) {
	candles := []domain.Candle{
		candleAt("ETHUSDT", 1, 20),
		candleAt("BTCUSDT", 1, 11),
		candleAt("BTCUSDT", 0, 10),
	}
	events := drain(t, Replay(context.Background(), candles, 0), time.Second)
	require.Len(t, events, 3)

	var got []string
	for _, ev := range events {
		assert.Equal(t, domain.CandleEvent, ev.Kind)
		got = append(got, fmt.Sprintf("%s@%d", ev.Candle.Symbol, ev.Candle.OpenTime.Hour()))
	}
	assert.Equal(t, []string{"BTCUSDT@0", "BTCUSDT@1", "ETHUSDT@1"}, got)
	assert.Equal(t, "ETHUSDT", candles[0].Symbol, "입력 슬라이스는 변경하지 않음")
}

func TestReplayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := Replay(ctx, []domain.Candle{candleAt("BTCUSDT", 0, 10), candleAt("BTCUSDT", 1, 11)}, time.Hour)

	first := <-events
	assert.Equal(t, 10.0, first.Candle.Close)
	cancel()
	assert.Empty(t, drain(t, events, time.Second))
}

func klineJSON(symbol string, openMs int64, close string, closed bool) string {
	return fmt.Sprintf(`{"stream":"%s@kline_1m","data":{"e":"kline","E":%d,"s":"%s","k":{"t":%d,"T":%d,"s":"%s","i":"1m","o":"100","c":"%s","h":"110","l":"90","v":"5","x":%t}}}`,
		strings.ToLower(symbol), openMs+60_000, symbol, openMs, openMs+59_999, symbol, close, closed)
}

func TestParseKline(t *testing.T) {
	c, closed, err := parseKline([]byte(klineJSON("BTCUSDT", baseTime.UnixMilli(), "105.5", true)), domain.Interval1m)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, baseTime, c.OpenTime)
	assert.Equal(t, 105.5, c.Close)
	assert.Equal(t, 110.0, c.High)
	assert.Equal(t, domain.Interval1m, c.Interval)

	_, _, err = parseKline([]byte(`{"data":{"e":"trade"}}`), domain.Interval1m)
	assert.ErrorIs(t, err, domain.ErrMarketData)
	_, _, err = parseKline([]byte(`not json`), domain.Interval1m)
	assert.ErrorIs(t, err, domain.ErrMarketData)
	_, _, err = parseKline([]byte(klineJSON("BTCUSDT", 0, "abc", true)), domain.Interval1m)
	assert.ErrorIs(t, err, domain.ErrMarketData)
}

func TestStreamReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connections := 0
	var query string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		connections++
		n := connections
		query = r.URL.RawQuery
		mu.Unlock()

		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(klineJSON("BTCUSDT", baseTime.UnixMilli(), "101", false)))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(klineJSON("BTCUSDT", baseTime.UnixMilli(), "102", true)))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineJSON("BTCUSDT", baseTime.Add(time.Minute).UnixMilli(), "103", true)))
		// 클라이언트가 닫을 때까지 대기
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream := NewStream(url, []string{"BTCUSDT"}, domain.Interval1m,
		WithReconnectDelay(10*time.Millisecond), WithStreamLogger(nullLogger()))
	events := stream.Start(ctx)

	var got []domain.MarketEvent
	for len(got) < 5 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("이벤트 수신 시간 초과 (받은 이벤트 %d개)", len(got))
		}
	}

	kinds := make([]domain.MarketEventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []domain.MarketEventKind{
		domain.CandleEvent,
		domain.ErrorEvent,
		domain.DisconnectedEvent,
		domain.ReconnectedEvent,
		domain.CandleEvent,
	}, kinds)
	assert.Equal(t, 102.0, got[0].Candle.Close, "마감되지 않은 캔들은 건너뜀")
	assert.Equal(t, 103.0, got[4].Candle.Close)

	mu.Lock()
	assert.Equal(t, "streams=btcusdt@kline_1m", query)
	mu.Unlock()

	cancel()
	drain(t, events, 5*time.Second)
}

func TestStreamGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	stream := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT", "ETHUSDT"}, domain.Interval1m,
		WithReconnectDelay(time.Millisecond), WithMaxReconnectAttempts(2), WithStreamLogger(nullLogger()))
	assert.True(t, strings.HasSuffix(stream.URL(), "/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m"))

	out := make(chan domain.MarketEvent, 8)
	err := stream.Run(context.Background(), out)
	assert.ErrorIs(t, err, domain.ErrMarketData)

	require.Len(t, out, 1)
	ev := <-out
	assert.Equal(t, domain.ErrorEvent, ev.Kind)
	assert.ErrorIs(t, ev.Err, domain.ErrMarketData)
}

func TestStreamValidation(t *testing.T) {
	out := make(chan domain.MarketEvent, 1)
	err := NewStream("", nil, domain.Interval1m).Run(context.Background(), out)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	err = NewStream("", []string{"BTCUSDT"}, "7m").Run(context.Background(), out)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

// fakeSource는 미리 만든 캔들을 start 이후부터 limit개씩 돌려줍니다
type fakeSource struct {
	candles  domain.CandleList
	failures int
	failWith error
	calls    int
}

func (s *fakeSource) GetKlines(ctx context.Context, symbol string, interval domain.TimeInterval, start time.Time, limit int) (domain.CandleList, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.failWith
	}
	var page domain.CandleList
	for _, c := range s.candles {
		if !c.OpenTime.Before(start) && len(page) < limit {
			page = append(page, c)
		}
	}
	return page, nil
}

type memStore struct {
	saved []domain.Candle
}

func (m *memStore) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	m.saved = append(m.saved, candles...)
	return len(candles), nil
}

type recordingNotifier struct {
	errs []error
}

func (n *recordingNotifier) SendTrade(ctx context.Context, trade domain.CompletedTrade) error {
	return nil
}

func (n *recordingNotifier) SendError(ctx context.Context, err error) error {
	n.errs = append(n.errs, err)
	return nil
}

func (n *recordingNotifier) SendInfo(ctx context.Context, message string) error { return nil }

func hourlySeries(n int) domain.CandleList {
	list := make(domain.CandleList, n)
	for i := range list {
		list[i] = candleAt("BTCUSDT", i, float64(100+i))
	}
	return list
}

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Factor: 2}
}

func TestCollectorPages(t *testing.T) {
	source := &fakeSource{candles: hourlySeries(25)}
	store := &memStore{}
	c := NewCollector(source, store, WithPageLimit(10), WithCollectorLogger(nullLogger()))

	got, err := c.Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime.Add(20*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Len(t, store.saved, 20)
	assert.Equal(t, 2, source.calls)
	assert.Equal(t, baseTime.Add(19*time.Hour), got[19].OpenTime)

	// 끝 구간이 데이터보다 길면 짧은 페이지에서 멈춤
	source = &fakeSource{candles: hourlySeries(25)}
	got, err = NewCollector(source, nil, WithPageLimit(10), WithCollectorLogger(nullLogger())).
		Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime.Add(100*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 25)
	assert.Equal(t, 3, source.calls)
}

func TestCollectorRetries(t *testing.T) {
	transient := fmt.Errorf("%w: 일시적 오류", domain.ErrMarketData)

	t.Run("재시도 후 성공", func(t *testing.T) {
		source := &fakeSource{candles: hourlySeries(5), failures: 2, failWith: transient}
		notifier := &recordingNotifier{}
		c := NewCollector(source, nil, WithRetryConfig(fastRetry(3)), WithNotifier(notifier), WithCollectorLogger(nullLogger()))

		got, err := c.Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime.Add(5*time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 5)
		assert.Equal(t, 3, source.calls)
		assert.Empty(t, notifier.errs)
	})

	t.Run("최대 재시도 초과", func(t *testing.T) {
		source := &fakeSource{failures: 100, failWith: transient}
		notifier := &recordingNotifier{}
		c := NewCollector(source, nil, WithRetryConfig(fastRetry(1)), WithNotifier(notifier), WithCollectorLogger(nullLogger()))

		_, err := c.Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime.Add(5*time.Hour))
		assert.ErrorIs(t, err, domain.ErrMarketData)
		assert.Equal(t, 2, source.calls)
		assert.Len(t, notifier.errs, 1)
	})

	t.Run("재시도 불필요 오류", func(t *testing.T) {
		source := &fakeSource{failures: 100, failWith: errors.New("invalid symbol")}
		c := NewCollector(source, nil, WithRetryConfig(fastRetry(3)), WithCollectorLogger(nullLogger()))

		_, err := c.Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime.Add(5*time.Hour))
		assert.Error(t, err)
		assert.Equal(t, 1, source.calls)
	})
}

func TestCollectorValidation(t *testing.T) {
	c := NewCollector(&fakeSource{}, nil)
	_, err := c.Collect(context.Background(), "BTCUSDT", "7m", baseTime, baseTime.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = c.Collect(context.Background(), "BTCUSDT", domain.Interval1h, baseTime, baseTime)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(domain.ErrInvalidConfig))
	assert.True(t, IsRetryableError(fmt.Errorf("wrap: %w", domain.ErrMarketData)))
	assert.False(t, IsRetryableError(errors.New("other")))
}
