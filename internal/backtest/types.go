package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/execution"
	"github.com/assist-by/phoenix-engine/internal/order"
)

// Config는 백테스트 실행 설정입니다
type Config struct {
	InitialCapital     float64          `json:"initialCapital"`
	Execution          execution.Config `json:"execution"`
	MaxOrdersPerSecond int              `json:"maxOrdersPerSecond"` // 캔들 시각 기준 초당 주문 한도
	HistoryLimit       int              `json:"historyLimit"`       // 전략 컨텍스트 심볼별 캔들 보관 수
}

// DefaultConfig는 기본 백테스트 설정을 반환합니다
func DefaultConfig() Config {
	return Config{
		InitialCapital:     10_000,
		Execution:          execution.DefaultConfig(),
		MaxOrdersPerSecond: 10,
	}
}

// Validate는 설정 값을 확인합니다
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: 초기 자본은 0보다 커야 합니다", domain.ErrInvalidConfig)
	}
	if c.MaxOrdersPerSecond < 1 {
		return fmt.Errorf("%w: 초당 주문 한도는 1 이상이어야 합니다", domain.ErrInvalidConfig)
	}
	return c.Execution.Validate()
}

// Ratio는 무한대가 나올 수 있는 지표 값입니다. JSON에서는 무한대를 문자열로 기록합니다.
type Ratio float64

// MarshalJSON은 유한 값은 숫자로, 무한대와 NaN은 문자열로 기록합니다
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// UnmarshalJSON은 MarshalJSON의 역변환입니다
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*r = Ratio(math.Inf(1))
		case "-Infinity":
			*r = Ratio(math.Inf(-1))
		case "NaN":
			*r = Ratio(math.NaN())
		default:
			return fmt.Errorf("알 수 없는 지표 값: %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Metrics는 백테스트 성과 지표입니다
type Metrics struct {
	// 수익
	TotalReturn      float64 `json:"totalReturn"`      // 초기 자본 대비 누적 손익 (%)
	AnnualizedReturn float64 `json:"annualizedReturn"` // 연율화 수익률 (%)
	TotalPnL         float64 `json:"totalPnl"`

	// 위험
	SharpeRatio         Ratio         `json:"sharpeRatio"`
	SortinoRatio        Ratio         `json:"sortinoRatio"`
	MaxDrawdown         float64       `json:"maxDrawdown"` // 최대 낙폭 (%, 양수)
	AvgDrawdown         float64       `json:"avgDrawdown"` // 낙폭 구간 평균 낙폭 (%)
	MaxDrawdownDuration time.Duration `json:"maxDrawdownDuration"`

	// 거래
	TotalTrades          int     `json:"totalTrades"`
	WinningTrades        int     `json:"winningTrades"`
	LosingTrades         int     `json:"losingTrades"`
	WinRate              float64 `json:"winRate"` // %
	AvgWin               float64 `json:"avgWin"`
	AvgLoss              float64 `json:"avgLoss"` // 음수
	ProfitFactor         Ratio   `json:"profitFactor"`
	LargestWin           float64 `json:"largestWin"`
	LargestLoss          float64 `json:"largestLoss"` // 음수
	MaxConsecutiveWins   int     `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses"`

	// 기간
	AvgHoldingHours float64 `json:"avgHoldingHours"`
	DurationDays    int     `json:"durationDays"`
}

// MarshalJSON은 낙폭 기간을 사람이 읽을 수 있는 문자열로 기록합니다
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	return json.Marshal(struct {
		plain
		MaxDrawdownDuration string `json:"maxDrawdownDuration"`
	}{plain(m), m.MaxDrawdownDuration.String()})
}

// UnmarshalJSON은 저장된 리포트를 다시 읽을 때 사용합니다
func (m *Metrics) UnmarshalJSON(data []byte) error {
	type plain Metrics
	var aux struct {
		plain
		MaxDrawdownDuration string `json:"maxDrawdownDuration"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metrics(aux.plain)
	if aux.MaxDrawdownDuration == "" {
		return nil
	}
	d, err := time.ParseDuration(aux.MaxDrawdownDuration)
	if err != nil {
		return fmt.Errorf("낙폭 기간 파싱 실패: %w", err)
	}
	m.MaxDrawdownDuration = d
	return nil
}

// TimePerformance는 구간(시간대, 요일)별 거래 성과입니다
type TimePerformance struct {
	TotalTrades      int     `json:"totalTrades"`
	WinningTrades    int     `json:"winningTrades"`
	LosingTrades     int     `json:"losingTrades"`
	WinRate          float64 `json:"winRate"`          // %
	CumulativeReturn float64 `json:"cumulativeReturn"` // 거래별 손익률 합 (%)
	AverageReturn    float64 `json:"averageReturn"`    // %
}

// Report는 백테스트 결과 전체입니다
type Report struct {
	RunID       string    `json:"runId"`
	Strategy    string    `json:"strategy"`
	Symbols     []string  `json:"symbols"`
	Config      Config    `json:"config"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Candles     int       `json:"candles"`
	Orders      int       `json:"orders"`
	Fills       int       `json:"fills"`
	FinalEquity float64   `json:"finalEquity"`
	Commission  float64   `json:"commission"`

	Metrics Metrics `json:"metrics"`

	TimeOfDay      map[string]TimePerformance `json:"timeOfDay,omitempty"`
	DayOfWeek      map[string]TimePerformance `json:"dayOfWeek,omitempty"`
	MonthlyReturns map[string]float64         `json:"monthlyReturns,omitempty"`

	OpenPositions []domain.Position       `json:"openPositions"`
	EquityCurve   []domain.EquitySnapshot `json:"equityCurve"`
	Trades        []domain.CompletedTrade `json:"trades"`
	AuditTrail    []order.AuditEvent      `json:"auditTrail,omitempty"`
}
