package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/execution"
)

// 엔진 실행 모드
const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

type Config struct {
	// 엔진 설정
	Engine struct {
		Mode                 string        `envconfig:"ENGINE_MODE" default:"DRY_RUN"`
		Symbols              []string      `envconfig:"ENGINE_SYMBOLS" default:"BTCUSDT"`
		Interval             string        `envconfig:"ENGINE_INTERVAL" default:"1m"`
		InitialCapital       float64       `envconfig:"INITIAL_CAPITAL" default:"10000"`
		MaxOrdersPerSecond   int           `envconfig:"MAX_ORDERS_PER_SECOND" default:"5"`
		HeartbeatInterval    time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"1s"`
		StatusInterval       time.Duration `envconfig:"STATUS_INTERVAL" default:"1m"`
		ReconnectDelay       time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
		MaxReconnectAttempts int           `envconfig:"MAX_RECONNECT_ATTEMPTS" default:"10"`
	}

	// 체결 시뮬레이션 설정 (프리셋 위에 개별 값 덮어쓰기)
	Execution struct {
		Preset         string               `envconfig:"EXECUTION_PRESET" default:"default"`
		CommissionRate *float64             `envconfig:"COMMISSION_RATE"`
		SlippageBps    *float64             `envconfig:"SLIPPAGE_BPS"`
		FillDelayMs    *int64               `envconfig:"FILL_DELAY_MS"`
		FillModel      *execution.FillModel `envconfig:"FILL_MODEL"`
	}

	// 전략 설정
	Strategy struct {
		Name          string  `envconfig:"STRATEGY_NAME" default:"SMACross"`
		SMAFast       int     `envconfig:"SMA_FAST" default:"10"`
		SMASlow       int     `envconfig:"SMA_SLOW" default:"30"`
		Allocation    float64 `envconfig:"ALLOCATION" default:"0.95"`
		RSIPeriod     int     `envconfig:"RSI_PERIOD" default:"14"`
		RSIOversold   float64 `envconfig:"RSI_OVERSOLD" default:"30"`
		RSIOverbought float64 `envconfig:"RSI_OVERBOUGHT" default:"70"`
		EMALength     int     `envconfig:"EMA_LENGTH" default:"200"`
		MACDShort     int     `envconfig:"MACD_SHORT" default:"12"`
		MACDLong      int     `envconfig:"MACD_LONG" default:"26"`
		MACDSignal    int     `envconfig:"MACD_SIGNAL" default:"9"`
		MinHistogram  float64 `envconfig:"MIN_HISTOGRAM" default:"0.005"`
	}

	// 백테스트 설정
	Backtest struct {
		Symbol     string `envconfig:"BACKTEST_SYMBOL" default:"BTCUSDT"`
		Interval   string `envconfig:"BACKTEST_INTERVAL" default:"1h"`
		Days       int    `envconfig:"BACKTEST_DAYS" default:"30"`
		Source     string `envconfig:"BACKTEST_SOURCE" default:"binance"`
		ReportPath string `envconfig:"BACKTEST_REPORT_PATH"`
	}

	// 바이낸스 시장 데이터 설정 (키는 선택 사항)
	Binance struct {
		BaseURL   string `envconfig:"BINANCE_BASE_URL" default:"https://api.binance.com"`
		StreamURL string `envconfig:"BINANCE_STREAM_URL" default:"wss://stream.binance.com:9443"`
		APIKey    string `envconfig:"BINANCE_API_KEY"`
		SecretKey string `envconfig:"BINANCE_SECRET_KEY"`
	}

	// 디스코드 웹훅 설정 (비어있으면 알림 비활성)
	Discord struct {
		TradeWebhook string `envconfig:"DISCORD_TRADE_WEBHOOK"`
		ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook  string `envconfig:"DISCORD_INFO_WEBHOOK"`
	}

	// 저장소 설정
	Storage struct {
		Driver string `envconfig:"DB_DRIVER" default:"sqlite"`
		DSN    string `envconfig:"DB_DSN" default:"phoenix.db"`
	}

	// 상태 서버 설정
	Server struct {
		Addr    string `envconfig:"STATUS_ADDR" default:":8080"`
		Enabled bool   `envconfig:"STATUS_ENABLED" default:"true"`
	}

	// 로그 설정
	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}
}

// ExecutionConfig는 프리셋에 개별 설정을 덮어쓴 체결 설정을 반환합니다
func (c *Config) ExecutionConfig() (execution.Config, error) {
	exec, err := execution.PresetConfig(c.Execution.Preset)
	if err != nil {
		return execution.Config{}, err
	}
	if c.Execution.CommissionRate != nil {
		exec.CommissionRate = *c.Execution.CommissionRate
	}
	if c.Execution.SlippageBps != nil {
		exec.SlippageBps = *c.Execution.SlippageBps
	}
	if c.Execution.FillDelayMs != nil {
		exec.FillDelayMs = *c.Execution.FillDelayMs
	}
	if c.Execution.FillModel != nil {
		exec.FillModel = *c.Execution.FillModel
	}
	return exec, exec.Validate()
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	mode := strings.ToUpper(cfg.Engine.Mode)
	if mode != ModeDryRun && mode != ModeLive {
		return fmt.Errorf("%w: ENGINE_MODE는 DRY_RUN 또는 LIVE여야 합니다 (%s)", domain.ErrInvalidConfig, cfg.Engine.Mode)
	}
	cfg.Engine.Mode = mode

	if len(cfg.Engine.Symbols) == 0 {
		return fmt.Errorf("%w: ENGINE_SYMBOLS가 비어있습니다", domain.ErrInvalidConfig)
	}
	if _, err := domain.ParseTimeInterval(cfg.Engine.Interval); err != nil {
		return fmt.Errorf("%w: ENGINE_INTERVAL: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.Engine.InitialCapital <= 0 {
		return fmt.Errorf("%w: INITIAL_CAPITAL은 0보다 커야 합니다", domain.ErrInvalidConfig)
	}
	if cfg.Engine.MaxOrdersPerSecond < 1 {
		return fmt.Errorf("%w: MAX_ORDERS_PER_SECOND는 1 이상이어야 합니다", domain.ErrInvalidConfig)
	}
	if cfg.Engine.HeartbeatInterval < 100*time.Millisecond {
		return fmt.Errorf("%w: HEARTBEAT_INTERVAL은 100ms 이상이어야 합니다", domain.ErrInvalidConfig)
	}

	if _, err := cfg.ExecutionConfig(); err != nil {
		return err
	}

	if cfg.Strategy.Allocation <= 0 || cfg.Strategy.Allocation > 1 {
		return fmt.Errorf("%w: ALLOCATION은 0 초과 1 이하여야 합니다", domain.ErrInvalidConfig)
	}
	if cfg.Strategy.SMAFast < 1 || cfg.Strategy.SMAFast >= cfg.Strategy.SMASlow {
		return fmt.Errorf("%w: SMA_FAST(%d)는 1 이상이고 SMA_SLOW(%d)보다 작아야 합니다",
			domain.ErrInvalidConfig, cfg.Strategy.SMAFast, cfg.Strategy.SMASlow)
	}
	if cfg.Strategy.RSIOversold >= cfg.Strategy.RSIOverbought {
		return fmt.Errorf("%w: RSI_OVERSOLD는 RSI_OVERBOUGHT보다 작아야 합니다", domain.ErrInvalidConfig)
	}
	if cfg.Strategy.MACDShort < 1 || cfg.Strategy.MACDLong <= cfg.Strategy.MACDShort || cfg.Strategy.MACDSignal < 1 {
		return fmt.Errorf("%w: MACD 기간이 잘못되었습니다 (%d/%d/%d)",
			domain.ErrInvalidConfig, cfg.Strategy.MACDShort, cfg.Strategy.MACDLong, cfg.Strategy.MACDSignal)
	}

	if _, err := domain.ParseTimeInterval(cfg.Backtest.Interval); err != nil {
		return fmt.Errorf("%w: BACKTEST_INTERVAL: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.Backtest.Days < 1 {
		return fmt.Errorf("%w: BACKTEST_DAYS는 1 이상이어야 합니다", domain.ErrInvalidConfig)
	}
	switch cfg.Backtest.Source {
	case "binance", "db":
	default:
		return fmt.Errorf("%w: BACKTEST_SOURCE는 binance 또는 db여야 합니다 (%s)", domain.ErrInvalidConfig, cfg.Backtest.Source)
	}

	switch cfg.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("%w: DB_DRIVER는 sqlite, postgres, mysql 중 하나여야 합니다 (%s)", domain.ErrInvalidConfig, cfg.Storage.Driver)
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다. .env 파일이 없으면 환경변수만 사용합니다.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}
