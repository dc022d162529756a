package execution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// FillModel은 시뮬레이션 체결 가격 결정 방식입니다
type FillModel int

const (
	// FillMarket은 기준가(종가 또는 지정가) 그대로 체결합니다
	FillMarket FillModel = iota
	// FillRealistic은 기준가에 슬리피지를 적용합니다
	FillRealistic
	// FillPessimistic은 캔들 내 가장 불리한 가격으로 체결합니다
	FillPessimistic
)

// String은 FillModel의 문자열 표현을 반환합니다
func (m FillModel) String() string {
	switch m {
	case FillMarket:
		return "MARKET"
	case FillRealistic:
		return "REALISTIC"
	case FillPessimistic:
		return "PESSIMISTIC"
	default:
		return "UNKNOWN"
	}
}

// ParseFillModel은 문자열을 FillModel로 변환합니다 (대소문자 무시)
func ParseFillModel(s string) (FillModel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET", "":
		return FillMarket, nil
	case "REALISTIC":
		return FillRealistic, nil
	case "PESSIMISTIC":
		return FillPessimistic, nil
	default:
		return FillMarket, fmt.Errorf("%w: 알 수 없는 체결 모델 %q", domain.ErrInvalidConfig, s)
	}
}

// Decode는 envconfig.Decoder를 구현합니다
func (m *FillModel) Decode(value string) error {
	parsed, err := ParseFillModel(value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText는 리포트 JSON에 문자열로 기록하기 위해 사용됩니다
func (m FillModel) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText는 MarshalText의 역변환입니다
func (m *FillModel) UnmarshalText(text []byte) error {
	return m.Decode(string(text))
}

// Config는 체결 시뮬레이션 설정입니다
type Config struct {
	CommissionRate float64   `json:"commissionRate"` // 수수료율 (0.001 = 0.1%)
	SlippageBps    float64   `json:"slippageBps"`    // 슬리피지 (bp)
	FillDelayMs    int64     `json:"fillDelayMs"`    // 체결 지연 (참고용)
	FillModel      FillModel `json:"fillModel"`
}

// DefaultConfig는 기본 체결 설정을 반환합니다
func DefaultConfig() Config {
	return Config{
		CommissionRate: 0.001,
		SlippageBps:    5,
		FillDelayMs:    0,
		FillModel:      FillMarket,
	}
}

// RealisticConfig는 보통 수준의 수수료와 슬리피지 설정을 반환합니다
func RealisticConfig() Config {
	return Config{
		CommissionRate: 0.001,
		SlippageBps:    5,
		FillDelayMs:    100,
		FillModel:      FillRealistic,
	}
}

// PessimisticConfig는 높은 수수료와 최악가 체결 설정을 반환합니다
func PessimisticConfig() Config {
	return Config{
		CommissionRate: 0.002,
		SlippageBps:    10,
		FillDelayMs:    500,
		FillModel:      FillPessimistic,
	}
}

// OptimisticConfig는 수수료와 슬리피지가 없는 설정을 반환합니다
func OptimisticConfig() Config {
	return Config{
		CommissionRate: 0,
		SlippageBps:    0,
		FillDelayMs:    0,
		FillModel:      FillMarket,
	}
}

// PresetConfig는 이름으로 프리셋 설정을 찾습니다
func PresetConfig(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "default", "":
		return DefaultConfig(), nil
	case "realistic":
		return RealisticConfig(), nil
	case "pessimistic":
		return PessimisticConfig(), nil
	case "optimistic":
		return OptimisticConfig(), nil
	default:
		return Config{}, fmt.Errorf("%w: 알 수 없는 체결 프리셋 %q", domain.ErrInvalidConfig, name)
	}
}

// Validate는 설정 값의 범위를 확인합니다
func (c Config) Validate() error {
	if !(c.CommissionRate >= 0 && c.CommissionRate <= 1) {
		return fmt.Errorf("%w: 수수료율은 0~1 사이여야 합니다 (%.6f)", domain.ErrInvalidConfig, c.CommissionRate)
	}
	if !domain.IsNonNegativeFinite(c.SlippageBps) {
		return fmt.Errorf("%w: 슬리피지는 0 이상의 유한값이어야 합니다 (%.2f)", domain.ErrInvalidConfig, c.SlippageBps)
	}
	if c.FillDelayMs < 0 {
		return fmt.Errorf("%w: 체결 지연은 음수일 수 없습니다 (%d)", domain.ErrInvalidConfig, c.FillDelayMs)
	}
	if c.FillModel < FillMarket || c.FillModel > FillPessimistic {
		return fmt.Errorf("%w: 알 수 없는 체결 모델 %d", domain.ErrInvalidConfig, c.FillModel)
	}
	return nil
}

// Commission은 수량 x 가격 x 수수료율을 계산합니다
func (c Config) Commission(quantity, price float64) float64 {
	return decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(c.CommissionRate)).
		InexactFloat64()
}

// Slipped는 기준가에 슬리피지를 적용합니다. 매수는 가산, 매도는 차감합니다.
func (c Config) Slipped(side domain.OrderSide, base float64) float64 {
	b := decimal.NewFromFloat(base)
	slippage := b.Mul(decimal.NewFromFloat(c.SlippageBps)).Div(decimal.NewFromInt(10_000))
	if side == domain.Buy {
		return b.Add(slippage).InexactFloat64()
	}
	return b.Sub(slippage).InexactFloat64()
}
