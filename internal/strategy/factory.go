package strategy

import "github.com/assist-by/phoenix-engine/internal/config"

// 등록된 전략 이름
const (
	SMACrossName  = "SMACross"
	RSIRevertName = "RSIRevert"
	MACDSARName   = "MACDSAR"
)

// ConfigFor는 전략 이름에 맞는 설정 맵을 만듭니다
func ConfigFor(name string, cfg *config.Config) map[string]interface{} {
	switch name {
	case SMACrossName:
		return map[string]interface{}{
			"fastPeriod": cfg.Strategy.SMAFast,
			"slowPeriod": cfg.Strategy.SMASlow,
			"allocation": cfg.Strategy.Allocation,
		}
	case RSIRevertName:
		return map[string]interface{}{
			"rsiPeriod":  cfg.Strategy.RSIPeriod,
			"oversold":   cfg.Strategy.RSIOversold,
			"overbought": cfg.Strategy.RSIOverbought,
			"allocation": cfg.Strategy.Allocation,
		}
	case MACDSARName:
		return map[string]interface{}{
			"emaLength":    cfg.Strategy.EMALength,
			"macdShort":    cfg.Strategy.MACDShort,
			"macdLong":     cfg.Strategy.MACDLong,
			"macdSignal":   cfg.Strategy.MACDSignal,
			"minHistogram": cfg.Strategy.MinHistogram,
			"allocation":   cfg.Strategy.Allocation,
		}
	default:
		return map[string]interface{}{}
	}
}

// CreateStrategyFromConfig는 설정에 따라 적절한 전략을 생성합니다
func CreateStrategyFromConfig(registry *Registry, cfg *config.Config) (Strategy, error) {
	name := cfg.Strategy.Name
	return registry.Create(name, ConfigFor(name, cfg))
}
