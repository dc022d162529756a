package execution

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

func TestCommissionIsExact(t *testing.T) {
	cfg := Config{CommissionRate: 0.001}
	assert.Equal(t, 50.0, cfg.Commission(1.0, 50_000))
	assert.Equal(t, 4.9, cfg.Commission(0.1, 49_000))
	assert.Equal(t, 0.0, OptimisticConfig().Commission(3, 100))
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name string
		want Config
	}{
		{"default", Config{CommissionRate: 0.001, SlippageBps: 5, FillDelayMs: 0, FillModel: FillMarket}},
		{"realistic", Config{CommissionRate: 0.001, SlippageBps: 5, FillDelayMs: 100, FillModel: FillRealistic}},
		{"Pessimistic", Config{CommissionRate: 0.002, SlippageBps: 10, FillDelayMs: 500, FillModel: FillPessimistic}},
		{"optimistic", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PresetConfig(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}

	_, err := PresetConfig("reckless")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"수수료율 음수", Config{CommissionRate: -0.1}},
		{"수수료율 1 초과", Config{CommissionRate: 1.5}},
		{"슬리피지 음수", Config{SlippageBps: -1}},
		{"지연 음수", Config{FillDelayMs: -10}},
		{"알 수 없는 모델", Config{FillModel: FillModel(7)}},
		{"NaN 수수료율", Config{CommissionRate: math.NaN()}},
		{"NaN 슬리피지", Config{SlippageBps: math.NaN()}},
		{"무한대 슬리피지", Config{SlippageBps: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.config.Validate(), domain.ErrInvalidConfig)
		})
	}
}

func TestFillModelDecode(t *testing.T) {
	var m FillModel
	require.NoError(t, m.Decode("realistic"))
	assert.Equal(t, FillRealistic, m)
	require.NoError(t, m.Decode("PESSIMISTIC"))
	assert.Equal(t, FillPessimistic, m)
	assert.ErrorIs(t, m.Decode("vwap"), domain.ErrInvalidConfig)

	data, err := json.Marshal(RealisticConfig())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fillModel":"REALISTIC"`)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, RealisticConfig(), decoded)
}
