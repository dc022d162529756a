package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Strategy는 트레이딩 전략의 인터페이스를 정의합니다
type Strategy interface {
	// Initialize는 실행 시작 시 한 번 호출됩니다
	Initialize(ctx context.Context, sc *Context) error

	// OnCandle은 새 캔들마다 호출되어 매매 시그널을 반환합니다
	OnCandle(ctx context.Context, candle domain.Candle, sc *Context) (domain.Signal, error)

	// Shutdown은 실행 종료 시 호출됩니다
	Shutdown(ctx context.Context, sc *Context) error

	// Reset은 내부 상태를 초기화합니다 (백테스트 재실행용)
	Reset()

	// GetName은 전략의 이름을 반환합니다
	GetName() string

	// GetDescription은 전략의 설명을 반환합니다
	GetDescription() string

	// GetConfig는 전략의 현재 설정을 반환합니다
	GetConfig() map[string]interface{}

	// UpdateConfig는 전략 설정을 업데이트합니다
	UpdateConfig(config map[string]interface{}) error
}

// BaseStrategy는 모든 전략 구현체에서 공통적으로 사용할 수 있는 기본 구현을 제공합니다
type BaseStrategy struct {
	Name        string
	Description string
	Config      map[string]interface{}
}

// GetName은 전략의 이름을 반환합니다
func (b *BaseStrategy) GetName() string {
	return b.Name
}

// GetDescription은 전략의 설명을 반환합니다
func (b *BaseStrategy) GetDescription() string {
	return b.Description
}

// GetConfig는 전략의 현재 설정 복사본을 반환합니다
func (b *BaseStrategy) GetConfig() map[string]interface{} {
	configCopy := make(map[string]interface{}, len(b.Config))
	for k, v := range b.Config {
		configCopy[k] = v
	}
	return configCopy
}

// UpdateConfig는 전략 설정을 업데이트합니다
func (b *BaseStrategy) UpdateConfig(config map[string]interface{}) error {
	if b.Config == nil {
		b.Config = make(map[string]interface{}, len(config))
	}
	for k, v := range config {
		b.Config[k] = v
	}
	return nil
}

// Initialize 기본 구현 (아무것도 하지 않음)
func (b *BaseStrategy) Initialize(ctx context.Context, sc *Context) error {
	return nil
}

// Shutdown 기본 구현 (아무것도 하지 않음)
func (b *BaseStrategy) Shutdown(ctx context.Context, sc *Context) error {
	return nil
}

// Factory는 전략 인스턴스를 생성하는 함수 타입입니다
type Factory func(config map[string]interface{}) (Strategy, error)

// Registry는 사용 가능한 모든 전략을 등록하고 관리합니다
type Registry struct {
	strategies map[string]Factory
}

// NewRegistry는 새로운 전략 레지스트리를 생성합니다
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Factory),
	}
}

// Register는 새로운 전략 팩토리를 레지스트리에 등록합니다
func (r *Registry) Register(name string, factory Factory) {
	r.strategies[name] = factory
}

// Create는 주어진 이름과 설정으로 전략 인스턴스를 생성합니다
func (r *Registry) Create(name string, config map[string]interface{}) (Strategy, error) {
	factory, exists := r.strategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: 존재하지 않는 전략: %s", domain.ErrInvalidConfig, name)
	}
	return factory(config)
}

// ListStrategies는 사용 가능한 모든 전략 이름을 정렬해서 반환합니다
func (r *Registry) ListStrategies() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntParam은 설정 맵에서 정수 값을 읽습니다. 없으면 기본값을 반환합니다.
func IntParam(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// FloatParam은 설정 맵에서 실수 값을 읽습니다. 없으면 기본값을 반환합니다.
func FloatParam(config map[string]interface{}, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
