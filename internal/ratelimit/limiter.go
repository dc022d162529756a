package ratelimit

import (
	"sync"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// window는 카운트가 초기화되는 구간 길이입니다
const window = time.Second

// Limiter는 1초 구간 단위로 주문 제출 횟수를 제한합니다.
// 구간은 최초 사용 시점에 고정되며, 고정 시점으로부터 1초 이상 지나면 초기화됩니다.
type Limiter struct {
	maxPerSecond int
	windowStart  time.Time
	count        int
	mu           sync.Mutex
}

// NewLimiter는 초당 maxPerSecond건까지 허용하는 Limiter를 생성합니다
func NewLimiter(maxPerSecond int) *Limiter {
	return &Limiter{maxPerSecond: maxPerSecond}
}

// CheckAndConsume은 현재 시각 기준으로 한 건을 소비합니다
func (l *Limiter) CheckAndConsume() error {
	return l.Allow(time.Now())
}

// Allow는 주어진 시각 기준으로 한 건을 소비합니다.
// 백테스트에서는 캔들 시각을 넘겨 시뮬레이션 시간으로 제한합니다.
func (l *Limiter) Allow(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.maxPerSecond {
		return &domain.RateLimitError{Max: l.maxPerSecond}
	}

	l.count++
	return nil
}

// Remaining은 현재 구간에서 남은 허용 건수를 반환합니다
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxPerSecond - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxPerSecond는 초당 최대 허용 건수를 반환합니다
func (l *Limiter) MaxPerSecond() int {
	return l.maxPerSecond
}
