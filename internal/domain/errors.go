package domain

import (
	"errors"
	"fmt"
)

// Error 타입들은 엔진 전반에서 발생할 수 있는 에러 종류를 정의합니다
var (
	ErrInvalidConfig     = errors.New("잘못된 설정입니다")
	ErrInvalidOrder      = errors.New("잘못된 주문입니다")
	ErrRateLimitExceeded = errors.New("주문 속도 제한을 초과했습니다")
	ErrOrderNotFound     = errors.New("주문을 찾을 수 없습니다")
	ErrMarketData        = errors.New("시장 데이터 에러")
	ErrOrderError        = errors.New("주문 처리 에러")
	ErrAlreadyRunning    = errors.New("엔진이 이미 실행 중입니다")
)

// RateLimitError는 초당 주문 한도 초과 에러입니다
type RateLimitError struct {
	Max int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (초당 최대 %d건)", ErrRateLimitExceeded, e.Max)
}

// Is는 errors.Is(err, ErrRateLimitExceeded)를 지원합니다
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// OrderNotFoundError는 주문 ID를 포함한 조회 실패 에러입니다
type OrderNotFoundError struct {
	ID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrOrderNotFound, e.ID)
}

// Is는 errors.Is(err, ErrOrderNotFound)를 지원합니다
func (e *OrderNotFoundError) Is(target error) bool {
	return target == ErrOrderNotFound
}

// EngineError는 작업/심볼 정보를 덧붙인 엔진 에러입니다
type EngineError struct {
	Symbol string
	Op     string
	Err    error
}

// Error는 error 인터페이스를 구현합니다
func (e *EngineError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("엔진 에러 [%s, 작업: %s]: %v", e.Symbol, e.Op, e.Err)
	}
	return fmt.Sprintf("엔진 에러 [작업: %s]: %v", e.Op, e.Err)
}

// Unwrap은 내부 에러를 반환합니다 (errors.Is/As 지원을 위함)
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError는 새로운 EngineError를 생성합니다
func NewEngineError(symbol, op string, err error) *EngineError {
	return &EngineError{
		Symbol: symbol,
		Op:     op,
		Err:    err,
	}
}
