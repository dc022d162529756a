package engine

import "errors"

// State는 엔진 수명 주기 상태입니다
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateShuttingDown
	StateStopped
)

// String은 상태의 문자열 표현을 반환합니다
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText는 JSON 등에서 상태를 문자열로 기록합니다
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrNotRunning은 실행 중이 아닌 엔진에 일시정지/재개를 요청할 때 반환됩니다
var ErrNotRunning = errors.New("엔진이 실행 중이 아닙니다")
