package notification

import (
	"context"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0099FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)

// Notifier는 알림 전송 인터페이스를 정의합니다
type Notifier interface {
	// SendTrade는 완료된 거래(청산) 알림을 전송합니다
	SendTrade(ctx context.Context, trade domain.CompletedTrade) error

	// SendError는 에러 알림을 전송합니다
	SendError(ctx context.Context, err error) error

	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(ctx context.Context, message string) error
}

// Nop은 아무것도 보내지 않는 Notifier입니다. 웹훅이 설정되지 않았을 때 사용합니다.
type Nop struct{}

func (Nop) SendTrade(ctx context.Context, trade domain.CompletedTrade) error { return nil }
func (Nop) SendError(ctx context.Context, err error) error { return nil }
func (Nop) SendInfo(ctx context.Context, message string) error { return nil }

// ColorForPnL은 손익 부호에 따른 색상을 반환합니다
func ColorForPnL(pnl float64) int {
	switch {
	case pnl > 0:
		return ColorSuccess
	case pnl < 0:
		return ColorError
	default:
		return ColorInfo
	}
}
