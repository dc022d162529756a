package market

import (
	"context"
	"sort"
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// Replay는 저장된 캔들을 시간 순서대로 이벤트 채널에 흘려보냅니다.
// pace가 0보다 크면 캔들 사이에 그만큼 대기합니다. 모두 보내거나 컨텍스트가 끝나면 채널을 닫습니다.
func Replay(ctx context.Context, candles []domain.Candle, pace time.Duration) <-chan domain.MarketEvent {
	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Timestamp(), sorted[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	out := make(chan domain.MarketEvent)
	go func() {
		defer close(out)
		for i, c := range sorted {
			if i > 0 && pace > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pace):
				}
			}
			if !send(ctx, out, domain.NewCandleEvent(c)) {
				return
			}
		}
	}()
	return out
}
