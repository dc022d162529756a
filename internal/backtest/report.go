package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// WriteJSON은 보고서를 들여쓴 JSON으로 기록합니다
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("보고서 인코딩 실패: %w", err)
	}
	return nil
}

// SaveJSON은 보고서를 파일로 저장합니다. 상위 디렉토리가 없으면 만듭니다.
func (r *Report) SaveJSON(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("보고서 디렉토리 생성 실패: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("보고서 파일 생성 실패: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Summary는 로그용 여러 줄 요약을 반환합니다
func (r *Report) Summary() string {
	m := r.Metrics
	var b strings.Builder

	fmt.Fprintf(&b, "=== 백테스트 결과: %s (%s) ===\n", r.Strategy, strings.Join(r.Symbols, ", "))
	fmt.Fprintf(&b, "기간:          %s ~ %s (%d일, 캔들 %d개)\n",
		r.StartTime.Format("2006-01-02 15:04"), r.EndTime.Format("2006-01-02 15:04"), m.DurationDays, r.Candles)
	fmt.Fprintf(&b, "초기 자본:     %12.2f\n", r.Config.InitialCapital)
	fmt.Fprintf(&b, "최종 자산:     %12.2f\n", r.FinalEquity)
	fmt.Fprintf(&b, "총 손익:       %12.2f (%.2f%%, 연율 %.2f%%)\n", m.TotalPnL, m.TotalReturn, m.AnnualizedReturn)
	fmt.Fprintf(&b, "수수료:        %12.2f\n", r.Commission)
	fmt.Fprintf(&b, "샤프 비율:     %12s\n", formatRatio(m.SharpeRatio))
	fmt.Fprintf(&b, "소르티노 비율: %12s\n", formatRatio(m.SortinoRatio))
	fmt.Fprintf(&b, "최대 낙폭:     %11.2f%% (%s)\n", m.MaxDrawdown, m.MaxDrawdownDuration)
	fmt.Fprintf(&b, "거래:          %d건 (승 %d / 패 %d, 승률 %.2f%%)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate)
	fmt.Fprintf(&b, "평균 수익/손실: %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Fprintf(&b, "최대 수익/손실: %.2f / %.2f\n", m.LargestWin, m.LargestLoss)
	fmt.Fprintf(&b, "프로핏 팩터:   %12s\n", formatRatio(m.ProfitFactor))
	fmt.Fprintf(&b, "평균 보유:     %10.1f시간\n", m.AvgHoldingHours)
	if len(r.OpenPositions) > 0 {
		fmt.Fprintf(&b, "미청산 포지션: %d개\n", len(r.OpenPositions))
	}
	return b.String()
}

func formatRatio(r Ratio) string {
	f := float64(r)
	if math.IsInf(f, 1) {
		return "∞"
	}
	if math.IsInf(f, -1) {
		return "-∞"
	}
	return fmt.Sprintf("%.2f", f)
}
