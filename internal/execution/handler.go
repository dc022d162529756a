package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/exchange"
)

var (
	_ exchange.Backend       = (*Handler)(nil)
	_ exchange.FillSource    = (*Handler)(nil)
	_ exchange.PriceObserver = (*Handler)(nil)
)

// Handler는 실시간 모의(dry-run) 실행 백엔드입니다.
// 시장가/지정가 주문은 제출 즉시 전량 체결되고, 체결은 DrainFills로 꺼내갈 때까지 큐에 쌓입니다.
type Handler struct {
	commissionRate float64
	logger         *logrus.Entry

	mu        sync.Mutex
	prices    map[string]float64
	lastTicks map[string]time.Time
	fills     []domain.Fill
}

// NewHandler는 새로운 모의 실행 핸들러를 생성합니다
func NewHandler(commissionRate float64, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		commissionRate: commissionRate,
		logger:         logger.WithField("component", "dry_run_execution"),
		prices:         make(map[string]float64),
		lastTicks:      make(map[string]time.Time),
	}
}

// OnPrice는 심볼의 최신 시세를 기록합니다. 0 이하이거나 유한하지 않은 시세는 무시합니다.
func (h *Handler) OnPrice(symbol string, price float64, ts time.Time) {
	if !domain.IsPositiveFinite(price) {
		h.logger.WithFields(logrus.Fields{"symbol": symbol, "price": price}).Warn("잘못된 시세 무시")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.prices[symbol] = price
	h.lastTicks[symbol] = ts
}

// LastPrice는 기록된 최신 시세를 반환합니다
func (h *Handler) LastPrice(symbol string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	price, ok := h.prices[symbol]
	return price, ok
}

// SubmitOrder는 주문을 즉시 체결 처리합니다
func (h *Handler) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := h.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"side":     o.Side,
		"type":     o.Type,
		"quantity": o.Quantity,
	})

	var price float64
	switch o.Type {
	case domain.Market:
		last, ok := h.prices[o.Symbol]
		if !ok {
			return "", fmt.Errorf("%w: %s 시세가 없습니다", domain.ErrMarketData, o.Symbol)
		}
		price = last
	case domain.Limit:
		if !domain.IsPositiveFinite(o.Price) {
			return "", fmt.Errorf("%w: 지정가 주문에는 가격이 필요합니다", domain.ErrOrderError)
		}
		price = o.Price
	default:
		return "", fmt.Errorf("%w: 모의 실행에서는 %s 주문을 지원하지 않습니다", domain.ErrOrderError, o.Type)
	}

	ts, ok := h.lastTicks[o.Symbol]
	if !ok {
		ts = time.Now()
	}

	fill := domain.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      price,
		Commission: Config{CommissionRate: h.commissionRate}.Commission(o.Quantity, price),
		Timestamp:  ts,
	}
	h.fills = append(h.fills, fill)

	log.WithFields(logrus.Fields{
		"price":      fill.Price,
		"commission": fill.Commission,
	}).Info("[DRY-RUN] 주문 즉시 체결")

	return o.ID, nil
}

// CancelOrder는 모의 실행에서 취소 요청을 기록만 합니다
func (h *Handler) CancelOrder(ctx context.Context, orderID string) error {
	h.logger.WithField("order_id", orderID).Info("[DRY-RUN] 주문 취소 요청")
	return nil
}

// SyncOrders는 외부 상태가 없으므로 빈 목록을 반환합니다
func (h *Handler) SyncOrders(ctx context.Context) ([]domain.OrderUpdate, error) {
	return nil, nil
}

// DrainFills는 쌓인 체결을 반환하고 큐를 비웁니다
func (h *Handler) DrainFills() []domain.Fill {
	h.mu.Lock()
	defer h.mu.Unlock()

	fills := h.fills
	h.fills = nil
	return fills
}

// FillUpdate는 체결 결과를 주문 상태 변경으로 변환합니다.
// order.FilledQuantity는 이번 체결 이전의 누적 수량입니다.
func FillUpdate(o domain.Order, f domain.Fill) domain.OrderUpdate {
	prev := o.FilledQuantity
	filled := prev + f.Quantity

	avg := f.Price
	if prev > 0 && o.AverageFillPrice > 0 {
		avg = (o.AverageFillPrice*prev + f.Price*f.Quantity) / filled
	}

	status := domain.OrderPartiallyFilled
	if filled >= o.Quantity-1e-9 {
		status = domain.OrderFilled
		filled = o.Quantity
	}

	return domain.OrderUpdate{
		OrderID:        o.ID,
		Status:         status,
		FilledQuantity: filled,
		AveragePrice:   avg,
		Timestamp:      f.Timestamp,
	}
}
