package order

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/ratelimit"
)

// quantityTolerance는 누적 체결 수량 비교 시 허용하는 부동소수점 오차입니다
const quantityTolerance = 1e-9

// Counts는 집합별 주문 개수입니다
type Counts struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

// Registry는 주문의 검증, 상태 추적, 감사 기록을 담당합니다.
// 주문은 추가만 가능한 슬롯 배열에 저장되고 pending/active/completed 집합은
// ID -> 슬롯 인덱스로 관리됩니다. 엔진 루프 하나만 호출한다고 가정하므로 내부 잠금이 없습니다.
type Registry struct {
	limiter *ratelimit.Limiter
	logger  *logrus.Entry

	orders    []domain.Order
	index     map[string]int
	pending   map[string]int
	active    map[string]int
	completed map[string]int

	audit *auditLog
}

// NewRegistry는 새로운 주문 레지스트리를 생성합니다. limiter가 nil이면 속도 제한을 하지 않습니다.
func NewRegistry(limiter *ratelimit.Limiter, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		limiter:   limiter,
		logger:    logger.WithField("component", "order_registry"),
		index:     make(map[string]int),
		pending:   make(map[string]int),
		active:    make(map[string]int),
		completed: make(map[string]int),
		audit:     newAuditLog(),
	}
}

// Submit은 주문을 검증하고 대기(PENDING) 상태로 등록합니다
func (r *Registry) Submit(o domain.Order) (string, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	if r.limiter != nil {
		if err := r.limiter.Allow(o.CreatedAt); err != nil {
			r.logger.WithFields(logrus.Fields{
				"symbol": o.Symbol,
				"max":    r.limiter.MaxPerSecond(),
			}).Warn("주문 속도 제한 초과")
			return "", err
		}
	}

	if err := o.Validate(); err != nil {
		return "", err
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if _, exists := r.index[o.ID]; exists {
		return "", fmt.Errorf("%w: 중복된 주문 ID %s", domain.ErrInvalidOrder, o.ID)
	}

	o.Status = domain.OrderPending
	o.FilledQuantity = 0
	o.AverageFillPrice = 0
	o.UpdatedAt = o.CreatedAt

	slot := len(r.orders)
	r.orders = append(r.orders, o)
	r.index[o.ID] = slot
	r.pending[o.ID] = slot

	r.audit.append(o.ID, EventCreated, o.Status, o.CreatedAt,
		fmt.Sprintf("Created: %s %s %s %.8f", o.Symbol, o.Side, o.Type, o.Quantity))

	r.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"side":     o.Side,
		"type":     o.Type,
		"quantity": o.Quantity,
	}).Debug("주문 등록")

	return o.ID, nil
}

// MarkSubmitted는 대기 중인 주문을 제출(SUBMITTED) 상태로 옮깁니다
func (r *Registry) MarkSubmitted(id string, ts time.Time) error {
	slot, ok := r.pending[id]
	if !ok {
		if existing, found := r.index[id]; found {
			return checkTransition(id, r.orders[existing].Status, domain.OrderSubmitted)
		}
		return &domain.OrderNotFoundError{ID: id}
	}

	o := &r.orders[slot]
	o.Status = domain.OrderSubmitted
	o.UpdatedAt = ts

	delete(r.pending, id)
	r.active[id] = slot
	r.audit.append(id, EventSubmitted, o.Status, ts, "Submitted")

	return nil
}

// ApplyUpdate는 대기/활성 주문에 상태 변경을 반영합니다.
// 최종 상태가 되면 주문은 completed 집합으로 이동합니다.
func (r *Registry) ApplyUpdate(u domain.OrderUpdate) error {
	slot, ok := r.lookupOpen(u.OrderID)
	if !ok {
		if existing, found := r.index[u.OrderID]; found {
			return checkTransition(u.OrderID, r.orders[existing].Status, u.Status)
		}
		return &domain.OrderNotFoundError{ID: u.OrderID}
	}

	o := &r.orders[slot]

	// 동일 상태 재통지는 무시 (부분 체결 누적은 예외)
	if u.Status == o.Status && u.Status != domain.OrderPartiallyFilled {
		return nil
	}
	if err := checkTransition(o.ID, o.Status, u.Status); err != nil {
		return err
	}
	if u.FilledQuantity > o.Quantity+quantityTolerance {
		return fmt.Errorf("%w: 주문 %s 체결 수량(%.8f)이 주문 수량(%.8f)을 초과합니다",
			domain.ErrInvalidOrder, o.ID, u.FilledQuantity, o.Quantity)
	}
	if u.FilledQuantity+quantityTolerance < o.FilledQuantity {
		return fmt.Errorf("%w: 주문 %s 체결 수량은 감소할 수 없습니다 (%.8f -> %.8f)",
			domain.ErrOrderError, o.ID, o.FilledQuantity, u.FilledQuantity)
	}

	o.Status = u.Status
	if u.FilledQuantity > 0 {
		o.FilledQuantity = u.FilledQuantity
	}
	if u.AveragePrice > 0 {
		o.AverageFillPrice = u.AveragePrice
	}
	if u.Error != "" {
		o.Error = u.Error
	}
	o.UpdatedAt = u.Timestamp

	delete(r.pending, o.ID)
	delete(r.active, o.ID)
	if o.Status.IsTerminal() {
		r.completed[o.ID] = slot
	} else {
		r.active[o.ID] = slot
	}

	r.audit.append(o.ID, eventKindFor(o.Status), o.Status, u.Timestamp, updateDetails(*o, u))

	return nil
}

// Cancel은 제출 또는 부분 체결 상태의 주문을 취소 처리합니다.
// 이미 진행 중인 체결을 막지는 않습니다.
func (r *Registry) Cancel(id string, ts time.Time) error {
	slot, ok := r.active[id]
	if !ok {
		if existing, found := r.index[id]; found {
			return fmt.Errorf("%w: 주문 %s는 %s 상태라 취소할 수 없습니다",
				domain.ErrOrderError, id, r.orders[existing].Status)
		}
		return &domain.OrderNotFoundError{ID: id}
	}

	o := &r.orders[slot]
	if o.Status != domain.OrderSubmitted && o.Status != domain.OrderPartiallyFilled {
		return fmt.Errorf("%w: 주문 %s는 %s 상태라 취소할 수 없습니다", domain.ErrOrderError, id, o.Status)
	}

	o.Status = domain.OrderCancelled
	o.UpdatedAt = ts

	delete(r.active, id)
	r.completed[id] = slot
	r.audit.append(id, EventCancelled, o.Status, ts,
		fmt.Sprintf("Cancelled: %.8f/%.8f filled", o.FilledQuantity, o.Quantity))

	return nil
}

// Get은 pending -> active -> completed 순으로 주문을 조회합니다
func (r *Registry) Get(id string) (domain.Order, bool) {
	for _, set := range []map[string]int{r.pending, r.active, r.completed} {
		if slot, ok := set[id]; ok {
			return r.orders[slot], true
		}
	}
	return domain.Order{}, false
}

// PendingOrders는 제출 전 주문 목록을 등록 순서대로 반환합니다
func (r *Registry) PendingOrders() []domain.Order {
	return r.collect(r.pending)
}

// ActiveOrders는 제출/부분 체결 상태 주문 목록을 등록 순서대로 반환합니다
func (r *Registry) ActiveOrders() []domain.Order {
	return r.collect(r.active)
}

// CompletedOrders는 최종 상태 주문 목록을 등록 순서대로 반환합니다
func (r *Registry) CompletedOrders() []domain.Order {
	return r.collect(r.completed)
}

// OrdersBySymbol은 특정 심볼의 모든 주문을 등록 순서대로 반환합니다
func (r *Registry) OrdersBySymbol(symbol string) []domain.Order {
	var out []domain.Order
	for _, o := range r.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// Counts는 집합별 주문 개수를 반환합니다
func (r *Registry) Counts() Counts {
	return Counts{
		Pending:   len(r.pending),
		Active:    len(r.active),
		Completed: len(r.completed),
	}
}

// TotalOrders는 등록된 전체 주문 수를 반환합니다
func (r *Registry) TotalOrders() int {
	return len(r.orders)
}

// AuditTrail은 전체 감사 로그 복사본을 반환합니다
func (r *Registry) AuditTrail() []AuditEvent {
	return r.audit.all()
}

// History는 특정 주문의 감사 로그를 반환합니다
func (r *Registry) History(id string) []AuditEvent {
	return r.audit.forOrder(id)
}

func (r *Registry) lookupOpen(id string) (int, bool) {
	if slot, ok := r.pending[id]; ok {
		return slot, true
	}
	slot, ok := r.active[id]
	return slot, ok
}

func (r *Registry) collect(set map[string]int) []domain.Order {
	slots := make([]int, 0, len(set))
	for _, slot := range set {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	out := make([]domain.Order, 0, len(slots))
	for _, slot := range slots {
		out = append(out, r.orders[slot])
	}
	return out
}

func updateDetails(o domain.Order, u domain.OrderUpdate) string {
	switch o.Status {
	case domain.OrderFilled, domain.OrderPartiallyFilled:
		return fmt.Sprintf("Filled: %.8f/%.8f @ %.8f", o.FilledQuantity, o.Quantity, o.AverageFillPrice)
	case domain.OrderRejected, domain.OrderFailed:
		if u.Error != "" {
			return fmt.Sprintf("%s: %s", o.Status, u.Error)
		}
	}
	return string(o.Status)
}
