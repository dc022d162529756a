package order

import (
	"time"

	"github.com/assist-by/phoenix-engine/internal/domain"
)

// EventKind는 감사 로그 이벤트 유형입니다
type EventKind string

const (
	EventCreated         EventKind = "CREATED"
	EventSubmitted       EventKind = "SUBMITTED"
	EventPartiallyFilled EventKind = "PARTIALLY_FILLED"
	EventFilled          EventKind = "FILLED"
	EventCancelled       EventKind = "CANCELLED"
	EventRejected        EventKind = "REJECTED"
	EventFailed          EventKind = "FAILED"
)

// eventKindFor는 주문 상태에 대응하는 감사 이벤트 유형을 반환합니다
func eventKindFor(status domain.OrderStatus) EventKind {
	switch status {
	case domain.OrderSubmitted:
		return EventSubmitted
	case domain.OrderPartiallyFilled:
		return EventPartiallyFilled
	case domain.OrderFilled:
		return EventFilled
	case domain.OrderCancelled:
		return EventCancelled
	case domain.OrderRejected:
		return EventRejected
	case domain.OrderFailed:
		return EventFailed
	default:
		return EventCreated
	}
}

// AuditEvent는 주문 상태와 무관하게 보존되는 감사 기록 한 건입니다
type AuditEvent struct {
	Seq       int                `json:"seq"` // 전체 로그 내 순번 (0부터)
	OrderID   string             `json:"orderId"`
	Kind      EventKind          `json:"kind"`
	Status    domain.OrderStatus `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Details   string             `json:"details"`
}

// auditLog는 추가만 가능한 이벤트 아레나와 주문별 슬롯 인덱스입니다
type auditLog struct {
	events  []AuditEvent
	byOrder map[string][]int
}

func newAuditLog() *auditLog {
	return &auditLog{byOrder: make(map[string][]int)}
}

func (a *auditLog) append(orderID string, kind EventKind, status domain.OrderStatus, ts time.Time, details string) AuditEvent {
	ev := AuditEvent{
		Seq:       len(a.events),
		OrderID:   orderID,
		Kind:      kind,
		Status:    status,
		Timestamp: ts,
		Details:   details,
	}
	a.events = append(a.events, ev)
	a.byOrder[orderID] = append(a.byOrder[orderID], ev.Seq)
	return ev
}

func (a *auditLog) all() []AuditEvent {
	out := make([]AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

func (a *auditLog) forOrder(orderID string) []AuditEvent {
	slots := a.byOrder[orderID]
	out := make([]AuditEvent, 0, len(slots))
	for _, slot := range slots {
		out = append(out, a.events[slot])
	}
	return out
}
