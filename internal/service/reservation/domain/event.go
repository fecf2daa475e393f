// internal/service/reservation/domain/event.go
package domain

import "time"

// StockEventType 标识一次台账变更的种类
type StockEventType string

const (
	EventReservationAdmitted StockEventType = "reservation_admitted"
	EventReservationReleased StockEventType = "reservation_released"
	EventReservationExpired  StockEventType = "reservation_expired"
	EventCartCommitted       StockEventType = "cart_committed"
)

// StockEvent 是发布到消息总线的台账变更事件。
// 审计、ERP 同步、前端推送等下游只消费这些事件，不回调引擎。
type StockEvent struct {
	Type          StockEventType `json:"type"`
	ArticleID     string         `json:"article_id"`
	CartID        string         `json:"cart_id,omitempty"`
	ReservationID string         `json:"reservation_id,omitempty"`
	Qty           int            `json:"qty"`
	Available     int            `json:"available"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
