// internal/service/payment/application/dto.go
package application

import (
	"time"

	"poscore/internal/service/payment/domain"
)

// InitiateRequest 发起一笔收款
type InitiateRequest struct {
	ClientPaymentID string           `json:"client_payment_id"`
	CartID          string           `json:"cart_id"`
	Amount          float64          `json:"amount"`
	Currency        string           `json:"currency"`
	Mode            domain.Mode      `json:"mode"`
	ManagerApproved bool             `json:"manager_approved"`
	Card            *domain.CardInfo `json:"card,omitempty"`
}

// InitiateResult Result 为 "exists" 时表示幂等命中，返回的是既有记录
type InitiateResult struct {
	Result    string        `json:"result"`
	PaymentID uint64        `json:"payment_id"`
	Status    domain.Status `json:"status"`
}

// AuthorizeResult 一次授权尝试的结论
type AuthorizeResult struct {
	Result    string `json:"result"`
	PaymentID uint64 `json:"payment_id"`
	Reason    string `json:"reason,omitempty"`
}

// ConfirmResult 确认收款的结果
type ConfirmResult struct {
	Result         string                 `json:"result"`
	PaymentID      uint64                 `json:"payment_id"`
	ReceiptNumber  string                 `json:"receipt_number,omitempty"`
	CommittedLines []domain.CommittedLine `json:"committed_lines,omitempty"`
}

// ReceiptView 小票视图
type ReceiptView struct {
	ReceiptNumber string    `json:"receipt_number"`
	PaymentID     uint64    `json:"payment_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// PaymentView 支付单详情视图
type PaymentView struct {
	ID              uint64        `json:"id"`
	ClientPaymentID string        `json:"client_payment_id"`
	CartID          string        `json:"cart_id,omitempty"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	Mode            domain.Mode   `json:"mode"`
	Status          domain.Status `json:"status"`
	Detail          string        `json:"detail,omitempty"`
	ManagerApproved bool          `json:"manager_approved"`
	ErpSynced       bool          `json:"erp_synced"`
	Receipt         *ReceiptView  `json:"receipt,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ErpQueueView 待同步队列条目视图
type ErpQueueView struct {
	ID        uint64    `json:"id"`
	PaymentID uint64    `json:"payment_id"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
