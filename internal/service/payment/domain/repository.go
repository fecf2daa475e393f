package domain

import (
	"context"
	"time"
)

// PaymentStore 是支付单及其附属记录的持久化端口
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uint64) (*Payment, error)
	GetPaymentByClientID(ctx context.Context, clientPaymentID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, limit int) ([]*Payment, error)

	CreateAttempt(ctx context.Context, a *PaymentAttempt) error

	CreateReceipt(ctx context.Context, r *Receipt) error
	GetReceipt(ctx context.Context, receiptNumber string) (*Receipt, error)
	GetReceiptByPayment(ctx context.Context, paymentID uint64) (*Receipt, error)

	EnqueueERP(ctx context.Context, e *ERPQueueEntry) error
	PendingERP(ctx context.Context) ([]*ERPQueueEntry, error)
	UpdateERPEntry(ctx context.Context, e *ERPQueueEntry) error
	DeleteERPEntry(ctx context.Context, id uint64) error
	DeleteERPByPayment(ctx context.Context, paymentID uint64) error
}

// ApprovalPolicy 判定一笔支付是否需要主管审批后才能授权。
// 规则表达式可配置，实现放在 infrastructure/rule
type ApprovalPolicy interface {
	RequiresApproval(p *Payment) (bool, error)
}

// CommittedCart 是预留引擎兑现购物车后的结果
type CommittedCart struct {
	CartID string
	Lines  []CommittedLine
}

type CommittedLine struct {
	ArticleID string
	Qty       int
}

// CheckoutGateway 把购物车的预留兑现为永久扣减。
// 实现调用预留引擎的提交接口；空车和重复提交都会以 ErrCartEmpty 返回
type CheckoutGateway interface {
	CommitCart(ctx context.Context, cartID string) (*CommittedCart, error)
}

// ErpGateway 是 ERP 系统的同步端口
type ErpGateway interface {
	SyncPayment(ctx context.Context, p *Payment) (bool, error)
}

// Clock 与台账服务共用的时间端口，测试时可替换
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
