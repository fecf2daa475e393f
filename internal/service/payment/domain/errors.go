package domain

import "errors"

var (
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrReceiptNotFound          = errors.New("receipt not found")
	ErrInvalidRequest           = errors.New("client_payment_id, amount>0 and mode required")
	ErrInvalidMode              = errors.New("unsupported payment mode")
	ErrAuthorizationNotRequired = errors.New("authorization not required for mode")
	ErrInvalidState             = errors.New("invalid state for authorization")
	ErrApprovalRequired         = errors.New("manager approval required")
	ErrDeclined                 = errors.New("payment declined by provider")
	ErrNotAuthorized            = errors.New("payment not authorized")
	ErrAlreadyConfirmed         = errors.New("payment already confirmed")
	// ErrCartEmpty 购物车没有任何活跃预留（包括已经提交过的情况）
	ErrCartEmpty = errors.New("cart has no active reservations")
	// ErrDuplicateClientID client_payment_id 撞上唯一索引，调用方按幂等命中处理
	ErrDuplicateClientID = errors.New("duplicate client payment id")
)
