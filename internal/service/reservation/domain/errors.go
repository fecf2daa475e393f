// internal/service/reservation/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrArticleNotFound     = errors.New("article not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyCart           = errors.New("cart has no active reservations")
	ErrAlreadyTerminal     = errors.New("reservation is already in a terminal state")

	// ErrBusy 表示在限定时间内拿不到商品级排他锁，调用方可以重试
	ErrBusy = errors.New("article is locked by a concurrent operation")

	// ErrLedgerCorrupted 表示台账核心不变量被破坏（例如 OnHand 将变为负数）。
	// 这不是一个业务错误，而是排他逻辑存在 bug 的信号，必须中止当前变更。
	ErrLedgerCorrupted = errors.New("ledger invariant violated")
)

// InsufficientStockError 在拒绝预留时携带当前可用量，供调用方反馈给用户
type InsufficientStockError struct {
	ArticleID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for article %s: requested %d, available %d",
		e.ArticleID, e.Requested, e.Available)
}

// Unwrap 使 errors.Is(err, ErrInsufficientStock) 成立
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
