// internal/service/reservation/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// State 是预留条目的生命周期状态。
// 状态流转是单向的：ACTIVE 只能进入三个终态之一，终态之间不能互相转换。
type State string

const (
	StateActive    State = "ACTIVE"
	StateExpired   State = "EXPIRED"
	StateReleased  State = "RELEASED"
	StateCommitted State = "COMMITTED"
)

// Reservation 是某个购物车对某个商品数量的限时占用。
// COMMITTED 的条目是永久账目，只保留作审计，效果已体现在 OnHand 上。
type Reservation struct {
	ID        string
	ArticleID string
	CartID    string
	Qty       int
	CreatedAt time.Time
	ExpiresAt time.Time
	State     State
}

// NewReservation 创建一条新的 ACTIVE 预留
func NewReservation(articleID, cartID string, qty int, now time.Time, ttl time.Duration) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Reservation{
		ID:        uuid.New().String(),
		ArticleID: articleID,
		CartID:    cartID,
		Qty:       qty,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		State:     StateActive,
	}, nil
}

// ActiveAt 判断该预留在 now 这一时刻是否仍然占用库存。
// 存储中的 State 可能还停留在 ACTIVE，但只要过了 ExpiresAt 就不再计入——
// 惰性过期使正确性完全不依赖后台清扫的节奏。
func (r *Reservation) ActiveAt(now time.Time) bool {
	return r.State == StateActive && r.ExpiresAt.After(now)
}

// Grow 向已有的 ACTIVE 预留追加数量（同一购物车重复加购同一商品时），
// 并顺延过期时间：加购视为购物会话仍然活跃
func (r *Reservation) Grow(delta int, now time.Time, ttl time.Duration) error {
	if delta <= 0 {
		return ErrInvalidQuantity
	}
	if r.State != StateActive {
		return ErrAlreadyTerminal
	}
	r.Qty += delta
	r.ExpiresAt = now.Add(ttl)
	return nil
}

// Release 顾客主动取消，ACTIVE -> RELEASED
func (r *Reservation) Release() error {
	if r.State != StateActive {
		return ErrAlreadyTerminal
	}
	r.State = StateReleased
	return nil
}

// Expire 超时失效，ACTIVE -> EXPIRED
func (r *Reservation) Expire() error {
	if r.State != StateActive {
		return ErrAlreadyTerminal
	}
	r.State = StateExpired
	return nil
}

// Commit 结账兑现，ACTIVE -> COMMITTED
func (r *Reservation) Commit() error {
	if r.State != StateActive {
		return ErrAlreadyTerminal
	}
	r.State = StateCommitted
	return nil
}
