// internal/service/reservation/domain/repository.go
package domain

import (
	"context"
	"time"
)

// LedgerStore 定义了台账的持久化接口。
// 它位于领域层，但由基础设施层实现（MySQL 或内存）。
//
// 排他约定：所有会修改某个商品台账的操作（预留、释放、提交扣减、清扫过期）
// 必须在 WithArticleLock/WithArticleLocks 的回调内执行；回调收到的 ctx
// 携带了锁与事务信息，回调内的读写都要使用这个 ctx。
// 不同商品之间互不阻塞。
type LedgerStore interface {
	GetArticle(ctx context.Context, articleID string) (*Article, error)
	SaveArticle(ctx context.Context, article *Article) error

	GetReservation(ctx context.Context, id string) (*Reservation, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	UpdateReservation(ctx context.Context, r *Reservation) error

	// ActiveByArticle 返回存储状态仍为 ACTIVE 的条目（含可能已惰性过期的），
	// 是否计入可用量由调用方按 ActiveAt 判断
	ActiveByArticle(ctx context.Context, articleID string) ([]*Reservation, error)
	ActiveByCart(ctx context.Context, cartID string) ([]*Reservation, error)

	// SnapshotArticle 原子地读取商品及其存储状态为 ACTIVE 的预留。
	// 供不持锁的可用量计算使用：不能观察到半完成的写入
	SnapshotArticle(ctx context.Context, articleID string) (*Article, []*Reservation, error)

	// DueForExpiry 供清扫器使用：状态为 ACTIVE 且 expires_at <= now 的条目
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)

	// WithArticleLock 在单个商品的排他区内执行 fn。
	// 拿不到锁时返回 ErrBusy，绝不允许未持锁就执行 fn。
	WithArticleLock(ctx context.Context, articleID string, fn func(ctx context.Context) error) error

	// WithArticleLocks 同时持有多个商品的排他锁执行 fn（结账跨多个商品时）。
	// 实现必须按固定顺序加锁以避免死锁。
	WithArticleLocks(ctx context.Context, articleIDs []string, fn func(ctx context.Context) error) error
}

// Clock 抽象掉墙钟，过期判断全部经由它，测试中可以注入假时钟
type Clock interface {
	Now() time.Time
}

// SystemClock 是生产环境使用的真实时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
