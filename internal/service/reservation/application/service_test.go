package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"poscore/internal/service/reservation/domain"
	"poscore/internal/service/reservation/infrastructure"
)

// fakeClock 手动拨动的时钟，避免测试里 sleep
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// capturingPublisher 收集发出的事件供断言
type capturingPublisher struct {
	mu     sync.Mutex
	events []*domain.StockEvent
}

func (p *capturingPublisher) Publish(_ context.Context, e *domain.StockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) byType(t domain.StockEventType) []*domain.StockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.StockEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, ttl time.Duration) (*ReservationService, *infrastructure.MemoryLedgerStore, *fakeClock, *capturingPublisher) {
	t.Helper()
	store := infrastructure.NewMemoryLedgerStore()
	clock := newFakeClock()
	publisher := &capturingPublisher{}
	svc := NewReservationService(store, clock, otel.Tracer("test"), publisher, nil, ttl)
	return svc, store, clock, publisher
}

func seedArticle(t *testing.T, svc *ReservationService, articleID string, onHand int) {
	t.Helper()
	require.NoError(t, svc.UpsertArticle(context.Background(), articleID, onHand))
}

func TestReserveAdmitsAndRejects(t *testing.T) {
	svc, _, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	r, err := svc.Reserve(ctx, "art-1", "cart-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Qty)

	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	// 超过余量的请求整单拒绝，不做部分满足
	_, err = svc.Reserve(ctx, "art-1", "cart-2", 3)
	require.Error(t, err)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	// 拒绝后余量不变，缩小数量即可成功
	_, err = svc.Reserve(ctx, "art-1", "cart-2", 2)
	require.NoError(t, err)
	available, err = svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestReserveValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = svc.Reserve(ctx, "art-1", "cart-1", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = svc.Reserve(ctx, "missing", "cart-1", 1)
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestReserveMergesSameCartAndRefreshesTTL(t *testing.T) {
	svc, _, clock, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 10)

	first, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	second, err := svc.Reserve(ctx, "art-1", "cart-1", 3)
	require.NoError(t, err)

	// 同一购物车同一商品合并为一条，数量累加
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Qty)
	// TTL 从第二次加购时刻重新起算
	assert.Equal(t, clock.Now().Add(10*time.Minute), second.ExpiresAt)

	lines, err := svc.ListActive(ctx, "cart-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Qty)
}

func TestLazyExpiryWithoutSweeper(t *testing.T) {
	svc, _, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 5)
	require.NoError(t, err)

	// 过期前一秒：预留仍然占用全部库存
	clock.Advance(599 * time.Second)
	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	_, err = svc.Reserve(ctx, "art-1", "cart-2", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	// t = 601s：一次清扫都没跑过，库存也必须已经回来
	clock.Advance(2 * time.Second)
	available, err = svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
	_, err = svc.Reserve(ctx, "art-1", "cart-2", 5)
	require.NoError(t, err)

	// 过期的购物车视图也为空
	lines, err := svc.ListActive(ctx, "cart-1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestExpiredReservationCannotBeCommitted(t *testing.T) {
	svc, _, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 3)
	require.NoError(t, err)

	clock.Advance(601 * time.Second)
	_, err = svc.Commit(ctx, "cart-1")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestReleaseReturnsStock(t *testing.T) {
	svc, _, _, publisher := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	r, err := svc.Reserve(ctx, "art-1", "cart-1", 4)
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, r.ID))
	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	// 重复释放：条目已是终态
	assert.ErrorIs(t, svc.Release(ctx, r.ID), domain.ErrAlreadyTerminal)
	// 释放不存在的条目
	assert.ErrorIs(t, svc.Release(ctx, "nope"), domain.ErrReservationNotFound)

	released := publisher.byType(domain.EventReservationReleased)
	require.Len(t, released, 1)
	assert.Equal(t, 5, released[0].Available)
}

func TestReleaseAfterExpiryLosesQuietly(t *testing.T) {
	svc, store, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	r, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)

	// 清扫器先把条目流转成 EXPIRED
	clock.Advance(601 * time.Second)
	sweeper := NewSweeper(svc, store, clock, otel.Tracer("test"), time.Minute, 100, nil)
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 随后到达的释放拿到 ErrAlreadyTerminal，净效果一致
	err = svc.Release(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	current, err := store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, current.State)
}

func TestCommitHappyPathScenario(t *testing.T) {
	svc, store, _, publisher := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 3)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, "art-1", "cart-2", 3)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)

	_, err = svc.Reserve(ctx, "art-1", "cart-2", 2)
	require.NoError(t, err)

	result, err := svc.Commit(ctx, "cart-1")
	require.NoError(t, err)
	require.Len(t, result.CommittedLines, 1)
	assert.Equal(t, "art-1", result.CommittedLines[0].ArticleID)
	assert.Equal(t, 3, result.CommittedLines[0].Qty)

	// 提交后 on_hand 永久扣减，cart-2 的预留仍然占着剩余库存
	article, err := store.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 2, article.OnHand)
	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)

	committed := publisher.byType(domain.EventCartCommitted)
	require.Len(t, committed, 1)
	assert.Equal(t, 0, committed[0].Available)
}

func TestCommitIsIdempotent(t *testing.T) {
	svc, store, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 5)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)

	_, err = svc.Commit(ctx, "cart-1")
	require.NoError(t, err)

	// 第二次提交：没有剩余 ACTIVE 条目
	_, err = svc.Commit(ctx, "cart-1")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	// 扣减只发生一次
	article, err := store.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 3, article.OnHand)
}

func TestCommitMultipleArticlesAllOrNothing(t *testing.T) {
	svc, store, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-a", 5)
	seedArticle(t, svc, "art-b", 5)

	_, err := svc.Reserve(ctx, "art-a", "cart-1", 2)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "art-b", "cart-1", 3)
	require.NoError(t, err)

	// 外部补货调整把 art-b 的 on_hand 压到预留量之下，最终校验必须拦下整单
	require.NoError(t, svc.UpsertArticle(ctx, "art-b", 1))

	_, err = svc.Commit(ctx, "cart-1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	// 整单失败：两个商品的预留都还是 ACTIVE，on_hand 一分未动
	articleA, err := store.GetArticle(ctx, "art-a")
	require.NoError(t, err)
	assert.Equal(t, 5, articleA.OnHand)
	lines, err := svc.ListActive(ctx, "cart-1")
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	// 补货恢复后整单可以重试成功
	require.NoError(t, svc.UpsertArticle(ctx, "art-b", 5))
	result, err := svc.Commit(ctx, "cart-1")
	require.NoError(t, err)
	assert.Len(t, result.CommittedLines, 2)
}

func TestCommitEmptyCart(t *testing.T) {
	svc, _, _, _ := newTestService(t, 10*time.Minute)
	_, err := svc.Commit(context.Background(), "never-seen")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	svc, store, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	const onHand = 10
	seedArticle(t, svc, "art-1", onHand)

	const workers = 50
	var wg sync.WaitGroup
	admitted := make([]*domain.Reservation, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Reserve(ctx, "art-1", cartID(i), 1)
			if err == nil {
				admitted[i] = r
			}
		}(i)
	}
	wg.Wait()

	var total int
	for _, r := range admitted {
		if r != nil {
			total += r.Qty
		}
	}
	assert.Equal(t, onHand, total, "sum of admitted reservations must equal on_hand")

	active, err := store.ActiveByArticle(ctx, "art-1")
	require.NoError(t, err)
	var reserved int
	for _, r := range active {
		reserved += r.Qty
	}
	assert.Equal(t, onHand, reserved)

	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestConcurrentCommitAndReserve(t *testing.T) {
	svc, store, _, _ := newTestService(t, 10*time.Minute)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 20)

	const carts = 10
	for i := 0; i < carts; i++ {
		_, err := svc.Reserve(ctx, "art-1", cartID(i), 2)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < carts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Commit(ctx, cartID(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	article, err := store.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 0, article.OnHand)
}

func cartID(i int) string {
	return "cart-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
}
