package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/service/reservation/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	_, err := store.GetArticle(ctx, "art-1")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)

	require.NoError(t, store.SaveArticle(ctx, &domain.Article{ID: "art-1", OnHand: 7}))
	article, err := store.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 7, article.OnHand)

	// 返回的是副本，改它不影响存储
	article.OnHand = 0
	again, err := store.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 7, again.OnHand)
}

func TestMemoryStoreActiveQueries(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	now := time.Now()

	mk := func(article, cart string, state domain.State) *domain.Reservation {
		r, err := domain.NewReservation(article, cart, 1, now, time.Minute)
		require.NoError(t, err)
		r.State = state
		require.NoError(t, store.CreateReservation(ctx, r))
		return r
	}

	mk("art-1", "cart-1", domain.StateActive)
	mk("art-1", "cart-2", domain.StateActive)
	mk("art-1", "cart-3", domain.StateReleased)
	mk("art-2", "cart-1", domain.StateActive)

	byArticle, err := store.ActiveByArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Len(t, byArticle, 2)

	byCart, err := store.ActiveByCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Len(t, byCart, 2)
}

func TestMemoryStoreDueForExpiry(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	early, err := domain.NewReservation("art-1", "cart-1", 1, base, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CreateReservation(ctx, early))
	late, err := domain.NewReservation("art-1", "cart-2", 1, base, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.CreateReservation(ctx, late))

	due, err := store.DueForExpiry(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ID)

	// 边界：正好到达 ExpiresAt 即视为到期
	due, err = store.DueForExpiry(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestArticleLockIsExclusive(t *testing.T) {
	store := NewMemoryLedgerStore()
	store.lockWait = 50 * time.Millisecond
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithArticleLock(ctx, "art-1", func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	// 等待超时后拿到 ErrBusy，而不是永久阻塞
	err := store.WithArticleLock(ctx, "art-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrBusy)

	// 不同商品的锁互不影响
	err = store.WithArticleLock(ctx, "art-2", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)

	close(release)
}

func TestArticleLockHonorsContext(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithArticleLock(ctx, "art-1", func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked
	defer close(release)

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := store.WithArticleLock(cancelCtx, "art-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiLockReleasesOnFailure(t *testing.T) {
	store := NewMemoryLedgerStore()
	store.lockWait = 50 * time.Millisecond
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithArticleLock(ctx, "art-b", func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	// art-b 被占着，多锁获取失败后必须把已拿到的 art-a 放掉
	err := store.WithArticleLocks(ctx, []string{"art-b", "art-a"}, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrBusy)

	err = store.WithArticleLock(ctx, "art-a", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)

	close(release)
}

func TestSnapshotArticle(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveArticle(ctx, &domain.Article{ID: "art-1", OnHand: 9}))
	r, err := domain.NewReservation("art-1", "cart-1", 4, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CreateReservation(ctx, r))

	article, active, err := store.SnapshotArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 9, article.OnHand)
	require.Len(t, active, 1)
	assert.Equal(t, 4, active[0].Qty)
}
