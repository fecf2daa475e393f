package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"poscore/internal/service/reservation/domain"
)

type fakeGate struct {
	leader atomic.Bool
}

func (g *fakeGate) IsLeader() bool { return g.leader.Load() }

func TestSweepOnceExpiresDueReservations(t *testing.T) {
	svc, store, clock, publisher := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 10)
	seedArticle(t, svc, "art-2", 10)

	r1, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "art-2", "cart-2", 3)
	require.NoError(t, err)

	// 晚一些的预留，本轮不该被扫到
	clock.Advance(300 * time.Second)
	late, err := svc.Reserve(ctx, "art-1", "cart-3", 1)
	require.NoError(t, err)

	clock.Advance(301 * time.Second)
	sweeper := NewSweeper(svc, store, clock, otel.Tracer("test"), time.Minute, 100, nil)
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	current, err := store.GetReservation(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, current.State)
	stillActive, err := store.GetReservation(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, stillActive.State)

	assert.Len(t, publisher.byType(domain.EventReservationExpired), 2)

	// 再扫一轮没有可做的事
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepSkipsEntriesCommittedMeanwhile(t *testing.T) {
	svc, store, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 10)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)
	_, err = svc.Commit(ctx, "cart-1")
	require.NoError(t, err)

	clock.Advance(601 * time.Second)
	sweeper := NewSweeper(svc, store, clock, otel.Tracer("test"), time.Minute, 100, nil)
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	// COMMITTED 的条目即使过了 ExpiresAt 也不会被流转
	assert.Equal(t, 0, n)
}

func TestSweepRespectsBatchLimit(t *testing.T) {
	svc, store, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 100)

	for i := 0; i < 5; i++ {
		_, err := svc.Reserve(ctx, "art-1", cartID(i), 1)
		require.NoError(t, err)
	}
	clock.Advance(601 * time.Second)

	sweeper := NewSweeper(svc, store, clock, otel.Tracer("test"), time.Minute, 2, nil)
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 剩下的由后续轮次逐步消化
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeperWaitsForLeadership(t *testing.T) {
	svc, store, clock, _ := newTestService(t, 600*time.Second)
	ctx := context.Background()
	seedArticle(t, svc, "art-1", 10)

	_, err := svc.Reserve(ctx, "art-1", "cart-1", 2)
	require.NoError(t, err)
	clock.Advance(601 * time.Second)

	gate := &fakeGate{}
	sweeper := NewSweeper(svc, store, clock, otel.Tracer("test"), 5*time.Millisecond, 100, gate)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 非 leader 期间不清扫，惰性过期仍然保证可用量正确
	time.Sleep(30 * time.Millisecond)
	due, err := store.DueForExpiry(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	available, err := svc.Available(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// 当选后开始清扫
	gate.leader.Store(true)
	assert.Eventually(t, func() bool {
		due, err := store.DueForExpiry(ctx, clock.Now(), 10)
		return err == nil && len(due) == 0
	}, time.Second, 10*time.Millisecond)
}
