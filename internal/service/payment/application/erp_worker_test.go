package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"poscore/internal/service/payment/domain"
)

// parityGateway 和线上模拟网关同样的规则：偶数 ID 接受
type parityGateway struct{}

func (parityGateway) SyncPayment(_ context.Context, p *domain.Payment) (bool, error) {
	return p.ID%2 == 0, nil
}

type capturingAudit struct {
	mu     sync.Mutex
	synced []uint64
}

func (a *capturingAudit) PublishSynced(_ context.Context, p *domain.Payment, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.synced = append(a.synced, p.ID)
	return nil
}

func confirmedPayment(t *testing.T, store *memoryPaymentStore, clientID string) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p := &domain.Payment{
		ClientPaymentID: clientID,
		Amount:          50,
		Currency:        "TND",
		Mode:            domain.ModeCash,
		Status:          domain.StatusConfirmed,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.CreatePayment(ctx, p))
	require.NoError(t, store.EnqueueERP(ctx, &domain.ERPQueueEntry{PaymentID: p.ID, CreatedAt: time.Now()}))
	return p
}

func newWorker(store *memoryPaymentStore, audit AuditPublisher, retryLimit int) *ErpSyncWorker {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewErpSyncWorker(store, parityGateway{}, audit, clock, otel.Tracer("test"), time.Second, retryLimit)
}

func TestSyncOnceMarksEvenPayments(t *testing.T) {
	store := newMemoryPaymentStore()
	ctx := context.Background()
	audit := &capturingAudit{}

	odd := confirmedPayment(t, store, "p-odd")   // ID 1
	even := confirmedPayment(t, store, "p-even") // ID 2

	worker := newWorker(store, audit, 3)
	require.NoError(t, worker.SyncOnce(ctx))

	p, err := store.GetPayment(ctx, even.ID)
	require.NoError(t, err)
	assert.True(t, p.ErpSynced)
	assert.Equal(t, []uint64{even.ID}, audit.synced)

	// 奇数 ID 的支付留在队列里，重试计数 +1
	p, err = store.GetPayment(ctx, odd.ID)
	require.NoError(t, err)
	assert.False(t, p.ErpSynced)
	pending, err := store.PendingERP(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, odd.ID, pending[0].PaymentID)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestSyncGivesUpAfterRetryLimit(t *testing.T) {
	store := newMemoryPaymentStore()
	ctx := context.Background()

	odd := confirmedPayment(t, store, "p-odd")
	worker := newWorker(store, nil, 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, worker.SyncOnce(ctx))
	}

	// 达到上限后不再尝试，条目留给管理端 force_sync
	pending, err := store.PendingERP(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Attempts)
	p, err := store.GetPayment(ctx, odd.ID)
	require.NoError(t, err)
	assert.False(t, p.ErpSynced)
}

func TestSyncRemovesOrphanEntries(t *testing.T) {
	store := newMemoryPaymentStore()
	ctx := context.Background()

	p := &domain.Payment{
		ClientPaymentID: "p-init",
		Amount:          50,
		Currency:        "TND",
		Mode:            domain.ModeCash,
		Status:          domain.StatusInitiated,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.CreatePayment(ctx, p))
	require.NoError(t, store.EnqueueERP(ctx, &domain.ERPQueueEntry{PaymentID: p.ID, CreatedAt: time.Now()}))

	worker := newWorker(store, nil, 3)
	require.NoError(t, worker.SyncOnce(ctx))

	// 未确认支付的队列条目是孤儿，直接清理
	pending, err := store.PendingERP(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
