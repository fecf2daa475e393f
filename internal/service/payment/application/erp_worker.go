package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/payment/domain"
)

// AuditPublisher 把同步成功的支付发往审计主题
type AuditPublisher interface {
	PublishSynced(ctx context.Context, p *domain.Payment, syncedAt time.Time) error
}

// ErpSyncWorker 轮询 erp_queue，把已确认的支付同步到 ERP。
// 同步失败累加重试计数，达到上限后留给管理端处理（force_sync）。
// 队列里挂着未确认支付的条目视为孤儿，直接清掉
type ErpSyncWorker struct {
	store      domain.PaymentStore
	gateway    domain.ErpGateway
	publisher  AuditPublisher
	clock      domain.Clock
	tracer     trace.Tracer
	interval   time.Duration
	retryLimit int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewErpSyncWorker(store domain.PaymentStore, gateway domain.ErpGateway, publisher AuditPublisher,
	clock domain.Clock, tracer trace.Tracer, interval time.Duration, retryLimit int) *ErpSyncWorker {
	return &ErpSyncWorker{
		store:      store,
		gateway:    gateway,
		publisher:  publisher,
		clock:      clock,
		tracer:     tracer,
		interval:   interval,
		retryLimit: retryLimit,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start 启动轮询循环，直到 Stop 被调用
func (w *ErpSyncWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)
		logger.Ctx(ctx).Info().Dur("interval", w.interval).Msg("✅ ERP sync worker started")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.SyncOnce(ctx); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("erp sync pass failed")
				}
			case <-w.stopCh:
				logger.Ctx(ctx).Info().Msg("🛑 ERP sync worker stopped")
				return
			}
		}
	}()
}

// Stop 停止轮询并等待当前一轮结束
func (w *ErpSyncWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// SyncOnce 处理一轮队列。单元测试直接调它，不经过 ticker
func (w *ErpSyncWorker) SyncOnce(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "erp.SyncOnce")
	defer span.End()

	pending, err := w.store.PendingERP(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("erp.pending", len(pending)))

	for _, entry := range pending {
		if entry.Attempts >= w.retryLimit {
			// 重试耗尽，留给管理端 force_sync
			continue
		}
		if err := w.syncEntry(ctx, entry); err != nil {
			logger.Ctx(ctx).Error().Err(err).Uint64("payment_id", entry.PaymentID).Msg("erp entry sync failed")
		}
	}
	return nil
}

func (w *ErpSyncWorker) syncEntry(ctx context.Context, entry *domain.ERPQueueEntry) error {
	p, err := w.store.GetPayment(ctx, entry.PaymentID)
	if err != nil {
		return err
	}
	if p.Status != domain.StatusConfirmed {
		// 孤儿条目：支付没确认却进了队列
		return w.store.DeleteERPEntry(ctx, entry.ID)
	}

	accepted, err := w.gateway.SyncPayment(ctx, p)
	if err != nil {
		return err
	}
	if !accepted {
		entry.Attempts++
		entry.NextTryAt = w.clock.Now()
		if err := w.store.UpdateERPEntry(ctx, entry); err != nil {
			return err
		}
		if entry.Attempts >= w.retryLimit {
			logger.Ctx(ctx).Warn().
				Uint64("payment_id", p.ID).
				Int("attempts", entry.Attempts).
				Msg("🛑 ERP sync gave up, waiting for admin")
		}
		return nil
	}

	p.ErpSynced = true
	p.ErpRetry = entry.Attempts + 1
	if err := w.store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	if err := w.store.DeleteERPEntry(ctx, entry.ID); err != nil {
		return err
	}
	if w.publisher != nil {
		if err := w.publisher.PublishSynced(ctx, p, w.clock.Now()); err != nil {
			// 审计消息丢了不影响同步结果本身
			logger.Ctx(ctx).Warn().Err(err).Uint64("payment_id", p.ID).Msg("audit publish failed")
		}
	}
	logger.Ctx(ctx).Info().Uint64("payment_id", p.ID).Msg("✅ Payment synced to ERP")
	return nil
}
