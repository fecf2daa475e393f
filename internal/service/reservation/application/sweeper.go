// internal/service/reservation/application/sweeper.go
package application

import (
	"context"
	"errors"
	"time"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/reservation/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LeaderGate 告知清扫器当前副本是否应当执行清扫。
// 多副本部署时由 ZooKeeper 选主实现；单副本部署传 nil 即可。
type LeaderGate interface {
	IsLeader() bool
}

// Sweeper 周期性地把超时的 ACTIVE 预留流转为 EXPIRED。
// 这是纯粹的后台整理：可用量的正确性依赖惰性过期，
// 清扫只负责让存储保持紧凑、查询代价有界。
// 清扫走与前台操作完全相同的商品锁，没有任何绕过锁的特权写。
type Sweeper struct {
	service  *ReservationService
	store    domain.LedgerStore
	clock    domain.Clock
	tracer   trace.Tracer
	interval time.Duration
	batch    int
	gate     LeaderGate
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSweeper(service *ReservationService, store domain.LedgerStore, clock domain.Clock,
	tracer trace.Tracer, interval time.Duration, batch int, gate LeaderGate) *Sweeper {
	return &Sweeper{
		service:  service,
		store:    store,
		clock:    clock,
		tracer:   tracer,
		interval: interval,
		batch:    batch,
		gate:     gate,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start 启动清扫循环，直到 Stop 被调用
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ Expiry sweeper started")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.gate != nil && !s.gate.IsLeader() {
					continue // 不是 leader 的副本安静等待接替
				}
				if _, err := s.SweepOnce(ctx); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("sweep tick failed")
				}
			case <-s.stopCh:
				logger.Ctx(ctx).Info().Msg("🛑 Expiry sweeper shutting down")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止清扫并等待当前一轮结束
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepOnce 执行一轮清扫，返回本轮实际过期的条目数。
// 每个条目都在其商品的排他区内重读再流转——等锁期间条目可能
// 已被并发的提交或释放抢先进入终态，这时静默跳过即可。
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.SweepOnce")
	defer span.End()
	started := time.Now()
	defer func() { sweepDuration.Observe(time.Since(started).Seconds()) }()

	now := s.clock.Now()
	due, err := s.store.DueForExpiry(ctx, now, s.batch)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(due) == 0 {
		sweepBatchSize.Observe(0)
		return 0, nil
	}

	// 按商品分组，一个商品只进出一次排他区
	byArticle := map[string][]*domain.Reservation{}
	for _, r := range due {
		byArticle[r.ArticleID] = append(byArticle[r.ArticleID], r)
	}

	expired := 0
	for articleID, batch := range byArticle {
		var events []*domain.StockEvent
		err := s.store.WithArticleLock(ctx, articleID, func(ctx context.Context) error {
			for _, stale := range batch {
				current, err := s.store.GetReservation(ctx, stale.ID)
				if err != nil {
					if errors.Is(err, domain.ErrReservationNotFound) {
						continue
					}
					return err
				}
				// 重新确认仍然到期且仍然 ACTIVE
				if current.State != domain.StateActive || current.ExpiresAt.After(now) {
					continue
				}
				if err := current.Expire(); err != nil {
					if errors.Is(err, domain.ErrAlreadyTerminal) {
						continue // 输给了并发的 release/commit，效果等价
					}
					return err
				}
				if err := s.store.UpdateReservation(ctx, current); err != nil {
					return err
				}
				events = append(events, &domain.StockEvent{
					Type:          domain.EventReservationExpired,
					ArticleID:     current.ArticleID,
					CartID:        current.CartID,
					ReservationID: current.ID,
					Qty:           current.Qty,
					OccurredAt:    now,
				})
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrBusy) {
				// 前台正忙着操作这个商品，下一轮再清
				continue
			}
			span.RecordError(err)
			return expired, err
		}
		for _, event := range events {
			expired++
			reservationsExpired.Inc()
			s.service.afterMutation(ctx, event)
		}
	}

	sweepBatchSize.Observe(float64(expired))
	span.SetAttributes(attribute.Int("expired", expired))
	if expired > 0 {
		logger.Ctx(ctx).Info().Int("expired", expired).Msg("sweep tick expired reservations")
	}
	return expired, nil
}
