// internal/service/reservation/application/service.go
package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/reservation/domain"
	"poscore/internal/service/reservation/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ReservationService 编排台账上的全部读写操作。
// 并发模型：同一商品上的变更互斥（由 LedgerStore 的商品锁保证），
// 不同商品完全并行；可用量读取不加锁，靠惰性过期保证语义。
type ReservationService struct {
	store  domain.LedgerStore
	clock  domain.Clock
	tracer trace.Tracer

	// publisher 和 cache 都是可选依赖，为 nil 时对应能力直接关闭
	publisher port.EventPublisher
	cache     port.AvailabilityCache

	ttl      time.Duration
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewReservationService(store domain.LedgerStore, clock domain.Clock, tracer trace.Tracer,
	publisher port.EventPublisher, cache port.AvailabilityCache, ttl time.Duration) *ReservationService {
	return &ReservationService{
		store:     store,
		clock:     clock,
		tracer:    tracer,
		publisher: publisher,
		cache:     cache,
		ttl:       ttl,
		cacheTTL:  3 * time.Second,
	}
}

// Reserve 尝试为 cartID 预留 qty 件 articleID。
// 可用量的重算和新条目的写入在同一个商品排他区内完成——
// 先读后写不加锁的写法会让两个并发请求同时看到"够用"，合计超卖。
func (s *ReservationService) Reserve(ctx context.Context, articleID, cartID string, qty int) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Reserve", trace.WithAttributes(
		attribute.String("article.id", articleID),
		attribute.String("cart.id", cartID),
		attribute.Int("qty", qty),
	))
	defer span.End()

	if qty <= 0 {
		reservationsRejected.WithLabelValues("invalid_quantity").Inc()
		return nil, domain.ErrInvalidQuantity
	}

	var (
		out            *domain.Reservation
		availableAfter int
	)
	err := s.store.WithArticleLock(ctx, articleID, func(ctx context.Context) error {
		now := s.clock.Now()

		article, err := s.store.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		active, err := s.store.ActiveByArticle(ctx, articleID)
		if err != nil {
			return err
		}

		available := article.OnHand
		var existing *domain.Reservation
		for _, r := range active {
			if !r.ActiveAt(now) {
				continue // 惰性过期：已过时的条目不再占用库存
			}
			available -= r.Qty
			if r.CartID == cartID {
				existing = r
			}
		}

		if qty > available {
			return &domain.InsufficientStockError{ArticleID: articleID, Requested: qty, Available: available}
		}

		if existing != nil {
			// 同一购物车重复加购：在原条目上累加数量，而不是再插一行
			if err := existing.Grow(qty, now, s.ttl); err != nil {
				return err
			}
			if err := s.store.UpdateReservation(ctx, existing); err != nil {
				return err
			}
			out = existing
		} else {
			r, err := domain.NewReservation(articleID, cartID, qty, now, s.ttl)
			if err != nil {
				return err
			}
			if err := s.store.CreateReservation(ctx, r); err != nil {
				return err
			}
			out = r
		}
		availableAfter = available - qty
		return nil
	})
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			reservationsRejected.WithLabelValues("insufficient_stock").Inc()
			span.SetAttributes(attribute.Int("available", insufficient.Available))
		} else if errors.Is(err, domain.ErrBusy) {
			reservationsRejected.WithLabelValues("busy").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation rejected")
		return nil, err
	}

	reservationsAdmitted.Inc()
	s.afterMutation(ctx, &domain.StockEvent{
		Type:          domain.EventReservationAdmitted,
		ArticleID:     articleID,
		CartID:        cartID,
		ReservationID: out.ID,
		Qty:           qty,
		Available:     availableAfter,
		OccurredAt:    s.clock.Now(),
	})
	return out, nil
}

// Release 顾客从购物车移除商品，显式归还预留。
// 与清扫器在同一条目上竞争时，谁先完成流转谁生效；
// 输掉的一方拿到 ErrAlreadyTerminal——净效果（库存被释放）相同，
// 接口层将其视为成功。
func (s *ReservationService) Release(ctx context.Context, reservationID string) error {
	ctx, span := s.tracer.Start(ctx, "reservation.Release", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
	))
	defer span.End()

	// 锁外先读一次，只为拿到 articleID
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var event *domain.StockEvent
	err = s.store.WithArticleLock(ctx, r.ArticleID, func(ctx context.Context) error {
		// 持锁后重读，状态可能已被并发操作改掉
		current, err := s.store.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := current.Release(); err != nil {
			return err
		}
		if err := s.store.UpdateReservation(ctx, current); err != nil {
			return err
		}
		event = &domain.StockEvent{
			Type:          domain.EventReservationReleased,
			ArticleID:     current.ArticleID,
			CartID:        current.CartID,
			ReservationID: current.ID,
			Qty:           current.Qty,
			OccurredAt:    s.clock.Now(),
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "release failed")
		}
		return err
	}

	reservationsReleased.Inc()
	if available, err := s.computeAvailable(ctx, event.ArticleID); err == nil {
		event.Available = available
	}
	s.afterMutation(ctx, event)
	return nil
}

// Commit 把一个购物车的全部有效预留兑现为永久扣减。
// 两阶段执行：先在所有涉及商品的锁内做全量校验（零修改），
// 校验全部通过后才扣减并流转状态——任何一行失败，整体不落一笔。
// 提交成功后再次调用会发现无剩余 ACTIVE 条目，得到 ErrEmptyCart；
// "从未有过东西"还是"已经提交过"由购物车/订单历史区分，不归引擎管。
func (s *ReservationService) Commit(ctx context.Context, cartID string) (*CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Commit", trace.WithAttributes(
		attribute.String("cart.id", cartID),
	))
	defer span.End()
	timer := time.Now()
	defer func() { commitDuration.Observe(time.Since(timer).Seconds()) }()

	// 锁外预读，确定要锁哪些商品
	preview, err := s.store.ActiveByCart(ctx, cartID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.clock.Now()
	articleSet := map[string]struct{}{}
	for _, r := range preview {
		if r.ActiveAt(now) {
			articleSet[r.ArticleID] = struct{}{}
		}
	}
	if len(articleSet) == 0 {
		return nil, domain.ErrEmptyCart
	}
	articleIDs := make([]string, 0, len(articleSet))
	for id := range articleSet {
		articleIDs = append(articleIDs, id)
	}
	sort.Strings(articleIDs)

	var result *CommitResult
	err = s.store.WithArticleLocks(ctx, articleIDs, func(ctx context.Context) error {
		// 持锁后重读：等锁期间条目可能已被释放、过期或提交
		rows, err := s.store.ActiveByCart(ctx, cartID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		var fresh []*domain.Reservation
		totals := map[string]int{}
		for _, r := range rows {
			if !r.ActiveAt(now) {
				continue // 结账必须重新校验新鲜度，过期条目视同不存在
			}
			fresh = append(fresh, r)
			totals[r.ArticleID] += r.Qty
		}
		if len(fresh) == 0 {
			return domain.ErrEmptyCart
		}

		// 第一阶段：校验每个商品的最终库存（防御外部补货调整把 OnHand 调低）
		articles := map[string]*domain.Article{}
		for articleID, qty := range totals {
			article, err := s.store.GetArticle(ctx, articleID)
			if err != nil {
				return err
			}
			if qty > article.OnHand {
				return &domain.InsufficientStockError{ArticleID: articleID, Requested: qty, Available: article.OnHand}
			}
			articles[articleID] = article
		}

		// 第二阶段：全部校验通过，才开始真正修改
		lines := make([]CommittedLine, 0, len(fresh))
		for _, r := range fresh {
			if err := r.Commit(); err != nil {
				return err
			}
			if err := s.store.UpdateReservation(ctx, r); err != nil {
				return err
			}
			lines = append(lines, CommittedLine{ArticleID: r.ArticleID, Qty: r.Qty})
		}
		for articleID, qty := range totals {
			article := articles[articleID]
			if err := article.Decrement(qty); err != nil {
				// 校验后仍扣成负数只可能是排他逻辑被绕过
				return err
			}
			if err := s.store.SaveArticle(ctx, article); err != nil {
				return err
			}
		}
		result = &CommitResult{CartID: cartID, CommittedLines: lines}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		if errors.Is(err, domain.ErrLedgerCorrupted) {
			logger.Ctx(ctx).Error().Err(err).Str("cart", cartID).
				Msg("CRITICAL: ledger invariant violated during commit, aborted mutation")
		}
		return nil, err
	}

	cartsCommitted.Inc()
	span.SetAttributes(attribute.Int("committed.lines", len(result.CommittedLines)))
	for _, articleID := range articleIDs {
		available, err := s.computeAvailable(ctx, articleID)
		if err != nil {
			available = 0
		}
		s.afterMutation(ctx, &domain.StockEvent{
			Type:       domain.EventCartCommitted,
			ArticleID:  articleID,
			CartID:     cartID,
			Available:  available,
			OccurredAt: s.clock.Now(),
		})
	}
	return result, nil
}

// ListActive 返回购物车当前仍然有效的预留，用于购物车页面渲染
func (s *ReservationService) ListActive(ctx context.Context, cartID string) ([]ActiveLine, error) {
	rows, err := s.store.ActiveByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	lines := make([]ActiveLine, 0, len(rows))
	for _, r := range rows {
		if !r.ActiveAt(now) {
			continue
		}
		lines = append(lines, ActiveLine{ReservationID: r.ID, ArticleID: r.ArticleID, Qty: r.Qty})
	}
	return lines, nil
}

// Available 返回商品当前可用量（OnHand 减去所有有效预留）。
// 目录展示的高频读路径：优先走 Redis 缓存，未命中时用 singleflight
// 合并并发回源，避免缓存击穿时台账被打穿。
func (s *ReservationService) Available(ctx context.Context, articleID string) (int, error) {
	if s.cache != nil {
		if available, ok, err := s.cache.Get(ctx, articleID); err == nil && ok {
			return available, nil
		}
	}

	v, err, _ := s.sf.Do(articleID, func() (interface{}, error) {
		available, err := s.computeAvailable(ctx, articleID)
		if err != nil {
			return 0, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, articleID, available, s.cacheTTL); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("article", articleID).Msg("failed to fill availability cache")
			}
		}
		return available, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// UpsertArticle 建档或补货调整，走与提交相同的商品锁修改路径
func (s *ReservationService) UpsertArticle(ctx context.Context, articleID string, onHand int) error {
	if onHand < 0 {
		return domain.ErrInvalidQuantity
	}
	err := s.store.WithArticleLock(ctx, articleID, func(ctx context.Context) error {
		article, err := s.store.GetArticle(ctx, articleID)
		if errors.Is(err, domain.ErrArticleNotFound) {
			article = &domain.Article{ID: articleID}
		} else if err != nil {
			return err
		}
		article.OnHand = onHand
		return s.store.SaveArticle(ctx, article)
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, articleID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("article", articleID).Msg("failed to invalidate availability cache")
		}
	}
	return nil
}

// computeAvailable 不持商品锁地计算可用量；一致性由存储的快照读保证
func (s *ReservationService) computeAvailable(ctx context.Context, articleID string) (int, error) {
	article, active, err := s.store.SnapshotArticle(ctx, articleID)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	available := article.OnHand
	for _, r := range active {
		if r.ActiveAt(now) {
			available -= r.Qty
		}
	}
	return available, nil
}

// afterMutation 统一处理变更后的缓存失效与事件发布。
// 两者都是尽力而为：失败只记日志，不影响已经落账的变更。
func (s *ReservationService) afterMutation(ctx context.Context, event *domain.StockEvent) {
	if event == nil {
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, event.ArticleID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("article", event.ArticleID).Msg("failed to invalidate availability cache")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("article", event.ArticleID).
				Str("type", string(event.Type)).Msg("failed to publish stock event")
		}
	}
}
