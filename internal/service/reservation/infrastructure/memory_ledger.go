// internal/service/reservation/infrastructure/memory_ledger.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"poscore/internal/service/reservation/domain"
)

// MemoryLedgerStore 是 LedgerStore 的进程内实现。
// 用于测试和单机部署：商品锁是容量为 1 的 channel，
// 在限定等待时间内拿不到锁返回 ErrBusy，与 MySQL 实现的行为对齐。
type MemoryLedgerStore struct {
	mu           sync.RWMutex
	articles     map[string]*domain.Article
	reservations map[string]*domain.Reservation

	lockMu   sync.Mutex
	locks    map[string]chan struct{}
	lockWait time.Duration
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		articles:     make(map[string]*domain.Article),
		reservations: make(map[string]*domain.Reservation),
		locks:        make(map[string]chan struct{}),
		lockWait:     2 * time.Second,
	}
}

func (s *MemoryLedgerStore) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[articleID]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	cp := *article
	return &cp, nil
}

func (s *MemoryLedgerStore) SaveArticle(ctx context.Context, article *domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *article
	s.articles[article.ID] = &cp
	return nil
}

func (s *MemoryLedgerStore) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryLedgerStore) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *MemoryLedgerStore) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[r.ID]; !ok {
		return domain.ErrReservationNotFound
	}
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *MemoryLedgerStore) ActiveByArticle(ctx context.Context, articleID string) ([]*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reservation
	for _, r := range s.reservations {
		if r.ArticleID == articleID && r.State == domain.StateActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) ActiveByCart(ctx context.Context, cartID string) ([]*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reservation
	for _, r := range s.reservations {
		if r.CartID == cartID && r.State == domain.StateActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SnapshotArticle 短暂进入该商品的排他区，保证读到的是完整落账的状态
func (s *MemoryLedgerStore) SnapshotArticle(ctx context.Context, articleID string) (*domain.Article, []*domain.Reservation, error) {
	var (
		article *domain.Article
		active  []*domain.Reservation
	)
	err := s.WithArticleLock(ctx, articleID, func(ctx context.Context) error {
		var err error
		article, err = s.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		active, err = s.ActiveByArticle(ctx, articleID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return article, active, nil
}

func (s *MemoryLedgerStore) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reservation
	for _, r := range s.reservations {
		if r.State == domain.StateActive && !r.ExpiresAt.After(now) {
			cp := *r
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) WithArticleLock(ctx context.Context, articleID string, fn func(ctx context.Context) error) error {
	release, err := s.acquire(ctx, articleID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// WithArticleLocks 按字典序逐个加锁，保证任意两次多锁操作的加锁顺序一致
func (s *MemoryLedgerStore) WithArticleLocks(ctx context.Context, articleIDs []string, fn func(ctx context.Context) error) error {
	ids := append([]string(nil), articleIDs...)
	sort.Strings(ids)

	releases := make([]func(), 0, len(ids))
	for _, id := range ids {
		release, err := s.acquire(ctx, id)
		if err != nil {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
			return err
		}
		releases = append(releases, release)
	}
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	return fn(ctx)
}

func (s *MemoryLedgerStore) acquire(ctx context.Context, articleID string) (func(), error) {
	s.lockMu.Lock()
	ch, ok := s.locks[articleID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[articleID] = ch
	}
	s.lockMu.Unlock()

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrBusy
	}
}
