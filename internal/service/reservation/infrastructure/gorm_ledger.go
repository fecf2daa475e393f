package infrastructure

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"poscore/internal/service/reservation/domain"
)

type txKey struct{}

// GormLedgerStore 是 LedgerStore 的 GORM 实现。
// 商品级互斥通过 SELECT ... FOR UPDATE 锁定 article 行实现：
// WithArticleLock 开启事务并锁行，事务句柄放进 context，
// 回调里的所有读写都走同一个事务。
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore 创建一个新的 GORM 仓储实例
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// AutoMigrate 建表。只在服务启动时调用一次
func (s *GormLedgerStore) AutoMigrate() error {
	return s.db.AutoMigrate(&ArticleModel{}, &ReservationModel{})
}

// dbFrom 优先使用 context 中的事务句柄
func (s *GormLedgerStore) dbFrom(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db
}

func (s *GormLedgerStore) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	var model ArticleModel
	err := s.dbFrom(ctx).WithContext(ctx).Where("id = ?", articleID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, mapMysqlError(err)
	}
	return ToDomainArticle(&model), nil
}

func (s *GormLedgerStore) SaveArticle(ctx context.Context, article *domain.Article) error {
	model := FromDomainArticle(article)
	err := s.dbFrom(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"on_hand", "updated_at"}),
	}).Create(model).Error
	return mapMysqlError(err)
}

func (s *GormLedgerStore) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	var model ReservationModel
	err := s.dbFrom(ctx).WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, mapMysqlError(err)
	}
	return ToDomainReservation(&model), nil
}

func (s *GormLedgerStore) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	return mapMysqlError(s.dbFrom(ctx).WithContext(ctx).Create(FromDomainReservation(r)).Error)
}

func (s *GormLedgerStore) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	res := s.dbFrom(ctx).WithContext(ctx).Model(&ReservationModel{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"qty":        r.Qty,
		"state":      r.State,
		"expires_at": r.ExpiresAt,
	})
	if res.Error != nil {
		return mapMysqlError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (s *GormLedgerStore) ActiveByArticle(ctx context.Context, articleID string) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := s.dbFrom(ctx).WithContext(ctx).
		Where("article_id = ? AND state = ?", articleID, domain.StateActive).
		Find(&models).Error
	if err != nil {
		return nil, mapMysqlError(err)
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out, nil
}

func (s *GormLedgerStore) ActiveByCart(ctx context.Context, cartID string) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := s.dbFrom(ctx).WithContext(ctx).
		Where("cart_id = ? AND state = ?", cartID, domain.StateActive).
		Order("created_at asc").
		Find(&models).Error
	if err != nil {
		return nil, mapMysqlError(err)
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out, nil
}

// SnapshotArticle 在一个只读事务里读取商品和它的活跃预留，避免观察到半完成的写入
func (s *GormLedgerStore) SnapshotArticle(ctx context.Context, articleID string) (*domain.Article, []*domain.Reservation, error) {
	var (
		article *domain.Article
		active  []*domain.Reservation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey{}, tx)
		var err error
		article, err = s.GetArticle(txCtx, articleID)
		if err != nil {
			return err
		}
		active, err = s.ActiveByArticle(txCtx, articleID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return article, active, nil
}

func (s *GormLedgerStore) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	q := s.dbFrom(ctx).WithContext(ctx).
		Where("state = ? AND expires_at <= ?", domain.StateActive, now).
		Order("expires_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, mapMysqlError(err)
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out, nil
}

func (s *GormLedgerStore) WithArticleLock(ctx context.Context, articleID string, fn func(ctx context.Context) error) error {
	return s.WithArticleLocks(ctx, []string{articleID}, fn)
}

// WithArticleLocks 在一个事务里按字典序锁定所有商品行。
// 固定加锁顺序让并发的多商品提交不会互相死锁；
// 即使死锁/锁等待超时仍可能发生（比如和外部事务竞争），统一映射成 ErrBusy 交给调用方重试。
func (s *GormLedgerStore) WithArticleLocks(ctx context.Context, articleIDs []string, fn func(ctx context.Context) error) error {
	ids := append([]string(nil), articleIDs...)
	sort.Strings(ids)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var model ArticleModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", id).First(&model).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				// 行不存在时放行：UpsertArticle 靠这个路径建新商品
				return err
			}
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return mapMysqlError(err)
}

// MySQL 错误码参见 https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrLockNowait      = 3572
	mysqlErrDuplicateEntry  = 1062
)

// mapMysqlError 把锁竞争类错误归一成 ErrBusy
func mapMysqlError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrLockNowait:
			return domain.ErrBusy
		}
	}
	return err
}

// IsDuplicateEntry 判断是否为唯一键冲突。幂等写入用它识别重复请求
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}
