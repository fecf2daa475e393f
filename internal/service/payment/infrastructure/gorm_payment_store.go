package infrastructure

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"poscore/internal/service/payment/domain"
)

// GormPaymentStore 是 PaymentStore 的 GORM 实现
type GormPaymentStore struct {
	db *gorm.DB
}

// NewGormPaymentStore 创建一个新的 GORM 仓储实例
func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

// AutoMigrate 建表。只在服务启动时调用一次
func (s *GormPaymentStore) AutoMigrate() error {
	return s.db.AutoMigrate(&PaymentModel{}, &PaymentAttemptModel{}, &ReceiptModel{}, &ERPQueueModel{})
}

func (s *GormPaymentStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	model := FromDomainPayment(p)
	err := s.db.WithContext(ctx).Create(model).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return domain.ErrDuplicateClientID
		}
		return err
	}
	p.ID = model.ID
	return nil
}

func (s *GormPaymentStore) GetPayment(ctx context.Context, id uint64) (*domain.Payment, error) {
	var model PaymentModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return ToDomainPayment(&model), nil
}

func (s *GormPaymentStore) GetPaymentByClientID(ctx context.Context, clientPaymentID string) (*domain.Payment, error) {
	var model PaymentModel
	err := s.db.WithContext(ctx).Where("client_payment_id = ?", clientPaymentID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return ToDomainPayment(&model), nil
}

func (s *GormPaymentStore) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	return s.db.WithContext(ctx).Model(&PaymentModel{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":           p.Status,
		"detail":           p.Detail,
		"manager_approved": p.ManagerApproved,
		"erp_synced":       p.ErpSynced,
		"erp_retry":        p.ErpRetry,
	}).Error
}

func (s *GormPaymentStore) ListPayments(ctx context.Context, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Payment, 0, len(models))
	for i := range models {
		out = append(out, ToDomainPayment(&models[i]))
	}
	return out, nil
}

func (s *GormPaymentStore) CreateAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	model := &PaymentAttemptModel{
		PaymentID:        a.PaymentID,
		ProviderResponse: a.ProviderResponse,
		Success:          a.Success,
		CreatedAt:        a.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	a.ID = model.ID
	return nil
}

func (s *GormPaymentStore) CreateReceipt(ctx context.Context, r *domain.Receipt) error {
	model := &ReceiptModel{
		PaymentID:     r.PaymentID,
		ReceiptNumber: r.ReceiptNumber,
		Content:       r.Content,
		CreatedAt:     r.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	r.ID = model.ID
	return nil
}

func (s *GormPaymentStore) GetReceipt(ctx context.Context, receiptNumber string) (*domain.Receipt, error) {
	var model ReceiptModel
	err := s.db.WithContext(ctx).Where("receipt_number = ?", receiptNumber).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return ToDomainReceipt(&model), nil
}

func (s *GormPaymentStore) GetReceiptByPayment(ctx context.Context, paymentID uint64) (*domain.Receipt, error) {
	var model ReceiptModel
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return ToDomainReceipt(&model), nil
}

func (s *GormPaymentStore) EnqueueERP(ctx context.Context, e *domain.ERPQueueEntry) error {
	model := &ERPQueueModel{
		PaymentID: e.PaymentID,
		Attempts:  e.Attempts,
		NextTryAt: e.NextTryAt,
		CreatedAt: e.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

func (s *GormPaymentStore) PendingERP(ctx context.Context) ([]*domain.ERPQueueEntry, error) {
	var models []ERPQueueModel
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ERPQueueEntry, 0, len(models))
	for i := range models {
		out = append(out, ToDomainERPEntry(&models[i]))
	}
	return out, nil
}

func (s *GormPaymentStore) UpdateERPEntry(ctx context.Context, e *domain.ERPQueueEntry) error {
	return s.db.WithContext(ctx).Model(&ERPQueueModel{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"attempts":    e.Attempts,
		"next_try_at": e.NextTryAt,
	}).Error
}

func (s *GormPaymentStore) DeleteERPEntry(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&ERPQueueModel{}, id).Error
}

func (s *GormPaymentStore) DeleteERPByPayment(ctx context.Context, paymentID uint64) error {
	return s.db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&ERPQueueModel{}).Error
}
