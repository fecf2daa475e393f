package infrastructure

import (
	"time"

	"poscore/internal/service/payment/domain"
)

// PaymentModel 对应数据库中的 payment 表
type PaymentModel struct {
	ID              uint64        `gorm:"primaryKey;autoIncrement"`
	ClientPaymentID string        `gorm:"size:128;uniqueIndex;not null"`
	CartID          string        `gorm:"size:64;index"`
	Amount          float64       `gorm:"type:decimal(10,2);not null"`
	Currency        string        `gorm:"size:8;not null"`
	Mode            domain.Mode   `gorm:"size:32;not null"`
	Status          domain.Status `gorm:"size:32;not null"`
	Detail          string        `gorm:"size:512"`
	ManagerApproved bool          `gorm:"not null;default:false"`
	ErpSynced       bool          `gorm:"not null;default:false;index"`
	ErpRetry        int           `gorm:"not null;default:0"`
	CreatedAt       time.Time     `gorm:"index"`
	UpdatedAt       time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaymentModel) TableName() string {
	return "payment"
}

// PaymentAttemptModel 对应数据库中的 payment_attempt 表
type PaymentAttemptModel struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	PaymentID        uint64 `gorm:"index;not null"`
	ProviderResponse string `gorm:"size:512"`
	Success          bool   `gorm:"not null"`
	CreatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaymentAttemptModel) TableName() string {
	return "payment_attempt"
}

// ReceiptModel 对应数据库中的 receipt 表
type ReceiptModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	PaymentID     uint64 `gorm:"index;not null"`
	ReceiptNumber string `gorm:"size:64;uniqueIndex;not null"`
	Content       string `gorm:"type:text;not null"`
	CreatedAt     time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReceiptModel) TableName() string {
	return "receipt"
}

// ERPQueueModel 对应数据库中的 erp_queue 表
type ERPQueueModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	PaymentID uint64 `gorm:"index;not null"`
	Attempts  int    `gorm:"not null;default:0"`
	NextTryAt time.Time
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (ERPQueueModel) TableName() string {
	return "erp_queue"
}
