package infrastructure

import (
	"time"

	"poscore/internal/service/reservation/domain"
)

// ArticleModel 对应数据库中的 article 表
type ArticleModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	OnHand    int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ArticleModel) TableName() string {
	return "article"
}

// ReservationModel 对应数据库中的 reservation 表。
// 每一行是一条台账记录，可用量永远由行聚合得出。
type ReservationModel struct {
	ID        string       `gorm:"primaryKey;size:36"`
	ArticleID string       `gorm:"size:64;index:idx_article_state,priority:1;not null"`
	CartID    string       `gorm:"size:64;index:idx_cart_state,priority:1;not null"`
	Qty       int          `gorm:"not null"`
	State     domain.State `gorm:"size:16;index:idx_article_state,priority:2;index:idx_cart_state,priority:2;index:idx_state_expires,priority:1;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index:idx_state_expires,priority:2;not null"`
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ReservationModel) TableName() string {
	return "reservation"
}
