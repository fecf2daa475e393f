// internal/service/reservation/port/port.go
package port

import (
	"context"
	"time"

	"poscore/internal/service/reservation/domain"
)

// EventPublisher 把台账变更事件推给消息总线，由基础设施层实现（Kafka）
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.StockEvent) error
}

// AvailabilityCache 是可用量的读缓存，用于商品目录展示的高频查询。
// 缓存永远只是加速：任何写路径都不经过它，未命中时回源台账计算。
type AvailabilityCache interface {
	Get(ctx context.Context, articleID string) (available int, ok bool, err error)
	Set(ctx context.Context, articleID string, available int, ttl time.Duration) error
	Invalidate(ctx context.Context, articleID string) error
}
