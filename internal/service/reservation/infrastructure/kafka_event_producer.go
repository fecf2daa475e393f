package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"poscore/internal/pkg/logger"
	"poscore/internal/pkg/mq"
	"poscore/internal/service/reservation/domain"
)

// KafkaEventProducer 把库存事件发到 stock-events 主题。
// 消息 key 是商品 ID，同一商品的事件保证进同一分区、保持顺序
type KafkaEventProducer struct {
	writer *kafka.Writer
}

func NewKafkaEventProducer(writer *kafka.Writer) *KafkaEventProducer {
	return &KafkaEventProducer{writer: writer}
}

func (p *KafkaEventProducer) Publish(ctx context.Context, event *domain.StockEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.ArticleID), payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("article_id", event.ArticleID).
			Str("type", string(event.Type)).
			Msg("failed to publish stock event")
		return err
	}
	return nil
}
