package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"poscore/internal/pkg/logger"
	"poscore/internal/pkg/mq"
	"poscore/internal/service/payment/domain"
)

// AuditEvent 是支付审计消息，ERP 同步成功后发出
type AuditEvent struct {
	PaymentID       uint64    `json:"payment_id"`
	ClientPaymentID string    `json:"client_payment_id"`
	CartID          string    `json:"cart_id,omitempty"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Mode            string    `json:"mode"`
	ErpRetry        int       `json:"erp_retry"`
	SyncedAt        time.Time `json:"synced_at"`
}

// KafkaAuditProducer 把已同步的支付发到 payment-audit 主题
type KafkaAuditProducer struct {
	writer *kafka.Writer
}

func NewKafkaAuditProducer(writer *kafka.Writer) *KafkaAuditProducer {
	return &KafkaAuditProducer{writer: writer}
}

func (p *KafkaAuditProducer) PublishSynced(ctx context.Context, payment *domain.Payment, syncedAt time.Time) error {
	event := AuditEvent{
		PaymentID:       payment.ID,
		ClientPaymentID: payment.ClientPaymentID,
		CartID:          payment.CartID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Mode:            string(payment.Mode),
		ErpRetry:        payment.ErpRetry,
		SyncedAt:        syncedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := []byte(strconv.FormatUint(payment.ID, 10))
	if err := mq.ProduceMessage(ctx, p.writer, key, payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("payment_id", payment.ID).Msg("failed to publish audit event")
		return err
	}
	return nil
}
