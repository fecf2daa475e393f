// internal/pkg/constants/constants.go
package constants

// 注册到 Nacos 的服务名，服务间调用统一引用这里的常量
const (
	ReservationService = "reservation-service"
	PaymentService     = "payment-service"
	ErpSyncService     = "erp-sync-service"
	StockPushGateway   = "stock-push-gateway"
)

// reservation-service 对外暴露的 HTTP 路径
const (
	ReservationReservePath    = "/reserve"
	ReservationReleasePath    = "/release"
	ReservationCommitPath     = "/commit"
	ReservationAvailablePath  = "/available"
	ReservationListActivePath = "/list_active"
)

// Kafka 主题
const (
	StockEventsTopic     = "stock-events"
	PaymentAuditTopic    = "payment-audit"
	StockPushConsumerGrp = "stock-push-gateway-group"
)
