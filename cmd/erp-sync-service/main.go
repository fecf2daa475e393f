// cmd/erp-sync-service/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"poscore/internal/pkg/bootstrap"
	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/logger"
	"poscore/internal/pkg/mq"
	"poscore/internal/service/payment/application"
	"poscore/internal/service/payment/domain"
	"poscore/internal/service/payment/infrastructure"
	"poscore/internal/service/payment/infrastructure/adapter"
)

const serviceName = constants.ErpSyncService

// main 函数是应用的"组装根" (Composition Root)
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(gormmysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	store := infrastructure.NewGormPaymentStore(db)

	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, constants.PaymentAuditTopic)
	publisher := infrastructure.NewKafkaAuditProducer(writer)

	worker := application.NewErpSyncWorker(
		store,
		adapter.NewSimulatedErpAdapter(),
		publisher,
		domain.SystemClock{},
		otel.Tracer(serviceName),
		time.Duration(cfg.App.ErpSyncIntervalSeconds)*time.Second,
		cfg.App.ErpRetryLimit,
	)
	worker.Start(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			worker.Stop()
			if err := writer.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
		},
	})
}
