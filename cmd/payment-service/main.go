// cmd/payment-service/main.go
package main

import (
	"log"

	"go.opentelemetry.io/otel"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"poscore/internal/pkg/bootstrap"
	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/httpclient"
	"poscore/internal/pkg/logger"
	"poscore/internal/service/payment/application"
	"poscore/internal/service/payment/domain"
	"poscore/internal/service/payment/infrastructure"
	"poscore/internal/service/payment/infrastructure/adapter"
	"poscore/internal/service/payment/infrastructure/rule"
	"poscore/internal/service/payment/interfaces"
)

const serviceName = constants.PaymentService

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
	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	approval, err := rule.NewCELApprovalEngine(cfg.App.ApprovalRule)
	if err != nil {
		log.Fatalf("invalid approval rule: %v", err)
	}

	tracer := otel.Tracer(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8087,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 预留引擎的调用要走 Nacos 发现，客户端在这里才拿得到 naming client
			checkout := adapter.NewReservationHTTPAdapter(httpclient.NewClient(tracer, appCtx.Nacos))
			service := application.NewPaymentService(store, domain.SystemClock{}, tracer, approval, checkout)
			interfaces.NewPaymentHandler(service).RegisterRoutes(appCtx.Mux)
		},
	})
}
