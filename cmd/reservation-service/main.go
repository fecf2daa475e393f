// cmd/reservation-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"poscore/internal/pkg/bootstrap"
	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/logger"
	"poscore/internal/pkg/mq"
	"poscore/internal/pkg/redis"
	"poscore/internal/pkg/zookeeper"
	"poscore/internal/service/reservation/application"
	"poscore/internal/service/reservation/domain"
	"poscore/internal/service/reservation/infrastructure"
	"poscore/internal/service/reservation/interfaces"
	"poscore/internal/service/reservation/port"
)

const serviceName = constants.ReservationService

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	// 存储层
	db, err := gorm.Open(gormmysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	store := infrastructure.NewGormLedgerStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 事件生产者
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, constants.StockEventsTopic)
	publisher := infrastructure.NewKafkaEventProducer(writer)

	// 可用量缓存（可选）
	var cache port.AvailabilityCache
	var redisClient *redis.Client
	if cfg.App.FeatureFlags.EnableAvailabilityCache {
		redisClient, err = redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		cache = infrastructure.NewRedisAvailabilityCache(redisClient)
	}

	tracer := otel.Tracer(serviceName)
	clock := domain.SystemClock{}
	ttl := time.Duration(cfg.App.ReservationTTLSeconds) * time.Second

	service := application.NewReservationService(store, clock, tracer, publisher, cache, ttl)
	handler := interfaces.NewReservationHandler(service)

	// 清扫者。多实例部署时通过 ZK 选主，保证同一时刻只有一个实例在扫
	var gate application.LeaderGate
	var elector *zookeeper.LeaderElector
	var zkConn *zookeeper.Conn
	if cfg.App.FeatureFlags.EnableSweeperElection {
		zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
		if err != nil {
			log.Fatalf("failed to connect to zookeeper: %v", err)
		}
		elector, err = zookeeper.NewLeaderElector(zkConn, "reservation-sweeper")
		if err != nil {
			log.Fatalf("failed to create leader elector: %v", err)
		}
		if err := elector.Start(); err != nil {
			log.Fatalf("failed to start leader election: %v", err)
		}
		gate = elector
	}

	sweeper := application.NewSweeper(service, store, clock, tracer,
		time.Duration(cfg.App.SweepIntervalSeconds)*time.Second, cfg.App.SweepBatchSize, gate)
	sweeper.Start(context.Background())

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8086,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			sweeper.Stop()
			if elector != nil {
				elector.Stop()
			}
			if zkConn != nil {
				zkConn.Close()
			}
			if err := writer.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if redisClient != nil {
				redisClient.Close()
			}
		},
	})
}
