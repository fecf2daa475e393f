// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"gopkg.in/yaml.v3"
)

// Config 是整个套件共享的配置结构，来源优先级：默认值 < yaml 文件 < Nacos 配置中心
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	// 预订条目的存活时长（秒），超过后自动失效
	ReservationTTLSeconds int `yaml:"reservation_ttl_seconds"`
	// 后台清扫的周期与单次批量上限
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	SweepBatchSize       int `yaml:"sweep_batch_size"`

	// 支付侧：主管审批规则（CEL 表达式）与 ERP 同步参数
	ApprovalRule           string `yaml:"approval_rule"`
	ErpRetryLimit          int    `yaml:"erp_retry_limit"`
	ErpSyncIntervalSeconds int    `yaml:"erp_sync_interval_seconds"`

	FeatureFlags FeatureFlags `yaml:"feature_flags"`
}

type FeatureFlags struct {
	// 是否启用 Redis 可用量读缓存
	EnableAvailabilityCache bool `yaml:"enable_availability_cache"`
	// 是否启用基于 ZooKeeper 的清扫器选主（多副本部署时只允许一个副本清扫）
	EnableSweeperElection bool `yaml:"enable_sweeper_election"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Redis struct {
		Addrs string `yaml:"addrs"`
	} `yaml:"redis"`
	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
}

var currentConfig atomic.Pointer[Config]

var nacosConfigClient config_client.IConfigClient

// GetCurrentConfig 返回当前生效的配置快照，任何时候都不会返回 nil
func GetCurrentConfig() *Config {
	if c := currentConfig.Load(); c != nil {
		return c
	}
	c := defaultConfig()
	currentConfig.Store(c)
	return c
}

func defaultConfig() *Config {
	c := &Config{}
	c.App.ReservationTTLSeconds = 600
	c.App.SweepIntervalSeconds = 30
	c.App.SweepBatchSize = 256
	c.App.ApprovalRule = `amount > 1000.0 && !manager_approved`
	c.App.ErpRetryLimit = 3
	c.App.ErpSyncIntervalSeconds = 10
	c.App.FeatureFlags.EnableAvailabilityCache = true
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	c.Infra.Kafka.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", "localhost:6379")
	c.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/poscore?parseTime=true&charset=utf8mb4")
	c.Infra.Zookeeper.Servers = strings.Split(getEnv("ZK_SERVERS", "localhost:2181"), ",")
	return c
}

// Init 加载配置。本地 yaml 优先于默认值；如果配置了 Nacos 配置中心，
// 则以配置中心为准并持续监听变更（热更新）。
func Init() {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_PATH", "configs/config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: failed to parse config file %s: %v", configPath, err)
		}
		log.Printf("✅ Loaded config from %s", configPath)
	}
	currentConfig.Store(cfg)

	// Nacos 配置中心是可选的，仅在指定 dataId 时启用
	dataID := os.Getenv("NACOS_CONFIG_DATA_ID")
	if dataID == "" {
		return
	}
	initNacosConfigCenter(dataID)
}

func initNacosConfigCenter(dataID string) {
	serverConfigs, err := createNacosServerConfigs(getEnv("NACOS_SERVER_ADDRS", "localhost:8848"))
	if err != nil {
		log.Fatalf("FATAL: Invalid Nacos server address format: %v", err)
	}
	clientConfig := createNacosClientConfig(os.Getenv("NACOS_NAMESPACE"))
	group := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

	nacosConfigClient, err = clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to create nacos config client: %v", err)
	}

	if content, err := nacosConfigClient.GetConfig(vo.ConfigParam{DataId: dataID, Group: group}); err == nil && content != "" {
		applyRemoteConfig(content)
	}

	err = nacosConfigClient.ListenConfig(vo.ConfigParam{
		DataId: dataID,
		Group:  group,
		OnChange: func(namespace, group, dataId, data string) {
			log.Printf("ℹ️ Config change received from Nacos (dataId=%s)", dataId)
			applyRemoteConfig(data)
		},
	})
	if err != nil {
		log.Printf("WARN: failed to listen nacos config: %v", err)
	}
}

// applyRemoteConfig 在当前配置的基础上套用远端 yaml，整体替换快照
func applyRemoteConfig(content string) {
	next := *GetCurrentConfig()
	if err := yaml.Unmarshal([]byte(content), &next); err != nil {
		log.Printf("ERROR: invalid remote config, keeping previous one: %v", err)
		return
	}
	currentConfig.Store(&next)
}

func createNacosServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		sc, err := parseServerAddr(addr)
		if err != nil {
			return nil, err
		}
		serverConfigs = append(serverConfigs, sc)
	}
	return serverConfigs, nil
}

func createNacosClientConfig(namespaceID string) constant.ClientConfig {
	return *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceID),
	)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
