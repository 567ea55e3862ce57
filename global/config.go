package global

import (
	"EPresence/tools"
	ids "EPresence/tools/ids"
)

const NodeTypePresenceGateway = "presenceGateway" // 在线状态网关节点

// AppConfig 网关全部可配项（环境变量加载，见 Load）
type AppConfig struct {
	NodeType string
	NodeID   string
	Port     int
	WSPath   string

	JWTSecret  string // 身份令牌密钥（与身份服务共享）
	AdminToken string // /admin 接口的 bearer token；为空则不鉴权

	MaxSendQueue int // 每连接发送队列长度

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsEnabled bool
	NatsServers []string
	NatsName    string

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string // message 帧转发给落库服务的 topic
}

var Global AppConfig

// Load 从环境变量填充 Global，并初始化 id 生成器
func Load() *AppConfig {
	Global = AppConfig{
		NodeType: NodeTypePresenceGateway,
		NodeID:   tools.GetEnv("NODE_ID", "presence_gw-1"),
		Port:     tools.GetEnvInt("PORT", 8080),
		WSPath:   tools.GetEnv("WS_PATH", "/ws"),

		JWTSecret:  tools.GetEnv("JWT_SECRET", ""),
		AdminToken: tools.GetEnv("ADMIN_TOKEN", ""),

		MaxSendQueue: tools.GetEnvInt("MAX_SEND_QUEUE", 256),

		RedisEnabled:  tools.GetEnvBool("REDIS_ENABLED", false),
		RedisAddr:     tools.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: tools.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       tools.GetEnvInt("REDIS_DB", 0),

		NatsEnabled: tools.GetEnvBool("NATS_ENABLED", false),
		NatsServers: tools.GetEnvList("NATS_SERVERS", []string{"nats://127.0.0.1:4222"}),
		NatsName:    tools.GetEnv("NATS_NAME", "presence-gw"),

		KafkaEnabled: tools.GetEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers: tools.GetEnvList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
		KafkaTopic:   tools.GetEnv("KAFKA_TOPIC", "message_receive_data"),
	}

	ids.SetNodeID(int64(tools.GetEnvInt("SNOWFLAKE_NODE", 100)))
	return &Global
}

func GetJwtSecret() []byte {
	return []byte(Global.JWTSecret)
}
