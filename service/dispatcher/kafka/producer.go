package kafka

import (
	"fmt"
	"time"

	"EPresence/observability"

	"github.com/Shopify/sarama"
)

// message 帧不归在线状态核心管，整包转发给落库服务消费的 topic。
// key 取 exchangeId，同一房间的消息保序落在同一分区。

// Config 生产者配置
type Config struct {
	Brokers             []string
	Topic               string
	ProducerRetries     int
	ProducerCompression string // snappy/lz4/zstd/none
}

// Relay 消息中继接口（gateway 只依赖这个）
type Relay interface {
	RelayMessage(exchangeID string, payload []byte) error
	Close() error
}

type producer struct {
	topic string
	sp    sarama.SyncProducer
}

func buildBaseConfig(cfg Config) *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V2_8_0_0

	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.RequiredAcks = sarama.WaitForAll

	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 1
	}
	c.Producer.Retry.Max = retries

	// Key 控制分区
	c.Producer.Partitioner = sarama.NewHashPartitioner

	switch cfg.ProducerCompression {
	case "snappy":
		c.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		c.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		c.Producer.Compression = sarama.CompressionZSTD
	default:
		c.Producer.Compression = sarama.CompressionNone
	}

	c.Net.DialTimeout = 10 * time.Second
	c.Net.ReadTimeout = 30 * time.Second
	c.Net.WriteTimeout = 30 * time.Second
	return c
}

// NewRelay 初始化同步生产者
func NewRelay(cfg Config) (Relay, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, buildBaseConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &producer{topic: cfg.Topic, sp: sp}, nil
}

func (p *producer) RelayMessage(exchangeID string, payload []byte) error {
	_, _, err := p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(exchangeID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return err
	}
	observability.RelayedMessages.Inc()
	return nil
}

func (p *producer) Close() error {
	return p.sp.Close()
}
