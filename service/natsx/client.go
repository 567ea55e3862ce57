package natsx

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"EPresence/logger"

	"github.com/nats-io/nats.go"
)

// 在线状态事件走 core NATS（不落盘），下游自己决定要不要持久化。
// Subjects:
//
//	presence.online.<userId> / presence.offline.<userId>
//	exchange.join.<roomId>   / exchange.leave.<roomId>

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsxClient 发布端封装
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{cfg: cfg, nc: nc}, nil
}

// Publish 实现 presence.FeedPublisher。编码失败/发布失败只打日志。
func (c *NatsxClient) Publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[natsx] marshal subject=%s err=%v", subject, err)
		return
	}
	if err := c.nc.Publish(subject, data); err != nil {
		logger.Warnf("[natsx] publish subject=%s err=%v", subject, err)
	}
}

// Close 优雅关闭
func (c *NatsxClient) Close() error {
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
