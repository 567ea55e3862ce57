package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 镜像库连接管理。整个进程一个 client，mirror 是唯一写方。

var (
	once   sync.Once
	client *redis.Client
)

// Config 镜像库连接参数
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // 默认 8；镜像只有单写协程派生的 best-effort 写
}

// InitRedis 建连并 ping 一次，失败则调用方应当禁用镜像。
func InitRedis(c Config) error {
	var initErr error
	once.Do(func() {
		if c.PoolSize <= 0 {
			c.PoolSize = 8
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = err
			return
		}
		client = rdb
	})
	return initErr
}

// GetRedis 取共享 client。镜像未启用时不会被调用。
func GetRedis() *redis.Client {
	if client == nil {
		panic("redis mirror not initialized, call InitRedis first")
	}
	return client
}

func CloseRedis() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
