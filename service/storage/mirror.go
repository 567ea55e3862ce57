package storage

import (
	"context"
	"fmt"
	"time"

	"EPresence/logger"
	redis2 "EPresence/service/storage/redis"

	"github.com/redis/go-redis/v9"
)

// ===== 配置 =====

type MirrorConfig struct {
	NodeID string        // 节点ID（参与key命名）
	TTL    time.Duration // 会话集合TTL（默认 2h，靠 Online 刷新）
}

// ===== Lua 脚本 =====

// 下线一条连接：从集合摘掉，空了把整个key删掉（原子，避免残留空集合）
// KEYS[1] = user conn-set key
// ARGV[1] = connID
// 返回：剩余连接数
const luaOfflineOne = `
local k = KEYS[1]
redis.call("SREM", k, ARGV[1])
local n = redis.call("SCARD", k)
if n == 0 then
  redis.call("DEL", k)
end
return n
`

// Mirror 把内存里的在线状态写穿到 redis，给兄弟服务查询用。
// 只写不读：本进程的判定永远以内存注册表为准。
// 所有调用都是 best-effort，失败只打日志。
type Mirror struct {
	cfg     MirrorConfig
	offline *redis.Script
}

func NewMirror(cfg MirrorConfig) *Mirror {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	return &Mirror{
		cfg:     cfg,
		offline: redis.NewScript(luaOfflineOne),
	}
}

// presence:u:<userID> => set(connID)
func (m *Mirror) userKey(userID string) string {
	return fmt.Sprintf("presence:u:%s", userID)
}

// Online 记一条连接上线，顺带续TTL
func (m *Mirror) Online(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb := redis2.GetRedis()
	key := m.userKey(userID)
	pipe := rdb.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, m.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf("[mirror] online user=%s conn=%s err=%v", userID, connID, err)
	}
}

// Offline 记一条连接下线；wentOffline 时期望集合清空。
func (m *Mirror) Offline(userID, connID string, wentOffline bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb := redis2.GetRedis()
	n, err := m.offline.Run(ctx, rdb, []string{m.userKey(userID)}, connID).Int64()
	if err != nil {
		logger.Warnf("[mirror] offline user=%s conn=%s err=%v", userID, connID, err)
		return
	}
	if wentOffline && n > 0 {
		// 内存说人走光了但镜像还有残留（比如上次写失败），直接清
		if err := rdb.Del(ctx, m.userKey(userID)).Err(); err != nil {
			logger.Warnf("[mirror] cleanup user=%s err=%v", userID, err)
		}
	}
}
