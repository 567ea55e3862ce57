package presence

import "strings"

// RoomID 规范化后的房间标识。历史上同一个交易(exchange)的房间出现过
// 两种拼写（exchange_42 / exchange-42），投递必须把它们当成同一个房间。
type RoomID string

// AliasTable 把任意历史拼写解析为规范 RoomID。
// 规则分两类：精确别名（老数据迁移出来的个例）和前缀改写（整批拼写切换）。
// 表在启动时配置完成，之后只读，不加锁。
type AliasTable struct {
	exact    map[string]RoomID
	prefixes [][2]string // {legacy前缀, canonical前缀}
}

func NewAliasTable() *AliasTable {
	t := &AliasTable{exact: make(map[string]RoomID)}
	// 老客户端仍然会带下划线拼写
	t.AddPrefixRule("exchange_", "exchange-")
	return t
}

// AddAlias 注册一个精确别名
func (t *AliasTable) AddAlias(alias string, canonical RoomID) {
	if alias == "" || canonical == "" {
		return
	}
	t.exact[alias] = canonical
}

// AddPrefixRule 注册一条前缀改写规则
func (t *AliasTable) AddPrefixRule(legacy, canonical string) {
	if legacy == "" || legacy == canonical {
		return
	}
	t.prefixes = append(t.prefixes, [2]string{legacy, canonical})
}

// Canonical 解析房间拼写。精确别名优先，其次前缀规则，否则原样。
func (t *AliasTable) Canonical(raw string) RoomID {
	if id, ok := t.exact[raw]; ok {
		return id
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(raw, p[0]) {
			return RoomID(p[1] + raw[len(p[0]):])
		}
	}
	return RoomID(raw)
}
