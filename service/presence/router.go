package presence

import (
	"encoding/json"
	"time"

	"EPresence/logger"
	"EPresence/observability"
)

// Sender 把编码好的帧交给某条物理连接的传输层。
// Send 返回错误表示连接已经没了——投递方静默跳过（best-effort）。
type Sender interface {
	Send(connID string, data []byte) error
	Close(connID string, reason string)
}

// Frame 出站帧
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	Ts    int64          `json:"ts"`
}

// Router 把事件按 用户/房间 解析成物理连接集合后投递。
// 房间别名在 Tracker 里已经归一，同一逻辑房间永远只有一个投递集合。
type Router struct {
	reg    *Registry
	rooms  *Tracker
	sender Sender
	clock  func() time.Time
}

func NewRouter(reg *Registry, rooms *Tracker, sender Sender) *Router {
	return &Router{reg: reg, rooms: rooms, sender: sender, clock: time.Now}
}

func (r *Router) encode(event string, data map[string]any) []byte {
	buf, err := json.Marshal(Frame{Event: event, Data: data, Ts: r.clock().UnixMilli()})
	if err != nil {
		// data 都是我们自己拼的 map，按理不会走到这
		logger.Errorf("[router] marshal %s failed: %v", event, err)
		return nil
	}
	return buf
}

func (r *Router) deliver(connID string, buf []byte) {
	if buf == nil {
		return
	}
	if err := r.sender.Send(connID, buf); err != nil {
		// 连接刚好断了，静默跳过
		observability.StaleDeliveries.Inc()
		return
	}
	observability.BroadcastsTotal.Inc()
}

// Close 让传输层关掉一条连接
func (r *Router) Close(connID, reason string) {
	r.sender.Close(connID, reason)
}

// SendToConn 只发给一条连接（回执类）
func (r *Router) SendToConn(connID, event string, data map[string]any) {
	r.deliver(connID, r.encode(event, data))
}

// SendToUser 发给该用户所有连接。用户不在线返回 false，什么都不发（丢弃不排队）。
func (r *Router) SendToUser(userID, event string, data map[string]any) bool {
	conns := r.reg.ConnectionsOf(userID)
	if len(conns) == 0 {
		return false
	}
	buf := r.encode(event, data)
	for _, id := range conns {
		r.deliver(id, buf)
	}
	return true
}

// SendToRoom 发给房间全部成员的每条物理连接，序列化只做一次。
func (r *Router) SendToRoom(room, event string, data map[string]any) {
	r.SendToRoomExcept(room, "", "", event, data)
}

// SendToRoomExcept 同上，但可以排除一个用户（其全部连接）或一条连接。
// 同一连接只会收到一次，别名拼写不会造成重复投递。
func (r *Router) SendToRoomExcept(room, exceptUser, exceptConn, event string, data map[string]any) {
	members := r.rooms.MembersOf(room)
	if len(members) == 0 {
		return
	}
	buf := r.encode(event, data)
	for _, u := range members {
		if u == exceptUser {
			continue
		}
		for _, id := range r.reg.ConnectionsOf(u) {
			if id == exceptConn {
				continue
			}
			r.deliver(id, buf)
		}
	}
}
