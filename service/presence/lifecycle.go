package presence

import (
	"context"
	"strings"
	"time"

	"EPresence/logger"
	"EPresence/observability"
	"EPresence/tools/safe"
)

// Mirror 把上线/下线写穿到外部存储（redis），只写不读，尽力而为。
type Mirror interface {
	Online(userID, connID string)
	Offline(userID, connID string, wentOffline bool)
}

// FeedPublisher 把在线状态变化发布给下游服务（nats）。
type FeedPublisher interface {
	Publish(subject string, v any)
}

// ===== 配置 =====

type HandlerConf struct {
	QueueSize int              // 入站事件队列长度（默认 8192）
	Clock     func() time.Time // 可注入时钟（单测用）；nil => time.Now
	Mirror    Mirror           // 可空
	Feed      FeedPublisher    // 可空
}

func (c *HandlerConf) norm() {
	if c.QueueSize <= 0 {
		c.QueueSize = 8192
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Handler 连接生命周期状态机：Connected(匿名) -> Authenticated -> Disconnected。
//
// 所有写路径都在 Run 的单协程里：一个事件处理完（两个索引的变更 + 广播）
// 才轮到下一个，写与写不会交错。读接口可以并发调用。
type Handler struct {
	reg    *Registry
	rooms  *Tracker
	router *Router

	events chan Event
	conf   HandlerConf
}

func NewHandler(reg *Registry, rooms *Tracker, router *Router, conf HandlerConf) *Handler {
	conf.norm()
	return &Handler{
		reg:    reg,
		rooms:  rooms,
		router: router,
		events: make(chan Event, conf.QueueSize),
		conf:   conf,
	}
}

func (h *Handler) Registry() *Registry { return h.reg }
func (h *Handler) Rooms() *Tracker     { return h.rooms }
func (h *Handler) Router() *Router     { return h.router }

// Submit 入队一条事件。队列满时普通事件直接丢（都是可重发的信号）；
// 断开事件不能丢——丢了这条连接在注册表里就永久漏掉，没有别的清理路径，
// 所以阻塞等待（提交方是正在收尾的读循环，等得起）。
func (h *Handler) Submit(ev Event) {
	if ev.Kind == EvDisconnect {
		h.events <- ev
		return
	}
	select {
	case h.events <- ev:
	default:
		observability.DroppedEvents.Inc()
		logger.Warnf("[lifecycle] event queue full, drop kind=%s conn=%s", ev.Kind, ev.ConnID)
	}
}

// Run 单写协程。ctx 结束后退出。
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[lifecycle] ctx done: %v", ctx.Err())
			return
		case ev := <-h.events:
			h.apply(ev)
		}
	}
}

// apply 唯一的派发入口，事件处理到完成为止。
func (h *Handler) apply(ev Event) {
	observability.EventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case EvConnect:
		h.onConnect(ev)
	case EvAuthenticate:
		h.onAuthenticate(ev)
	case EvJoinRoom:
		h.onJoin(ev)
	case EvLeaveRoom:
		h.onLeave(ev)
	case EvTypingStart:
		h.onTyping(ev, true)
	case EvTypingStop:
		h.onTyping(ev, false)
	case EvMarkRead:
		h.onMarkRead(ev)
	case EvDisconnect:
		h.onDisconnect(ev)
	case EvForceDisconnect:
		h.onForceDisconnect(ev)
	default:
		logger.Warnf("[lifecycle] no handler for kind=%d", ev.Kind)
	}

	h.refreshGauges()
}

func (h *Handler) refreshGauges() {
	observability.Connections.Set(float64(h.reg.CountConns()))
	observability.OnlineUsers.Set(float64(h.reg.CountUsers()))
	observability.ActiveRooms.Set(float64(h.rooms.CountRooms()))
}

// ===== 各转移 =====

func (h *Handler) onConnect(ev Event) {
	h.reg.AddConn(ev.ConnID)
	h.router.SendToConn(ev.ConnID, EventConnected, map[string]any{
		"connectionId": ev.ConnID,
		"timestamp":    h.conf.Clock().UnixMilli(),
	})
}

func (h *Handler) onAuthenticate(ev Event) {
	if ev.UserID == "" {
		h.router.SendToConn(ev.ConnID, EventAuthError, map[string]any{
			"error": "authentication required",
		})
		return
	}

	firstConn, err := h.reg.RegisterConnection(ev.ConnID, ev.UserID, ev.Email)
	if err != nil {
		h.router.SendToConn(ev.ConnID, EventAuthError, map[string]any{"error": err.Error()})
		return
	}

	if m := h.conf.Mirror; m != nil {
		connID := ev.ConnID
		userID := ev.UserID
		safe.SafeGo(func() { m.Online(userID, connID) })
	}
	if firstConn {
		h.publish("presence.online."+ev.UserID, map[string]any{
			"userId": ev.UserID,
			"ts":     h.conf.Clock().UnixMilli(),
		})
	}

	h.router.SendToConn(ev.ConnID, EventAuthenticated, map[string]any{
		"userId": ev.UserID,
		"rooms":  roomNames(h.rooms.RoomsOf(ev.UserID)),
	})
}

func (h *Handler) onJoin(ev Event) {
	entry, ok := h.reg.Get(ev.ConnID)
	if !ok || entry.UserID == "" {
		h.router.SendToConn(ev.ConnID, EventJoinError, map[string]any{
			"exchangeId": ev.Room,
			"error":      "authentication required",
		})
		return
	}

	id, first := h.rooms.Join(ev.Room, entry.UserID)
	if first {
		// 通知其他成员；加入者自己这条连接除外（他的其他端要收）
		h.router.SendToRoomExcept(string(id), "", ev.ConnID, EventUserJoined, map[string]any{
			"userId":     entry.UserID,
			"exchangeId": string(id),
		})
		h.publish("exchange.join."+string(id), map[string]any{
			"userId": entry.UserID,
			"ts":     h.conf.Clock().UnixMilli(),
		})
	}

	h.router.SendToConn(ev.ConnID, EventJoinedExchange, map[string]any{
		"exchangeId": string(id),
		"rooms":      roomNames(h.rooms.RoomsOf(entry.UserID)),
	})
}

func (h *Handler) onLeave(ev Event) {
	entry, ok := h.reg.Get(ev.ConnID)
	if !ok || entry.UserID == "" {
		h.router.SendToConn(ev.ConnID, EventAuthError, map[string]any{
			"error": "authentication required",
		})
		return
	}

	id, removed := h.rooms.Leave(ev.Room, entry.UserID)
	if !removed {
		// 没加入过，静默 no-op
		return
	}
	h.router.SendToRoom(string(id), EventUserLeft, map[string]any{
		"userId":     entry.UserID,
		"exchangeId": string(id),
	})
	h.publish("exchange.leave."+string(id), map[string]any{
		"userId": entry.UserID,
		"ts":     h.conf.Clock().UnixMilli(),
	})
}

func (h *Handler) onTyping(ev Event, start bool) {
	entry, ok := h.reg.Get(ev.ConnID)
	if !ok || entry.UserID == "" {
		h.router.SendToConn(ev.ConnID, EventAuthError, map[string]any{
			"error": "authentication required",
		})
		return
	}

	event := EventUserTyping
	if !start {
		event = EventUserStoppedTyping
	}
	id := h.rooms.Alias().Canonical(ev.Room)
	// 不落任何状态，只给房间里其他人递一下
	h.router.SendToRoomExcept(string(id), entry.UserID, "", event, map[string]any{
		"userId":     entry.UserID,
		"name":       displayName(entry.Email, entry.UserID),
		"exchangeId": string(id),
	})
}

func (h *Handler) onMarkRead(ev Event) {
	entry, ok := h.reg.Get(ev.ConnID)
	if !ok || entry.UserID == "" {
		h.router.SendToConn(ev.ConnID, EventAuthError, map[string]any{
			"error": "authentication required",
		})
		return
	}

	id := h.rooms.Alias().Canonical(ev.Room)
	// 已读位置的持久化是落库服务的事，这里只转发信号
	h.router.SendToRoomExcept(string(id), entry.UserID, "", EventMessageRead, map[string]any{
		"messageId": ev.MessageID,
		"userId":    entry.UserID,
		"timestamp": h.conf.Clock().UnixMilli(),
	})
}

func (h *Handler) onDisconnect(ev Event) {
	userID, wentOffline := h.reg.UnregisterConnection(ev.ConnID)
	if userID == "" {
		// 匿名连接或重复断开
		return
	}

	if m := h.conf.Mirror; m != nil {
		connID := ev.ConnID
		off := wentOffline
		safe.SafeGo(func() { m.Offline(userID, connID, off) })
	}

	if !wentOffline {
		// 用户还有别的端在线：成员关系不动，也不广播
		return
	}

	now := h.conf.Clock().UnixMilli()
	for _, id := range h.rooms.RoomsOf(userID) {
		h.rooms.Leave(string(id), userID)
		h.router.SendToRoom(string(id), EventUserOffline, map[string]any{
			"userId":    userID,
			"timestamp": now,
		})
	}
	h.publish("presence.offline."+userID, map[string]any{
		"userId": userID,
		"reason": ev.Reason,
		"ts":     now,
	})
}

// onForceDisconnect 管理命令：踢掉该用户全部连接，每条都走正常断开路径。
func (h *Handler) onForceDisconnect(ev Event) {
	for _, connID := range h.reg.ConnectionsOf(ev.UserID) {
		h.router.SendToConn(connID, EventForceDisconnect, map[string]any{
			"reason": ev.Reason,
		})
		h.router.Close(connID, ev.Reason)
		h.onDisconnect(Event{Kind: EvDisconnect, ConnID: connID, Reason: ev.Reason})
	}
}

func (h *Handler) publish(subject string, v any) {
	if f := h.conf.Feed; f != nil {
		safe.SafeGo(func() { f.Publish(subject, v) })
	}
}

// ===== 工具 =====

// displayName 从邮箱取展示名（@ 前缀），没有邮箱就退回 userId
func displayName(email, userID string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	if email != "" {
		return email
	}
	return userID
}

func roomNames(ids []RoomID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
