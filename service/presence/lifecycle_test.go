package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(h *Handler, connID string) {
	h.apply(Event{Kind: EvConnect, ConnID: connID})
}

func authenticate(h *Handler, connID, userID, email string) {
	h.apply(Event{Kind: EvAuthenticate, ConnID: connID, UserID: userID, Email: email})
}

func join(h *Handler, connID, room string) {
	h.apply(Event{Kind: EvJoinRoom, ConnID: connID, Room: room})
}

func TestConnectEmitsConnectedToSelfOnly(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	connect(h, "c2")

	require.Equal(t, 1, sender.countEvents("c1", EventConnected))
	f, _ := sender.lastFrame("c1")
	assert.Equal(t, "c1", f.Data["connectionId"])
	assert.NotZero(t, f.Data["timestamp"])
	// 每条连接只收自己的 ack
	assert.Equal(t, 1, sender.countEvents("c2", EventConnected))
	f, _ = sender.lastFrame("c2")
	assert.Equal(t, "c2", f.Data["connectionId"])
}

func TestAuthenticateWithoutUserIDStaysAnonymous(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "", "")

	assert.Equal(t, 1, sender.countEvents("c1", EventAuthError))
	entry, ok := h.Registry().Get("c1")
	require.True(t, ok, "连接保持打开")
	assert.Empty(t, entry.UserID)
}

func TestAuthenticateAckCarriesRooms(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")

	require.Equal(t, 1, sender.countEvents("c1", EventAuthenticated))
	f, _ := sender.lastFrame("c1")
	assert.Equal(t, "u1", f.Data["userId"])
	assert.Empty(t, f.Data["rooms"])

	// 第二条连接授权时应带上已有房间
	join(h, "c1", "ex-42")
	connect(h, "c2")
	authenticate(h, "c2", "u1", "u1@x.com")
	f, _ = sender.lastFrame("c2")
	assert.Equal(t, EventAuthenticated, f.Event)
	assert.Equal(t, []any{"ex-42"}, f.Data["rooms"])
}

func TestJoinRequiresAuthentication(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	join(h, "c1", "ex-42")

	require.Equal(t, 1, sender.countEvents("c1", EventJoinError))
	f, _ := sender.lastFrame("c1")
	assert.Equal(t, "ex-42", f.Data["exchangeId"])
	assert.Empty(t, h.RoomMembers("ex-42"))
}

func TestTwoUsersJoinScenario(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-42")

	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")
	join(h, "c2", "ex-42")

	// u1 恰好收到一条 user_joined{u2, ex-42}
	require.Equal(t, 1, sender.countEvents("c1", EventUserJoined))
	var joined Frame
	for _, f := range sender.framesOf("c1") {
		if f.Event == EventUserJoined {
			joined = f
		}
	}
	assert.Equal(t, "u2", joined.Data["userId"])
	assert.Equal(t, "ex-42", joined.Data["exchangeId"])

	// 加入者自己不收 user_joined，只收 ack
	assert.Equal(t, 0, sender.countEvents("c2", EventUserJoined))
	assert.Equal(t, 1, sender.countEvents("c2", EventJoinedExchange))

	assert.ElementsMatch(t, []string{"u1", "u2"}, h.RoomMembers("ex-42"))
}

func TestRejoinDoesNotRenotify(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-42")

	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")
	join(h, "c2", "ex-42")
	join(h, "c2", "ex-42") // 同用户重复加入

	assert.Equal(t, 1, sender.countEvents("c1", EventUserJoined))
	assert.Equal(t, 2, sender.countEvents("c2", EventJoinedExchange), "ack 每次都回")
}

func TestJoinNotifiesUsersOtherConnections(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "a1")
	authenticate(h, "a1", "u1", "u1@x.com")
	connect(h, "a2")
	authenticate(h, "a2", "u1", "u1@x.com")

	connect(h, "b")
	authenticate(h, "b", "u2", "u2@x.com")
	join(h, "b", "ex-1")
	join(h, "a1", "ex-1")

	// 排除的是发起加入的那条连接，u1 的另一端要收到
	assert.Equal(t, 0, sender.countEvents("a1", EventUserJoined))
	assert.Equal(t, 1, sender.countEvents("a2", EventUserJoined))
	assert.Equal(t, 1, sender.countEvents("b", EventUserJoined))
}

func TestLeaveBroadcastsToRemaining(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-1")
	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")
	join(h, "c2", "ex-1")

	h.apply(Event{Kind: EvLeaveRoom, ConnID: "c2", Room: "ex-1"})

	require.Equal(t, 1, sender.countEvents("c1", EventUserLeft))
	f, _ := sender.lastFrame("c1")
	assert.Equal(t, "u2", f.Data["userId"])
	assert.Equal(t, 0, sender.countEvents("c2", EventUserLeft), "离开者不再是成员")
	assert.ElementsMatch(t, []string{"u1"}, h.RoomMembers("ex-1"))
}

func TestLeaveWithoutJoinSilent(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-1")
	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")

	h.apply(Event{Kind: EvLeaveRoom, ConnID: "c2", Room: "ex-1"})

	assert.Equal(t, 0, sender.countEvents("c1", EventUserLeft))
	assert.Equal(t, 0, sender.countEvents("c2", EventAuthError))
}

func TestMultiConnectionIsolation(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "A")
	authenticate(h, "A", "u1", "u1@x.com")
	connect(h, "B")
	authenticate(h, "B", "u1", "u1@x.com")
	join(h, "A", "ex-7")

	connect(h, "other")
	authenticate(h, "other", "u2", "u2@x.com")
	join(h, "other", "ex-7")

	// 断开 A：还有 B 在线，不广播下线、成员关系不动
	h.apply(Event{Kind: EvDisconnect, ConnID: "A"})
	assert.Equal(t, 0, sender.countEvents("other", EventUserOffline))
	assert.Contains(t, h.RoomMembers("ex-7"), "u1")
	assert.True(t, h.Registry().IsOnline("u1"))

	// 断开 B：这回是真下线，恰好一条 user_offline
	h.apply(Event{Kind: EvDisconnect, ConnID: "B"})
	assert.Equal(t, 1, sender.countEvents("other", EventUserOffline))
	assert.NotContains(t, h.RoomMembers("ex-7"), "u1")
	assert.False(t, h.Registry().IsOnline("u1"))
}

func TestDisconnectEmitsOfflinePerRoom(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-1")
	join(h, "c1", "ex-2")

	connect(h, "w1")
	authenticate(h, "w1", "watcher1", "w1@x.com")
	join(h, "w1", "ex-1")
	connect(h, "w2")
	authenticate(h, "w2", "watcher2", "w2@x.com")
	join(h, "w2", "ex-2")

	h.apply(Event{Kind: EvDisconnect, ConnID: "c1"})

	assert.Equal(t, 1, sender.countEvents("w1", EventUserOffline))
	assert.Equal(t, 1, sender.countEvents("w2", EventUserOffline))
	assert.Empty(t, h.Rooms().RoomsOf("u1"))
}

func TestDisconnectIdempotent(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	connect(h, "w")
	authenticate(h, "w", "u2", "u2@x.com")
	join(h, "c1", "ex-1")
	join(h, "w", "ex-1")

	h.apply(Event{Kind: EvDisconnect, ConnID: "c1"})
	h.apply(Event{Kind: EvDisconnect, ConnID: "c1"})

	assert.Equal(t, 1, sender.countEvents("w", EventUserOffline))
}

func TestTypingBroadcast(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "a1")
	authenticate(h, "a1", "u1", "alice@exchange.io")
	connect(h, "a2")
	authenticate(h, "a2", "u1", "alice@exchange.io")
	join(h, "a1", "ex-1")
	connect(h, "b")
	authenticate(h, "b", "u2", "bob@exchange.io")
	join(h, "b", "ex-1")

	h.apply(Event{Kind: EvTypingStart, ConnID: "a1", Room: "ex-1"})

	// 只给其他成员；打字者自己的所有端都不收
	require.Equal(t, 1, sender.countEvents("b", EventUserTyping))
	assert.Equal(t, 0, sender.countEvents("a1", EventUserTyping))
	assert.Equal(t, 0, sender.countEvents("a2", EventUserTyping))

	f, _ := sender.lastFrame("b")
	assert.Equal(t, "alice", f.Data["name"], "展示名取邮箱 @ 前缀")
	assert.Equal(t, "u1", f.Data["userId"])

	h.apply(Event{Kind: EvTypingStop, ConnID: "a1", Room: "ex-1"})
	assert.Equal(t, 1, sender.countEvents("b", EventUserStoppedTyping))
}

func TestTypingRequiresAuthentication(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	h.apply(Event{Kind: EvTypingStart, ConnID: "c1", Room: "ex-1"})
	assert.Equal(t, 1, sender.countEvents("c1", EventAuthError))
}

func TestMarkReadBroadcast(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-1")
	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")
	join(h, "c2", "ex-1")

	h.apply(Event{Kind: EvMarkRead, ConnID: "c2", Room: "ex-1", MessageID: "m-99"})

	require.Equal(t, 1, sender.countEvents("c1", EventMessageRead))
	f, _ := sender.lastFrame("c1")
	assert.Equal(t, "m-99", f.Data["messageId"])
	assert.Equal(t, "u2", f.Data["userId"])
	assert.NotZero(t, f.Data["timestamp"])
	assert.Equal(t, 0, sender.countEvents("c2", EventMessageRead))
}

func TestAliasJoinAndBroadcastReachSameConnections(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "exchange_42") // 下划线拼写加入

	connect(h, "c2")
	authenticate(h, "c2", "u2", "u2@x.com")
	join(h, "c2", "exchange-42") // 连字符拼写加入

	// u2 的加入只通知一次（一个逻辑房间）
	assert.Equal(t, 1, sender.countEvents("c1", EventUserJoined))
	assert.ElementsMatch(t, []string{"u1", "u2"}, h.RoomMembers("exchange_42"))
	assert.ElementsMatch(t, []string{"u1", "u2"}, h.RoomMembers("exchange-42"))

	h.SendToRoom("exchange_42", "notice", map[string]any{})
	assert.Equal(t, 1, sender.countEvents("c1", "notice"))
	assert.Equal(t, 1, sender.countEvents("c2", "notice"))
}

func TestForceDisconnectUser(t *testing.T) {
	h, sender := newTestHandler()
	connect(h, "A")
	authenticate(h, "A", "u1", "u1@x.com")
	connect(h, "B")
	authenticate(h, "B", "u1", "u1@x.com")
	join(h, "A", "ex-1")

	connect(h, "w")
	authenticate(h, "w", "u2", "u2@x.com")
	join(h, "w", "ex-1")

	h.apply(Event{Kind: EvForceDisconnect, UserID: "u1", Reason: "banned"})

	// 每条连接先收 force_disconnect 再被关掉
	assert.Equal(t, 1, sender.countEvents("A", EventForceDisconnect))
	assert.Equal(t, 1, sender.countEvents("B", EventForceDisconnect))
	assert.Equal(t, "banned", sender.closed["A"])
	assert.Equal(t, "banned", sender.closed["B"])

	// 正常断开路径收尾：真下线 + 清房间
	assert.False(t, h.Registry().IsOnline("u1"))
	assert.Equal(t, 1, sender.countEvents("w", EventUserOffline))
	assert.NotContains(t, h.RoomMembers("ex-1"), "u1")
}

// 队列塞满时断开事件也不能丢：丢了注册表就永久漏一条连接。
func TestDisconnectSurvivesFullQueue(t *testing.T) {
	sender := newCaptureSender()
	reg := NewRegistry()
	rooms := NewTracker(NewAliasTable())
	router := NewRouter(reg, rooms, sender)
	h := NewHandler(reg, rooms, router, HandlerConf{QueueSize: 1})

	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	join(h, "c1", "ex-1")

	// 先塞满队列，再提交断开
	h.Submit(Event{Kind: EvTypingStart, ConnID: "c1", Room: "ex-1"})
	go h.Submit(Event{Kind: EvDisconnect, ConnID: "c1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	require.Eventually(t, func() bool {
		return !h.Registry().IsOnline("u1")
	}, 2*time.Second, 10*time.Millisecond, "断开事件被消费后用户应下线")
	assert.Empty(t, h.RoomMembers("ex-1"))
	assert.Equal(t, 0, h.Registry().CountConns())
}

func TestStatsSnapshot(t *testing.T) {
	h, _ := newTestHandler()
	connect(h, "c1")
	authenticate(h, "c1", "u1", "u1@x.com")
	connect(h, "c2")
	authenticate(h, "c2", "u1", "u1@x.com")
	join(h, "c1", "ex-1")
	connect(h, "c3")
	authenticate(h, "c3", "u2", "u2@x.com")
	join(h, "c3", "ex-1")

	st := h.Stats()
	assert.Equal(t, 3, st.TotalConnections)
	assert.Equal(t, 2, st.ConnectedUsers)
	assert.Equal(t, 1, st.ActiveRooms)
	assert.Equal(t, 2, st.UsersByRoom["ex-1"])
	assert.Equal(t, 1, st.RoomsByUser["u1"])
}
