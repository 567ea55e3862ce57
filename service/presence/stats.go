package presence

// Stats 管理接口的快照。usersByRoom/roomsByUser 是计数，
// 成员名单走 RoomMembers。
type Stats struct {
	TotalConnections int            `json:"totalConnections"`
	ConnectedUsers   int            `json:"connectedUsers"`
	ActiveRooms      int            `json:"activeRooms"`
	UsersByRoom      map[string]int `json:"usersByRoom"`
	RoomsByUser      map[string]int `json:"roomsByUser"`
}

// Stats 可与事件处理并发调用（只读路径）。
func (h *Handler) Stats() Stats {
	usersByRoom, roomsByUser := h.rooms.Snapshot()
	return Stats{
		TotalConnections: h.reg.CountConns(),
		ConnectedUsers:   h.reg.CountUsers(),
		ActiveRooms:      h.rooms.CountRooms(),
		UsersByRoom:      usersByRoom,
		RoomsByUser:      roomsByUser,
	}
}

// RoomMembers 房间成员名单（任意拼写）
func (h *Handler) RoomMembers(room string) []string {
	return h.rooms.MembersOf(room)
}

// SendToUser 管理接口直发。用户离线返回 false。
func (h *Handler) SendToUser(userID, event string, data map[string]any) bool {
	return h.router.SendToUser(userID, event, data)
}

// SendToRoom 管理接口按房间直发
func (h *Handler) SendToRoom(room, event string, data map[string]any) {
	h.router.SendToRoom(room, event, data)
}

// DisconnectUser 管理命令：异步踢人（走单写协程）
func (h *Handler) DisconnectUser(userID, reason string) {
	h.Submit(Event{Kind: EvForceDisconnect, UserID: userID, Reason: reason})
}
