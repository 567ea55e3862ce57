package presence

import "sync"

// Tracker 房间成员关系：room -> users 正排，user -> rooms 倒排。
// 倒排索引让断线清理只扫该用户自己加入过的房间，不用全表扫描。
// 成员关系以用户为粒度：同一用户多端连接共享一条成员记录。
type Tracker struct {
	mu    sync.RWMutex
	alias *AliasTable
	rooms map[RoomID]map[string]struct{} // 正排：room -> userIDs
	users map[string]map[RoomID]struct{} // 倒排：userID -> rooms
}

func NewTracker(alias *AliasTable) *Tracker {
	if alias == nil {
		alias = NewAliasTable()
	}
	return &Tracker{
		alias: alias,
		rooms: make(map[RoomID]map[string]struct{}),
		users: make(map[string]map[RoomID]struct{}),
	}
}

func (t *Tracker) Alias() *AliasTable { return t.alias }

// Join 加入房间（任意拼写，内部归一）。幂等。
// 返回规范ID和是否该用户首次加入（用于去重通知）。
func (t *Tracker) Join(room, userID string) (RoomID, bool) {
	id := t.alias.Canonical(room)
	if userID == "" {
		return id, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	members := t.rooms[id]
	if members == nil {
		members = make(map[string]struct{})
		t.rooms[id] = members
	}
	if _, ok := members[userID]; ok {
		return id, false
	}
	members[userID] = struct{}{}

	rs := t.users[userID]
	if rs == nil {
		rs = make(map[RoomID]struct{})
		t.users[userID] = rs
	}
	rs[id] = struct{}{}
	return id, true
}

// Leave 退出房间；未加入则是 no-op。房间空了就整条删掉。
func (t *Tracker) Leave(room, userID string) (RoomID, bool) {
	id := t.alias.Canonical(room)

	t.mu.Lock()
	defer t.mu.Unlock()
	return id, t.leaveLocked(id, userID)
}

func (t *Tracker) leaveLocked(id RoomID, userID string) bool {
	members, ok := t.rooms[id]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(t.rooms, id)
	}

	if rs := t.users[userID]; rs != nil {
		delete(rs, id)
		if len(rs) == 0 {
			delete(t.users, userID)
		}
	}
	return true
}

// ===== 纯读 =====

func (t *Tracker) MembersOf(room string) []string {
	id := t.alias.Canonical(room)

	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.rooms[id]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for u := range members {
		out = append(out, u)
	}
	return out
}

func (t *Tracker) IsMember(room, userID string) bool {
	id := t.alias.Canonical(room)

	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[id][userID]
	return ok
}

// RoomsOf 该用户加入的全部房间（倒排索引，O(用户自己的房间数)）
func (t *Tracker) RoomsOf(userID string) []RoomID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rs := t.users[userID]
	if len(rs) == 0 {
		return nil
	}
	out := make([]RoomID, 0, len(rs))
	for id := range rs {
		out = append(out, id)
	}
	return out
}

func (t *Tracker) CountRooms() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// Snapshot 统计用：每房间成员数 / 每用户房间数
func (t *Tracker) Snapshot() (usersByRoom map[string]int, roomsByUser map[string]int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	usersByRoom = make(map[string]int, len(t.rooms))
	for id, members := range t.rooms {
		usersByRoom[string(id)] = len(members)
	}
	roomsByUser = make(map[string]int, len(t.users))
	for u, rs := range t.users {
		roomsByUser[u] = len(rs)
	}
	return usersByRoom, roomsByUser
}
