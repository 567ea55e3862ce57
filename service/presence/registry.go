package presence

import (
	errs "EPresence/tools/errs"
	"sync"
	"time"
)

// ===== 数据结构 =====

// ConnEntry 一条物理连接。UserId 为空表示还在未授权阶段。
type ConnEntry struct {
	ConnID          string
	UserID          string
	Email           string
	ConnectedAt     time.Time
	AuthenticatedAt time.Time
}

// UserSession 用户会话：在线 = Conns 非空。集合清空时整个会话删除。
type UserSession struct {
	UserID string
	Email  string
	Conns  map[string]struct{}
}

// Registry 用户 <-> 连接 的双向索引。
// 写路径只有 lifecycle 单协程；读（IsOnline/ConnectionsOf/统计）可并发。
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*ConnEntry   // 主索引：connID -> entry
	byUser map[string]*UserSession // 辅助索引：userID -> session

	clock func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*ConnEntry),
		byUser: make(map[string]*UserSession),
		clock:  time.Now,
	}
}

// AddConn 传输层 connect 时登记未授权连接。重复登记返回已有 entry。
func (r *Registry) AddConn(connID string) *ConnEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[connID]; ok {
		return e
	}
	e := &ConnEntry{ConnID: connID, ConnectedAt: r.clock()}
	r.conns[connID] = e
	return e
}

// RegisterConnection 把连接绑定到已验证的用户。
// userID 为空直接拒绝（AuthenticationRequired），不做任何变更。
// 幂等：同一连接绑定同一用户，第二次调用状态不变。
// 返回 firstConn：该用户是否因此从离线转为在线。
func (r *Registry) RegisterConnection(connID, userID, email string) (firstConn bool, err error) {
	if userID == "" {
		return false, errs.ErrAuthenticationRequired.WrapMsg("register", "conn", connID)
	}
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		e = &ConnEntry{ConnID: connID, ConnectedAt: now}
		r.conns[connID] = e
	}

	if e.UserID == userID {
		// 幂等路径
		return false, nil
	}

	// 连接曾绑到别的用户：先从旧索引摘掉
	if e.UserID != "" {
		if s := r.byUser[e.UserID]; s != nil {
			delete(s.Conns, connID)
			if len(s.Conns) == 0 {
				delete(r.byUser, e.UserID)
			}
		}
	}

	s := r.byUser[userID]
	if s == nil {
		s = &UserSession{UserID: userID, Email: email, Conns: make(map[string]struct{})}
		r.byUser[userID] = s
		firstConn = true
	}
	if email != "" {
		s.Email = email
	}
	s.Conns[connID] = struct{}{}

	e.UserID = userID
	e.Email = s.Email
	e.AuthenticatedAt = now
	return firstConn, nil
}

// UnregisterConnection 移除连接。
// “还有没有其他连接”的判断和移除在同一个临界区里完成，
// 避免与同用户重连交错后发出假的 user_offline。
func (r *Registry) UnregisterConnection(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	if e.UserID == "" {
		return "", false
	}
	userID = e.UserID

	s := r.byUser[userID]
	if s == nil {
		return userID, false
	}
	delete(s.Conns, connID)
	if len(s.Conns) == 0 {
		delete(r.byUser, userID)
		return userID, true
	}
	return userID, false
}

// ===== 纯读 =====

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.byUser[userID]
	return s != nil && len(s.Conns) > 0
}

// ConnectionsOf 该用户所有活跃连接ID
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.byUser[userID]
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Conns))
	for id := range s.Conns {
		out = append(out, id)
	}
	return out
}

// Get 按连接ID取快照（值拷贝，调用方拿不到内部指针）
func (r *Registry) Get(connID string) (ConnEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return ConnEntry{}, false
	}
	return *e, true
}

func (r *Registry) EmailOf(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.byUser[userID]; s != nil {
		return s.Email
	}
	return ""
}

func (r *Registry) CountConns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) CountUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
