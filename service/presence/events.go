package presence

// ===== 入站事件（tagged union）=====

type EventKind int

const (
	EvConnect EventKind = iota
	EvAuthenticate
	EvJoinRoom
	EvLeaveRoom
	EvTypingStart
	EvTypingStop
	EvMarkRead
	EvDisconnect
	EvForceDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EvConnect:
		return "connect"
	case EvAuthenticate:
		return "authenticate"
	case EvJoinRoom:
		return "join_exchange"
	case EvLeaveRoom:
		return "leave_exchange"
	case EvTypingStart:
		return "typing_start"
	case EvTypingStop:
		return "typing_stop"
	case EvMarkRead:
		return "mark_read"
	case EvDisconnect:
		return "disconnect"
	case EvForceDisconnect:
		return "force_disconnect"
	default:
		return "unknown"
	}
}

// Event 一条入站事件。字段按 Kind 取用：
//
//	EvAuthenticate    ConnID + UserID/Email（身份服务已验证；UserID 为空 => auth_error）
//	EvJoinRoom 等房间事件  ConnID + Room（任意拼写）
//	EvMarkRead        ConnID + Room + MessageID
//	EvDisconnect      ConnID + Reason
//	EvForceDisconnect UserID + Reason（管理命令，按用户）
type Event struct {
	Kind      EventKind
	ConnID    string
	UserID    string
	Email     string
	Room      string
	MessageID string
	Reason    string
}

// ===== 出站事件名（wire 协议）=====

const (
	EventConnected     = "connected"
	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"

	EventJoinedExchange = "joined_exchange"
	EventJoinError      = "join_error"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"

	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventMessageRead       = "message_read"

	EventUserOffline     = "user_offline"
	EventForceDisconnect = "force_disconnect"
)
