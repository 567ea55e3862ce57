package errs

// 错误码分段：1xx 鉴权；2xx 房间/连接；3xx 外部依赖
var (
	ErrAuthenticationRequired = NewCodeError(101, "authentication required")
	ErrTokenInvalid           = NewCodeError(102, "token invalid")

	ErrConnNotFound   = NewCodeError(201, "connection not found")
	ErrRecordIsExist  = NewCodeError(202, "record already exists")
	ErrInvalidFrame   = NewCodeError(203, "invalid frame")
	ErrUserNotOnline  = NewCodeError(204, "user not online")
	ErrRoomNotTracked = NewCodeError(205, "room not tracked")

	ErrRelayUnavailable = NewCodeError(301, "message relay unavailable")
)
