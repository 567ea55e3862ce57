package gateway

import (
	"net"
	"net/http"

	"EPresence/logger"
	"EPresence/service/presence"
	ids "EPresence/tools/ids"
	"EPresence/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS ===== WebSocket 处理 =====
// 握手成功即 connect；之后读循环把帧翻译成状态机事件。
// 一条连接的事件按到达顺序进同一个队列，跨连接不保证先后。
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	connID := ids.GenerateConnID()
	s.conns.Add(connID, ws)
	s.handler.Submit(presence.Event{Kind: presence.EvConnect, ConnID: connID})

	reason := "client closed"

	// ---- 读循环：只读，不写；出错即退出 ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s err=%v", connID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				reason = "read timeout"
				logger.Infof("[ws] read timeout conn=%s err=%v", connID, rerr)
			} else {
				reason = "read error"
				logger.Infof("[ws] read err conn=%s err=%v", connID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrameJSON(data)
		if perr != nil {
			// 只打印简短样本
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] ParseFrameJSON err conn=%s err=%v sample=%q", connID, perr, sample)
			continue
		}

		s.dispatchFrame(connID, frame)
	}

	// ---- 退出阶段：走正常断开路径，清理写泵 ----
	s.handler.Submit(presence.Event{Kind: presence.EvDisconnect, ConnID: connID, Reason: reason})
	s.conns.Remove(connID)
}

func (s *Server) dispatchFrame(connID string, frame *InboundFrame) {
	switch frame.Type {
	case frameAuthenticate:
		s.handleAuthFrame(connID, frame)
	case frameMessage:
		s.handleMessageFrame(connID, frame)
	default:
		ev, err := frame.toEvent(connID)
		if err != nil {
			logger.Infof("[ws] bad frame conn=%s err=%v", connID, err)
			return
		}
		s.handler.Submit(ev)
	}
}

// handleAuthFrame 身份解包在传输层做；核心只认 userId/email。
// 带 token 就在这里验签取 claims，验不过 userId 留空 => 核心回 auth_error。
func (s *Server) handleAuthFrame(connID string, frame *InboundFrame) {
	d, err := frame.payload()
	if err != nil {
		logger.Infof("[ws] auth payload err conn=%s err=%v", connID, err)
		s.handler.Submit(presence.Event{Kind: presence.EvAuthenticate, ConnID: connID})
		return
	}

	userID, email := d.UserID, d.Email
	if d.Token != "" {
		id, verr := security.ParseIdentity(s.identity, d.Token)
		if verr != nil {
			logger.Infof("[ws] token verify failed conn=%s err=%v", connID, verr)
			userID, email = "", ""
		} else {
			userID, email = id.UserID, id.Email
		}
	}

	s.handler.Submit(presence.Event{
		Kind:   presence.EvAuthenticate,
		ConnID: connID,
		UserID: userID,
		Email:  email,
	})
}

// handleMessageFrame 消息体不进状态机，整包转发给落库服务。
func (s *Server) handleMessageFrame(connID string, frame *InboundFrame) {
	entry, ok := s.handler.Registry().Get(connID)
	if !ok || entry.UserID == "" {
		s.handler.Router().SendToConn(connID, presence.EventAuthError, map[string]any{
			"error": "authentication required",
		})
		return
	}
	if s.relay == nil {
		logger.Warnf("[ws] message relay disabled, drop conn=%s", connID)
		return
	}

	d, err := frame.payload()
	if err != nil || d.ExchangeID == "" {
		logger.Infof("[ws] message frame missing exchangeId conn=%s", connID)
		return
	}
	canon := s.handler.Rooms().Alias().Canonical(d.ExchangeID)
	if err := s.relay.RelayMessage(string(canon), frame.Data); err != nil {
		logger.Errorf("[ws] relay failed conn=%s exchange=%s err=%v", connID, canon, err)
	}
}
