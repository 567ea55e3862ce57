package gateway

import (
	"encoding/json"
	"fmt"

	"EPresence/service/presence"
)

// ===== wire 协议 =====

// InboundFrame 客户端帧：{"type": "...", "data": {...}}
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// 入站负载，按 type 取字段
type inboundData struct {
	UserID     string `json:"userId,omitempty"`
	Email      string `json:"email,omitempty"`
	Token      string `json:"token,omitempty"`
	ExchangeID string `json:"exchangeId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
}

const (
	frameAuthenticate  = "authenticate"
	frameJoinExchange  = "join_exchange"
	frameLeaveExchange = "leave_exchange"
	frameTypingStart   = "typing_start"
	frameTypingStop    = "typing_stop"
	frameMarkRead      = "mark_read"
	frameMessage       = "message" // 不进状态机，转发给落库服务
)

func ParseFrameJSON(raw []byte) (*InboundFrame, error) {
	frame := &InboundFrame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return frame, nil
}

func (f *InboundFrame) payload() (*inboundData, error) {
	d := &inboundData{}
	if len(f.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(f.Data, d); err != nil {
		return nil, fmt.Errorf("unmarshal %s data failed: %w", f.Type, err)
	}
	return d, nil
}

// toEvent 把房间/已读帧映射成状态机事件。authenticate 和 message 单独走。
func (f *InboundFrame) toEvent(connID string) (presence.Event, error) {
	d, err := f.payload()
	if err != nil {
		return presence.Event{}, err
	}

	ev := presence.Event{ConnID: connID, Room: d.ExchangeID, MessageID: d.MessageID}
	switch f.Type {
	case frameJoinExchange:
		ev.Kind = presence.EvJoinRoom
	case frameLeaveExchange:
		ev.Kind = presence.EvLeaveRoom
	case frameTypingStart:
		ev.Kind = presence.EvTypingStart
	case frameTypingStop:
		ev.Kind = presence.EvTypingStop
	case frameMarkRead:
		ev.Kind = presence.EvMarkRead
	default:
		return presence.Event{}, fmt.Errorf("no mapping for frame type=%s", f.Type)
	}
	if ev.Room == "" {
		return presence.Event{}, fmt.Errorf("frame %s missing exchangeId", f.Type)
	}
	if ev.Kind == presence.EvMarkRead && ev.MessageID == "" {
		return presence.Event{}, fmt.Errorf("mark_read missing messageId")
	}
	return ev, nil
}
