package presence

import (
	"encoding/json"
	"errors"
	"sync"
)

// captureSender 单测用的 Sender：按连接记录收到的帧。
type captureSender struct {
	mu     sync.Mutex
	frames map[string][]Frame
	gone   map[string]bool // 模拟已断开的连接
	closed map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{
		frames: make(map[string][]Frame),
		gone:   make(map[string]bool),
		closed: make(map[string]string),
	}
}

func (s *captureSender) Send(connID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone[connID] {
		return errors.New("connection gone")
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.frames[connID] = append(s.frames[connID], f)
	return nil
}

func (s *captureSender) Close(connID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[connID] = reason
	s.gone[connID] = true
}

func (s *captureSender) framesOf(connID string) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames[connID]...)
}

// countEvents 某连接收到的指定事件数
func (s *captureSender) countEvents(connID, event string) int {
	n := 0
	for _, f := range s.framesOf(connID) {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (s *captureSender) lastFrame(connID string) (Frame, bool) {
	fs := s.framesOf(connID)
	if len(fs) == 0 {
		return Frame{}, false
	}
	return fs[len(fs)-1], true
}

func (s *captureSender) markGone(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone[connID] = true
}

// newTestHandler 组装一套完整核心（不启动 Run，单测直接 apply）
func newTestHandler() (*Handler, *captureSender) {
	sender := newCaptureSender()
	reg := NewRegistry()
	rooms := NewTracker(NewAliasTable())
	router := NewRouter(reg, rooms, sender)
	h := NewHandler(reg, rooms, router, HandlerConf{})
	return h, sender
}
