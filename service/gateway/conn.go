package gateway

import (
	"sync"
	"time"

	"EPresence/logger"
	errs "EPresence/tools/errs"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

// wsConn 一条物理连接。gorilla 的写不允许并发，
// 所以每连接一个发送队列 + 单写协程（写泵），关闭帧也只能由写泵发。
type wsConn struct {
	connID string
	conn   *websocket.Conn

	sendCh    chan []byte
	closeOnce sync.Once
	done      chan struct{}

	shutOnce sync.Once
	closing  chan struct{} // 服务端主动断开：先排空队列再发关闭帧
	reason   string
}

func newWsConn(connID string, conn *websocket.Conn, queue int) *wsConn {
	return &wsConn{
		connID:  connID,
		conn:    conn,
		sendCh:  make(chan []byte, queue),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// writePump 唯一的写入口；出错即关闭，读循环随后退出收尾。
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.closing:
			c.drainAndClose()
			return
		case data, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := c.write(data); err != nil {
				logger.Infof("[ws] write failed conn=%s err=%v", c.connID, err)
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// drainAndClose 把已排队的帧写完，再发关闭帧、断开底层连接
func (c *wsConn) drainAndClose() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.write(data); err != nil {
				c.close()
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, c.reason)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
			c.close()
			return
		}
	}
}

// shutdown 通知写泵收尾。幂等，不在调用方协程里碰连接。
func (c *wsConn) shutdown(reason string) {
	c.shutOnce.Do(func() {
		c.reason = reason
		close(c.closing)
	})
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ConnTable connID -> wsConn，实现 presence.Sender。
type ConnTable struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
	queue int
}

func NewConnTable(queue int) *ConnTable {
	if queue <= 0 {
		queue = 256
	}
	return &ConnTable{conns: make(map[string]*wsConn), queue: queue}
}

// Add 登记连接并启动写泵
func (t *ConnTable) Add(connID string, conn *websocket.Conn) *wsConn {
	c := newWsConn(connID, conn, t.queue)
	t.mu.Lock()
	t.conns[connID] = c
	t.mu.Unlock()
	go c.writePump()
	return c
}

func (t *ConnTable) Remove(connID string) {
	t.mu.Lock()
	c := t.conns[connID]
	delete(t.conns, connID)
	t.mu.Unlock()
	if c != nil {
		c.close()
	}
}

func (t *ConnTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Send 非阻塞入队。连接没了返回错误（上游静默跳过）；
// 队列满说明客户端读不过来，丢帧不丢连接。
func (t *ConnTable) Send(connID string, data []byte) error {
	t.mu.RLock()
	c := t.conns[connID]
	t.mu.RUnlock()
	if c == nil {
		return errs.ErrConnNotFound.WrapMsg("send", "conn", connID)
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		logger.Warnf("[ws] send queue full, drop frame conn=%s", connID)
		return nil
	}
}

// Close 服务端主动断开（force_disconnect 路径）。
// 只给写泵递信号：排空队列、发关闭帧都在写泵里做，
// 这里若直接 WriteMessage 会和写泵并发写同一条连接。
func (t *ConnTable) Close(connID, reason string) {
	t.mu.RLock()
	c := t.conns[connID]
	t.mu.RUnlock()
	if c == nil {
		return
	}
	c.shutdown(reason)
}
