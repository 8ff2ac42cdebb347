package session

import (
	"sync"
	"time"

	"github.com/qiminjie89/rtsession/pkg/transport"
)

// socket 单个传输实例，写操作串行化
type socket struct {
	id        SocketID
	conn      transport.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSocket(id SocketID, conn transport.Conn) *socket {
	return &socket{id: id, conn: conn}
}

func (s *socket) write(frameType int, data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.WriteMessage(frameType, data)
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
