package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"relay/server/hub"
)

// netConn is the handle shared by a reader task and the coordinator. The
// reader only reads and the coordinator only writes; net.Conn supports one of
// each concurrently, so no lock guards the handle. The socket is closed when
// both owners have released it.
type netConn struct {
	id      hub.PeerID
	session string
	c       net.Conn

	refs      atomic.Int32
	closeOnce sync.Once
}

func newNetConn(c net.Conn) *netConn {
	n := &netConn{
		id:      hub.PeerID(c.RemoteAddr().String()),
		session: uuid.NewString(),
		c:       c,
	}
	n.refs.Store(2)
	return n
}

func (n *netConn) Identity() hub.PeerID {
	return n.id
}

func (n *netConn) Session() string {
	return n.session
}

func (n *netConn) Read(p []byte) (int, error) {
	return n.c.Read(p)
}

func (n *netConn) Write(p []byte) error {
	if _, err := n.c.Write(p); err != nil {
		return fmt.Errorf("error write to conn. %w", err)
	}
	return nil
}

// Release drops one owner. The last owner closes the socket.
func (n *netConn) Release() {
	if n.refs.Add(-1) == 0 {
		n.close()
	}
}

func (n *netConn) close() {
	n.closeOnce.Do(func() {
		_ = n.c.Close()
	})
}
