// Package relay implements the optional cloud-relay tunnel: a single
// outbound websocket connection, multiplexed with yamux, over which chat
// events are relayed to and from a remote control plane. Grounded on
// internal/bridge's dial/WebSocketRWC/yamux wiring, with the gRPC/protobuf
// service layer it used on top replaced by a JSON-framed stream protocol,
// since grpc/protobuf are not part of this module's dependency set.
package relay

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn to net.Conn so it can back a yamux
// session, mirroring core/internal/bridge/websocket_rwc.go's WebSocketRWC.
type wsConn struct {
	conn *websocket.Conn
	r    io.Reader
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error                      { return c.conn.Close() }
func (c *wsConn) LocalAddr() net.Addr               { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr              { return c.conn.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error      { return c.conn.UnderlyingConn().SetDeadline(t) }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
