package datachan

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICAcceptor reuses the session's already-established QUIC connection:
// unlike TCP/TLS there is no fresh listener per Open, only a fresh stream
// accept. The advertised Address is informational only (the client is
// already attached at the transport layer).
type QUICAcceptor struct {
	conn quic.Connection
}

// NewQUICAcceptor builds an acceptor bound to the session's QUIC
// connection.
func NewQUICAcceptor(conn quic.Connection) *QUICAcceptor {
	return &QUICAcceptor{conn: conn}
}

// Listen implements Acceptor: there's nothing to bind, so this just
// reports the existing connection's remote address as informational
// Address.Info.
func (a *QUICAcceptor) Listen(ctx context.Context) (Address, error) {
	return Address{Info: a.conn.RemoteAddr().String()}, nil
}

// AcceptOnce implements Acceptor: awaits the client opening (exactly) one
// stream on the existing connection.
func (a *QUICAcceptor) AcceptOnce(ctx context.Context) (net.Conn, error) {
	stream, err := a.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStreamConn{stream: stream, conn: a.conn}, nil
}

// Close implements Acceptor. The underlying QUIC connection outlives the
// data channel (it is the control channel too), so Close is a no-op here;
// the connection handler owns the connection's lifetime.
func (a *QUICAcceptor) Close() error { return nil }

// quicStreamConn adapts a quic.Stream (io.Reader/Writer with its own
// deadlines, but no address methods) to net.Conn so the rest of the code
// can treat every transport's data stream uniformly.
type quicStreamConn struct {
	stream quic.Stream
	conn   quic.Connection
}

func (c *quicStreamConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *quicStreamConn) Write(b []byte) (int, error) { return c.stream.Write(b) }
func (c *quicStreamConn) Close() error                { return c.stream.Close() }
func (c *quicStreamConn) LocalAddr() net.Addr         { return c.conn.LocalAddr() }
func (c *quicStreamConn) RemoteAddr() net.Addr        { return c.conn.RemoteAddr() }
func (c *quicStreamConn) SetDeadline(t time.Time) error {
	return c.stream.SetDeadline(t)
}
func (c *quicStreamConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}
func (c *quicStreamConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}
