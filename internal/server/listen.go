package server

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/riverrun/vftpd/internal/datachan"
	"golang.org/x/sync/errgroup"
)

// ListenConfig bundles the three transport addresses a deployment may
// offer; an empty address disables that listener entirely.
type ListenConfig struct {
	TCPAddress    string
	TCPTLSAddress string
	QUICAddress   string
}

// Serve runs every configured listener concurrently and blocks until one
// fails or ctx is cancelled, at which point every listener is torn down
// together — the same all-or-nothing shutdown shape as the graceful drain
// each Connection performs individually.
func Serve(ctx context.Context, srv *Context, lc ListenConfig) error {
	g, ctx := errgroup.WithContext(ctx)

	if lc.TCPAddress != "" {
		ln, err := net.Listen("tcp", lc.TCPAddress)
		if err != nil {
			return err
		}
		g.Go(func() error { return serveTCP(ctx, srv, ln, false) })
	}
	if lc.TCPTLSAddress != "" && srv.TLSConfig != nil {
		ln, err := net.Listen("tcp", lc.TCPTLSAddress)
		if err != nil {
			return err
		}
		g.Go(func() error { return serveTCP(ctx, srv, ln, true) })
	}
	if lc.QUICAddress != "" && srv.TLSConfig != nil {
		ln, err := quic.ListenAddr(lc.QUICAddress, srv.TLSConfig.Clone(), nil)
		if err != nil {
			return err
		}
		g.Go(func() error { return serveQUIC(ctx, srv, ln) })
	}

	return g.Wait()
}

// serveTCP accepts plain or implicit-TLS control connections (controlIsTLS
// selects the implicit form; AUTH TLS upgrades a plain connection in
// place regardless of this flag). Every accepted connection gets its own
// data-channel Acceptor factory closed over the server Context's
// BindIP/AdvertiseIP.
func serveTCP(ctx context.Context, srv *Context, ln net.Listener, controlIsTLS bool) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if controlIsTLS {
			conn = tls.Server(conn, srv.TLSConfig)
		}
		newAcceptor := func(protected bool) datachan.Acceptor {
			bindIP := net.ParseIP(srv.BindIP)
			advertiseIP := net.ParseIP(srv.AdvertiseIP)
			if protected && srv.TLSConfig != nil {
				return datachan.NewTLSAcceptor(bindIP, advertiseIP, srv.TLSConfig)
			}
			return datachan.NewTCPAcceptor(bindIP, advertiseIP)
		}
		c := NewConnection(srv, conn, newAcceptor)
		go c.Serve(ctx)
	}
}

// serveQUIC accepts QUIC connections, treating each as both the control
// channel and the data-channel transport (one extra stream per transfer).
func serveQUIC(ctx context.Context, srv *Context, ln *quic.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		qconn, err := ln.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		stream, err := qconn.AcceptStream(ctx)
		if err != nil {
			srv.Log.WithError(err).Warn("quic control stream accept failed")
			continue
		}
		c := NewConnection(srv, &quicControlConn{stream: stream, conn: qconn}, nil)
		c.SetQUICAcceptor(datachan.NewQUICAcceptor(qconn))
		go c.Serve(ctx)
	}
}

// quicControlConn adapts the QUIC control stream plus its parent
// connection's addresses to net.Conn, the same shape datachan's
// quicStreamConn gives the data channel.
type quicControlConn struct {
	stream quic.Stream
	conn   quic.Connection
}

func (c *quicControlConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *quicControlConn) Write(b []byte) (int, error) { return c.stream.Write(b) }
func (c *quicControlConn) Close() error                { return c.stream.Close() }
func (c *quicControlConn) LocalAddr() net.Addr         { return c.conn.LocalAddr() }
func (c *quicControlConn) RemoteAddr() net.Addr        { return c.conn.RemoteAddr() }
func (c *quicControlConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *quicControlConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *quicControlConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
