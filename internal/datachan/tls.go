package datachan

import (
	"context"
	"crypto/tls"
	"net"
)

// TLSAcceptor layers a TLS server handshake on top of a TCPAcceptor, for
// the protected-data-channel case (PROT P).
type TLSAcceptor struct {
	tcp    *TCPAcceptor
	config *tls.Config
}

// NewTLSAcceptor builds a TLS-wrapping acceptor.
func NewTLSAcceptor(bindIP, advertisedIP net.IP, config *tls.Config) *TLSAcceptor {
	return &TLSAcceptor{tcp: NewTCPAcceptor(bindIP, advertisedIP), config: config}
}

// Listen implements Acceptor.
func (a *TLSAcceptor) Listen(ctx context.Context) (Address, error) {
	return a.tcp.Listen(ctx)
}

// AcceptOnce implements Acceptor: accepts the raw TCP connection, then
// performs the TLS server handshake before handing the stream back.
func (a *TLSAcceptor) AcceptOnce(ctx context.Context) (net.Conn, error) {
	conn, err := a.tcp.AcceptOnce(ctx)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Server(conn, a.config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Close implements Acceptor.
func (a *TLSAcceptor) Close() error {
	return a.tcp.Close()
}
