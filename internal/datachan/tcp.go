package datachan

import (
	"context"
	"net"
)

// TCPAcceptor binds a fresh ephemeral port per Open call, the plain-TCP
// transport for PASV.
type TCPAcceptor struct {
	bindIP     net.IP
	advertised net.IP // address announced to the client (may differ behind NAT)
	listener   net.Listener
}

// NewTCPAcceptor builds an acceptor that binds on bindIP and advertises
// advertisedIP in the PASV reply.
func NewTCPAcceptor(bindIP, advertisedIP net.IP) *TCPAcceptor {
	return &TCPAcceptor{bindIP: bindIP, advertised: advertisedIP}
}

// Listen implements Acceptor.
func (a *TCPAcceptor) Listen(ctx context.Context) (Address, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(a.bindIP.String(), "0"))
	if err != nil {
		return Address{}, err
	}
	a.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port
	return Address{IP: a.advertised, Port: port}, nil
}

// AcceptOnce implements Acceptor. It accepts exactly one connection,
// respecting ctx's deadline by closing the listener when ctx is done.
func (a *TCPAcceptor) AcceptOnce(ctx context.Context) (net.Conn, error) {
	ln := a.listener
	if ln == nil {
		return nil, context.Canceled
	}
	type result struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		resultCh <- result{conn, err}
	}()
	select {
	case r := <-resultCh:
		return r.conn, r.err
	case <-ctx.Done():
		ln.Close()
		<-resultCh // drain the accept goroutine
		return nil, ctx.Err()
	}
}

// Close implements Acceptor.
func (a *TCPAcceptor) Close() error {
	if a.listener == nil {
		return nil
	}
	return a.listener.Close()
}
