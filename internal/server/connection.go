package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riverrun/vftpd/internal/command"
	"github.com/riverrun/vftpd/internal/datachan"
	"github.com/riverrun/vftpd/internal/reply"
	"github.com/riverrun/vftpd/internal/session"
	"github.com/sirupsen/logrus"
)

// Connection owns one client connection end to end: the control-line
// reader, the reply sender, the session's mutable state, its data-channel
// wrapper, and the set of in-flight command tasks.
type Connection struct {
	srv     *Context
	control net.Conn
	reader  *bufio.Reader
	sender  *ReplySender
	sess    *session.Properties
	wrapper *datachan.Wrapper

	// newTCPAcceptor builds a fresh TCP/TLS Acceptor for PASV; nil when the
	// transport is QUIC (which reuses the connection itself instead).
	newTCPAcceptor func(protected bool) datachan.Acceptor

	id  string
	log *logrus.Entry

	inFlight sync.WaitGroup
	cancel   context.CancelFunc

	// readGate is a one-token gate readLines must hold before calling
	// ReadString. Every command releases it immediately after dispatch
	// except AUTH, which holds it until the TLS handshake has completed and
	// the reader has been swapped, so the plaintext reader never races the
	// handshake for bytes off the same socket.
	readGate chan struct{}
}

// NewConnection wires a Connection around an already-accepted control
// connection. newTCPAcceptor is nil for QUIC transports, which install
// their data-channel Acceptor afterwards via SetQUICAcceptor.
func NewConnection(srv *Context, control net.Conn, newTCPAcceptor func(protected bool) datachan.Acceptor) *Connection {
	id := uuid.NewString()
	c := &Connection{
		srv:            srv,
		control:        control,
		reader:         bufio.NewReader(control),
		sender:         NewReplySender(control),
		sess:           session.New(),
		newTCPAcceptor: newTCPAcceptor,
		id:             id,
		log:            srv.Log.WithField("conn", id),
		readGate:       make(chan struct{}, 1),
	}
	if newTCPAcceptor != nil {
		c.wrapper = datachan.New(newTCPAcceptor(false), srv.Timeouts.DataAttachGrace, srv.Timeouts.DataAcquire)
	}
	return c
}

// SetQUICAcceptor installs a QUIC-backed data-channel wrapper (QUIC
// transports have no fresh listener to build per PASV).
func (c *Connection) SetQUICAcceptor(acceptor datachan.Acceptor) {
	c.wrapper = datachan.New(acceptor, c.srv.Timeouts.DataAttachGrace, c.srv.Timeouts.DataAcquire)
}

// Serve runs the connection's main loop until ctx is cancelled or the
// client disconnects.
func (c *Connection) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.log.Info("client connected")
	defer c.log.Info("client disconnected")

	if err := c.sender.Send(reply.New(220, "Hello")); err != nil {
		return
	}

	lineCh := make(chan string)
	errCh := make(chan error, 1)
	c.readGate <- struct{}{}
	go c.readLines(lineCh, errCh)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-errCh:
			c.shutdown()
			return
		case line := <-lineCh:
			cmd := command.Parse(line)
			c.log.WithField("verb", cmd.Verb).Debug("dispatching command")
			c.inFlight.Add(1)
			go func() {
				defer c.inFlight.Done()
				c.dispatchRecovered(ctx, cmd)
			}()
			// AUTH releases the gate itself once the TLS handshake and
			// reader swap are done; every other command may be read past
			// immediately, including while it is still running.
			if cmd.Verb != command.AUTH {
				c.readGate <- struct{}{}
			}
		}
	}
}

// readLines feeds parsed wire lines to lineCh until EOF or a read error,
// which it reports on errCh. Runs as its own goroutine so a blocking
// transfer command never stalls reading the next control line.
func (c *Connection) readLines(lineCh chan<- string, errCh chan<- error) {
	for {
		<-c.readGate
		line, err := c.reader.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}
}

// dispatchRecovered calls dispatch, converting any panic into a 421 reply
// and a connection close rather than taking the whole handler down.
func (c *Connection) dispatchRecovered(ctx context.Context, cmd command.Command) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("command implementation panicked")
			_ = c.sender.Send(reply.New(421, "Service not available, closing control connection"))
			c.cancel()
		}
	}()
	c.dispatch(ctx, cmd)
}

// shutdown implements the graceful-drain sequence from spec §4.8: give
// in-flight commands time to finish, abort and close the data wrapper,
// then close the control connection (the reply sender writes to it and
// has no separate close step).
func (c *Connection) shutdown() {
	waitTimeout(&c.inFlight, c.srv.Timeouts.CommandDrain)
	if c.wrapper != nil {
		c.wrapper.Abort()
		done := make(chan struct{})
		go func() {
			c.wrapper.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(c.srv.Timeouts.GracefulPerTask):
		}
	}
	c.control.Close()
}

// upgradeControlToTLS performs the AUTH TLS handshake in place, swapping the
// connection's reader and sender to wrap the new tls.Conn. The 234 reply
// that precedes the handshake on the wire has already been sent in plain
// text by the caller's contract (spec §4.3); here we only do the handshake
// and rewire the control channel afterward, so callers must send 234 first.
// The caller (handleAUTH) is responsible for releasing c.readGate once this
// returns, whatever the outcome, since readLines is blocked on it for the
// duration to avoid two readers racing for bytes off the same socket.
func (c *Connection) upgradeControlToTLS() error {
	tlsConn := tls.Server(c.control, c.srv.TLSConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return err
	}
	c.control = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.sender = NewReplySender(tlsConn)
	return nil
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
