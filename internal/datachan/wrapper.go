// Package datachan implements the transport-neutral data-channel
// lifecycle: open (tell the client how to attach), acquire (wait for the
// one attach and hand back a stream for one transfer), abort, and close.
//
// The three transports (TCP, TCP+TLS, QUIC) each implement the small
// Acceptor interface; Wrapper itself holds all of the lifecycle and
// concurrency logic so it is identical across transports, the way the
// source's standard_data_channel_wrapper unifies TCP/TLS and the
// quic wrappers share one shape.
package datachan

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "datachan")

// Address is what Open hands back for the client to attach to: either a
// concrete IPv4 endpoint (TCP/TLS, encoded as the PASV six-tuple) or an
// informational string (QUIC, which reuses the session's own connection).
type Address struct {
	IP   net.IP
	Port int
	Info string
}

// SixTuple renders the PASV h1,h2,h3,h4,p1,p2 encoding. Only meaningful
// for an IPv4 Address; ok is false for anything else (e.g. QUIC).
func (a Address) SixTuple() (tuple string, ok bool) {
	ip4 := a.IP.To4()
	if ip4 == nil {
		return "", false
	}
	p1 := a.Port / 256
	p2 := a.Port % 256
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip4[0], ip4[1], ip4[2], ip4[3], p1, p2), true
}

// Acceptor is implemented once per transport. Listen binds/prepares to
// receive exactly one client attach and returns the address to advertise;
// AcceptOnce blocks (respecting ctx) for that one attach; Close releases
// any transport resources (e.g. the ephemeral listener).
type Acceptor interface {
	Listen(ctx context.Context) (Address, error)
	AcceptOnce(ctx context.Context) (net.Conn, error)
	Close() error
}

// Wrapper is the per-session data-channel lifecycle object described in
// spec §4.6. One Wrapper is created with the session and destroyed with
// it; Open/Acquire/Abort/Close are all safe to call concurrently.
type Wrapper struct {
	acceptor       Acceptor
	attachGrace    time.Duration
	acquireTimeout time.Duration

	mu             sync.Mutex
	ready          chan net.Conn
	acceptCancel   context.CancelFunc
	transferCancel context.CancelFunc
}

// New constructs a Wrapper around the given transport Acceptor.
// attachGrace is the window the background acceptor waits for the client
// to connect after Open (20s per spec); acquireTimeout bounds Acquire's
// wait for a ready stream (15s production, 3s recommended for tests).
func New(acceptor Acceptor, attachGrace, acquireTimeout time.Duration) *Wrapper {
	return &Wrapper{
		acceptor:       acceptor,
		attachGrace:    attachGrace,
		acquireTimeout: acquireTimeout,
	}
}

// Open instructs the client how to attach and spawns the background task
// that awaits exactly one attach. Reopening supersedes any prior open,
// draining (closing) a previously queued-but-unconsumed stream.
func (w *Wrapper) Open(ctx context.Context) (Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.supersedeLocked()

	addr, err := w.acceptor.Listen(ctx)
	if err != nil {
		return Address{}, ftpderr.Wrap(ftpderr.KindOS, "open data channel", err)
	}

	acceptCtx, cancel := context.WithTimeout(context.Background(), w.attachGrace)
	w.acceptCancel = cancel
	ready := make(chan net.Conn, 1)
	w.ready = ready

	go func() {
		conn, err := w.acceptor.AcceptOnce(acceptCtx)
		if err != nil {
			// Timeout or supersession is non-fatal: simply no stream is
			// produced and a later Acquire will time out with bad-sequence.
			return
		}
		select {
		case ready <- conn:
		default:
			conn.Close()
		}
	}()

	return addr, nil
}

// supersedeLocked cancels any in-flight accept and drains a queued stream.
// Caller must hold w.mu.
func (w *Wrapper) supersedeLocked() {
	if w.acceptCancel != nil {
		w.acceptCancel()
		w.acceptCancel = nil
	}
	if w.ready != nil {
		select {
		case conn := <-w.ready:
			if conn != nil {
				conn.Close()
			}
		default:
		}
		w.ready = nil
	}
}

// Acquire awaits the next ready stream and returns it together with a
// cancel function that Abort triggers. Acquire without a prior Open, or a
// second Acquire without a fresh Open, fails with KindBadSequence at once;
// after an Open, Acquire waits up to the acquire timeout for the client to
// attach and fails with KindBadSequence if it does not. Open always
// precedes acquire, and the wrapper never multiplexes two transfers.
func (w *Wrapper) Acquire(ctx context.Context) (net.Conn, context.Context, error) {
	w.mu.Lock()
	ready := w.ready
	w.mu.Unlock()

	if ready == nil {
		return nil, nil, ftpderr.New(ftpderr.KindBadSequence, "no data channel open")
	}

	timer := time.NewTimer(w.acquireTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-ready:
		if !ok || conn == nil {
			return nil, nil, ftpderr.New(ftpderr.KindBadSequence, "data channel closed before attach")
		}
		w.mu.Lock()
		if w.ready == ready {
			w.ready = nil // one-shot: consumed, next transfer needs a fresh Open
		}
		transferCtx, cancel := context.WithCancel(context.Background())
		w.transferCancel = cancel
		w.mu.Unlock()
		return conn, transferCtx, nil
	case <-timer.C:
		return nil, nil, ftpderr.New(ftpderr.KindBadSequence, "timed out waiting for data channel attach")
	case <-ctx.Done():
		return nil, nil, ftpderr.Wrap(ftpderr.KindBadSequence, "acquire cancelled", ctx.Err())
	}
}

// Abort cancels the current transfer's token, if any. It is terminal only
// for that transfer; the next successful Acquire creates a fresh token.
func (w *Wrapper) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.transferCancel != nil {
		w.transferCancel()
		w.transferCancel = nil
	}
}

// Quiescent reports whether no transfer token is outstanding. A token is
// outstanding from a successful Acquire until Abort or Close, including
// after its transfer has finished. The ABOR handler uses it to decide
// whether there is a transfer to abort.
func (w *Wrapper) Quiescent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transferCancel == nil
}

// Close drains and shuts down any queued streams and releases transport
// resources.
func (w *Wrapper) Close() error {
	w.mu.Lock()
	w.supersedeLocked()
	if w.transferCancel != nil {
		w.transferCancel()
		w.transferCancel = nil
	}
	w.mu.Unlock()
	return w.acceptor.Close()
}
