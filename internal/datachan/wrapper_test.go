package datachan

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcceptor lets tests control exactly when (and whether) a connection
// becomes available, without opening real sockets.
type fakeAcceptor struct {
	conns  chan net.Conn
	closed bool
}

func newFakeAcceptor() *fakeAcceptor {
	return &fakeAcceptor{conns: make(chan net.Conn, 1)}
}

func (f *fakeAcceptor) Listen(ctx context.Context) (Address, error) {
	return Address{IP: net.ParseIP("127.0.0.1"), Port: 2121}, nil
}

func (f *fakeAcceptor) AcceptOnce(ctx context.Context) (net.Conn, error) {
	select {
	case c := <-f.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeAcceptor) Close() error {
	f.closed = true
	return nil
}

func pipeConn() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestAcquireWithoutOpenFails(t *testing.T) {
	w := New(newFakeAcceptor(), 200*time.Millisecond, 100*time.Millisecond)
	_, _, err := w.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindBadSequence))
}

func TestOpenThenAcquireSucceeds(t *testing.T) {
	acceptor := newFakeAcceptor()
	w := New(acceptor, time.Second, time.Second)
	_, err := w.Open(context.Background())
	require.NoError(t, err)

	client, server := pipeConn()
	defer client.Close()
	acceptor.conns <- server

	conn, transferCtx, err := w.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.NotNil(t, transferCtx)
	conn.Close()
}

func TestSecondAcquireWithoutFreshOpenFails(t *testing.T) {
	acceptor := newFakeAcceptor()
	w := New(acceptor, time.Second, 100*time.Millisecond)
	_, err := w.Open(context.Background())
	require.NoError(t, err)

	client, server := pipeConn()
	defer client.Close()
	acceptor.conns <- server

	conn, _, err := w.Acquire(context.Background())
	require.NoError(t, err)
	conn.Close()

	_, _, err = w.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, ftpderr.Is(err, ftpderr.KindBadSequence))
}

func TestAbortCancelsTransferContext(t *testing.T) {
	acceptor := newFakeAcceptor()
	w := New(acceptor, time.Second, time.Second)
	_, err := w.Open(context.Background())
	require.NoError(t, err)

	client, server := pipeConn()
	defer client.Close()
	acceptor.conns <- server

	conn, transferCtx, err := w.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, w.Quiescent())
	w.Abort()
	assert.True(t, w.Quiescent())

	select {
	case <-transferCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("transfer context was not cancelled by Abort")
	}
}

func TestReopenSupersedesAndDrainsPriorQueuedStream(t *testing.T) {
	acceptor := newFakeAcceptor()
	w := New(acceptor, time.Second, time.Second)

	_, err := w.Open(context.Background())
	require.NoError(t, err)
	client1, server1 := pipeConn()
	defer client1.Close()
	acceptor.conns <- server1
	time.Sleep(50 * time.Millisecond) // let the background goroutine queue it

	_, err = w.Open(context.Background())
	require.NoError(t, err)
	client2, server2 := pipeConn()
	defer client2.Close()
	acceptor.conns <- server2

	conn, _, err := w.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	// We can't directly assert which physical conn we got without
	// instrumenting pipeConn, but the acquire must succeed exactly once
	// and a second one must fail (one-shot, no multiplexing).
	_, _, err = w.Acquire(context.Background())
	assert.Error(t, err)
}
