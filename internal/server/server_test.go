package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/riverrun/vftpd/internal/datachan"
	"github.com/riverrun/vftpd/internal/fsview"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory auth.Source for end-to-end tests, avoiding a
// real sqlauth database.
type fakeSource struct {
	username string
	password string
	views    []*fsview.View
}

func (f *fakeSource) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	if creds.Username != f.username {
		return nil, &auth.Error{Kind: auth.KindUserNotFound}
	}
	if string(creds.Password) != f.password {
		return nil, &auth.Error{Kind: auth.KindInvalidCredentials}
	}
	return &auth.User{Username: f.username, Views: f.views}, nil
}

// pipeAcceptor is a datachan.Acceptor backed by a pre-wired net.Pipe half,
// standing in for a real TCP listener so these tests can drive the data
// channel without opening real sockets. internal/datachan's own tests also
// use a fake Acceptor, so the TCP/TLS Acceptors are not exercised by tests.
type pipeAcceptor struct {
	conn   net.Conn
	served bool
}

func (a *pipeAcceptor) Listen(ctx context.Context) (datachan.Address, error) {
	return datachan.Address{IP: net.ParseIP("127.0.0.1"), Port: 2121}, nil
}

func (a *pipeAcceptor) AcceptOnce(ctx context.Context) (net.Conn, error) {
	if a.served {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a.served = true
	return a.conn, nil
}

func (a *pipeAcceptor) Close() error { return nil }

// testHarness wires one Connection over a net.Pipe control channel and a
// pipeAcceptor-backed data channel, returning the client-facing control
// conn and the client-facing data conn for the test to drive.
type testHarness struct {
	t          *testing.T
	controlCli net.Conn
	dataCli    net.Conn
	reader     *bufio.Reader
	conn       *Connection
}

func newHarness(t *testing.T, views []*fsview.View, username, password string) *testHarness {
	t.Helper()
	controlCli, controlSrv := net.Pipe()
	dataCli, dataSrv := net.Pipe()
	t.Cleanup(func() { controlCli.Close(); dataCli.Close() })

	srv := &Context{
		Auth:     auth.NewProvider(&fakeSource{username: username, password: password, views: views}),
		Timeouts: TestTimeouts,
		Log:      logrus.NewEntry(logrus.New()),
	}

	acceptor := &pipeAcceptor{conn: dataSrv}
	c := NewConnection(srv, controlSrv, func(protected bool) datachan.Acceptor { return acceptor })

	h := &testHarness{t: t, controlCli: controlCli, dataCli: dataCli, reader: bufio.NewReader(controlCli), conn: c}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Serve(ctx)
	h.expectLine(t, "220")
	return h
}

func (h *testHarness) send(line string) {
	h.t.Helper()
	_, err := h.controlCli.Write([]byte(line + "\r\n"))
	require.NoError(h.t, err)
}

func (h *testHarness) expectLine(t *testing.T, codePrefix string) string {
	t.Helper()
	h.controlCli.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := h.reader.ReadString('\n')
	require.NoError(t, err)
	require.Greater(t, len(line), 3)
	assert.Contains(t, line, codePrefix)
	return line
}

func login(t *testing.T, h *testHarness, username, password string) {
	t.Helper()
	h.send("USER " + username)
	h.expectLine(t, "331")
	h.send("PASS " + password)
	h.expectLine(t, "230")
}

func TestLoginListDownloadScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello world"), 0o644))
	v, err := fsview.NewView("docs", dir, fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("TYPE I")
	h.expectLine(t, "200")

	h.send("PASV")
	h.expectLine(t, "227")

	h.send("RETR /docs/readme.txt")
	h.expectLine(t, "150")

	buf := make([]byte, 64)
	h.dataCli.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := h.dataCli.Read(buf)
	assert.Equal(t, "hello world", string(buf[:n]))

	h.expectLine(t, "226")
}

func TestEscapeAttemptIsRejected(t *testing.T) {
	dir := t.TempDir()
	v, err := fsview.NewView("docs", dir, fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("RETR /docs/../../../etc/passwd")
	line := h.expectLine(t, "550")
	assert.Contains(t, line, "File unavailable")
}

func TestPermissionDeniedOnStor(t *testing.T) {
	dir := t.TempDir()
	v, err := fsview.NewView("docs", dir, fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("PASV")
	h.expectLine(t, "227")
	h.send("STOR /docs/x.bin")
	line := h.expectLine(t, "550")
	assert.Contains(t, line, "Insufficient permissions!")

	_, err = os.Stat(filepath.Join(dir, "x.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestMultiViewPseudoRootScenario(t *testing.T) {
	pub, err := fsview.NewView("pub", t.TempDir(), fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)
	priv, err := fsview.NewView("priv", t.TempDir(), fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{pub, priv}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("PWD")
	line := h.expectLine(t, "257")
	assert.Contains(t, line, `"/"`)

	h.send("CWD priv")
	h.expectLine(t, "250")

	h.send("PWD")
	line = h.expectLine(t, "257")
	assert.Contains(t, line, `"/priv"`)
}

func TestRestartOffsetScenario(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), content, 0o644))
	v, err := fsview.NewView("docs", dir, fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("REST 1024")
	h.expectLine(t, "350")

	h.send("PASV")
	h.expectLine(t, "227")
	h.send("RETR /docs/big.bin")
	h.expectLine(t, "150")

	buf := make([]byte, 1)
	h.dataCli.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := h.dataCli.Read(buf)
	require.Equal(t, 1, n)
	assert.Equal(t, content[1024], buf[0])
}

func TestUnknownVerbReplies502(t *testing.T) {
	h := newHarness(t, nil, "alice", "s3cret")
	h.send("FROB something")
	h.expectLine(t, "502")
}

func TestCommandsRequireLoginFirst(t *testing.T) {
	h := newHarness(t, nil, "alice", "s3cret")
	h.send("PWD")
	h.expectLine(t, "530")
}

func TestCWDEmptyArgumentRejected(t *testing.T) {
	h := newHarness(t, nil, "alice", "s3cret")
	login(t, h, "alice", "s3cret")
	h.send("CWD")
	h.expectLine(t, "501")
}

func TestCDUPAtPseudoRootIsNotTaken(t *testing.T) {
	h := newHarness(t, nil, "alice", "s3cret")
	login(t, h, "alice", "s3cret")
	h.send("CDUP")
	h.expectLine(t, "450")
}

func TestCDUPAtViewRootIsNotTaken(t *testing.T) {
	v, err := fsview.NewView("docs", t.TempDir(), fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)
	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("CWD docs")
	h.expectLine(t, "250")
	h.send("CDUP")
	h.expectLine(t, "450")
}

func TestAbortMidTransfer(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 1<<20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), big, 0o644))
	v, err := fsview.NewView("docs", dir, fsview.NewPermissionSet(fsview.Read, fsview.List))
	require.NoError(t, err)

	h := newHarness(t, []*fsview.View{v}, "alice", "s3cret")
	login(t, h, "alice", "s3cret")

	h.send("PASV")
	h.expectLine(t, "227")
	h.send("RETR /docs/big.bin")
	h.expectLine(t, "150")

	// Don't drain the data connection: force the server's write to block,
	// then abort while the transfer is still in flight. ABOR's own 226
	// acknowledgement and the aborted transfer's 426 arrive from two
	// independent goroutines, so assert on the set rather than the order.
	h.send("ABOR")
	first := h.expectLine(t, "")
	second := h.expectLine(t, "")
	codes := first + second
	assert.Contains(t, codes, "426")
	assert.Contains(t, codes, "226")
}
