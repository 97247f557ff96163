package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/riverrun/vftpd/internal/command"
	"github.com/riverrun/vftpd/internal/datachan"
	"github.com/riverrun/vftpd/internal/fsview"
	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/riverrun/vftpd/internal/reply"
	"github.com/riverrun/vftpd/internal/session"
)

func handleTYPE(ctx context.Context, c *Connection, cmd command.Command) {
	arg := strings.ToUpper(strings.TrimSpace(cmd.Argument))
	if arg == "" {
		_ = c.sender.Send(reply.New(501, "Mode not specified!"))
		return
	}
	switch arg {
	case "A", "A N", "A T", "A C":
		c.sess.SetDataType(session.TypeASCII)
	case "I":
		c.sess.SetDataType(session.TypeImage)
	default:
		_ = c.sender.Send(reply.New(504, "Unsupported TYPE"))
		return
	}
	_ = c.sender.Send(reply.New(200, "Type set"))
}

func handleMODE(ctx context.Context, c *Connection, cmd command.Command) {
	if strings.ToUpper(strings.TrimSpace(cmd.Argument)) != "S" {
		_ = c.sender.Send(reply.New(504, "Only stream mode is supported"))
		return
	}
	_ = c.sender.Send(reply.New(200, "Mode set to stream"))
}

func handleSTRU(ctx context.Context, c *Connection, cmd command.Command) {
	if strings.ToUpper(strings.TrimSpace(cmd.Argument)) != "F" {
		_ = c.sender.Send(reply.New(504, "Only file structure is supported"))
		return
	}
	_ = c.sender.Send(reply.New(200, "Structure set to file"))
}

// openDataChannel rebuilds the wrapper for the transport's current
// protection level (TCP/TLS transports get a fresh listener per PASV/EPSV;
// QUIC reuses the existing connection-backed wrapper) and opens it.
func (c *Connection) openDataChannel(ctx context.Context) (datachan.Address, error) {
	if c.newTCPAcceptor != nil {
		if c.wrapper != nil {
			c.wrapper.Close()
		}
		protected := c.sess.Protection() == session.ProtectionPrivate
		c.wrapper = datachan.New(c.newTCPAcceptor(protected), c.srv.Timeouts.DataAttachGrace, c.srv.Timeouts.DataAcquire)
	}
	return c.wrapper.Open(ctx)
}

func handlePASV(ctx context.Context, c *Connection, cmd command.Command) {
	addr, err := c.openDataChannel(ctx)
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	tuple, ok := addr.SixTuple()
	if !ok {
		_ = c.sender.Send(reply.New(504, "Passive mode unavailable for this transport"))
		return
	}
	_ = c.sender.Send(reply.New(227, fmt.Sprintf("Entering Passive Mode (%s)", tuple)))
}

func handleEPSV(ctx context.Context, c *Connection, cmd command.Command) {
	addr, err := c.openDataChannel(ctx)
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(229, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", addr.Port)))
}

// acquireDataConn sends the 150 preface and acquires the one-shot data
// stream, mapping a failed acquire to the conventional 425 rather than the
// 503 that the generic error table gives the wrapper's KindBadSequence.
func (c *Connection) acquireDataConn(ctx context.Context, preface string) (net.Conn, context.Context, bool) {
	if c.wrapper == nil {
		_ = c.sender.Send(reply.New(425, "Can't open data connection"))
		return nil, nil, false
	}
	conn, transferCtx, err := c.wrapper.Acquire(ctx)
	if err != nil {
		c.log.WithError(err).Debug("data channel acquire failed")
		_ = c.sender.Send(reply.New(425, "Can't open data connection"))
		return nil, nil, false
	}
	_ = c.sender.Send(reply.New(150, preface))
	return conn, transferCtx, true
}

func renderEntries(entries []fsview.Entry, render func(fsview.Entry) string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(render(e))
		b.WriteString("\r\n")
	}
	return b.String()
}

// stripListFlags strips a leading "-a"/"-l"/"-al" (or "-la") flag token and
// the single space separating it from the path, matching the original's
// "^(-[al])? ?(.*)?$" handling of LIST/NLST/MLSD arguments. Flags are
// accepted but ignored, and an argument that is only a flag (or empty)
// leaves the path at ".", the current directory.
func stripListFlags(arg string) string {
	if strings.HasPrefix(arg, "-") {
		rest := arg[1:]
		for len(rest) > 0 && (rest[0] == 'a' || rest[0] == 'l') {
			rest = rest[1:]
		}
		if len(rest) != len(arg)-1 {
			arg = strings.TrimPrefix(rest, " ")
		}
	}
	if arg == "" {
		return "."
	}
	return arg
}

func (c *Connection) sendListing(ctx context.Context, cmd command.Command, render func(fsview.Entry) string) {
	path := stripListFlags(cmd.Argument)
	entries, err := c.sess.ViewRoot().ListDir(path)
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	conn, transferCtx, ok := c.acquireDataConn(ctx, "Opening data connection for directory listing")
	if !ok {
		return
	}
	defer conn.Close()

	payload := renderEntries(entries, render)
	writeErrCh := make(chan error, 1)
	go func() {
		_, err := io.WriteString(conn, payload)
		writeErrCh <- err
	}()

	select {
	case err := <-writeErrCh:
		if err != nil {
			_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
			return
		}
		_ = c.sender.Send(reply.New(226, "Transfer complete"))
	case <-transferCtx.Done():
		conn.Close()
		_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
	}
}

func handleLIST(ctx context.Context, c *Connection, cmd command.Command) {
	c.sendListing(ctx, cmd, fsview.Entry.RenderLIST)
}

func handleNLST(ctx context.Context, c *Connection, cmd command.Command) {
	c.sendListing(ctx, cmd, func(e fsview.Entry) string { return e.Name })
}

func handleMLSD(ctx context.Context, c *Connection, cmd command.Command) {
	c.sendListing(ctx, cmd, fsview.Entry.RenderMLSD)
}

func handleRETR(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	f, err := c.sess.ViewRoot().Open(cmd.Argument, fsview.OpenOptions{Read: true})
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	defer f.Close()

	offset := c.sess.ConsumeRestartOffset()
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			_ = c.sender.Send(replyForError(ftpderr.Wrap(ftpderr.KindOS, "seek to restart offset", err)))
			return
		}
	}

	conn, transferCtx, ok := c.acquireDataConn(ctx, "Opening data connection for file transfer")
	if !ok {
		return
	}
	defer conn.Close()

	copyErrCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(conn, f)
		copyErrCh <- err
	}()

	select {
	case err := <-copyErrCh:
		if err != nil {
			_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
			return
		}
		_ = c.sender.Send(reply.New(226, "Transfer complete"))
	case <-transferCtx.Done():
		conn.Close()
		_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
	}
}

func (c *Connection) receiveFile(ctx context.Context, arg string, opts fsview.OpenOptions) {
	if arg == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	f, err := c.sess.ViewRoot().Open(arg, opts)
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	defer f.Close()

	if !opts.Append {
		if offset := c.sess.ConsumeRestartOffset(); offset > 0 {
			if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
				_ = c.sender.Send(replyForError(ftpderr.Wrap(ftpderr.KindOS, "seek to restart offset", err)))
				return
			}
		}
	}

	conn, transferCtx, ok := c.acquireDataConn(ctx, "Opening data connection for file transfer")
	if !ok {
		return
	}
	defer conn.Close()

	copyErrCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(f, conn)
		copyErrCh <- err
	}()

	select {
	case err := <-copyErrCh:
		if err != nil && err != io.EOF {
			_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
			return
		}
		if err := f.Sync(); err != nil {
			_ = c.sender.Send(replyForError(ftpderr.Wrap(ftpderr.KindOS, "fsync received file", err)))
			return
		}
		_ = c.sender.Send(reply.New(226, "Transfer complete"))
	case <-transferCtx.Done():
		conn.Close()
		_ = c.sender.Send(reply.New(426, "Connection closed; transfer aborted"))
	}
}

func handleSTOR(ctx context.Context, c *Connection, cmd command.Command) {
	c.receiveFile(ctx, cmd.Argument, fsview.OpenOptions{Write: true, Create: true, Truncate: true})
}

func handleAPPE(ctx context.Context, c *Connection, cmd command.Command) {
	c.receiveFile(ctx, cmd.Argument, fsview.OpenOptions{Append: true, Create: true})
}

func handleREST(ctx context.Context, c *Connection, cmd command.Command) {
	offset, err := strconv.ParseUint(strings.TrimSpace(cmd.Argument), 10, 64)
	if err != nil {
		_ = c.sender.Send(replyForError(ftpderr.Wrap(ftpderr.KindSyntax, "REST requires a numeric offset", err)))
		return
	}
	c.sess.SetRestartOffset(offset)
	_ = c.sender.Send(reply.New(350, fmt.Sprintf("Restarting at %d", offset)))
}

func handleABOR(ctx context.Context, c *Connection, cmd command.Command) {
	if c.wrapper == nil || c.wrapper.Quiescent() {
		_ = c.sender.Send(reply.New(226, "No transfer in progress"))
		return
	}
	c.wrapper.Abort()
	_ = c.sender.Send(reply.New(226, "Abort successful"))
}
