package server

import (
	"context"

	"github.com/riverrun/vftpd/internal/command"
	"github.com/riverrun/vftpd/internal/fsview"
	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/riverrun/vftpd/internal/reply"
)

func handlePWD(ctx context.Context, c *Connection, cmd command.Command) {
	cwd := c.sess.ViewRoot().GetCurrentWorkingDirectory()
	_ = c.sender.Send(reply.New(257, `"`+cwd+`" is the current directory`))
}

func handleCWD(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if err := c.sess.ViewRoot().ChangeWorkingDirectory(cmd.Argument); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "Directory successfully changed"))
}

// handleCDUP is CWD .., except "not taken" at the root (pseudo-root, or a
// view's own root) replies 450 rather than the generic invalid-path
// mapping: there's nowhere further up to go, which isn't an error so much
// as a no-op.
func handleCDUP(ctx context.Context, c *Connection, cmd command.Command) {
	if c.sess.ViewRoot().GetCurrentWorkingDirectory() == "/" {
		_ = c.sender.Send(reply.New(450, "Already at root, CDUP not taken"))
		return
	}
	err := c.sess.ViewRoot().ChangeWorkingDirectory("..")
	if err != nil {
		if ftpderr.KindOf(err) == ftpderr.KindInvalidPath {
			_ = c.sender.Send(reply.New(450, "Already at root, CDUP not taken"))
			return
		}
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "Directory successfully changed"))
}

func handleMKD(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if err := c.sess.ViewRoot().Mkdir(cmd.Argument); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(257, `"`+cmd.Argument+`" directory created`))
}

func handleRMD(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if err := c.sess.ViewRoot().Rmdir(cmd.Argument, false); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "Directory removed"))
}

func handleRMDA(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if err := c.sess.ViewRoot().Rmdir(cmd.Argument, true); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "Directory tree removed"))
}

func handleDELE(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if err := c.sess.ViewRoot().Delete(cmd.Argument); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "File removed"))
}

func handleRNFR(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "missing path")))
		return
	}
	if _, err := c.sess.ViewRoot().Stat(cmd.Argument); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	c.sess.SetRenameFrom(cmd.Argument)
	_ = c.sender.Send(reply.New(350, "Ready for RNTO"))
}

func handleRNTO(ctx context.Context, c *Connection, cmd command.Command) {
	from, ok := c.sess.ConsumeRenameFrom()
	if !ok {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindBadSequence, "RNFR required first")))
		return
	}
	if err := c.sess.ViewRoot().Rename(from, cmd.Argument); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(250, "Rename successful"))
}

func handleMFMT(ctx context.Context, c *Connection, cmd command.Command) {
	timeval, path, err := splitTimevalArg(cmd.Argument)
	if err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	t, err := fsview.ParseTimeval(timeval)
	if err != nil {
		_ = c.sender.Send(replyForError(ftpderr.Wrap(ftpderr.KindSyntax, "invalid timeval", err)))
		return
	}
	if err := c.sess.ViewRoot().SetModTime(path, t); err != nil {
		_ = c.sender.Send(replyForError(err))
		return
	}
	_ = c.sender.Send(reply.New(213, "Modify="+fsview.FormatTimeval(t)+"; "+path))
}

// handleMFCT behaves identically to MFMT in this implementation: only one
// mtime is tracked per entry, so "change time" and "modify time" alias.
func handleMFCT(ctx context.Context, c *Connection, cmd command.Command) {
	handleMFMT(ctx, c, cmd)
}

func splitTimevalArg(arg string) (timeval, path string, err error) {
	idx := -1
	for i, r := range arg {
		if r == ' ' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", ftpderr.New(ftpderr.KindSyntax, "expected TIMEVAL PATH")
	}
	return arg[:idx], arg[idx+1:], nil
}
