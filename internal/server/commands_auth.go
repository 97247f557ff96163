package server

import (
	"context"
	"strings"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/riverrun/vftpd/internal/command"
	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/riverrun/vftpd/internal/reply"
	"github.com/riverrun/vftpd/internal/session"
)

func handleUSER(ctx context.Context, c *Connection, cmd command.Command) {
	if cmd.Argument == "" {
		_ = c.sender.Send(replyForError(ftpderr.New(ftpderr.KindSyntax, "")))
		return
	}
	c.sess.BeginLogin(cmd.Argument)
	_ = c.sender.Send(reply.New(331, "User name okay, need password"))
}

func handlePASS(ctx context.Context, c *Connection, cmd command.Command) {
	username, ok := c.sess.PendingUsername()
	if !ok {
		_ = c.sender.Send(reply.New(503, "Login with USER first"))
		return
	}
	password := []byte(cmd.Argument)
	defer auth.Zeroize(password)

	user, err := c.srv.Auth.Authenticate(ctx, auth.Credentials{Username: username, Password: password})
	if err != nil {
		c.sess.FailLogin()
		c.log.WithField("user", username).Warn("authentication failed")
		_ = c.sender.Send(reply.New(530, "Not logged in"))
		return
	}
	c.sess.CompleteLogin(user)
	c.log.WithField("user", username).Info("user authenticated")
	_ = c.sender.Send(reply.New(230, "User logged in, proceed"))
}

// handleAUTH is the one handler that holds c.readGate beyond its own
// return: the connection loop skips releasing it for AUTH so the control
// reader cannot race the TLS handshake for bytes off the same socket.
// Every path out of this function must release the gate exactly once.
func handleAUTH(ctx context.Context, c *Connection, cmd command.Command) {
	if c.srv.TLSConfig == nil {
		_ = c.sender.Send(reply.New(431, "TLS not available"))
		c.readGate <- struct{}{}
		return
	}
	if strings.ToUpper(cmd.Argument) != "TLS" {
		_ = c.sender.Send(reply.New(504, "Unsupported AUTH mechanism"))
		c.readGate <- struct{}{}
		return
	}
	_ = c.sender.Send(reply.New(234, "AUTH TLS successful"))
	if err := c.upgradeControlToTLS(); err != nil {
		c.log.WithError(err).Warn("control channel TLS upgrade failed")
		c.readGate <- struct{}{}
		c.cancel()
		return
	}
	c.readGate <- struct{}{}
}

func handlePBSZ(ctx context.Context, c *Connection, cmd command.Command) {
	if c.srv.TLSConfig == nil {
		_ = c.sender.Send(reply.New(431, "TLS not available"))
		return
	}
	if strings.TrimSpace(cmd.Argument) != "0" {
		_ = c.sender.Send(reply.New(501, "PBSZ only supports 0"))
		return
	}
	c.sess.SetPBSZAcknowledged()
	_ = c.sender.Send(reply.New(200, "PBSZ=0"))
}

func handlePROT(ctx context.Context, c *Connection, cmd command.Command) {
	if c.srv.TLSConfig == nil {
		_ = c.sender.Send(reply.New(431, "TLS not available"))
		return
	}
	switch strings.ToUpper(strings.TrimSpace(cmd.Argument)) {
	case "C":
		c.sess.SetProtection(session.ProtectionClear)
	case "P":
		c.sess.SetProtection(session.ProtectionPrivate)
	default:
		_ = c.sender.Send(reply.New(504, "Unsupported protection level"))
		return
	}
	_ = c.sender.Send(reply.New(200, "Protection level set"))
}

func handleFEAT(ctx context.Context, c *Connection, cmd command.Command) {
	middle := []string{" MLSD", " REST STREAM", " UTF8"}
	if c.srv.TLSConfig != nil {
		middle = append(middle, " AUTH TLS", " PBSZ", " PROT")
	}
	_ = c.sender.Send(reply.NewMultiline(211, "Supported features:", middle, "END"))
}

func handleOPTS(ctx context.Context, c *Connection, cmd command.Command) {
	if strings.EqualFold(strings.TrimSpace(cmd.Argument), "UTF8 ON") {
		c.sess.SetUTF8(true)
		_ = c.sender.Send(reply.New(200, "UTF8 ON"))
		return
	}
	_ = c.sender.Send(reply.New(501, "Unsupported option"))
}

func handleSYST(ctx context.Context, c *Connection, cmd command.Command) {
	_ = c.sender.Send(reply.New(215, "UNIX Type: L8"))
}

func handleNOOP(ctx context.Context, c *Connection, cmd command.Command) {
	_ = c.sender.Send(reply.New(200, "NOOP ok"))
}

func handleQUIT(ctx context.Context, c *Connection, cmd command.Command) {
	_ = c.sender.Send(reply.New(221, "Goodbye"))
	c.cancel()
}
