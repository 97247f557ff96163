package server

import (
	"github.com/riverrun/vftpd/internal/ftpderr"
	"github.com/riverrun/vftpd/internal/reply"
)

// replyForError implements the table-driven mapping from spec §7: command
// implementations never propagate raw OS errors outward, so by the time an
// error reaches here it is always a *ftpderr.Error.
func replyForError(err error) reply.Reply {
	switch ftpderr.KindOf(err) {
	case ftpderr.KindNotLoggedIn:
		return reply.New(530, "Not logged in")
	case ftpderr.KindInvalidPath:
		// Scenario C (spec §8) requires an escape attempt to read exactly
		// like a missing file: 550, not a distinguishable 501, so a probe
		// can't tell "escapes the root" from "doesn't exist" at the wire.
		return reply.New(550, "File unavailable")
	case ftpderr.KindNotFound:
		return reply.New(550, "File unavailable")
	case ftpderr.KindPermission:
		return reply.New(550, "Insufficient permissions!")
	case ftpderr.KindNotADirectory:
		return reply.New(501, "Not a directory")
	case ftpderr.KindNotAFile:
		return reply.New(501, "Not a file")
	case ftpderr.KindOS:
		return reply.New(451, "Local error in processing")
	case ftpderr.KindSyntax:
		return reply.New(501, "Syntax error in parameters or arguments")
	case ftpderr.KindBadSequence:
		return reply.New(503, "Bad sequence of commands")
	case ftpderr.KindAuthNotAvailable:
		return reply.New(431, "TLS not available")
	case ftpderr.KindTransferAborted:
		return reply.New(426, "Connection closed; transfer aborted")
	default: // ftpderr.KindSystem and anything unmapped
		return reply.New(451, "Internal error")
	}
}
