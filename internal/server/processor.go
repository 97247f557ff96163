package server

import (
	"context"

	"github.com/riverrun/vftpd/internal/command"
	"github.com/riverrun/vftpd/internal/reply"
)

// handlerFunc implements one verb's full contract: argument validation,
// login check (applied by dispatch before the call), the operation, and
// reply emission.
type handlerFunc func(ctx context.Context, c *Connection, cmd command.Command)

type verbEntry struct {
	fn            handlerFunc
	requiresLogin bool
}

// dispatchTable is the command processor's table, built once.
var dispatchTable = map[command.Verb]verbEntry{
	command.USER: {handleUSER, false},
	command.PASS: {handlePASS, false},
	command.AUTH: {handleAUTH, false},
	command.FEAT: {handleFEAT, false},
	command.NOOP: {handleNOOP, false},
	command.QUIT: {handleQUIT, false},
	command.SYST: {handleSYST, false},

	command.PBSZ: {handlePBSZ, true},
	command.PROT: {handlePROT, true},
	command.OPTS: {handleOPTS, true},
	command.PWD:  {handlePWD, true},
	command.CWD:  {handleCWD, true},
	command.CDUP: {handleCDUP, true},
	command.TYPE: {handleTYPE, true},
	command.MODE: {handleMODE, true},
	command.STRU: {handleSTRU, true},
	command.PASV: {handlePASV, true},
	command.EPSV: {handleEPSV, true},
	command.LIST: {handleLIST, true},
	command.NLST: {handleNLST, true},
	command.MLSD: {handleMLSD, true},
	command.RETR: {handleRETR, true},
	command.STOR: {handleSTOR, true},
	command.APPE: {handleAPPE, true},
	command.REST: {handleREST, true},
	command.ABOR: {handleABOR, true},
	command.MKD:  {handleMKD, true},
	command.RMD:  {handleRMD, true},
	command.RMDA: {handleRMDA, true},
	command.DELE: {handleDELE, true},
	command.RNFR: {handleRNFR, true},
	command.RNTO: {handleRNTO, true},
	command.MFMT: {handleMFMT, true},
	command.MFCT: {handleMFCT, true},
}

// dispatch evaluates one parsed command against (session, data-wrapper,
// reply sender), applying the shared login-gate before handing off to the
// verb's own handler.
func (c *Connection) dispatch(ctx context.Context, cmd command.Command) {
	if cmd.Verb == command.Unknown {
		_ = c.sender.Send(reply.New(502, "Command not implemented"))
		return
	}
	entry, ok := dispatchTable[cmd.Verb]
	if !ok {
		_ = c.sender.Send(reply.New(502, "Command not implemented"))
		return
	}
	if entry.requiresLogin && !c.sess.IsLoggedIn() {
		_ = c.sender.Send(reply.New(530, "Not logged in"))
		return
	}
	entry.fn(ctx, c, cmd)
}
