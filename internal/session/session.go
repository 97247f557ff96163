// Package session holds per-connection mutable state: the login
// handshake, the authenticated user's view root, and transfer settings.
package session

import (
	"sync"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/riverrun/vftpd/internal/fsview"
)

// DataType is the announced transfer type (TYPE command). Only advisory:
// transfers are always binary per spec Non-goals (no ASCII conversion).
type DataType int

const (
	TypeASCII DataType = iota
	TypeImage
)

// TransferMode is the announced MODE (only Stream is accepted).
type TransferMode int

const (
	ModeStream TransferMode = iota
)

// ProtectionLevel is the negotiated PROT setting.
type ProtectionLevel int

const (
	ProtectionClear ProtectionLevel = iota
	ProtectionPrivate
)

// LoginForm holds the in-progress login handshake: a captured username,
// waiting for PASS. The password itself lives only on the stack of the
// PASS handler and is zeroized immediately after use — it is never stored
// here.
type LoginForm struct {
	Username string
}

// Properties is the mutable per-client session state. Guarded by RWMutex:
// most commands take RLock, CWD/CDUP-equivalent mutations take Lock.
type Properties struct {
	mu sync.RWMutex

	loginForm   *LoginForm
	user        *auth.User
	viewRoot    *fsview.ViewRoot
	dataType    DataType
	transferMode TransferMode
	protection  ProtectionLevel
	restOffset  uint64
	pbszSet     bool
	utf8        bool
	renameFrom  string
}

// New constructs a fresh, unauthenticated session.
func New() *Properties {
	return &Properties{
		dataType:    TypeImage,
		transferMode: ModeStream,
		protection:  ProtectionClear,
	}
}

// BeginLogin records a USER argument, starting (or restarting) the login
// handshake and clearing any prior authenticated state.
func (p *Properties) BeginLogin(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginForm = &LoginForm{Username: username}
	p.user = nil
	p.viewRoot = nil
}

// PendingUsername returns the username captured by USER, if any.
func (p *Properties) PendingUsername() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.loginForm == nil {
		return "", false
	}
	return p.loginForm.Username, true
}

// CompleteLogin marks the session authenticated as user, clearing the
// pending login form.
func (p *Properties) CompleteLogin(user *auth.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginForm = nil
	p.user = user
	p.viewRoot = fsview.NewViewRoot(user.Views)
}

// FailLogin clears the pending login form without authenticating.
func (p *Properties) FailLogin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginForm = nil
}

// IsLoggedIn reports whether a user has completed authentication.
func (p *Properties) IsLoggedIn() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user != nil
}

// Username returns the authenticated username, or "" if not logged in.
func (p *Properties) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return ""
	}
	return p.user.Username
}

// ViewRoot returns the session's view root. Nil until login completes.
func (p *Properties) ViewRoot() *fsview.ViewRoot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewRoot
}

// SetDataType records the TYPE command's argument.
func (p *Properties) SetDataType(t DataType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataType = t
}

// DataTypeValue returns the current announced data type.
func (p *Properties) DataTypeValue() DataType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dataType
}

// SetProtection records the negotiated PROT level.
func (p *Properties) SetProtection(level ProtectionLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.protection = level
}

// Protection returns the current protection level.
func (p *Properties) Protection() ProtectionLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.protection
}

// SetPBSZAcknowledged records that PBSZ 0 was accepted.
func (p *Properties) SetPBSZAcknowledged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pbszSet = true
}

// PBSZAcknowledged reports whether PBSZ has been accepted.
func (p *Properties) PBSZAcknowledged() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pbszSet
}

// SetRestartOffset stores the REST offset for the next transfer.
func (p *Properties) SetRestartOffset(offset uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restOffset = offset
}

// ConsumeRestartOffset returns the stored REST offset and resets it to 0,
// per spec: "consumed and reset by the next transfer."
func (p *Properties) ConsumeRestartOffset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	offset := p.restOffset
	p.restOffset = 0
	return offset
}

// SetUTF8 records the OPTS UTF8 ON setting.
func (p *Properties) SetUTF8(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.utf8 = on
}

// UTF8 reports whether UTF8 mode is on.
func (p *Properties) UTF8() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.utf8
}

// SetRenameFrom records the path given to RNFR, awaiting RNTO.
func (p *Properties) SetRenameFrom(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renameFrom = path
}

// ConsumeRenameFrom returns the path set by RNFR (if any) and clears it.
func (p *Properties) ConsumeRenameFrom() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	path := p.renameFrom
	p.renameFrom = ""
	return path, path != ""
}
