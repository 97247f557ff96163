// Package server implements the connection handler and command processor:
// the glue that reads command lines off the control channel, evaluates
// them against session state and the data-channel wrapper, and drives
// view/view-root operations.
package server

import (
	"crypto/tls"
	"time"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/sirupsen/logrus"
)

// Timeouts bundles the configurable waits from spec §5. Zero-value
// Timeouts{} is invalid; use DefaultTimeouts or TestTimeouts.
type Timeouts struct {
	DataAttachGrace   time.Duration // 20s: data-channel attach wait
	DataAcquire       time.Duration // 15s production, 3s tests
	GracefulPerTask   time.Duration // 2s: data wrapper teardown on shutdown
	CommandDrain      time.Duration // 5s: in-flight commands on shutdown
}

// DefaultTimeouts matches the production defaults in spec §5.
var DefaultTimeouts = Timeouts{
	DataAttachGrace: 20 * time.Second,
	DataAcquire:     15 * time.Second,
	GracefulPerTask: 2 * time.Second,
	CommandDrain:    5 * time.Second,
}

// TestTimeouts shortens the acquire wait for fast test runs, per spec's
// "3 s in tests, 15 s in production".
var TestTimeouts = Timeouts{
	DataAttachGrace: 2 * time.Second,
	DataAcquire:     3 * time.Second,
	GracefulPerTask: 500 * time.Millisecond,
	CommandDrain:    1 * time.Second,
}

// Context is the explicit, shared-by-reference set of server-wide
// collaborators passed into each connection handler at accept time —
// deliberately not a package-level singleton (see DESIGN.md's note on the
// source's global auth-provider/TLS/DB-pool statics).
type Context struct {
	Auth      *auth.Provider
	TLSConfig *tls.Config // nil disables AUTH TLS / the TLS listener
	Timeouts  Timeouts
	Log       *logrus.Entry

	// BindIP is the interface datachan.TCPAcceptor binds on; AdvertiseIP is
	// reported in PASV replies (they differ when serving behind NAT).
	BindIP      string
	AdvertiseIP string
}
