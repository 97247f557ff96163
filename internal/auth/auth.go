// Package auth defines the authentication source contract: given
// credentials, return a User record or a typed error.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverrun/vftpd/internal/fsview"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "auth")

// Kind enumerates why authentication failed.
type Kind int

const (
	KindUserNotFound Kind = iota
	KindInvalidCredentials
	KindPermissionParsing
	KindBackend
)

// Error is a Kind plus the underlying cause, if any.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUserNotFound:
		return "user not found"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindPermissionParsing:
		return fmt.Sprintf("permission parsing failed: %v", e.Cause)
	case KindBackend:
		return fmt.Sprintf("authentication backend error: %v", e.Cause)
	default:
		return "authentication error"
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// User is the immutable result of a successful authentication: a username
// and the collection of views it was granted.
type User struct {
	Username string
	Views    []*fsview.View
}

// Credentials is what a client supplies via USER/PASS.
type Credentials struct {
	Username string
	Password []byte // zeroized by the caller once consumed
}

// Source authenticates one set of credentials against one backend.
type Source interface {
	Authenticate(ctx context.Context, creds Credentials) (*User, error)
}

// Provider composes a list of Sources, returning the first success. If
// every source fails, the caller (PASS handler) reports "not logged in".
type Provider struct {
	sources []Source
}

// NewProvider builds a Provider over the given sources, tried in order.
func NewProvider(sources ...Source) *Provider {
	return &Provider{sources: sources}
}

// Authenticate tries each source in turn.
func (p *Provider) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	var lastErr error
	for _, src := range p.sources {
		user, err := src.Authenticate(ctx, creds)
		if err == nil {
			return user, nil
		}
		lastErr = err
		log.WithError(err).WithField("user", creds.Username).Debug("authentication source declined")
	}
	if lastErr == nil {
		lastErr = &Error{Kind: KindUserNotFound}
	}
	return nil, lastErr
}
