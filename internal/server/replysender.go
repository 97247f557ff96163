package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/riverrun/vftpd/internal/reply"
)

// ReplySender is a buffered line writer over the control channel's
// write half, flushed after every reply so a multi-line reply is never
// split across a TCP segment boundary the client reads mid-way through.
type ReplySender struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewReplySender wraps conn's write side.
func NewReplySender(conn net.Conn) *ReplySender {
	return &ReplySender{w: bufio.NewWriter(conn)}
}

// Send writes r to the wire and flushes immediately.
func (s *ReplySender) Send(r reply.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(r.Format()); err != nil {
		return err
	}
	return s.w.Flush()
}
