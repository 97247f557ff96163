package session

import (
	"testing"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginHandshake(t *testing.T) {
	p := New()
	assert.False(t, p.IsLoggedIn())

	p.BeginLogin("alice")
	username, ok := p.PendingUsername()
	require.True(t, ok)
	assert.Equal(t, "alice", username)
	assert.False(t, p.IsLoggedIn())

	p.CompleteLogin(&auth.User{Username: "alice"})
	assert.True(t, p.IsLoggedIn())
	assert.Equal(t, "alice", p.Username())
	_, ok = p.PendingUsername()
	assert.False(t, ok)
}

func TestBeginLoginResetsPriorAuthentication(t *testing.T) {
	p := New()
	p.BeginLogin("alice")
	p.CompleteLogin(&auth.User{Username: "alice"})
	require.True(t, p.IsLoggedIn())

	p.BeginLogin("bob")
	assert.False(t, p.IsLoggedIn())
}

func TestRestartOffsetIsConsumedOnce(t *testing.T) {
	p := New()
	p.SetRestartOffset(1024)
	assert.Equal(t, uint64(1024), p.ConsumeRestartOffset())
	assert.Equal(t, uint64(0), p.ConsumeRestartOffset())
}
