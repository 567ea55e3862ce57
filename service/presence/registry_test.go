package presence

import (
	"testing"

	errs "EPresence/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterConnectionRejectsEmptyUser(t *testing.T) {
	r := NewRegistry()
	r.AddConn("c1")

	_, err := r.RegisterConnection("c1", "", "u@x.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errs.ErrAuthenticationRequired)

	// 失败不产生任何变更
	entry, ok := r.Get("c1")
	require.True(t, ok)
	assert.Empty(t, entry.UserID)
	assert.Equal(t, 0, r.CountUsers())
}

func TestRegisterConnectionIdempotent(t *testing.T) {
	r := NewRegistry()

	first, err := r.RegisterConnection("c1", "u1", "u1@x.com")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := r.RegisterConnection("c1", "u1", "u1@x.com")
	require.NoError(t, err)
	assert.False(t, again)

	assert.Len(t, r.ConnectionsOf("u1"), 1)
	assert.Equal(t, 1, r.CountConns())
}

func TestOnlineMatchesConnections(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsOnline("u1"))
	assert.Empty(t, r.ConnectionsOf("u1"))

	_, err := r.RegisterConnection("c1", "u1", "u1@x.com")
	require.NoError(t, err)
	_, err = r.RegisterConnection("c2", "u1", "u1@x.com")
	require.NoError(t, err)

	assert.True(t, r.IsOnline("u1"))
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsOf("u1"))
}

func TestUnregisterReportsWentOffline(t *testing.T) {
	r := NewRegistry()
	_, _ = r.RegisterConnection("c1", "u1", "u1@x.com")
	_, _ = r.RegisterConnection("c2", "u1", "u1@x.com")

	user, off := r.UnregisterConnection("c1")
	assert.Equal(t, "u1", user)
	assert.False(t, off, "还有另一条连接，不算下线")
	assert.True(t, r.IsOnline("u1"))

	user, off = r.UnregisterConnection("c2")
	assert.Equal(t, "u1", user)
	assert.True(t, off)
	assert.False(t, r.IsOnline("u1"))
	assert.Equal(t, 0, r.CountUsers())
}

func TestUnregisterUnknownConn(t *testing.T) {
	r := NewRegistry()
	user, off := r.UnregisterConnection("ghost")
	assert.Empty(t, user)
	assert.False(t, off)
}

func TestUnregisterAnonymousConn(t *testing.T) {
	r := NewRegistry()
	r.AddConn("c1")

	user, off := r.UnregisterConnection("c1")
	assert.Empty(t, user)
	assert.False(t, off)
	assert.Equal(t, 0, r.CountConns())
}

func TestRebindConnectionToAnotherUser(t *testing.T) {
	r := NewRegistry()
	_, _ = r.RegisterConnection("c1", "u1", "u1@x.com")

	_, err := r.RegisterConnection("c1", "u2", "u2@x.com")
	require.NoError(t, err)

	assert.False(t, r.IsOnline("u1"))
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionsOf("u2"))
}
