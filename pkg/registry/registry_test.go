package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ircxprop/pkg/types"
)

func TestUsers_FindByNickAndUID(t *testing.T) {
	users := NewUsers()
	alice := &Client{Nick: "Alice", UID: "001AAAAAA", Registered: true}
	require.NoError(t, users.Add(alice))

	assert.Same(t, alice, users.Find("alice"))
	assert.Same(t, alice, users.Find("001AAAAAA"))
	assert.Nil(t, users.Find("bob"))
	assert.Nil(t, users.Find(""))
}

func TestUsers_DuplicateNick(t *testing.T) {
	users := NewUsers()
	require.NoError(t, users.Add(&Client{Nick: "alice", UID: "001AAAAAA"}))

	err := users.Add(&Client{Nick: "ALICE", UID: "001AAAAAB"})
	assert.ErrorIs(t, err, ErrNickInUse)

	err = users.Add(&Client{Nick: "carol", UID: "001AAAAAA"})
	assert.ErrorIs(t, err, ErrUIDInUse)
}

func TestUsers_RenameAndRemove(t *testing.T) {
	users := NewUsers()
	c := &Client{Nick: "alice", UID: "001AAAAAA"}
	require.NoError(t, users.Add(c))

	require.NoError(t, users.Rename(c, "alicia"))
	assert.Nil(t, users.Find("alice"))
	assert.Same(t, c, users.Find("alicia"))

	users.Remove(c)
	assert.Nil(t, users.Find("alicia"))
	assert.Equal(t, 0, users.Len())
}

func TestClient_ActorAndEntity(t *testing.T) {
	c := &Client{Nick: "alice", Username: "a", Host: "example.org", UID: "001AAAAAA", TS: 100, Local: true}

	var actor types.Actor = c
	var entity types.Entity = c

	assert.Equal(t, "alice!a@example.org", actor.Mask())
	assert.True(t, actor.IsLocal())
	assert.Equal(t, "001AAAAAA", entity.Target())
	assert.Equal(t, types.KindUser, entity.Kind())

	entity.SetEpoch(50)
	assert.Equal(t, int64(50), c.TS)
}

func TestChannels_JoinGivesCreatorChanop(t *testing.T) {
	channels := NewChannels()
	alice := &Client{Nick: "alice", UID: "001AAAAAA"}
	bob := &Client{Nick: "bob", UID: "001AAAAAB"}

	ch, joined := channels.Join("#Test", alice, 1000)
	require.True(t, joined)
	_, joined = channels.Join("#test", bob, 2000)
	require.True(t, joined)

	level, ok := ch.Access(alice)
	assert.True(t, ok)
	assert.Equal(t, types.AccessChanop, level)

	level, ok = ch.Access(bob)
	assert.True(t, ok)
	assert.Equal(t, types.AccessPeon, level)

	// the TS of an existing channel is not changed by later joins
	assert.Equal(t, int64(1000), ch.TS)
	assert.Len(t, ch.Members(), 2)
}

func TestChannels_PartDestroysEmptyChannel(t *testing.T) {
	channels := NewChannels()
	alice := &Client{Nick: "alice", UID: "001AAAAAA"}
	channels.Join("#test", alice, 1000)

	assert.True(t, channels.Part("#TEST", alice))
	assert.Nil(t, channels.Find("#test"))
	assert.False(t, channels.Part("#test", alice))
}

func TestChannel_IsLocalOnly(t *testing.T) {
	assert.True(t, (&Channel{Name: "&local"}).IsLocalOnly())
	assert.False(t, (&Channel{Name: "#global"}).IsLocalOnly())
	assert.True(t, IsChannelName("&x"))
	assert.False(t, IsChannelName("alice"))
}
