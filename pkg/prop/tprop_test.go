package prop

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tprop(target string, cts, uts int64, key, value string) []string {
	return []string{target, strconv.FormatInt(cts, 10), strconv.FormatInt(uts, 10), key, value}
}

func TestTProp_Malformed(t *testing.T) {
	f := newFixture(t, 0)

	tests := []struct {
		name   string
		params []string
	}{
		{"too short", []string{"#test", "1000", "1"}},
		{"bad creation ts", []string{"#test", "abc", "1", "topic", "x"}},
		{"bad update ts", []string{"#test", "1000", "", "topic", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.handler.TProp("hub", "002", tt.params)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
	assert.Equal(t, 0, f.channel.Props().Len())
	assert.Empty(t, f.out.flooded)
}

func TestTProp_UnknownTargetDropped(t *testing.T) {
	f := newFixture(t, 0)

	err := f.handler.TProp("hub", "002", tprop("#elsewhere", 1000, 1, "topic", "x"))
	assert.Error(t, err)
	assert.Empty(t, f.out.sent)
	assert.Empty(t, f.out.flooded)
}

func TestTProp_StaleIsNoop(t *testing.T) {
	f := newFixture(t, 0)
	f.channel.Props().Add("topic", "local", "alice")

	err := f.handler.TProp("hub", "002", tprop("#test", 2000, 5, "topic", "remote"))
	assert.ErrorIs(t, err, ErrStale)

	assert.Equal(t, int64(1000), f.channel.TS)
	assert.Equal(t, "local", f.channel.Props().Find("topic").Value)
	assert.Empty(t, f.out.flooded)
	assert.Empty(t, f.out.sent)
}

func TestTProp_OlderEpochClearsAndLowers(t *testing.T) {
	f := newFixture(t, 0)
	f.channel.Props().Add("topic", "local", "alice")
	f.channel.Props().Add("url", "local", "alice")

	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 500, 600, "onjoin", "hi")))

	assert.Equal(t, int64(500), f.channel.TS)
	all := f.channel.Props().All()
	require.Len(t, all, 1)
	assert.Equal(t, "onjoin", all[0].Name)
	assert.Equal(t, "hi", all[0].Value)
	assert.Equal(t, int64(600), all[0].SetAt)

	// re-emitted from this server to everyone but the origin
	require.Len(t, f.out.flooded, 1)
	assert.Equal(t, "hub", f.out.flooded[0].except)
	msg := f.out.flooded[0].msg
	assert.Equal(t, "001", msg.Source)
	assert.Equal(t, []string{"#test", "500", "600", "onjoin", "hi"}, msg.Params)
}

func TestTProp_EqualEpochStampsUpdateTS(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 1000, 1234, "topic", "remote")))

	p := f.channel.Props().Find("topic")
	require.NotNil(t, p)
	assert.Equal(t, "remote", p.Value)
	assert.Equal(t, int64(1234), p.SetAt)
	assert.Equal(t, "002", p.Setter)
}

func TestTProp_EqualEpochConverges(t *testing.T) {
	older := tprop("#test", 1000, 10, "topic", "older")
	newer := tprop("#test", 1000, 20, "topic", "newer")

	orders := map[string][][]string{
		"older first": {older, newer},
		"newer first": {newer, older},
	}

	for name, lines := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 0)
			for _, params := range lines {
				_ = f.handler.TProp("hub", "002", params)
			}
			p := f.channel.Props().Find("topic")
			require.NotNil(t, p)
			assert.Equal(t, "newer", p.Value)
			assert.Equal(t, int64(20), p.SetAt)
		})
	}
}

func TestTProp_DuplicateNotReflooded(t *testing.T) {
	f := newFixture(t, 0)
	line := tprop("#test", 1000, 10, "topic", "x")

	require.NoError(t, f.handler.TProp("hub", "002", line))
	require.NoError(t, f.handler.TProp("leaf", "003", line))

	assert.Len(t, f.out.flooded, 1)
}

func TestTProp_Delete(t *testing.T) {
	f := newFixture(t, 0)
	f.channel.Props().Add("topic", "x", "alice")

	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 1000, 1<<40, "topic", "")))
	assert.Nil(t, f.channel.Props().Find("topic"))
	require.Len(t, f.out.flooded, 1)
	assert.Equal(t, "", f.out.flooded[0].msg.Params[4])

	// deleting an absent key is silent
	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 1000, 1<<40, "topic", "")))
	assert.Len(t, f.out.flooded, 1)
}

func TestTProp_FourFieldsDeletes(t *testing.T) {
	f := newFixture(t, 0)
	f.channel.Props().Add("topic", "x", "alice")

	require.NoError(t, f.handler.TProp("hub", "002", []string{"#test", "1000", strconv.FormatInt(1<<40, 10), "topic"}))
	assert.Nil(t, f.channel.Props().Find("topic"))
}

func TestTProp_IgnoresCapacityAndAuthorization(t *testing.T) {
	f := newFixture(t, 1)
	f.channel.Props().Add("topic", "x", "alice")

	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 1000, 5, "url", "y")))
	assert.Equal(t, 2, f.channel.Props().Len())

	require.NoError(t, f.handler.TProp("hub", "002", tprop("001AAAAAB", 200, 5, "url", "z")))
	assert.Equal(t, "z", f.bob.Props().Find("url").Value)
}

func TestTProp_NewAccountBackdated(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.handler.TProp("hub", "002", tprop("account:carol", 42, 50, "email", "carol@example.org")))

	acct, _ := f.accounts.Find("carol", false)
	require.NotNil(t, acct)
	assert.Equal(t, int64(42), acct.Epoch())
	assert.Equal(t, "carol@example.org", acct.Props().Find("email").Value)
}

func TestTProp_AccountOlderIncarnationWins(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.handler.Prop(f.alice, []string{"account:alice", PassphraseKey, "hash1"}))
	acct, _ := f.accounts.Find("alice", false)
	require.NotNil(t, acct)
	older := acct.Epoch() - 100
	f.out.reset()

	require.NoError(t, f.handler.TProp("hub", "002", tprop("account:alice", older, older+1, PassphraseKey, "hash2")))

	all := acct.Props().All()
	require.Len(t, all, 1)
	assert.Equal(t, PassphraseKey, all[0].Name)
	assert.Equal(t, "hash2", all[0].Value)
	assert.Equal(t, older, acct.Epoch())
}

func TestTProp_RemoteChangeNotifiesObservers(t *testing.T) {
	f := newFixture(t, 0)

	var got []Change
	f.handler.OnChange(func(c Change) { got = append(got, c) })

	require.NoError(t, f.handler.TProp("hub", "002", tprop("#test", 1000, 5, "topic", "x")))
	_ = f.handler.TProp("hub", "002", tprop("#test", 9999, 5, "topic", "stale"))

	require.Len(t, got, 1)
	assert.True(t, got[0].Replicated)
	assert.Equal(t, "002", got[0].Source)
}

func TestTProp_LocalChannelNotReflooded(t *testing.T) {
	f := newFixture(t, 0)
	ch, _ := f.channels.Join("&local", f.alice, 1000)

	require.NoError(t, f.handler.TProp("hub", "002", tprop("&local", 1000, 5, "topic", "x")))
	assert.NotNil(t, ch.Props().Find("topic"))
	assert.Empty(t, f.out.flooded)
}

func TestChannelLowerTS(t *testing.T) {
	f := newFixture(t, 0)
	f.channel.Props().Add("topic", "x", "alice")

	f.handler.ChannelLowerTS(f.channel, 2000)
	assert.Equal(t, 1, f.channel.Props().Len())

	f.handler.ChannelLowerTS(f.channel, 500)
	assert.Equal(t, int64(500), f.channel.TS)
	assert.Equal(t, 0, f.channel.Props().Len())
}

func TestTProp_UserEpochMismatchIsStale(t *testing.T) {
	f := newFixture(t, 0)
	f.bob.Props().Add("url", "current", "bob")

	// a change made before bob's nick TS was re-stamped
	err := f.handler.TProp("hub", "002", tprop("001AAAAAB", 150, 5, "url", "old"))
	assert.ErrorIs(t, err, ErrStale)
	err = f.handler.TProp("hub", "002", tprop("001AAAAAB", 250, 5, "url", "newer"))
	assert.ErrorIs(t, err, ErrStale)

	assert.Equal(t, int64(200), f.bob.TS)
	require.Equal(t, 1, f.bob.Props().Len())
	assert.Equal(t, "current", f.bob.Props().Find("url").Value)
	assert.Empty(t, f.out.flooded)
}
