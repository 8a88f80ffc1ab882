package prop

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ircxprop/pkg/protocol"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestRegister_CreatesAccountAndLogsIn(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.handler.Register(f.alice, []string{"*", "*", "hunter2"}))

	acct, _ := f.accounts.Find("alice", false)
	require.NotNil(t, acct)
	p := acct.Props().Find(PassphraseKey)
	require.NotNil(t, p)
	assert.Equal(t, "hashed:hunter2", p.Value)
	assert.Equal(t, "alice", f.alice.Account)

	require.Len(t, f.out.sent, 1)
	reply := f.out.sent[0].msg
	assert.Equal(t, "REGISTER", reply.Command)
	assert.Equal(t, []string{"SUCCESS", "alice", "Account created successfully"}, reply.Params)

	require.Len(t, f.out.flooded, 2)
	tp := f.out.flooded[0].msg
	assert.Equal(t, "TPROP", tp.Command)
	assert.Equal(t, []string{"account:alice", itoa(acct.Epoch()), itoa(p.SetAt), PassphraseKey, "hashed:hunter2"}, tp.Params)

	login := f.out.flooded[1].msg
	assert.Equal(t, "001AAAAAA", login.Source)
	assert.Equal(t, []string{"*", "LOGIN", "alice"}, login.Params)
}

func TestRegister_NamedAccount(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.handler.Register(f.bob, []string{"Robert", "bob@example.org", "pw"}))
	acct, _ := f.accounts.Find("robert", false)
	require.NotNil(t, acct)
	assert.Equal(t, "Robert", f.bob.Account)
}

func TestRegister_Exists(t *testing.T) {
	f := newFixture(t, 0)
	f.accounts.Find("alice", true)

	err := f.handler.Register(f.alice, []string{"alice", "*", "pw"})
	assert.ErrorIs(t, err, ErrAccountExists)

	require.Len(t, f.out.sent, 1)
	fail := f.out.sent[0].msg
	assert.Equal(t, "FAIL", fail.Command)
	assert.Equal(t, []string{"REGISTER", "ACCOUNT_EXISTS", "alice", "Account already exists"}, fail.Params)
	assert.Empty(t, f.out.flooded)
	assert.Empty(t, f.alice.Account)
}

func TestRegister_NeedMoreParams(t *testing.T) {
	f := newFixture(t, 0)

	err := f.handler.Register(f.alice, []string{"alice", "*"})
	assert.ErrorIs(t, err, ErrNeedMoreParams)
	assert.Equal(t, []string{protocol.ErrNeedMoreParams}, f.out.commands("alice"))
}

func TestLogin_RemoteClientIgnored(t *testing.T) {
	f := newFixture(t, 0)
	f.bob.Local = false

	f.handler.Login(f.bob, "bob")
	assert.Empty(t, f.bob.Account)
	assert.Empty(t, f.out.flooded)
}
