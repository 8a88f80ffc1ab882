package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ircxprop/pkg/config"
	"ircxprop/pkg/link"
	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
)

const waitTimeout = 5 * time.Second

func newTestServer(t *testing.T, name, sid string) *Server {
	t.Helper()

	cfg := &config.Config{
		ServerName:    name,
		SID:           sid,
		ClientAddress: "127.0.0.1:0",
		LinkAddress:   "127.0.0.1:0",
		MaxProps:      8,
	}
	s, err := New(cfg, nil, zaptest.NewLogger(t).Named(sid))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialClient(t *testing.T, s *Server) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", s.ClientAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

// expect reads lines until one carries command, failing on timeout.
func (c *testClient) expect(command string) ircmsg.Message {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(waitTimeout))
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(c.t, err, "waiting for %s", command)

		msg, err := protocol.Parse(strings.TrimRight(line, "\r\n"))
		require.NoError(c.t, err)
		if msg.Command == command {
			return msg
		}
	}
}

func (c *testClient) register(nick string) {
	c.t.Helper()
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick)
	c.expect(protocol.RplWelcome)
}

func TestServer_Registration(t *testing.T) {
	s := newTestServer(t, "irc.a.example.org", "001")
	c := dialClient(t, s)

	c.send("NICK alice")
	c.send("USER alice 0 * :Alice")

	welcome := c.expect(protocol.RplWelcome)
	assert.Equal(t, "irc.a.example.org", welcome.Source)
	assert.Equal(t, "alice", welcome.Params[0])

	isupport := c.expect(protocol.RplISupport)
	assert.Contains(t, isupport.Params, "MAXPROP=8")

	var uid string
	require.True(t, s.call(func() {
		if u := s.users.Find("alice"); u != nil {
			uid = u.UID
		}
	}))
	assert.Equal(t, "001AAAAAA", uid)
}

func TestServer_CommandBeforeRegistration(t *testing.T) {
	s := newTestServer(t, "irc.a.example.org", "001")
	c := dialClient(t, s)

	c.send("PROP #test *")
	msg := c.expect(protocol.ErrNotRegistered)
	assert.Equal(t, "*", msg.Params[0])
}

func TestServer_NickInUse(t *testing.T) {
	s := newTestServer(t, "irc.a.example.org", "001")
	dialClient(t, s).register("alice")

	c := dialClient(t, s)
	c.send("NICK alice")
	msg := c.expect(protocol.ErrNicknameInUse)
	assert.Equal(t, "alice", msg.Params[1])
}

func TestServer_PropOverConnection(t *testing.T) {
	s := newTestServer(t, "irc.a.example.org", "001")

	alice := dialClient(t, s)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.expect("JOIN")

	bob := dialClient(t, s)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.expect("JOIN")

	alice.send("PROP #test topic :hello world")
	echo := alice.expect("PROP")
	assert.Equal(t, []string{"#test", "topic", "hello world"}, echo.Params)

	seen := bob.expect("PROP")
	assert.Equal(t, []string{"#test", "topic", "hello world"}, seen.Params)

	bob.send("PROP #test topic :mine")
	denied := bob.expect(protocol.ErrPropDenied)
	assert.Equal(t, []string{"bob", "#test", "topic", "Permission denied"}, denied.Params)

	bob.send("PROP #test *")
	entry := bob.expect(protocol.RplPropList)
	assert.Equal(t, []string{"bob", "#test", "topic", "hello world"}, entry.Params)
	bob.expect(protocol.RplPropEnd)
}

func TestServer_QuitRemovesClient(t *testing.T) {
	s := newTestServer(t, "irc.a.example.org", "001")
	c := dialClient(t, s)
	c.register("alice")

	c.send("QUIT :bye")
	c.expect("ERROR")

	assert.Eventually(t, func() bool {
		var gone bool
		s.call(func() { gone = s.users.Find("alice") == nil })
		return gone
	}, waitTimeout, 10*time.Millisecond)
}

func linkServers(t *testing.T, a, b *Server) {
	t.Helper()

	require.NoError(t, b.ConnectPeer(a.LinkAddr().String()))
	require.Eventually(t, func() bool {
		return len(a.links.Peers()) == 1 && len(b.links.Peers()) == 1
	}, waitTimeout, 10*time.Millisecond)
}

func channelProp(s *Server, channel, key string) (string, bool) {
	var value string
	var found bool
	s.call(func() {
		ch := s.channels.Find(channel)
		if ch == nil {
			return
		}
		if p := ch.Props().Find(key); p != nil {
			value, found = p.Value, true
		}
	})
	return value, found
}

func TestServer_LinkedPropagation(t *testing.T) {
	a := newTestServer(t, "irc.a.example.org", "001")
	b := newTestServer(t, "irc.b.example.org", "002")
	linkServers(t, a, b)

	alice := dialClient(t, a)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.expect("JOIN")

	require.Eventually(t, func() bool {
		var ok bool
		b.call(func() {
			u := b.users.Find("alice")
			ch := b.channels.Find("#test")
			ok = u != nil && !u.Local && ch != nil
		})
		return ok
	}, waitTimeout, 10*time.Millisecond)

	bob := dialClient(t, b)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.expect("JOIN")

	alice.send("PROP #test topic :replicated")
	alice.expect("PROP")

	assert.Eventually(t, func() bool {
		v, ok := channelProp(b, "#test", "topic")
		return ok && v == "replicated"
	}, waitTimeout, 10*time.Millisecond)

	seen := bob.expect("PROP")
	assert.Equal(t, "irc.b.example.org", seen.Source)
	assert.Equal(t, []string{"#test", "topic", "replicated"}, seen.Params)

	alice.send("PROP #test topic :")
	alice.expect("PROP")
	assert.Eventually(t, func() bool {
		_, ok := channelProp(b, "#test", "topic")
		return !ok
	}, waitTimeout, 10*time.Millisecond)
}

func TestServer_BurstOnLink(t *testing.T) {
	a := newTestServer(t, "irc.a.example.org", "001")
	b := newTestServer(t, "irc.b.example.org", "002")

	alice := dialClient(t, a)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.expect("JOIN")
	alice.send("PROP #test url :https://example.org")
	alice.expect("PROP")
	alice.send("REGISTER * * :secret")
	alice.expect("REGISTER")

	linkServers(t, a, b)

	assert.Eventually(t, func() bool {
		v, ok := channelProp(b, "#test", "url")
		return ok && v == "https://example.org"
	}, waitTimeout, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		var ok bool
		b.call(func() {
			acct, _ := b.accounts.Find("alice", false)
			u := b.users.Find("alice")
			ok = acct != nil && acct.Props().Find("passphrase") != nil &&
				u != nil && u.Account == "alice"
		})
		return ok
	}, waitTimeout, 10*time.Millisecond)
}

func TestServer_SplitRemovesRemoteUsers(t *testing.T) {
	a := newTestServer(t, "irc.a.example.org", "001")
	b := newTestServer(t, "irc.b.example.org", "002")
	linkServers(t, a, b)

	dialClient(t, a).register("alice")
	require.Eventually(t, func() bool {
		var ok bool
		b.call(func() { ok = b.users.Find("alice") != nil })
		return ok
	}, waitTimeout, 10*time.Millisecond)

	a.Stop()

	assert.Eventually(t, func() bool {
		var remaining []*registry.Client
		b.call(func() { remaining = b.users.All() })
		return len(remaining) == 0
	}, waitTimeout, 10*time.Millisecond)
}

func TestServer_BurstLargerThanSendQueue(t *testing.T) {
	a := newTestServer(t, "irc.a.example.org", "001")
	b := newTestServer(t, "irc.b.example.org", "002")

	const accounts, props = 300, 30
	require.Greater(t, accounts*props, link.DefaultQueueSize)
	require.True(t, a.call(func() {
		for i := 0; i < accounts; i++ {
			acct, _ := a.accounts.Find(fmt.Sprintf("user%d", i), true)
			for j := 0; j < props; j++ {
				acct.Props().Add(fmt.Sprintf("key%d", j), "value", "irc.a.example.org")
			}
		}
	}))

	linkServers(t, a, b)

	assert.Eventually(t, func() bool {
		var total int
		b.call(func() {
			for _, acct := range b.accounts.All() {
				total += acct.Props().Len()
			}
		})
		return total == accounts*props
	}, 4*waitTimeout, 20*time.Millisecond)

	assert.Len(t, a.links.Peers(), 1)
	assert.Len(t, b.links.Peers(), 1)
}
