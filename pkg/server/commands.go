package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/types"
)

const maxNickLength = 30

func (s *Server) handleClientLine(sess *session, line string) {
	if _, ok := s.sessions[sess.client]; !ok {
		return
	}

	msg, err := protocol.Parse(line)
	if err != nil {
		sess.logger.Debug("Ignoring unparsable line", zap.Error(err))
		return
	}
	c := sess.client

	if !c.Registered {
		switch msg.Command {
		case "NICK":
			s.cmdNick(sess, msg.Params)
		case "USER":
			s.cmdUser(sess, msg.Params)
		case "PING":
			s.cmdPing(c, msg.Params)
		case "QUIT":
			s.dropClient(sess, "Client quit")
		default:
			s.numeric(c, protocol.ErrNotRegistered, "You have not registered")
		}
		return
	}

	switch msg.Command {
	case "NICK":
		s.cmdNick(sess, msg.Params)
	case "USER":
		s.numeric(c, protocol.ErrAlreadyRegistred, "You may not reregister")
	case "JOIN":
		s.cmdJoin(c, msg.Params)
	case "PART":
		s.cmdPart(c, msg.Params)
	case "PROP":
		if err := s.props.Prop(c, msg.Params); err != nil {
			sess.logger.Debug("PROP rejected", zap.Error(err))
		}
	case "REGISTER":
		if err := s.props.Register(c, msg.Params); err != nil {
			sess.logger.Debug("REGISTER rejected", zap.Error(err))
		}
	case "PING":
		s.cmdPing(c, msg.Params)
	case "PONG":
	case "QUIT":
		reason := "Client quit"
		if len(msg.Params) > 0 {
			reason = "Quit: " + msg.Params[0]
		}
		s.dropClient(sess, reason)
	default:
		s.numeric(c, protocol.ErrUnknownCommand, msg.Command, "Unknown command")
	}
}

func (s *Server) numeric(c *registry.Client, code string, params ...string) {
	s.Send(c, protocol.Numeric(s.me.ServerName, c.Nick, code, params...))
}

func validNick(nick string) bool {
	if nick == "" || len(nick) > maxNickLength {
		return false
	}
	if (nick[0] >= '0' && nick[0] <= '9') || nick[0] == '-' {
		return false
	}
	return !strings.ContainsAny(nick, " ,*?!@#&:.")
}

func (s *Server) cmdNick(sess *session, params []string) {
	c := sess.client
	if len(params) == 0 || params[0] == "" {
		s.numeric(c, protocol.ErrNoNicknameGiven, "No nickname given")
		return
	}
	nick := params[0]
	if !validNick(nick) {
		s.numeric(c, protocol.ErrErroneusNickname, nick, "Erroneous nickname")
		return
	}
	if other := s.users.Find(nick); other != nil && other != c {
		s.numeric(c, protocol.ErrNicknameInUse, nick, "Nickname is already in use")
		return
	}

	if !c.Registered {
		c.Nick = nick
		s.tryRegister(sess)
		return
	}

	oldMask := c.Mask()
	if err := s.users.Rename(c, nick); err != nil {
		s.numeric(c, protocol.ErrNicknameInUse, nick, "Nickname is already in use")
		return
	}
	c.TS = time.Now().Unix()

	change := ircmsg.MakeMessage(nil, oldMask, "NICK", nick)
	s.sendToCommonChannels(c, change)
	s.Flood("", ircmsg.MakeMessage(nil, c.UID, "NICK", nick, strconv.FormatInt(c.TS, 10)))
}

func (s *Server) cmdUser(sess *session, params []string) {
	c := sess.client
	if len(params) < 4 {
		s.numeric(c, protocol.ErrNeedMoreParams, "USER", "Not enough parameters")
		return
	}
	c.Username = params[0]
	s.tryRegister(sess)
}

// tryRegister completes registration once both NICK and USER were sent.
func (s *Server) tryRegister(sess *session) {
	c := sess.client
	if c.Nick == "" || c.Username == "" {
		return
	}

	c.UID = s.uids.Next()
	c.TS = time.Now().Unix()
	if err := s.users.Add(c); err != nil {
		s.numeric(c, protocol.ErrNicknameInUse, c.Nick, "Nickname is already in use")
		c.Nick = ""
		return
	}
	c.Registered = true

	s.numeric(c, protocol.RplWelcome, "Welcome to the Internet Relay Network "+c.Mask())
	s.numeric(c, protocol.RplISupport, s.props.ISupport(), "are supported by this server")
	s.Flood("", s.uidMessage(c))

	sess.logger.Info("Client registered", zap.String("nick", c.Nick), zap.String("uid", c.UID))
}

func (s *Server) cmdPing(c *registry.Client, params []string) {
	token := s.me.ServerName
	if len(params) > 0 {
		token = params[0]
	}
	msg := ircmsg.MakeMessage(nil, s.me.ServerName, "PONG", s.me.ServerName, token)
	s.Send(c, msg)
}

func (s *Server) cmdJoin(c *registry.Client, params []string) {
	if len(params) == 0 {
		s.numeric(c, protocol.ErrNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}

	for _, name := range strings.Split(params[0], ",") {
		if !registry.IsChannelName(name) || len(name) < 2 || strings.ContainsAny(name, " :\a") {
			s.numeric(c, protocol.ErrNoSuchChannel, name, "No such channel")
			continue
		}

		ch, joined := s.channels.Join(name, c, time.Now().Unix())
		if !joined {
			continue
		}
		s.sendToChannel(ch, ircmsg.MakeMessage(nil, c.Mask(), "JOIN", ch.Name))

		if !ch.IsLocalOnly() {
			s.Flood("", s.sjoinMessage(ch, []*registry.Client{c}))
		}
	}
}

func (s *Server) cmdPart(c *registry.Client, params []string) {
	if len(params) == 0 {
		s.numeric(c, protocol.ErrNeedMoreParams, "PART", "Not enough parameters")
		return
	}

	for _, name := range strings.Split(params[0], ",") {
		ch := s.channels.Find(name)
		if ch == nil {
			s.numeric(c, protocol.ErrNoSuchChannel, name, "No such channel")
			continue
		}
		if _, member := ch.Access(c); !member {
			s.numeric(c, protocol.ErrNotOnChannel, ch.Name, "You're not on that channel")
			continue
		}

		s.sendToChannel(ch, ircmsg.MakeMessage(nil, c.Mask(), "PART", ch.Name))
		s.channels.Part(ch.Name, c)
		if !ch.IsLocalOnly() {
			s.Flood("", ircmsg.MakeMessage(nil, c.UID, "PART", ch.Name))
		}
	}
}

// dropClient removes a local client and tells everyone who could see it.
func (s *Server) dropClient(sess *session, reason string) {
	c := sess.client
	if _, ok := s.sessions[c]; !ok {
		return
	}

	sess.sendMsg(ircmsg.MakeMessage(nil, "", "ERROR", "Closing Link: "+reason))
	delete(s.sessions, c)
	s.metrics.Clients.Set(float64(len(s.sessions)))

	if c.Registered {
		s.removeClient(c, reason)
		s.Flood("", ircmsg.MakeMessage(nil, c.UID, "QUIT", reason))
	}
	sess.close()
}

// removeClient drops c from the user and channel tables, showing the quit
// to local clients sharing a channel.
func (s *Server) removeClient(c *registry.Client, reason string) {
	s.sendToCommonChannels(c, ircmsg.MakeMessage(nil, c.Mask(), "QUIT", reason))
	s.channels.PartAll(c)
	s.users.Remove(c)
	delete(s.introducedBy, c)
}

func (s *Server) sendToChannel(ch *registry.Channel, msg ircmsg.Message) {
	for _, member := range ch.Members() {
		if member.Local {
			s.Send(member, msg)
		}
	}
}

// sendToCommonChannels sends msg once to every local client sharing a
// channel with c, c included.
func (s *Server) sendToCommonChannels(c *registry.Client, msg ircmsg.Message) {
	seen := make(map[*registry.Client]bool)
	if c.Local {
		seen[c] = true
		s.Send(c, msg)
	}
	for _, ch := range s.channels.All() {
		if _, member := ch.Access(c); !member {
			continue
		}
		for _, other := range ch.Members() {
			if other.Local && !seen[other] {
				seen[other] = true
				s.Send(other, msg)
			}
		}
	}
}

func (s *Server) uidMessage(c *registry.Client) ircmsg.Message {
	return ircmsg.MakeMessage(nil, s.me.SID, "UID",
		c.Nick, strconv.FormatInt(c.TS, 10), c.UID, c.Username, c.Host)
}

// sjoinMessage introduces members of ch, marking chanops with '@'.
func (s *Server) sjoinMessage(ch *registry.Channel, members []*registry.Client) ircmsg.Message {
	uids := make([]string, 0, len(members))
	for _, m := range members {
		level, _ := ch.Access(m)
		if level >= types.AccessChanop {
			uids = append(uids, "@"+m.UID)
		} else {
			uids = append(uids, m.UID)
		}
	}
	msg := ircmsg.MakeMessage(nil, s.me.SID, "SJOIN", strconv.FormatInt(ch.TS, 10), ch.Name, strings.Join(uids, " "))
	msg.ForceTrailing()
	return msg
}
