package server

import (
	"strconv"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/link"
	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/types"
)

// LinkUp implements link.Handler. The new peer receives our users, our
// channels and then every property we hold, snapshotted here and written
// out by the link's writer.
func (s *Server) LinkUp(p *link.Peer) {
	s.submit(func() {
		s.metrics.Links.Set(float64(len(s.links.Peers())))
		s.burst(p)
	})
}

// LinkLine implements link.Handler.
func (s *Server) LinkLine(p *link.Peer, line string) {
	s.submit(func() { s.handleServerLine(p, line) })
}

// LinkDown implements link.Handler. Users introduced over the link are
// removed, as in a netsplit.
func (s *Server) LinkDown(p *link.Peer, err error) {
	s.submit(func() {
		s.metrics.Links.Set(float64(len(s.links.Peers())))

		var lost []*registry.Client
		for c, sid := range s.introducedBy {
			if sid == p.SID {
				lost = append(lost, c)
			}
		}
		for _, c := range lost {
			reason := s.me.ServerName + " " + p.Name
			s.removeClient(c, reason)
			s.Flood(p.SID, ircmsg.MakeMessage(nil, c.UID, "QUIT", reason))
		}

		s.logger.Info("Peer split",
			zap.String("peer", p.Name),
			zap.Int("users_lost", len(lost)),
			zap.Error(err))
	})
}

func (s *Server) burst(p *link.Peer) {
	var lines []string
	send := func(msg ircmsg.Message) {
		line, err := protocol.Encode(msg)
		if err != nil {
			s.logger.Warn("Failed to encode burst line", zap.Error(err))
			return
		}
		lines = append(lines, line)
	}

	for _, c := range s.users.All() {
		if c.Registered && s.introducedBy[c] != p.SID {
			send(s.uidMessage(c))
			if c.Account != "" {
				send(ircmsg.MakeMessage(nil, c.UID, "ENCAP", "*", "LOGIN", c.Account))
			}
		}
	}
	for _, ch := range s.channels.All() {
		if ch.IsLocalOnly() {
			continue
		}
		var members []*registry.Client
		for _, m := range ch.Members() {
			if s.introducedBy[m] != p.SID {
				members = append(members, m)
			}
		}
		if len(members) > 0 {
			send(s.sjoinMessage(ch, members))
		}
	}

	n := s.props.Burst(send)
	if err := p.Burst(lines); err != nil {
		s.logger.Warn("Burst not sent", zap.String("peer", p.Name), zap.Error(err))
		return
	}
	s.logger.Info("Burst queued",
		zap.String("peer", p.Name),
		zap.Int("lines", len(lines)),
		zap.Int("props", n))
}

// handleServerLine processes one line from a linked server. Accepted
// changes are passed on to the other links.
func (s *Server) handleServerLine(p *link.Peer, line string) {
	msg, err := protocol.Parse(line)
	if err != nil {
		s.logger.Debug("Ignoring unparsable server line", zap.String("peer", p.Name), zap.Error(err))
		return
	}

	switch msg.Command {
	case "TPROP":
		if err := s.props.TProp(p.SID, msg.Source, msg.Params); err != nil {
			s.logger.Debug("TPROP not applied", zap.String("peer", p.Name), zap.Error(err))
		}
	case "UID":
		s.serverUID(p, msg)
	case "SJOIN":
		s.serverSJoin(p, msg)
	case "NICK":
		s.serverNick(p, msg)
	case "PART":
		s.serverPart(p, msg)
	case "QUIT":
		s.serverQuit(p, msg)
	case "ENCAP":
		s.serverEncap(p, msg)
	case "ERROR":
		s.logger.Warn("Peer reported error", zap.String("peer", p.Name), zap.Strings("params", msg.Params))
	default:
		s.logger.Debug("Ignoring server command", zap.String("peer", p.Name), zap.String("command", msg.Command))
	}
}

// :<sid> UID <nick> <ts> <uid> <username> <host>
func (s *Server) serverUID(p *link.Peer, msg ircmsg.Message) {
	if len(msg.Params) < 5 {
		return
	}
	ts, err := strconv.ParseInt(msg.Params[1], 10, 64)
	if err != nil {
		return
	}

	c := &registry.Client{
		Nick:       msg.Params[0],
		TS:         ts,
		UID:        msg.Params[2],
		Username:   msg.Params[3],
		Host:       msg.Params[4],
		Registered: true,
	}
	if err := s.users.Add(c); err != nil {
		s.logger.Warn("Rejecting remote user",
			zap.String("peer", p.Name),
			zap.String("nick", c.Nick),
			zap.String("uid", c.UID),
			zap.Error(err))
		return
	}
	s.introducedBy[c] = p.SID
	s.Flood(p.SID, msg)
}

// :<sid> SJOIN <ts> <channel> :[@]<uid> ...
func (s *Server) serverSJoin(p *link.Peer, msg ircmsg.Message) {
	if len(msg.Params) < 3 {
		return
	}
	ts, err := strconv.ParseInt(msg.Params[0], 10, 64)
	if err != nil || !registry.IsChannelName(msg.Params[1]) {
		return
	}
	name := msg.Params[1]

	if ch := s.channels.Find(name); ch != nil && ts < ch.TS {
		s.props.ChannelLowerTS(ch, ts)
	}

	for _, entry := range strings.Fields(msg.Params[2]) {
		op := strings.HasPrefix(entry, "@")
		c := s.users.Find(strings.TrimPrefix(entry, "@"))
		if c == nil {
			continue
		}

		ch, joined := s.channels.Join(name, c, ts)
		level := types.AccessPeon
		// ops from the younger side of a TS conflict are not kept
		if op && ts <= ch.TS {
			level = types.AccessChanop
		}
		ch.SetAccess(c, level)
		if joined {
			s.sendToChannel(ch, ircmsg.MakeMessage(nil, c.Mask(), "JOIN", ch.Name))
		}
	}
	s.Flood(p.SID, msg)
}

// :<uid> NICK <nick> <ts>
func (s *Server) serverNick(p *link.Peer, msg ircmsg.Message) {
	c := s.users.Find(msg.Source)
	if c == nil || len(msg.Params) < 1 {
		return
	}
	oldMask := c.Mask()
	if err := s.users.Rename(c, msg.Params[0]); err != nil {
		s.logger.Warn("Remote nick collision", zap.String("uid", c.UID), zap.String("nick", msg.Params[0]))
		return
	}
	if len(msg.Params) > 1 {
		if ts, err := strconv.ParseInt(msg.Params[1], 10, 64); err == nil {
			c.TS = ts
		}
	}
	s.sendToCommonChannels(c, ircmsg.MakeMessage(nil, oldMask, "NICK", c.Nick))
	s.Flood(p.SID, msg)
}

// :<uid> PART <channel>
func (s *Server) serverPart(p *link.Peer, msg ircmsg.Message) {
	c := s.users.Find(msg.Source)
	if c == nil || len(msg.Params) < 1 {
		return
	}
	ch := s.channels.Find(msg.Params[0])
	if ch == nil {
		return
	}
	if _, member := ch.Access(c); !member {
		return
	}
	s.sendToChannel(ch, ircmsg.MakeMessage(nil, c.Mask(), "PART", ch.Name))
	s.channels.Part(ch.Name, c)
	s.Flood(p.SID, msg)
}

// :<uid> QUIT :<reason>
func (s *Server) serverQuit(p *link.Peer, msg ircmsg.Message) {
	c := s.users.Find(msg.Source)
	if c == nil || c.Local {
		return
	}
	reason := ""
	if len(msg.Params) > 0 {
		reason = msg.Params[0]
	}
	s.removeClient(c, reason)
	s.Flood(p.SID, msg)
}

// :<uid> ENCAP * LOGIN <account>
func (s *Server) serverEncap(p *link.Peer, msg ircmsg.Message) {
	if len(msg.Params) < 3 || msg.Params[1] != "LOGIN" {
		s.Flood(p.SID, msg)
		return
	}
	c := s.users.Find(msg.Source)
	if c == nil || c.Local {
		return
	}
	c.Account = msg.Params[2]
	s.Flood(p.SID, msg)
}
