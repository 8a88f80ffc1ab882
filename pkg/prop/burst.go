package prop

import (
	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/types"
)

// Burst sends one TPROP for every stored property of every account, user
// and shared channel, each stamped with its entity's own epoch. It returns
// the number of lines sent.
func (h *Handler) Burst(send func(ircmsg.Message)) int {
	lines := 0
	emit := func(e types.Entity) {
		for _, p := range e.Props().All() {
			send(protocol.TProp(h.me.SID, e.Target(), e.Epoch(), p.SetAt, p.Name, p.Value))
			lines++
		}
	}

	for _, acct := range h.accounts.All() {
		emit(acct)
	}
	for _, c := range h.users.All() {
		if c.Registered {
			emit(c)
		}
	}
	for _, ch := range h.channels.All() {
		if !ch.IsLocalOnly() {
			emit(ch)
		}
	}

	h.metrics.BurstLines.Add(float64(lines))
	h.logger.Debug("Sent property burst", zap.Int("lines", lines))
	return lines
}

// ChannelLowerTS is called when channel sync lowers a channel's creation
// time. The properties belonged to the newer incarnation and are dropped.
func (h *Handler) ChannelLowerTS(ch *registry.Channel, ts int64) {
	if ts >= ch.TS {
		return
	}
	ch.TS = ts
	ch.Props().Clear()
	h.metrics.EpochsLowered.WithLabelValues(ch.Kind().String()).Inc()
	h.logger.Info("Cleared channel properties after TS change",
		zap.String("channel", ch.Name),
		zap.Int64("ts", ts))
}
