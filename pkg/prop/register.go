package prop

import (
	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
)

// PassphraseKey is the account property holding the hashed passphrase.
const PassphraseKey = "passphrase"

// Register handles REGISTER from a local client:
//
//	REGISTER <account|*> <email|*> <passphrase>
//
// "*" as the account name registers the client's nickname. The email is
// accepted and ignored. On success the client is logged into the account.
func (h *Handler) Register(c *registry.Client, params []string) error {
	if len(params) < 3 {
		h.numeric(c, protocol.ErrNeedMoreParams, "REGISTER", "Not enough parameters")
		return ErrNeedMoreParams
	}

	name := params[0]
	if name == "*" {
		name = c.Nick
	}

	acct, created := h.accounts.Find(name, true)
	if acct == nil || !created {
		h.out.Send(c, ircmsg.MakeMessage(nil, h.me.ServerName, "FAIL",
			"REGISTER", "ACCOUNT_EXISTS", name, "Account already exists"))
		return ErrAccountExists
	}
	h.metrics.Accounts.Set(float64(h.accounts.Len()))

	hash, err := h.hasher.Hash(params[2])
	if err != nil {
		// the account stays, without a passphrase
		h.logger.Error("Failed to hash passphrase", zap.String("account", acct.Name), zap.Error(err))
		h.out.Send(c, ircmsg.MakeMessage(nil, h.me.ServerName, "FAIL",
			"REGISTER", "TEMPORARILY_UNAVAILABLE", name, "Could not store passphrase"))
		return err
	}

	p := acct.Props().Add(PassphraseKey, hash, h.me.ServerName)
	h.out.Flood("", protocol.TProp(h.me.SID, acct.Target(), acct.Epoch(), p.SetAt, p.Name, p.Value))
	h.out.Send(c, ircmsg.MakeMessage(nil, h.me.ServerName, "REGISTER",
		"SUCCESS", name, "Account created successfully"))

	h.logger.Info("Registered account", zap.String("account", acct.Name), zap.String("nick", c.Nick))
	h.notify(Change{Source: h.me.ServerName, Entity: acct, Key: PassphraseKey, Value: p.Value})
	h.Login(c, acct.Name)
	return nil
}

// Login records that c is authenticated as account and tells the mesh.
func (h *Handler) Login(c *registry.Client, account string) {
	if !c.Local {
		return
	}
	c.Account = account
	h.out.Flood("", ircmsg.MakeMessage(nil, c.UID, "ENCAP", "*", "LOGIN", account))
}
