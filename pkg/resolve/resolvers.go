package resolve

import (
	"fmt"
	"strings"

	"ircxprop/pkg/account"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/types"
)

// Priorities of the built-in resolvers. The user resolver is the catch-all
// and must stay lowest.
const (
	PriorityAccount = 30
	PriorityChannel = 20
	PriorityUser    = 0
)

// AccountResolver claims "account:<name>" targets, creating accounts on
// first reference.
type AccountResolver struct {
	Accounts *account.Directory
}

func (r *AccountResolver) Name() string  { return "account" }
func (r *AccountResolver) Priority() int { return PriorityAccount }

func (r *AccountResolver) Resolve(ctx *Context) (bool, error) {
	if !strings.HasPrefix(ctx.TargetName, account.TargetPrefix) {
		return false, nil
	}

	name := strings.TrimPrefix(ctx.TargetName, account.TargetPrefix)
	acct, created := r.Accounts.Find(name, true)
	if acct == nil {
		return false, fmt.Errorf("%s: %w", ctx.TargetName, ErrNoSuchNick)
	}

	// An account first seen through replication takes the sender's epoch.
	if created && ctx.Replicated {
		acct.SetEpoch(ctx.CreationTS)
	}
	ctx.Created = created
	ctx.Claim(acct, types.AccessPeon, true)
	return true, nil
}

// ChannelResolver claims '#' and '&' targets.
type ChannelResolver struct {
	Channels *registry.Channels
}

func (r *ChannelResolver) Name() string  { return "channel" }
func (r *ChannelResolver) Priority() int { return PriorityChannel }

func (r *ChannelResolver) Resolve(ctx *Context) (bool, error) {
	if !registry.IsChannelName(ctx.TargetName) {
		return false, nil
	}

	ch := r.Channels.Find(ctx.TargetName)
	if ch == nil {
		return false, fmt.Errorf("%s: %w", ctx.TargetName, ErrNoSuchChannel)
	}

	access := types.AccessPeon
	if c, ok := ctx.Actor.(*registry.Client); ok {
		if level, member := ch.Access(c); member {
			access = level
		}
	}

	ctx.Claim(ch, access, !ch.IsLocalOnly())
	return true, nil
}

// UserResolver claims everything else as a nickname or UID.
type UserResolver struct {
	Users *registry.Users
}

func (r *UserResolver) Name() string  { return "user" }
func (r *UserResolver) Priority() int { return PriorityUser }

func (r *UserResolver) Resolve(ctx *Context) (bool, error) {
	c := r.Users.Find(ctx.TargetName)
	if c == nil || !c.Registered {
		return false, fmt.Errorf("%s: %w", ctx.TargetName, ErrNoSuchNick)
	}

	ctx.Claim(c, types.AccessPeon, true)
	return true, nil
}

// RegisterDefaults adds the account, channel and user resolvers.
func (p *Pipeline) RegisterDefaults(accounts *account.Directory, users *registry.Users, channels *registry.Channels) {
	p.Register(&UserResolver{Users: users})
	p.Register(&ChannelResolver{Channels: channels})
	p.Register(&AccountResolver{Accounts: accounts})
}
