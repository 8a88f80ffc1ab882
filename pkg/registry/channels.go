package registry

import (
	"sort"
	"strings"

	"ircxprop/pkg/casemap"
	"ircxprop/pkg/propset"
	"ircxprop/pkg/types"
)

// Channel is a named group of members with its own property store.
type Channel struct {
	Name string
	TS   int64

	members map[*Client]types.AccessLevel
	props   propset.Set
}

func (ch *Channel) Kind() types.EntityKind { return types.KindChannel }
func (ch *Channel) Target() string         { return ch.Name }
func (ch *Channel) Epoch() int64           { return ch.TS }
func (ch *Channel) SetEpoch(ts int64)      { ch.TS = ts }
func (ch *Channel) Props() *propset.Set    { return &ch.props }

// IsLocalOnly reports whether the channel is an '&' channel, which is never
// shared with other servers.
func (ch *Channel) IsLocalOnly() bool {
	return strings.HasPrefix(ch.Name, "&")
}

// Access returns the level c holds in the channel and whether c is a member.
func (ch *Channel) Access(c *Client) (types.AccessLevel, bool) {
	level, ok := ch.members[c]
	return level, ok
}

// SetAccess changes the level of an existing member.
func (ch *Channel) SetAccess(c *Client, level types.AccessLevel) {
	if _, ok := ch.members[c]; ok {
		ch.members[c] = level
	}
}

// Members returns the channel members ordered by UID.
func (ch *Channel) Members() []*Client {
	out := make([]*Client, 0, len(ch.members))
	for c := range ch.members {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// IsChannelName reports whether name has a channel prefix.
func IsChannelName(name string) bool {
	return strings.HasPrefix(name, "#") || strings.HasPrefix(name, "&")
}

// Channels is the channel table.
type Channels struct {
	byName map[string]*Channel
}

// NewChannels creates an empty channel table
func NewChannels() *Channels {
	return &Channels{byName: make(map[string]*Channel)}
}

// Find returns the named channel or nil.
func (cs *Channels) Find(name string) *Channel {
	return cs.byName[casemap.Fold(name)]
}

// Join adds c to the named channel, creating it with the given TS if needed.
// The creator of a channel is made chanop. Joining twice is a no-op.
func (cs *Channels) Join(name string, c *Client, ts int64) (*Channel, bool) {
	key := casemap.Fold(name)
	ch, exists := cs.byName[key]
	if !exists {
		ch = &Channel{Name: name, TS: ts, members: make(map[*Client]types.AccessLevel)}
		cs.byName[key] = ch
	}
	if _, member := ch.members[c]; member {
		return ch, false
	}

	level := types.AccessPeon
	if !exists {
		level = types.AccessChanop
	}
	ch.members[c] = level
	return ch, true
}

// Part removes c from the named channel. An emptied channel is destroyed,
// along with its properties.
func (cs *Channels) Part(name string, c *Client) bool {
	key := casemap.Fold(name)
	ch, exists := cs.byName[key]
	if !exists {
		return false
	}
	if _, member := ch.members[c]; !member {
		return false
	}
	delete(ch.members, c)
	if len(ch.members) == 0 {
		delete(cs.byName, key)
	}
	return true
}

// PartAll removes c from every channel it is in.
func (cs *Channels) PartAll(c *Client) {
	for _, ch := range cs.All() {
		cs.Part(ch.Name, c)
	}
}

// All returns every channel ordered by folded name.
func (cs *Channels) All() []*Channel {
	keys := make([]string, 0, len(cs.byName))
	for k := range cs.byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Channel, 0, len(keys))
	for _, k := range keys {
		out = append(out, cs.byName[k])
	}
	return out
}
