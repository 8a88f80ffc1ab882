package types

import "ircxprop/pkg/propset"

// EntityKind identifies what a property target is.
type EntityKind int

const (
	KindUser EntityKind = iota
	KindChannel
	KindAccount
)

func (k EntityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindChannel:
		return "channel"
	case KindAccount:
		return "account"
	default:
		return "unknown"
	}
}

// AccessLevel is a member's standing in a channel. Levels are ordered.
type AccessLevel int

const (
	AccessPeon AccessLevel = iota
	AccessVoice
	AccessChanop
	AccessAdmin
)

func (a AccessLevel) String() string {
	switch a {
	case AccessPeon:
		return "peon"
	case AccessVoice:
		return "voice"
	case AccessChanop:
		return "chanop"
	case AccessAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Actor is whoever issued a request: a client or a server.
type Actor interface {
	// Name is the nickname or server name.
	Name() string
	// ID is the UID of a client or the SID of a server.
	ID() string
	// Mask is the nick!user@host source used when echoing to clients.
	Mask() string
	// IsLocal reports whether the actor is a client connected to this server.
	IsLocal() bool
}

// Entity is anything that owns a property store.
type Entity interface {
	Kind() EntityKind
	// Target is the name used on the wire when replicating this entity.
	Target() string
	Epoch() int64
	SetEpoch(ts int64)
	Props() *propset.Set
}
