package account

import (
	"ircxprop/pkg/propset"
	"ircxprop/pkg/types"
)

// TargetPrefix marks an account name in a property target.
const TargetPrefix = "account:"

// Account is a named, server-wide record that carries properties. Accounts
// are created on first reference and are never removed.
type Account struct {
	Name string // display name as first seen
	Key  string // folded name, indexed

	creationTS int64
	props      propset.Set
}

func (a *Account) Kind() types.EntityKind { return types.KindAccount }

// Target returns the wire form "account:<name>".
func (a *Account) Target() string { return TargetPrefix + a.Name }

func (a *Account) Epoch() int64 { return a.creationTS }

func (a *Account) SetEpoch(ts int64) { a.creationTS = ts }

func (a *Account) Props() *propset.Set { return &a.props }
