package resolve

import "ircxprop/pkg/types"

// Reconcile compares an incoming epoch with the local one for e. A newer
// incoming epoch is stale. An older one wins: the local epoch is lowered and
// the store cleared so the older incarnation's properties replace ours.
//
// A user's epoch is its nick TS, which belongs to the user table. It is
// never lowered here; any mismatch means the change was made to another
// incarnation of the nick and is stale.
func Reconcile(e types.Entity, incoming int64) Outcome {
	local := e.Epoch()
	if e.Kind() == types.KindUser && incoming != local {
		return OutcomeStale
	}

	switch {
	case incoming > local:
		return OutcomeStale
	case incoming < local:
		e.SetEpoch(incoming)
		e.Props().Clear()
		return OutcomeLowered
	default:
		return OutcomeEqual
	}
}
