package policy

import "ircxprop/pkg/propset"

// HideKeys returns a visibility hook that hides the named keys from every
// listing. Typical use is hiding stored credentials.
func HideKeys(keys ...string) VisibilityHook {
	hidden := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		hidden[k] = struct{}{}
	}

	return func(_ Request, p *propset.Property) bool {
		_, hide := hidden[p.Name]
		return !hide
	}
}

// ProtectKeys returns a write hook that denies the named keys outright.
func ProtectKeys(keys ...string) WriteHook {
	protected := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		protected[k] = struct{}{}
	}

	return func(req Request, allowed bool) bool {
		if _, ok := protected[req.Key]; ok {
			return false
		}
		return allowed
	}
}
