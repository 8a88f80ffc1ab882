package policy

import (
	"go.uber.org/zap"

	"ircxprop/pkg/propset"
	"ircxprop/pkg/types"
)

// Request describes an attempt to write or read a key on an entity.
type Request struct {
	Actor  types.Actor
	Target types.Entity
	Key    string
	Access types.AccessLevel
}

// Rule is the base write predicate for one entity kind.
type Rule func(req Request) bool

// WriteHook may change a write decision. It receives the decision so far
// and returns the new one.
type WriteHook func(req Request, allowed bool) bool

// VisibilityHook returns false to hide a property from a listing.
type VisibilityHook func(req Request, p *propset.Property) bool

type kindPolicy struct {
	rule  Rule
	hooks []WriteHook
	// overridable kinds consult hooks even when the rule denies
	overridable bool
}

// Authorizer decides whether an actor may write a key and whether a stored
// property is shown in a listing.
type Authorizer struct {
	kinds      map[types.EntityKind]*kindPolicy
	visibility []VisibilityHook
	logger     *zap.Logger
}

// NewAuthorizer creates an authorizer with the default rules for every
// entity kind.
func NewAuthorizer(logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Authorizer{
		kinds: map[types.EntityKind]*kindPolicy{
			types.KindChannel: {rule: ChanopRule, overridable: true},
			types.KindUser:    {rule: SelfRule},
			types.KindAccount: {rule: LocalClientRule},
		},
		logger: logger,
	}
}

// ChanopRule allows channel members holding at least chanop access.
func ChanopRule(req Request) bool {
	return req.Access >= types.AccessChanop
}

// SelfRule allows a user to write only its own properties.
func SelfRule(req Request) bool {
	return req.Actor != nil && req.Target != nil && req.Actor.ID() == req.Target.Target()
}

// LocalClientRule allows clients connected to this server.
func LocalClientRule(req Request) bool {
	return req.Actor != nil && req.Actor.IsLocal()
}

// SetRule replaces the base rule for kind.
func (a *Authorizer) SetRule(kind types.EntityKind, rule Rule) {
	a.policy(kind).rule = rule
}

// AddWriteHook appends a hook for kind. Channel hooks may grant or revoke;
// user and account hooks can only narrow a decision the base rule allowed.
func (a *Authorizer) AddWriteHook(kind types.EntityKind, hook WriteHook) {
	p := a.policy(kind)
	p.hooks = append(p.hooks, hook)
}

// AddVisibilityHook appends a listing filter.
func (a *Authorizer) AddVisibilityHook(hook VisibilityHook) {
	a.visibility = append(a.visibility, hook)
}

// CanWrite reports whether req may modify its key.
func (a *Authorizer) CanWrite(req Request) bool {
	if req.Target == nil {
		return false
	}

	p := a.policy(req.Target.Kind())
	allowed := p.rule != nil && p.rule(req)
	if !allowed && !p.overridable {
		return false
	}

	for _, hook := range p.hooks {
		allowed = hook(req, allowed)
		if !allowed && !p.overridable {
			break
		}
	}

	if !allowed {
		a.logger.Debug("Write denied",
			zap.String("target", req.Target.Target()),
			zap.String("key", req.Key),
			zap.Stringer("access", req.Access))
	}
	return allowed
}

// Visible reports whether prop may be shown to the requester.
func (a *Authorizer) Visible(req Request, prop *propset.Property) bool {
	for _, hook := range a.visibility {
		if !hook(req, prop) {
			return false
		}
	}
	return true
}

func (a *Authorizer) policy(kind types.EntityKind) *kindPolicy {
	p, ok := a.kinds[kind]
	if !ok {
		p = &kindPolicy{}
		a.kinds[kind] = p
	}
	return p
}
