package resolve

import (
	"ircxprop/pkg/propset"
	"ircxprop/pkg/types"
)

// Mode is the access a request asks for or is granted.
type Mode int

const (
	ModeExists Mode = iota
	ModeRead
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeExists:
		return "exists"
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Outcome records what epoch reconciliation decided for a replicated request.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeStale
	OutcomeLowered
	OutcomeEqual
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeLowered:
		return "lowered"
	case OutcomeEqual:
		return "equal"
	default:
		return "none"
	}
}

// Context carries one request through the pipeline. It is built per command
// and dropped when the command completes.
type Context struct {
	TargetName string
	Request    Mode
	Actor      types.Actor
	Key        string

	// CreationTS is the epoch carried by a replicated request on input and
	// the resolved entity's epoch on output.
	CreationTS int64
	Replicated bool

	Entity       types.Entity
	Store        *propset.Set
	Grant        Mode
	Access       types.AccessLevel
	Redistribute bool
	Outcome      Outcome
	// Created is set when resolution allocated the entity.
	Created bool

	claimed bool
}

// NewContext starts a context for an interactive request.
func NewContext(actor types.Actor, target string, mode Mode, key string) *Context {
	return &Context{TargetName: target, Request: mode, Actor: actor, Key: key}
}

// NewReplicatedContext starts a context for a replicated write carrying the
// sender's epoch for the target.
func NewReplicatedContext(actor types.Actor, target, key string, creationTS int64) *Context {
	return &Context{
		TargetName: target,
		Request:    ModeWrite,
		Actor:      actor,
		Key:        key,
		CreationTS: creationTS,
		Replicated: true,
	}
}

// Claim binds the context to entity. Only the first claim takes effect.
func (c *Context) Claim(entity types.Entity, access types.AccessLevel, redistribute bool) bool {
	if c.claimed {
		return false
	}
	c.claimed = true
	c.Entity = entity
	c.Store = entity.Props()
	c.Access = access
	c.Redistribute = redistribute
	return true
}

// Claimed reports whether a resolver has bound the context.
func (c *Context) Claimed() bool {
	return c.claimed
}
