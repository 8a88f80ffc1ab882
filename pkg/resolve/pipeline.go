package resolve

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ircxprop/pkg/policy"
)

var (
	ErrNoSuchNick    = errors.New("no such nick")
	ErrNoSuchChannel = errors.New("no such channel")
)

// Resolver turns a target name into an entity. Resolve returns true when it
// claimed the context, false when the name is not its shape, and an error
// when the shape is its own but the target does not exist.
type Resolver interface {
	Name() string
	Priority() int
	Resolve(ctx *Context) (bool, error)
}

// Pipeline runs resolvers from highest to lowest priority, reconciles epochs
// for replicated requests and grants access.
type Pipeline struct {
	resolvers []Resolver
	auth      *policy.Authorizer
	logger    *zap.Logger
}

// NewPipeline creates a pipeline with no resolvers.
func NewPipeline(auth *policy.Authorizer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auth == nil {
		auth = policy.NewAuthorizer(logger)
	}
	return &Pipeline{auth: auth, logger: logger}
}

// Register adds r, keeping resolvers ordered by descending priority.
// Resolvers of equal priority keep registration order.
func (p *Pipeline) Register(r Resolver) {
	p.resolvers = append(p.resolvers, r)
	sort.SliceStable(p.resolvers, func(i, j int) bool {
		return p.resolvers[i].Priority() > p.resolvers[j].Priority()
	})
}

// Authorizer returns the authorizer used for write grants.
func (p *Pipeline) Authorizer() *policy.Authorizer {
	return p.auth
}

// Resolve binds ctx to an entity and decides the granted mode. A stale
// replicated request resolves without error but with Outcome set to
// OutcomeStale; callers must not apply it.
func (p *Pipeline) Resolve(ctx *Context) error {
	for _, r := range p.resolvers {
		ok, err := r.Resolve(ctx)
		if err != nil {
			p.logger.Debug("Target not found",
				zap.String("resolver", r.Name()),
				zap.String("target", ctx.TargetName),
				zap.Error(err))
			return err
		}
		if ok {
			break
		}
	}
	if !ctx.Claimed() {
		return fmt.Errorf("%s: %w", ctx.TargetName, ErrNoSuchNick)
	}

	if ctx.Replicated {
		ctx.Outcome = Reconcile(ctx.Entity, ctx.CreationTS)
		if ctx.Outcome == OutcomeLowered {
			p.logger.Info("Lowered entity epoch",
				zap.String("target", ctx.Entity.Target()),
				zap.Int64("creation_ts", ctx.CreationTS))
		}
	}
	ctx.CreationTS = ctx.Entity.Epoch()

	ctx.Grant = ctx.Request
	if ctx.Request == ModeWrite && !ctx.Replicated {
		allowed := p.auth.CanWrite(policy.Request{
			Actor:  ctx.Actor,
			Target: ctx.Entity,
			Key:    ctx.Key,
			Access: ctx.Access,
		})
		if !allowed {
			ctx.Grant = ModeRead
		}
	}
	return nil
}
