package prop

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/resolve"
)

// TProp applies a replicated property change received from a linked server:
//
//	:<source> TPROP <target> <creationTS> <updateTS> <key> :[<value>]
//
// origin names the link the line arrived on and is excluded when the change
// is flooded onward. Stale, duplicate and malformed lines are dropped and
// never reach a client.
func (h *Handler) TProp(origin, source string, params []string) error {
	if len(params) < 4 {
		h.metrics.TPropDropped.Inc()
		return fmt.Errorf("%d parameters: %w", len(params), ErrMalformed)
	}

	target, key := params[0], params[3]
	creationTS, err := strconv.ParseInt(params[1], 10, 64)
	if err != nil {
		h.metrics.TPropDropped.Inc()
		return fmt.Errorf("creation ts %q: %w", params[1], ErrMalformed)
	}
	updateTS, err := strconv.ParseInt(params[2], 10, 64)
	if err != nil {
		h.metrics.TPropDropped.Inc()
		return fmt.Errorf("update ts %q: %w", params[2], ErrMalformed)
	}
	value := ""
	if len(params) > 4 {
		value = params[4]
	}

	actor := &registry.Server{ServerName: origin, SID: source}
	ctx := resolve.NewReplicatedContext(actor, target, key, creationTS)
	if err := h.pipeline.Resolve(ctx); err != nil {
		h.metrics.TPropDropped.Inc()
		h.logger.Debug("Dropping TPROP for unknown target",
			zap.String("origin", origin),
			zap.String("target", target),
			zap.Error(err))
		return err
	}

	kind := ctx.Entity.Kind().String()
	store := ctx.Store

	switch ctx.Outcome {
	case resolve.OutcomeStale:
		h.metrics.TPropStale.Inc()
		h.logger.Debug("Dropping stale TPROP",
			zap.String("target", target),
			zap.Int64("creation_ts", creationTS),
			zap.Int64("local_ts", ctx.CreationTS))
		return ErrStale
	case resolve.OutcomeLowered:
		h.metrics.EpochsLowered.WithLabelValues(kind).Inc()
	case resolve.OutcomeEqual:
		existing := store.Find(key)
		if existing == nil && value == "" {
			return nil
		}
		if existing != nil {
			if updateTS < existing.SetAt {
				h.metrics.TPropStale.Inc()
				return ErrStale
			}
			if updateTS == existing.SetAt && value == existing.Value {
				return nil
			}
		}
	}

	if value == "" {
		store.Delete(key)
	} else {
		p := store.Add(key, value, source)
		p.SetAt = updateTS
	}
	h.metrics.TPropApplied.WithLabelValues(kind).Inc()

	if ctx.Redistribute {
		h.out.Flood(origin, protocol.TProp(h.me.SID, ctx.Entity.Target(), ctx.CreationTS, updateTS, key, value))
	}
	h.notify(Change{Source: source, Entity: ctx.Entity, Key: key, Value: value, Replicated: true})
	return nil
}
