package prop

import (
	"time"

	"go.uber.org/zap"

	"ircxprop/pkg/policy"
	"ircxprop/pkg/propset"
	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/resolve"
)

// Prop handles a PROP command from a local client. One or two parameters
// list properties, three set or delete one:
//
//	PROP <target> [<filter>]
//	PROP <target> <key> :<value>
//
// An empty value deletes the key.
func (h *Handler) Prop(c *registry.Client, params []string) error {
	switch len(params) {
	case 0:
		h.numeric(c, protocol.ErrNeedMoreParams, "PROP", "Not enough parameters")
		return ErrNeedMoreParams
	case 1:
		return h.list(c, params[0], "")
	case 2:
		return h.list(c, params[0], params[1])
	default:
		return h.write(c, params[0], params[1], params[2])
	}
}

func (h *Handler) list(c *registry.Client, target, filter string) error {
	ctx := resolve.NewContext(c, target, resolve.ModeRead, "")
	if err := h.pipeline.Resolve(ctx); err != nil {
		h.reportResolve(c, target, err)
		return err
	}

	var props []*propset.Property
	if filter == "" {
		props = ctx.Store.All()
	} else {
		props = ctx.Store.Match(filter)
	}

	auth := h.pipeline.Authorizer()
	req := policy.Request{Actor: c, Target: ctx.Entity, Access: ctx.Access}
	for _, p := range props {
		req.Key = p.Name
		if !auth.Visible(req, p) {
			continue
		}
		h.numeric(c, protocol.RplPropList, target, p.Name, p.Value)
	}
	h.numeric(c, protocol.RplPropEnd, target, "End of PROP list")
	return nil
}

func (h *Handler) write(c *registry.Client, target, key, value string) error {
	ctx := resolve.NewContext(c, target, resolve.ModeWrite, key)
	if err := h.pipeline.Resolve(ctx); err != nil {
		h.reportResolve(c, target, err)
		return err
	}

	if ctx.Grant != resolve.ModeWrite {
		h.metrics.PropDenials.Inc()
		h.numeric(c, protocol.ErrPropDenied, target, key, "Permission denied")
		return ErrDenied
	}

	kind := ctx.Entity.Kind().String()
	store := ctx.Store

	if value == "" {
		store.Delete(key)
		h.metrics.PropsDeleted.WithLabelValues(kind).Inc()
		h.out.Send(c, protocol.PropEcho(c.Mask(), target, key, ""))
		if ctx.Redistribute {
			h.out.Flood("", protocol.TProp(c.UID, ctx.Entity.Target(), ctx.CreationTS, time.Now().Unix(), key, ""))
		}
		h.notify(Change{Source: c.Mask(), Entity: ctx.Entity, Key: key})
		return nil
	}

	// Only a new key can push the store past its limit.
	if h.maxProps > 0 && store.Find(key) == nil && store.Len() >= h.maxProps {
		h.metrics.PropTooMany.Inc()
		h.numeric(c, protocol.ErrPropTooMany, target, key, "Too many properties")
		return ErrTooManyProps
	}

	p := store.Add(key, value, c.Mask())
	h.metrics.PropsSet.WithLabelValues(kind).Inc()
	h.out.Send(c, protocol.PropEcho(c.Mask(), target, key, value))
	if ctx.Redistribute {
		h.out.Flood("", protocol.TProp(c.UID, ctx.Entity.Target(), ctx.CreationTS, p.SetAt, key, value))
	}

	h.logger.Debug("Property set",
		zap.String("target", ctx.Entity.Target()),
		zap.String("key", key),
		zap.String("setter", c.Mask()))
	h.notify(Change{Source: c.Mask(), Entity: ctx.Entity, Key: key, Value: value})
	return nil
}
