package prop

import (
	"errors"
	"fmt"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/account"
	"ircxprop/pkg/credential"
	"ircxprop/pkg/metrics"
	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/resolve"
	"ircxprop/pkg/types"
)

var (
	ErrNeedMoreParams = errors.New("not enough parameters")
	ErrDenied         = errors.New("permission denied")
	ErrTooManyProps   = errors.New("too many properties")
	ErrStale          = errors.New("stale replicated property")
	ErrMalformed      = errors.New("malformed replicated property")
	ErrAccountExists  = errors.New("account already exists")
)

// Output delivers lines produced by the handler.
type Output interface {
	// Send delivers msg to a local client.
	Send(to *registry.Client, msg ircmsg.Message)
	// Flood delivers msg to every linked server except the one named by
	// except, which may be empty.
	Flood(except string, msg ircmsg.Message)
}

// Change describes a property mutation that was applied.
type Change struct {
	// Source is the client mask or server ID that made the change.
	Source     string
	Entity     types.Entity
	Key        string
	Value      string
	Replicated bool
}

// Config holds the collaborators of a Handler.
type Config struct {
	Server   *registry.Server
	Pipeline *resolve.Pipeline
	Accounts *account.Directory
	Users    *registry.Users
	Channels *registry.Channels
	// MaxProps limits properties per entity for interactive inserts; zero
	// means unlimited.
	MaxProps int
	Output   Output
	Hasher   credential.Hasher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Handler implements PROP, TPROP, REGISTER and link bursts. It is not safe
// for concurrent use; the server funnels every call through one goroutine.
type Handler struct {
	me       *registry.Server
	pipeline *resolve.Pipeline
	accounts *account.Directory
	users    *registry.Users
	channels *registry.Channels
	maxProps int
	out      Output
	hasher   credential.Hasher
	metrics  *metrics.Metrics
	logger   *zap.Logger

	observers []func(Change)
}

// NewHandler creates a property handler
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Server == nil || cfg.Pipeline == nil || cfg.Output == nil {
		return nil, fmt.Errorf("server, pipeline and output are required")
	}
	if cfg.Accounts == nil || cfg.Users == nil || cfg.Channels == nil {
		return nil, fmt.Errorf("accounts, users and channels are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
	if cfg.Hasher == nil {
		cfg.Hasher = credential.NewBcrypt(0)
	}

	return &Handler{
		me:       cfg.Server,
		pipeline: cfg.Pipeline,
		accounts: cfg.Accounts,
		users:    cfg.Users,
		channels: cfg.Channels,
		maxProps: cfg.MaxProps,
		out:      cfg.Output,
		hasher:   cfg.Hasher,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}, nil
}

// OnChange registers fn to be called after every applied change.
func (h *Handler) OnChange(fn func(Change)) {
	h.observers = append(h.observers, fn)
}

// ISupport returns the capability token advertising the property limit.
func (h *Handler) ISupport() string {
	return fmt.Sprintf("MAXPROP=%d", h.maxProps)
}

func (h *Handler) notify(ch Change) {
	for _, fn := range h.observers {
		fn(ch)
	}
}

func (h *Handler) numeric(to *registry.Client, code string, params ...string) {
	h.out.Send(to, protocol.Numeric(h.me.ServerName, to.Nick, code, params...))
}

// reportResolve tells the actor why a target could not be resolved.
func (h *Handler) reportResolve(to *registry.Client, target string, err error) {
	h.metrics.PropNotFound.Inc()
	switch {
	case errors.Is(err, resolve.ErrNoSuchChannel):
		h.numeric(to, protocol.ErrNoSuchChannel, target, "No such channel")
	default:
		h.numeric(to, protocol.ErrNoSuchNick, target, "No such nick/channel")
	}
}
