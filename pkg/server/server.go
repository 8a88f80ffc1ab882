package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ircxprop/pkg/account"
	"ircxprop/pkg/config"
	"ircxprop/pkg/credential"
	"ircxprop/pkg/link"
	"ircxprop/pkg/metrics"
	"ircxprop/pkg/policy"
	"ircxprop/pkg/prop"
	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
	"ircxprop/pkg/resolve"
	"ircxprop/pkg/store"
	"ircxprop/pkg/types"
)

const (
	opQueueSize       = 1024
	linkCheckInterval = 10 * time.Second
)

// Server owns all users, channels, accounts and their properties. Every
// change to that state runs on the single goroutine started by Start;
// network goroutines hand work to it through submit.
type Server struct {
	cfg    *config.Config
	me     *registry.Server
	logger *zap.Logger

	accounts *account.Directory
	users    *registry.Users
	channels *registry.Channels
	auth     *policy.Authorizer
	pipeline *resolve.Pipeline
	props    *prop.Handler
	metrics  *metrics.Metrics
	links    *link.Manager
	store    *store.Store

	sessions map[*registry.Client]*session
	// remote clients by the SID of the link that introduced them
	introducedBy map[*registry.Client]string
	uids         *uidGenerator

	ops      chan func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	clientLn net.Listener
	linkLn   net.Listener
}

// New builds a server from cfg. A nil registerer keeps metrics private.
func New(cfg *config.Config, registerer prometheus.Registerer, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	accounts, err := account.NewDirectory(logger.Named("accounts"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		me:           &registry.Server{ServerName: cfg.ServerName, SID: cfg.SID},
		logger:       logger,
		accounts:     accounts,
		users:        registry.NewUsers(),
		channels:     registry.NewChannels(),
		metrics:      metrics.New(registerer),
		sessions:     make(map[*registry.Client]*session),
		introducedBy: make(map[*registry.Client]string),
		uids:         newUIDGenerator(cfg.SID),
		ops:          make(chan func(), opQueueSize),
		done:         make(chan struct{}),
	}

	s.auth = policy.NewAuthorizer(logger.Named("policy"))
	if len(cfg.HiddenKeys) > 0 {
		s.auth.AddVisibilityHook(policy.HideKeys(cfg.HiddenKeys...))
	}
	if len(cfg.ProtectedKeys) > 0 {
		for _, kind := range []types.EntityKind{types.KindUser, types.KindChannel, types.KindAccount} {
			s.auth.AddWriteHook(kind, policy.ProtectKeys(cfg.ProtectedKeys...))
		}
	}

	s.pipeline = resolve.NewPipeline(s.auth, logger.Named("resolve"))
	s.pipeline.RegisterDefaults(s.accounts, s.users, s.channels)

	s.props, err = prop.NewHandler(prop.Config{
		Server:   s.me,
		Pipeline: s.pipeline,
		Accounts: s.accounts,
		Users:    s.users,
		Channels: s.channels,
		MaxProps: cfg.MaxProps,
		Output:   s,
		Hasher:   credential.NewBcrypt(cfg.BcryptCost),
		Metrics:  s.metrics,
		Logger:   logger.Named("prop"),
	})
	if err != nil {
		return nil, err
	}
	s.props.OnChange(s.announceChange)

	s.links = link.NewManager(link.Config{
		ServerName: cfg.ServerName,
		SID:        cfg.SID,
		Handler:    s,
		Logger:     logger.Named("link"),
	})

	if cfg.DatabasePath != "" {
		s.store, err = store.New(cfg.DatabasePath, logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		n, err := s.store.LoadAccounts(context.Background(), s.accounts)
		if err != nil {
			s.store.Close()
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		s.metrics.Accounts.Set(float64(n))
	}

	return s, nil
}

// Start binds the client and link listeners and starts serving.
func (s *Server) Start() error {
	var err error
	s.clientLn, err = net.Listen("tcp", s.cfg.ClientAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for clients: %w", err)
	}
	s.linkLn, err = net.Listen("tcp", s.cfg.LinkAddress)
	if err != nil {
		s.clientLn.Close()
		return fmt.Errorf("failed to listen for links: %w", err)
	}

	s.logger.Info("Server starting",
		zap.String("server", s.me.ServerName),
		zap.String("sid", s.me.SID),
		zap.String("clients", s.clientLn.Addr().String()),
		zap.String("links", s.linkLn.Addr().String()))

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	go func() {
		defer s.wg.Done()
		s.acceptClients()
	}()
	go func() {
		defer s.wg.Done()
		if err := s.links.Serve(s.linkLn); err != nil {
			s.logger.Error("Link listener failed", zap.Error(err))
		}
	}()

	for _, peer := range s.cfg.Peers {
		s.wg.Add(1)
		go func(peer config.PeerConfig) {
			defer s.wg.Done()
			s.maintainLink(peer)
		}(peer)
	}
	return nil
}

// Stop closes every connection, writes a final account snapshot and waits
// for all goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.clientLn != nil {
			s.clientLn.Close()
		}
		s.links.Stop()
		s.wg.Wait()

		if s.store != nil {
			s.saveSnapshot(store.Snapshot(s.accounts))
			s.store.Close()
		}
		s.logger.Info("Server stopped")
	})
}

// ClientAddr returns the bound client listener address.
func (s *Server) ClientAddr() net.Addr { return s.clientLn.Addr() }

// LinkAddr returns the bound link listener address.
func (s *Server) LinkAddr() net.Addr { return s.linkLn.Addr() }

// ConnectPeer dials a linked server outside of the configured peer list.
func (s *Server) ConnectPeer(addr string) error {
	return s.links.Connect(addr)
}

// loop runs queued operations one at a time.
func (s *Server) loop() {
	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case op := <-s.ops:
			op()
		case <-ticker.C:
			if s.store != nil {
				records := store.Snapshot(s.accounts)
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.saveSnapshot(records)
				}()
			}
		case <-s.done:
			for _, sess := range s.sessions {
				sess.close()
			}
			return
		}
	}
}

// submit queues fn for the server goroutine. It reports false once the
// server is stopping.
func (s *Server) submit(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the server goroutine and waits for it.
func (s *Server) call(fn func()) bool {
	finished := make(chan struct{})
	if !s.submit(func() {
		fn()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-s.done:
		return false
	}
}

// maintainLink keeps a configured peer linked, backing off while it is
// unreachable.
func (s *Server) maintainLink(peer config.PeerConfig) {
	logger := s.logger.With(zap.String("peer", peer.Name), zap.String("address", peer.Address))
	attempt := 0
	for {
		wait := linkCheckInterval
		if s.links.Linked(peer.Name) {
			attempt = 0
		} else if err := s.links.Connect(peer.Address); err != nil {
			wait = link.DefaultBackoff.Delay(attempt)
			attempt++
			logger.Warn("Failed to connect to peer, will retry",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(err))
		}

		select {
		case <-time.After(wait):
		case <-s.done:
			return
		}
	}
}

func (s *Server) saveSnapshot(records []store.AccountRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.store.SaveAccounts(ctx, records); err != nil {
		s.metrics.SnapshotFails.Inc()
		s.logger.Error("Failed to save account snapshot", zap.Error(err))
		return
	}
	s.metrics.SnapshotSaves.Inc()
}

// Send implements prop.Output.
func (s *Server) Send(to *registry.Client, msg ircmsg.Message) {
	sess, ok := s.sessions[to]
	if !ok {
		return
	}
	sess.sendMsg(msg)
}

// Flood implements prop.Output.
func (s *Server) Flood(except string, msg ircmsg.Message) {
	line, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Warn("Failed to encode server line", zap.String("command", msg.Command), zap.Error(err))
		return
	}
	s.links.Broadcast(except, line)
}

// announceChange shows channel property changes to local members.
func (s *Server) announceChange(ch prop.Change) {
	channel, ok := ch.Entity.(*registry.Channel)
	if !ok {
		return
	}

	source := ch.Source
	if ch.Replicated {
		source = s.me.ServerName
	}
	msg := protocol.PropEcho(source, channel.Name, ch.Key, ch.Value)

	for _, member := range channel.Members() {
		if !member.Local || (!ch.Replicated && member.Mask() == ch.Source) {
			continue
		}
		s.Send(member, msg)
	}
}
