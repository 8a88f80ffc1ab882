package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ircxprop/pkg/protocol"
)

const DefaultQueueSize = 8192

// Handler receives link events. Calls for one peer arrive in order from
// that peer's goroutine; calls for different peers may be concurrent.
type Handler interface {
	LinkUp(p *Peer)
	LinkLine(p *Peer, line string)
	LinkDown(p *Peer, err error)
}

// Config configures a Manager.
type Config struct {
	ServerName string
	SID        string
	Handler    Handler
	QueueSize  int
	Logger     *zap.Logger
}

// Manager accepts and dials server links over gRPC and tracks the
// established peers by SID.
type Manager struct {
	serverName string
	sid        string
	handler    Handler
	queueSize  int
	logger     *zap.Logger

	mu      sync.Mutex
	peers   map[string]*Peer
	server  *grpc.Server
	cancels []context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// msgStream is the part of grpc.ServerStream and grpc.ClientStream a link
// needs.
type msgStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
	Context() context.Context
}

// NewManager creates a link manager
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	m := &Manager{
		serverName: cfg.ServerName,
		sid:        cfg.SID,
		handler:    cfg.Handler,
		queueSize:  cfg.QueueSize,
		logger:     cfg.Logger,
		peers:      make(map[string]*Peer),
	}
	m.server = grpc.NewServer()
	m.server.RegisterService(&linkServiceDesc, m)
	return m
}

// Serve accepts inbound links on lis until Stop is called.
func (m *Manager) Serve(lis net.Listener) error {
	m.logger.Info("Accepting server links", zap.String("address", lis.Addr().String()))
	if err := m.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("link server failed: %w", err)
	}
	return nil
}

// Connect dials addr and runs the link in the background. It returns once
// the stream is open; LinkUp follows after the handshake.
func (m *Manager) Connect(addr string, opts ...grpc.DialOption) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrPeerClosed
	}
	m.mu.Unlock()

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := conn.NewStream(ctx, &linkServiceDesc.Streams[0], exchangeMethod)
	if err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("failed to open link to %s: %w", addr, err)
	}

	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer conn.Close()
		defer cancel()

		if err := m.run(stream, true, cancel); err != nil {
			m.logger.Warn("Outbound link closed", zap.String("address", addr), zap.Error(err))
		}
	}()
	return nil
}

func (m *Manager) exchange(stream grpc.ServerStream) error {
	return m.run(stream, false, nil)
}

// run performs the SERVER handshake and pumps lines until either side
// closes the link.
func (m *Manager) run(stream msgStream, outbound bool, stop context.CancelFunc) error {
	hello := fmt.Sprintf("SERVER %s %s", m.serverName, m.sid)
	if err := stream.SendMsg(wrapperspb.String(hello)); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	first := &wrapperspb.StringValue{}
	if err := stream.RecvMsg(first); err != nil {
		return fmt.Errorf("failed to read handshake: %w", err)
	}
	msg, err := protocol.Parse(first.GetValue())
	if err != nil || msg.Command != "SERVER" || len(msg.Params) < 2 {
		return fmt.Errorf("invalid handshake %q", first.GetValue())
	}

	peer := newPeer(msg.Params[0], msg.Params[1], outbound, m.queueSize)
	if err := m.register(peer); err != nil {
		stream.SendMsg(wrapperspb.String("ERROR :" + err.Error()))
		return err
	}

	logger := m.logger.With(zap.String("peer", peer.Name), zap.String("sid", peer.SID))
	logger.Info("Server link established", zap.Bool("outbound", outbound))

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- m.writeLoop(stream, peer)
	}()

	if m.handler != nil {
		m.handler.LinkUp(peer)
	}

	// The reader may stay blocked in RecvMsg after the peer is closed; it
	// is released when the stream ends below.
	go func() {
		peer.close(m.readLoop(stream, peer))
	}()

	<-peer.done
	writeErr := <-writerDone
	if stop != nil {
		stop()
	}

	m.unregister(peer)
	linkErr := peer.closeErr
	if linkErr == nil {
		linkErr = writeErr
	}
	if m.handler != nil {
		m.handler.LinkDown(peer, linkErr)
	}
	logger.Info("Server link closed", zap.Error(linkErr))

	if errors.Is(linkErr, io.EOF) || errors.Is(linkErr, ErrPeerClosed) {
		return nil
	}
	return linkErr
}

func (m *Manager) readLoop(stream msgStream, peer *Peer) error {
	for {
		in := &wrapperspb.StringValue{}
		if err := stream.RecvMsg(in); err != nil {
			return err
		}

		select {
		case <-peer.done:
			return ErrPeerClosed
		default:
		}
		if m.handler != nil {
			m.handler.LinkLine(peer, in.GetValue())
		}
	}
}

func (m *Manager) writeLoop(stream msgStream, peer *Peer) error {
	send := func(line string) error {
		if err := stream.SendMsg(wrapperspb.String(line)); err != nil {
			peer.close(err)
			return err
		}
		return nil
	}

	sendBurst := func(lines []string) error {
		for _, line := range lines {
			select {
			case <-peer.done:
				return nil
			default:
			}
			if err := send(line); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		// a pending burst goes out ahead of queued live lines
		select {
		case lines := <-peer.bursts:
			if err := sendBurst(lines); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case lines := <-peer.bursts:
			if err := sendBurst(lines); err != nil {
				return err
			}
		case line := <-peer.out:
			if err := send(line); err != nil {
				return err
			}
		case <-peer.done:
			return nil
		}
	}
}

func (m *Manager) register(peer *Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrPeerClosed
	}
	if peer.SID == m.sid {
		return fmt.Errorf("SID %s is our own", peer.SID)
	}
	if _, exists := m.peers[peer.SID]; exists {
		return fmt.Errorf("SID %s is already linked", peer.SID)
	}
	m.peers[peer.SID] = peer
	return nil
}

func (m *Manager) unregister(peer *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.peers[peer.SID]; ok && existing == peer {
		delete(m.peers, peer.SID)
	}
}

// Broadcast queues line for every peer except the one with SID except.
func (m *Manager) Broadcast(except, line string) {
	m.mu.Lock()
	targets := make([]*Peer, 0, len(m.peers))
	for sid, p := range m.peers {
		if sid != except {
			targets = append(targets, p)
		}
	}
	m.mu.Unlock()

	for _, p := range targets {
		if err := p.Send(line); err != nil {
			m.logger.Warn("Dropping line for peer", zap.String("sid", p.SID), zap.Error(err))
		}
	}
}

// Peers returns the SIDs of established links in order.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.peers))
	for sid := range m.peers {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Linked reports whether a server with the given name is linked.
func (m *Manager) Linked(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.peers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Send queues line for the peer with the given SID.
func (m *Manager) Send(sid, line string) error {
	m.mu.Lock()
	p, ok := m.peers[sid]
	m.mu.Unlock()

	if !ok {
		return ErrPeerClosed
	}
	return p.Send(line)
}

// Stop closes every link and stops accepting new ones.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	for _, p := range m.peers {
		p.close(ErrPeerClosed)
	}
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.server.Stop()
	m.wg.Wait()
}
