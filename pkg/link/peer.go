package link

import (
	"errors"
	"sync"
)

var (
	ErrSendQueueFull = errors.New("send queue exceeded")
	ErrPeerClosed    = errors.New("peer closed")
	ErrBurstPending  = errors.New("burst already pending")
)

// Peer is one established server link.
type Peer struct {
	Name     string
	SID      string
	Outbound bool

	out       chan string
	bursts    chan []string
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newPeer(name, sid string, outbound bool, queueSize int) *Peer {
	return &Peer{
		Name:     name,
		SID:      sid,
		Outbound: outbound,
		out:      make(chan string, queueSize),
		bursts:   make(chan []string, 1),
		done:     make(chan struct{}),
	}
}

// Send queues line for the peer. A peer whose queue overflows is dropped.
func (p *Peer) Send(line string) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.out <- line:
		return nil
	default:
		p.close(ErrSendQueueFull)
		return ErrSendQueueFull
	}
}

// Burst hands a full state dump to the writer. The lines are written with
// stream flow control instead of through the send queue, so a burst of any
// size never overflows it. Only one burst may be pending at a time.
func (p *Peer) Burst(lines []string) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.bursts <- lines:
		return nil
	default:
		return ErrBurstPending
	}
}

func (p *Peer) close(err error) {
	p.closeOnce.Do(func() {
		p.closeErr = err
		close(p.done)
	})
}

// Done is closed when the link goes down.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
