package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"ircxprop/pkg/protocol"
	"ircxprop/pkg/registry"
)

const (
	sendQueueSize = 512
	maxLineLength = 8192
	writeTimeout  = 30 * time.Second
)

// session is one local client connection.
type session struct {
	conn   net.Conn
	client *registry.Client
	logger *zap.Logger

	out       chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, client *registry.Client, logger *zap.Logger) *session {
	return &session{
		conn:   conn,
		client: client,
		logger: logger,
		out:    make(chan string, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (sess *session) sendMsg(msg ircmsg.Message) {
	line, err := protocol.Encode(msg)
	if err != nil {
		sess.logger.Warn("Failed to encode client line", zap.String("command", msg.Command), zap.Error(err))
		return
	}
	sess.send(line)
}

// send queues a line without blocking. A client that cannot keep up is
// disconnected.
func (sess *session) send(line string) {
	select {
	case <-sess.done:
		return
	default:
	}

	select {
	case sess.out <- line:
	default:
		sess.logger.Warn("Send queue exceeded, dropping client")
		sess.close()
	}
}

// close marks the session closed. The writer flushes what is queued and
// then closes the connection.
func (sess *session) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
	})
}

func (sess *session) write(line string) error {
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := sess.conn.Write([]byte(line + "\r\n"))
	return err
}

// writeLoop drains the send queue until the session closes.
func (sess *session) writeLoop() {
	defer sess.conn.Close()

	for {
		select {
		case line := <-sess.out:
			if err := sess.write(line); err != nil {
				sess.close()
				return
			}
		case <-sess.done:
			for {
				select {
				case line := <-sess.out:
					if sess.write(line) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop hands each line to handle until the connection ends.
func (sess *session) readLoop(handle func(line string) bool) {
	scanner := bufio.NewScanner(sess.conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !handle(line) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		sess.logger.Debug("Client read ended", zap.Error(err))
	}
}

func (s *Server) acceptClients() {
	for {
		conn, err := s.clientLn.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error("Client listener failed", zap.Error(err))
			}
			return
		}
		s.startSession(conn)
	}
}

func (s *Server) startSession(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	client := &registry.Client{Host: host, Local: true}
	sess := newSession(conn, client, s.logger.With(zap.String("remote", conn.RemoteAddr().String())))

	if !s.call(func() {
		s.sessions[client] = sess
		s.metrics.Clients.Set(float64(len(s.sessions)))
	}) {
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		sess.readLoop(func(line string) bool {
			return s.submit(func() { s.handleClientLine(sess, line) })
		})
		s.submit(func() { s.dropClient(sess, "Connection closed") })
		sess.close()
	}()
}
