package telnetserver

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// Callbacks are the sole outward coupling of the core, per spec.md §6.
// They run synchronously from the goroutine that observed the
// triggering condition and must not block or re-enter the Server.
type Callbacks struct {
	OnConnect    func(*ClientSession)
	OnDisconnect func(*ClientSession)
	OnNAWS       func(*ClientSession)

	// OnInput, if set, is invoked once per drive-loop iteration from the
	// session's own driving goroutine, after that iteration's Feed and
	// before its flush. This is the only safe place for a host to call
	// GetInput/InputReady: recvBuf, sbBuf, and parser state are touched
	// only from this goroutine (see SPEC_FULL.md §5), so a host that
	// wants to read input must do it here rather than from a goroutine
	// of its own.
	OnInput func(*ClientSession)
}

// Config holds Multiplexer configuration. Zero values are replaced with
// the defaults noted per field.
type Config struct {
	Host string
	Port int

	// MaxConnections caps concurrent sessions. Default 1000, matching
	// spec.md §5's resource bound.
	MaxConnections int
	// ListenBacklog is advisory; Go's net package does not expose
	// backlog tuning, so this is surfaced in logs only. Default 5.
	ListenBacklog int
	// RecvBlock is the read buffer size per Read call. Default 4096.
	RecvBlock int
	// SBMaxLen hard-caps sub-negotiation payloads. Default 1024.
	SBMaxLen int
	// PollInterval bounds how long a session's driving goroutine can
	// block in Read before waking to flush queued output that arrived
	// from outside the goroutine (e.g. a broadcast). Default 200ms.
	PollInterval time.Duration

	Callbacks Callbacks
}

func (c *Config) applyDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1000
	}
	if c.ListenBacklog <= 0 {
		c.ListenBacklog = 5
	}
	if c.RecvBlock <= 0 {
		c.RecvBlock = 4096
	}
	if c.SBMaxLen <= 0 {
		c.SBMaxLen = 1024
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
}

// Server is the connection multiplexer: it accepts connections, bounds
// their count, and drives each accepted session to completion on its
// own goroutine. See SPEC_FULL.md §5 for why goroutine-per-connection
// preserves the ordering and non-concurrent-mutation guarantees spec.md
// §5 demands of a single dispatch thread.
type Server struct {
	cfg Config

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*ClientSession
}

// NewServer validates cfg and returns a Server ready for ListenAndServe.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 {
		return nil, fmt.Errorf("telnetserver: invalid port %d", cfg.Port)
	}
	cfg.applyDefaults()
	return &Server{cfg: cfg, sessions: make(map[string]*ClientSession)}, nil
}

// ListenAndServe binds the listening socket and accepts connections
// until Close is called. A bind failure is fatal to the caller, per
// spec.md §7 item 3.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("telnetserver: listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Printf("INFO: telnetserver: listening on %s (backlog=%d, max-connections=%d)",
		addr, s.cfg.ListenBacklog, s.cfg.MaxConnections)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.listener == nil
			s.mu.Unlock()
			if closed {
				return nil
			}
			log.Printf("ERROR: telnetserver: accept: %v", err)
			continue
		}
		s.accept(conn)
	}
}

// accept admits conn as a new session if the server is under its
// connection cap, invokes OnConnect synchronously, and starts the
// session's driving goroutine. Otherwise it closes conn immediately,
// per spec.md §4.6 step 4.
func (s *Server) accept(conn net.Conn) {
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		log.Printf("WARN: telnetserver: rejecting %s: at max connections (%d)", conn.RemoteAddr(), s.cfg.MaxConnections)
		conn.Close()
		return
	}

	sess := newClientSession(conn, s.cfg.SBMaxLen, s.cfg.Callbacks.OnNAWS)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Printf("INFO: telnetserver: connection from %s (session %s)", sess.AddrPort(), sess.ID)

	if s.cfg.Callbacks.OnConnect != nil {
		s.cfg.Callbacks.OnConnect(sess)
	}

	go s.driveSession(sess)
}

// driveSession is the per-connection loop: one blocking Read, a full
// parse-and-dispatch pass over whatever arrived, and one flush,
// repeated until the session is deactivated. This realizes the "poll
// tick" of spec.md §4.6 steps 5-6 without a shared select loop.
func (s *Server) driveSession(sess *ClientSession) {
	defer s.reap(sess)

	buf := make([]byte, s.cfg.RecvBlock)
	for sess.Active() {
		sess.conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval))
		n, err := sess.conn.Read(buf)

		if n > 0 {
			sess.lastInputTime = time.Now()
			sess.bytesReceived += uint64(n)
			if ferr := sess.Feed(buf[:n]); ferr != nil {
				log.Printf("INFO: telnetserver: %s: %v", sess.AddrPort(), ferr)
				sess.Deactivate()
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Just a tick to re-check for externally queued output.
			} else if errors.Is(err, io.EOF) {
				log.Printf("INFO: telnetserver: %s: %v", sess.AddrPort(), errConnectionClosed("Requested by client"))
				sess.Deactivate()
			} else {
				log.Printf("WARN: telnetserver: %s: %v", sess.AddrPort(), errConnectionClosedf("socket error", err))
				sess.Deactivate()
			}
		}

		if s.cfg.Callbacks.OnInput != nil {
			s.cfg.Callbacks.OnInput(sess)
		}

		if werr := s.flushSession(sess); werr != nil {
			log.Printf("WARN: telnetserver: %s: %v", sess.AddrPort(), errConnectionClosedf("socket error", werr))
			sess.Deactivate()
		}
	}
	s.flushSession(sess)
}

// flushSession writes whatever is queued on sess.sendBuf, per spec.md
// §4.6 step 6.
func (s *Server) flushSession(sess *ClientSession) error {
	out := sess.takeSendBuf()
	for len(out) > 0 {
		n, err := sess.conn.Write(out)
		if err != nil {
			return err
		}
		out = out[n:]
	}
	return nil
}

// reap removes a deactivated session from the table, closes its socket,
// and fires OnDisconnect exactly once, per spec.md §4.6 step 1.
func (s *Server) reap(sess *ClientSession) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()

	sess.conn.Close()
	log.Printf("INFO: telnetserver: %s: session closed (duration=%s, bytes=%d)",
		sess.AddrPort(), sess.Duration().Round(time.Second), sess.BytesReceived())

	if s.cfg.Callbacks.OnDisconnect != nil {
		s.cfg.Callbacks.OnDisconnect(sess)
	}
}

// Close shuts down the listener and deactivates every live session;
// each session's own driving goroutine performs the actual reap.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	sessions := make([]*ClientSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Deactivate()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// SessionCount reports the number of currently tracked sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of currently tracked sessions, for use as
// a reaper.SessionSource.
func (s *Server) Sessions() []*ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ClientSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
