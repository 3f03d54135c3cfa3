package telnetserver

import (
	"bytes"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stlalpha/asynctelnet/internal/logging"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// ClientSession holds all per-connection state: the raw socket, the
// send/receive buffers, the in-flight sub-negotiation payload, the
// negotiated environment, and the option ledger. It is driven by
// exactly one goroutine (see Server.driveSession) except for SendStr /
// SendUnicode, which a host may call from anywhere to queue outgoing
// bytes (sendBuf has its own lock for that reason), and Deactivate /
// Active, which are guarded by activeMu.
type ClientSession struct {
	ID   string
	conn net.Conn
	addr net.Addr

	activeMu sync.Mutex
	active   bool

	sendMu  sync.Mutex
	sendBuf []byte

	recvBuf []byte

	// Parser state, per spec.md §3: gotCmd is non-nil only between the
	// command byte of a DO/DONT/WILL/WONT triple and its option byte.
	gotIAC bool
	gotSB  bool
	gotCmd *CommandCode
	sbBuf  []byte

	env      map[string]string
	optTable *OptionTable

	connectTime   time.Time
	lastInputTime time.Time
	bytesReceived uint64

	sbMaxLen int
	onNAWS   func(*ClientSession)
}

func newClientSession(conn net.Conn, sbMaxLen int, onNAWS func(*ClientSession)) *ClientSession {
	now := time.Now()
	return &ClientSession{
		ID:            uuid.NewString(),
		conn:          conn,
		addr:          conn.RemoteAddr(),
		active:        true,
		env:           map[string]string{"TERM": "unknown"},
		optTable:      newOptionTable(),
		connectTime:   now,
		lastInputTime: now,
		sbMaxLen:      sbMaxLen,
		onNAWS:        onNAWS,
	}
}

// GetInput returns and drains the received, IAC-stripped application
// bytes accumulated so far.
func (s *ClientSession) GetInput() []byte {
	if len(s.recvBuf) == 0 {
		return nil
	}
	out := s.recvBuf
	s.recvBuf = nil
	return out
}

// InputReady reports whether GetInput would return a non-empty slice.
func (s *ClientSession) InputReady() bool {
	return len(s.recvBuf) > 0
}

// SendStr appends raw bytes to the outgoing buffer. The caller is
// responsible for having escaped any IAC (0xFF) octets itself.
func (s *ClientSession) SendStr(b []byte) {
	s.sendMu.Lock()
	s.sendBuf = append(s.sendBuf, b...)
	s.sendMu.Unlock()
}

// SendUnicode encodes str as UTF-8, replacing invalid runes, doubles
// every 0xFF byte in the encoded output so it cannot be mistaken for
// IAC on the wire, and appends the result to the outgoing buffer.
func (s *ClientSession) SendUnicode(str string) error {
	enc := encoding.ReplaceUnsupported(unicode.UTF8.NewEncoder())
	encoded, err := enc.Bytes([]byte(str))
	if err != nil {
		encoded = []byte(str)
	}
	if bytes.IndexByte(encoded, 0xFF) == -1 {
		s.SendStr(encoded)
		return nil
	}
	doubled := make([]byte, 0, len(encoded)+8)
	for _, b := range encoded {
		doubled = append(doubled, b)
		if b == 0xFF {
			doubled = append(doubled, 0xFF)
		}
	}
	s.SendStr(doubled)
	return nil
}

// SendReady reports whether there are queued bytes to write.
func (s *ClientSession) SendReady() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return len(s.sendBuf) > 0
}

// takeSendBuf drains the outgoing buffer for the driving goroutine to
// write, appending a trailing IAC GA first if recvBuf holds no pending
// input and local SGA is not true (spec.md §4.6 step 6). Returns nil if there is nothing queued.
func (s *ClientSession) takeSendBuf() []byte {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if len(s.sendBuf) == 0 {
		return nil
	}
	if len(s.recvBuf) == 0 && s.optTable.CheckLocal(OptSGA) != True {
		s.sendBuf = append(s.sendBuf, byte(IAC), byte(GA))
	}
	out := s.sendBuf
	s.sendBuf = nil
	return out
}

// Deactivate marks the session inactive; the server closes the socket
// and reaps it at the next opportunity. Safe to call from any goroutine.
func (s *ClientSession) Deactivate() {
	s.activeMu.Lock()
	s.active = false
	s.activeMu.Unlock()
}

// Active reports whether the session is still considered live.
func (s *ClientSession) Active() bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.active
}

// AddrPort returns the peer's "ip:port" string.
func (s *ClientSession) AddrPort() string {
	return s.addr.String()
}

// RemoteAddr returns the peer's network address.
func (s *ClientSession) RemoteAddr() net.Addr {
	return s.addr
}

// Idle returns the time elapsed since the last byte was received.
func (s *ClientSession) Idle() time.Duration {
	return time.Since(s.lastInputTime)
}

// Duration returns the time elapsed since the connection was accepted.
func (s *ClientSession) Duration() time.Duration {
	return time.Since(s.connectTime)
}

// BytesReceived returns the monotonic count of bytes read from the peer.
func (s *ClientSession) BytesReceived() uint64 {
	return s.bytesReceived
}

// Env returns the value of the named negotiated environment variable.
func (s *ClientSession) Env(name string) (string, bool) {
	v, ok := s.env[name]
	return v, ok
}

// TermType is a convenience accessor for env["TERM"], which is always
// present per spec.md invariant 5.
func (s *ClientSession) TermType() string {
	return s.env["TERM"]
}

// RequestDoNAWS asks the peer to negotiate window size.
func (s *ClientSession) RequestDoNAWS() {
	s.optTable.NoteReply(OptNAWS, true)
	s.SendStr([]byte{byte(IAC), byte(DO), byte(OptNAWS)})
}

// RequestDoEnv asks the peer to negotiate NEW-ENVIRON.
func (s *ClientSession) RequestDoEnv() {
	s.optTable.NoteReply(OptNewEnviron, true)
	s.SendStr([]byte{byte(IAC), byte(DO), byte(OptNewEnviron)})
}

// RequestWillEcho declares that we will echo input ourselves.
func (s *ClientSession) RequestWillEcho() {
	s.optTable.NoteReply(OptEcho, true)
	s.SendStr([]byte{byte(IAC), byte(WILL), byte(OptEcho)})
}

// RequestWontEcho withdraws our local echo.
func (s *ClientSession) RequestWontEcho() {
	s.optTable.NoteReply(OptEcho, true)
	s.SendStr([]byte{byte(IAC), byte(WONT), byte(OptEcho)})
}

// RequestWillSGA declares that we will suppress go-ahead.
func (s *ClientSession) RequestWillSGA() {
	s.optTable.NoteReply(OptSGA, true)
	s.SendStr([]byte{byte(IAC), byte(WILL), byte(OptSGA)})
}

// RequestDoSGA asks the peer to suppress go-ahead as well.
func (s *ClientSession) RequestDoSGA() {
	s.optTable.NoteReply(OptSGA, true)
	s.SendStr([]byte{byte(IAC), byte(DO), byte(OptSGA)})
}

// RequestTtype asks the peer to negotiate terminal type.
func (s *ClientSession) RequestTtype() {
	s.optTable.NoteReply(OptTType, true)
	s.SendStr([]byte{byte(IAC), byte(DO), byte(OptTType)})
}

// logf logs through the standard logger; "DEBUG: " lines are emitted
// only when logging.DebugEnabled is set.
func (s *ClientSession) logf(format string, args ...any) {
	if rest, ok := strings.CutPrefix(format, "DEBUG: "); ok {
		logging.Debug(rest, args...)
		return
	}
	log.Printf(format, args...)
}
