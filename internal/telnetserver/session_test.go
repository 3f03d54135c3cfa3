package telnetserver

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestNewClientSessionDefaults(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	sess := newClientSession(server, 1024, nil)

	if sess.ID == "" {
		t.Error("ID should be populated")
	}
	if got := sess.TermType(); got != "unknown" {
		t.Errorf("TermType() = %q, want unknown", got)
	}
	if !sess.Active() {
		t.Error("new session should be active")
	}
}

func TestSendStrAppendsRaw(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.SendStr([]byte("abc"))
	sess.SendStr([]byte("def"))
	if !sess.SendReady() {
		t.Fatal("SendReady() = false after SendStr")
	}
	sess.optTable.NoteLocal(OptSGA, true) // suppress GA for an exact comparison
	got := sess.takeSendBuf()
	if !bytes.Equal(got, []byte("abcdef")) {
		t.Errorf("takeSendBuf() = %q, want %q", got, "abcdef")
	}
}

// Doubled-IAC round trip: the wire output is the UTF-8 encoding of the
// input with every 0xFF doubled. A raw 0xFF in the input is invalid
// UTF-8, so the encoder replaces it with U+FFFD (EF BF BD) and no bare
// IAC byte reaches the wire.
func TestSendUnicodeDoublesIAC(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)

	if err := sess.SendUnicode("a\xffb"); err != nil {
		t.Fatalf("SendUnicode: %v", err)
	}
	got := sess.takeSendBuf()
	want := []byte{'a', 0xEF, 0xBF, 0xBD, 'b'}
	if !bytes.Equal(got, want) {
		t.Errorf("takeSendBuf() = %v, want %v", got, want)
	}
}

func TestSendUnicodePlainASCIIUnaffected(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)

	if err := sess.SendUnicode("hello"); err != nil {
		t.Fatalf("SendUnicode: %v", err)
	}
	got := sess.takeSendBuf()
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("takeSendBuf() = %q, want %q", got, "hello")
	}
}

// Scenario 6: with SGA not negotiated and recvBuf empty after a drained
// send, a trailing IAC GA is appended.
func TestTakeSendBufAppendsGAWhenSGAInactiveAndRecvEmpty(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.SendStr([]byte("hi"))

	got := sess.takeSendBuf()
	want := []byte{'h', 'i', byte(IAC), byte(GA)}
	if !bytes.Equal(got, want) {
		t.Errorf("takeSendBuf() = %v, want %v", got, want)
	}
}

func TestTakeSendBufOmitsGAWhenSGAActive(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)
	sess.SendStr([]byte("hi"))

	got := sess.takeSendBuf()
	if !bytes.Equal(got, []byte("hi")) {
		t.Errorf("takeSendBuf() = %v, want %q (no GA)", got, "hi")
	}
}

func TestTakeSendBufOmitsGAWhenRecvBufNonEmpty(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.recvBuf = []byte("pending input")
	sess.SendStr([]byte("hi"))

	got := sess.takeSendBuf()
	if !bytes.Equal(got, []byte("hi")) {
		t.Errorf("takeSendBuf() = %v, want %q (no GA)", got, "hi")
	}
}

func TestTakeSendBufNilWhenEmpty(t *testing.T) {
	sess, _ := newTestSession(t)
	if got := sess.takeSendBuf(); got != nil {
		t.Errorf("takeSendBuf() = %v, want nil", got)
	}
}

func TestDeactivateIsIdempotentAndObservable(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.Deactivate()
	sess.Deactivate()
	if sess.Active() {
		t.Error("session should be inactive after Deactivate")
	}
}

func TestIdleAndDuration(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.connectTime = time.Now().Add(-time.Minute)
	sess.lastInputTime = time.Now().Add(-time.Second)

	if d := sess.Duration(); d < 59*time.Second {
		t.Errorf("Duration() = %v, want >= 59s", d)
	}
	if idle := sess.Idle(); idle < 900*time.Millisecond {
		t.Errorf("Idle() = %v, want >= ~1s", idle)
	}
}
