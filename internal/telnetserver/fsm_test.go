package telnetserver

import (
	"bytes"
	"testing"
)

func TestHandleDOStatusEmitsWillAndReport(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptEcho, true)
	sess.optTable.NoteLocal(OptSGA, false)

	if err := sess.handleDO(OptStatus); err != nil {
		t.Fatalf("handleDO(STATUS): %v", err)
	}

	out := sess.takeSendBuf()
	if !bytes.HasPrefix(out, []byte{byte(IAC), byte(WILL), byte(OptStatus)}) {
		t.Fatalf("expected WILL STATUS prefix, got %v", out)
	}
	rest := out[3:]
	wantHeader := []byte{byte(IAC), byte(SB), byte(OptStatus), opIS}
	if !bytes.HasPrefix(rest, wantHeader) {
		t.Fatalf("expected STATUS report header %v, got %v", wantHeader, rest)
	}
	// Local SGA is false and recvBuf is empty, so takeSendBuf appends
	// IAC GA after the report's closing IAC SE.
	if !bytes.HasSuffix(rest, []byte{byte(IAC), byte(SE), byte(IAC), byte(GA)}) {
		t.Fatalf("expected trailing IAC SE IAC GA, got %v", rest)
	}
	// The report names ECHO as DO (true) and SGA as DONT (false).
	if !bytes.Contains(rest, []byte{byte(IAC), byte(DO), byte(OptEcho)}) {
		t.Errorf("STATUS report missing DO ECHO: %v", rest)
	}
	if !bytes.Contains(rest, []byte{byte(IAC), byte(DONT), byte(OptSGA)}) {
		t.Errorf("STATUS report missing DONT SGA: %v", rest)
	}
}

func TestHandleDOUnknownOptionRefused(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)
	const unknownOpt = OptionCode(99)

	if err := sess.handleDO(unknownOpt); err != nil {
		t.Fatalf("handleDO(unknown): %v", err)
	}
	if got := sess.optTable.CheckLocal(unknownOpt); got != False {
		t.Errorf("local(unknown) = %v, want False", got)
	}
	out := sess.takeSendBuf()
	want := []byte{byte(IAC), byte(WONT), byte(unknownOpt)}
	if !bytes.Equal(out, want) {
		t.Errorf("sendBuf = %v, want %v", out, want)
	}
}

// Idempotence: receiving the same WILL twice yields exactly one answering DO.
func TestHandleWILLNAWSIdempotent(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)

	if err := sess.handleWILL(OptNAWS); err != nil {
		t.Fatalf("handleWILL: %v", err)
	}
	first := sess.takeSendBuf()
	if !bytes.Equal(first, []byte{byte(IAC), byte(DO), byte(OptNAWS)}) {
		t.Fatalf("first answer = %v, want DO NAWS", first)
	}

	if err := sess.handleWILL(OptNAWS); err != nil {
		t.Fatalf("handleWILL (repeat): %v", err)
	}
	second := sess.takeSendBuf()
	if second != nil {
		t.Errorf("second answer = %v, want nil (suppressed)", second)
	}
}

func TestHandleWILLNewEnvironSendsRequest(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true) // suppress GA so the request ends in IAC SE

	if err := sess.handleWILL(OptNewEnviron); err != nil {
		t.Fatalf("handleWILL(NEW-ENVIRON): %v", err)
	}
	out := sess.takeSendBuf()
	wantPrefix := []byte{byte(IAC), byte(DO), byte(OptNewEnviron), byte(IAC), byte(SB), byte(OptNewEnviron), opSEND}
	if !bytes.HasPrefix(out, wantPrefix) {
		t.Fatalf("sendBuf = %v, want prefix %v", out, wantPrefix)
	}
	if !bytes.Contains(out, append([]byte{envVAR}, []byte("USER")...)) {
		t.Errorf("environment request missing VAR USER: %v", out)
	}
	if !bytes.HasSuffix(out, []byte{byte(IAC), byte(SE)}) {
		t.Errorf("environment request missing trailing IAC SE: %v", out)
	}
}

func TestHandleWONTEchoSendsDONTOnlyWhenRemoteNotFalse(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)
	sess.optTable.NoteRemote(OptEcho, true)

	if err := sess.handleWONT(OptEcho); err != nil {
		t.Fatalf("handleWONT: %v", err)
	}
	out := sess.takeSendBuf()
	if !bytes.Equal(out, []byte{byte(IAC), byte(DONT), byte(OptEcho)}) {
		t.Fatalf("sendBuf = %v, want DONT ECHO", out)
	}

	if err := sess.handleWONT(OptEcho); err != nil {
		t.Fatalf("handleWONT (repeat): %v", err)
	}
	if out := sess.takeSendBuf(); out != nil {
		t.Errorf("repeat handleWONT produced %v, want nil", out)
	}
}

func TestHandleWILLEchoClosesConnection(t *testing.T) {
	sess, _ := newTestSession(t)
	err := sess.handleWILL(OptEcho)
	if err == nil {
		t.Fatal("expected error for WILL ECHO")
	}
	if _, ok := err.(*ConnectionClosed); !ok {
		t.Errorf("error type = %T, want *ConnectionClosed", err)
	}
}

func TestHandleDOEncryptRefused(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.optTable.NoteLocal(OptSGA, true)
	if err := sess.handleDO(OptEncrypt); err != nil {
		t.Fatalf("handleDO(ENCRYPT): %v", err)
	}
	if got := sess.optTable.CheckLocal(OptEncrypt); got != False {
		t.Errorf("local(ENCRYPT) = %v, want False", got)
	}
	out := sess.takeSendBuf()
	if !bytes.Equal(out, []byte{byte(IAC), byte(WONT), byte(OptEncrypt)}) {
		t.Errorf("sendBuf = %v, want WONT ENCRYPT", out)
	}
}
