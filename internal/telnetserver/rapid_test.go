package telnetserver

import (
	"bytes"
	"net"
	"testing"

	"pgregory.net/rapid"
)

// For any byte sequence containing no IAC bytes, feeding it through the
// parser reproduces it exactly in recvBuf: §8's ordering invariant.
func TestRapidPlainBytesRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(rt, "n")
		input := make([]byte, n)
		for i := range input {
			input[i] = byte(rapid.IntRange(0, 254).Draw(rt, "b")) // never 0xFF
		}

		sess, _ := newTestSessionRapid(rt)
		if err := sess.Feed(input); err != nil {
			rt.Fatalf("Feed: %v", err)
		}
		got := sess.GetInput()
		if n == 0 {
			if len(got) != 0 {
				rt.Fatalf("GetInput() = %v, want empty", got)
			}
			return
		}
		if !bytes.Equal(got, input) {
			rt.Fatalf("GetInput() = %v, want %v", got, input)
		}
	})
}

// Every doubled IAC pair in an arbitrary byte stream collapses to
// exactly one literal 0xFF, with surrounding bytes preserved in order.
func TestRapidDoubledIACCollapses(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		segments := rapid.SliceOfN(rapid.IntRange(0, 254), 0, 8).Draw(rt, "segments")

		var wire, want []byte
		for _, b := range segments {
			if rapid.Bool().Draw(rt, "isLiteralFF") {
				wire = append(wire, byte(IAC), byte(IAC))
				want = append(want, 0xFF)
			} else {
				wire = append(wire, byte(b))
				want = append(want, byte(b))
			}
		}

		sess, _ := newTestSessionRapid(rt)
		if err := sess.Feed(wire); err != nil {
			rt.Fatalf("Feed: %v", err)
		}
		got := sess.GetInput()
		if !bytes.Equal(got, want) {
			rt.Fatalf("GetInput() = %v, want %v (wire=%v)", got, want, wire)
		}
	})
}

// sendUnicode's doubled-IAC round trip: for arbitrary input bytes, no
// 0xFF byte ever reaches the wire without being doubled.
func TestRapidSendUnicodeDoublesEveryIAC(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ints := rapid.SliceOfN(rapid.IntRange(0, 255), 0, 32).Draw(rt, "raw")
		raw := make([]byte, len(ints))
		for i, v := range ints {
			raw[i] = byte(v)
		}
		s := string(raw)

		sess, _ := newTestSessionRapid(rt)
		sess.optTable.NoteLocal(OptSGA, true)
		if err := sess.SendUnicode(s); err != nil {
			rt.Fatalf("SendUnicode: %v", err)
		}
		out := sess.takeSendBuf()

		for i := 0; i < len(out); i++ {
			if out[i] == 0xFF {
				if i+1 >= len(out) || out[i+1] != 0xFF {
					rt.Fatalf("lone undoubled 0xFF at index %d in %v", i, out)
				}
				i++
			}
		}
	})
}

func newTestSessionRapid(rt *rapid.T) (*ClientSession, net.Conn) {
	client, server := net.Pipe()
	sess := newClientSession(server, 4096, nil)
	return sess, client
}
