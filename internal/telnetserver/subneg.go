package telnetserver

import (
	"strconv"
	"strings"
)

// decodeSB interprets a completed sub-negotiation payload (the bytes
// between IAC SB and IAC SE, with doubled IACs already collapsed by the
// parser). sbBuf[0] is always the option code. Empty payloads,
// unrecognized options and malformed NAWS payloads are logged and
// dropped; TTYPE, NEW-ENVIRON and STATUS payloads with an unexpected
// operation byte are dropped without a log line. None of these closes
// the connection.
func (s *ClientSession) decodeSB(sbBuf []byte) {
	if len(sbBuf) == 0 {
		s.logf("ERROR: telnet %s: empty sub-negotiation payload", s.AddrPort())
		return
	}
	opt := OptionCode(sbBuf[0])
	body := sbBuf[1:]

	switch opt {
	case OptNAWS:
		s.decodeNAWS(body)
	case OptTType:
		s.decodeTType(body)
	case OptNewEnviron:
		s.decodeNewEnviron(body)
	case OptStatus:
		s.decodeStatus(body)
	default:
		s.logf("DEBUG: telnet %s: ignoring sub-negotiation for option %d", s.AddrPort(), opt)
	}
}

// decodeNAWS reads the peer's window dimensions, RFC 1073: two 16-bit
// big-endian values, width then height.
func (s *ClientSession) decodeNAWS(body []byte) {
	if len(body) != 4 {
		s.logf("WARN: telnet %s: malformed NAWS sub-negotiation (%d bytes)", s.AddrPort(), len(body))
		return
	}
	width := int(body[0])<<8 | int(body[1])
	height := int(body[2])<<8 | int(body[3])
	widthStr := strconv.Itoa(width)
	heightStr := strconv.Itoa(height)
	if s.env["COLUMNS"] == widthStr && s.env["LINES"] == heightStr {
		return
	}
	s.env["COLUMNS"] = widthStr
	s.env["LINES"] = heightStr
	if s.onNAWS != nil {
		s.onNAWS(s)
	}
}

// decodeTType reads an IS response to our TTYPE SEND request, RFC 1091.
func (s *ClientSession) decodeTType(body []byte) {
	if len(body) < 1 || body[0] != opIS {
		return
	}
	s.env["TERM"] = strings.ToLower(string(body[1:]))
}

// decodeStatus answers a peer-initiated STATUS SEND by re-emitting our
// report; an IS payload from the peer (describing its own state) is
// logged but otherwise unused, since nothing in this core consults the
// peer's opinion of our negotiated state.
func (s *ClientSession) decodeStatus(body []byte) {
	if len(body) < 1 {
		return
	}
	switch body[0] {
	case opSEND:
		s.sendStatus()
	case opIS:
		s.logf("DEBUG: telnet %s: received STATUS IS report, ignoring", s.AddrPort())
	}
}

// decodeNewEnviron parses an IS response to our NEW-ENVIRON SEND
// request, RFC 1572: a sequence of VAR|USERVAR name VALUE value records,
// each delimited by the next type byte or end of payload. A name with no
// VALUE deletes that entry from env, except LINES/COLUMNS/TERM, which are
// never deleted. A name with a value is stored unless env already holds a
// differing, non-"unknown" value for it (TTYPE takes precedence over a
// later, conflicting NEW-ENVIRON record).
func (s *ClientSession) decodeNewEnviron(body []byte) {
	if len(body) < 1 || body[0] != opIS {
		return
	}
	records := body[1:]

	i := 0
	for i < len(records) {
		kind := records[i]
		if kind != envVAR && kind != envUSERVAR {
			i++
			continue
		}
		i++
		nameStart := i
		for i < len(records) && records[i] != envVALUE && records[i] != envVAR && records[i] != envUSERVAR {
			i++
		}
		name := string(records[nameStart:i])
		if name == "" {
			continue
		}

		if i >= len(records) || records[i] != envVALUE {
			if name != "LINES" && name != "COLUMNS" && name != "TERM" {
				delete(s.env, name)
			}
			continue
		}

		i++
		valueStart := i
		for i < len(records) && records[i] != envVAR && records[i] != envUSERVAR {
			i++
		}
		value := string(records[valueStart:i])
		if name == "TERM" {
			value = strings.ToLower(value)
		}

		if existing, ok := s.env[name]; ok && existing != "unknown" && existing != value {
			s.logf("WARN: telnet %s: NEW-ENVIRON conflict for %s: keeping %q, ignoring %q", s.AddrPort(), name, existing, value)
			continue
		}
		s.env[name] = value
	}
}
