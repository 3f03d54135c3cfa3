package telnetserver

// Feed runs chunk through the IAC parser one byte at a time, appending
// clean application data to recvBuf and dispatching command events to
// the option FSM as they complete. It returns a *ConnectionClosed if
// the peer's stream forces the session to close (a sub-negotiation
// buffer overflow, or WILL ECHO); the caller is expected to deactivate
// the session and stop feeding it further bytes. An IP command
// deactivates the session directly and returns no error.
func (s *ClientSession) Feed(chunk []byte) error {
	for _, b := range chunk {
		if err := s.feedByte(b); err != nil {
			return err
		}
	}
	return nil
}

// feedByte advances the parser by one byte. gotCmd is checked first
// because, once set, it is the sole arbiter of the next byte's meaning
// (the option byte of a DO/DONT/WILL/WONT triple) regardless of gotIAC
// — gotCmd is cleared back to nil in the very same step that consumes
// it, and gotIAC is cleared the moment gotCmd is set, so the two are
// never simultaneously non-trivial (spec.md invariant 3).
func (s *ClientSession) feedByte(b byte) error {
	if s.gotCmd != nil {
		cmd := *s.gotCmd
		opt := OptionCode(b)
		s.gotCmd = nil
		return s.dispatchCommand(cmd, opt)
	}

	if !s.gotIAC {
		switch {
		case CommandCode(b) == IAC:
			s.gotIAC = true
		case s.gotSB:
			s.sbBuf = append(s.sbBuf, b)
			if len(s.sbBuf) >= s.sbMaxLen {
				return errConnectionClosed("sub-negotiation buffer filled")
			}
		default:
			s.recvBuf = append(s.recvBuf, b)
		}
		return nil
	}

	// gotIAC == true
	switch {
	case CommandCode(b) == IAC:
		// A doubled IAC is an escaped literal 0xFF: it lands in whatever
		// buffer is currently accumulating, sub-negotiation payload or
		// plain application data.
		if s.gotSB {
			s.sbBuf = append(s.sbBuf, byte(IAC))
		} else {
			s.recvBuf = append(s.recvBuf, byte(IAC))
		}
		s.gotIAC = false
		return nil

	case CommandCode(b) == DO, CommandCode(b) == DONT, CommandCode(b) == WILL, CommandCode(b) == WONT:
		cmd := CommandCode(b)
		s.gotIAC = false
		s.gotCmd = &cmd
		return nil

	default:
		s.gotIAC = false
		return s.dispatchTwoByte(CommandCode(b))
	}
}

func (s *ClientSession) dispatchCommand(cmd CommandCode, opt OptionCode) error {
	switch cmd {
	case DO:
		return s.handleDO(opt)
	case DONT:
		return s.handleDONT(opt)
	case WILL:
		return s.handleWILL(opt)
	case WONT:
		return s.handleWONT(opt)
	}
	return nil
}

func (s *ClientSession) dispatchTwoByte(cmd CommandCode) error {
	switch cmd {
	case SB:
		s.gotSB = true
		s.sbBuf = nil
	case SE:
		s.gotSB = false
		sb := s.sbBuf
		s.sbBuf = nil
		s.decodeSB(sb)
	case IP:
		s.Deactivate()
	case AO:
		s.recvBuf = nil
	case AYT:
		s.SendStr([]byte{'\b'})
	case EC:
		s.recvBuf = append(s.recvBuf, '\b')
	case EL, DM, BRK, GA, NOP:
		s.logf("DEBUG: telnet %s: ignored command %d", s.AddrPort(), cmd)
	default:
		s.logf("WARN: telnet %s: invalid command byte %d", s.AddrPort(), cmd)
	}
	return nil
}
