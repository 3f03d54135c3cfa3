package telnetserver

// newEnvironNames lists the environment variables requested from the
// peer once NEW-ENVIRON negotiation succeeds, per spec.md §4.3.
var newEnvironNames = []string{
	"USER", "TERM", "SHELL", "COLUMNS", "LINES", "LC_CTYPE", "XTERM_LOCALE",
	"DISPLAY", "SSH_CLIENT", "SSH_CONNECTION", "SSH_TTY", "HOME", "HOSTNAME",
	"PWD", "MAIL", "LANG", "UID", "USER_ID", "EDITOR", "LOGNAME",
}

// statusOptions is the set of options reported by a STATUS subnegotiation,
// per spec.md §4.4.
var statusOptions = []OptionCode{OptEcho, OptSGA, OptLinemode, OptTType, OptNAWS, OptNewEnviron}

func (s *ClientSession) sendIAC(cmd CommandCode, opt OptionCode) {
	s.SendStr([]byte{byte(IAC), byte(cmd), byte(opt)})
}

// handleDO reacts to the peer asking us ("DO opt") to enable a local
// option. The policy is defensive: refuse anything we don't implement,
// and never repeat an answer the peer already has.
func (s *ClientSession) handleDO(opt OptionCode) error {
	s.optTable.NoteReply(opt, false)

	switch opt {
	case OptEcho:
		if s.optTable.CheckLocal(opt) != True {
			s.optTable.NoteLocal(opt, true)
			s.sendIAC(WILL, OptEcho)
		}
	case OptSGA:
		if s.optTable.CheckLocal(opt) != True {
			s.optTable.NoteLocal(opt, true)
			s.sendIAC(WILL, OptSGA)
			s.sendIAC(DO, OptSGA)
		}
	case OptLinemode:
		if s.optTable.CheckLocal(opt) != False {
			s.optTable.NoteLocal(opt, false)
			s.sendIAC(WONT, OptLinemode)
		}
	case OptEncrypt:
		if s.optTable.CheckLocal(opt) != False {
			s.optTable.NoteLocal(opt, false)
			s.sendIAC(WONT, OptEncrypt)
		}
	case OptStatus:
		s.optTable.NoteLocal(opt, true)
		s.sendIAC(WILL, OptStatus)
		s.sendStatus()
	default:
		s.optTable.NoteLocal(opt, false)
		s.sendIAC(WONT, opt)
	}
	return nil
}

func (s *ClientSession) handleDONT(opt OptionCode) error {
	s.optTable.NoteReply(opt, false)

	switch opt {
	case OptBinary, OptEcho, OptSGA:
		if s.optTable.CheckLocal(opt) != False {
			s.optTable.NoteLocal(opt, false)
			s.sendIAC(WONT, opt)
		}
	case OptLinemode:
		if s.optTable.CheckRemote(opt) != False {
			s.optTable.NoteRemote(opt, false)
			s.sendIAC(WONT, OptLinemode)
		}
	default:
		s.logf("DEBUG: telnet %s: ignoring DONT for unknown option %d", s.AddrPort(), opt)
	}
	return nil
}

func (s *ClientSession) handleWILL(opt OptionCode) error {
	switch opt {
	case OptEcho:
		return errConnectionClosed("Refuse WILL ECHO by client")

	case OptNAWS:
		if s.optTable.CheckRemote(opt) != True {
			s.optTable.NoteRemote(opt, true)
			s.optTable.NoteLocal(opt, true)
			s.sendIAC(DO, OptNAWS)
		}

	case OptStatus:
		if s.optTable.CheckRemote(opt) != True {
			s.optTable.NoteRemote(opt, true)
			s.SendStr([]byte{byte(IAC), byte(SB), byte(OptStatus), opSEND, byte(IAC), byte(SE)})
		}

	case OptEncrypt, OptLinemode:
		if s.optTable.CheckRemote(opt) != False {
			s.optTable.NoteRemote(opt, false)
			s.sendIAC(DONT, opt)
		}

	case OptSGA:
		if s.optTable.CheckRemote(opt) != True {
			s.optTable.NoteRemote(opt, true)
			s.optTable.NoteLocal(opt, true)
			s.sendIAC(WILL, OptSGA)
		}

	case OptNewEnviron:
		if s.optTable.CheckRemote(opt) != True {
			s.optTable.NoteRemote(opt, true)
			s.optTable.NoteLocal(opt, true)
			s.sendIAC(DO, OptNewEnviron)
			s.sendEnvironRequest()
		}

	case OptTType:
		if s.optTable.CheckRemote(opt) != True {
			s.optTable.NoteRemote(opt, true)
			s.sendIAC(DO, OptTType)
			s.SendStr([]byte{byte(IAC), byte(SB), byte(OptTType), opSEND, byte(IAC), byte(SE)})
		}

	default:
		s.logf("DEBUG: telnet %s: ignoring WILL for unknown option %d", s.AddrPort(), opt)
	}
	return nil
}

func (s *ClientSession) handleWONT(opt OptionCode) error {
	switch opt {
	case OptEcho, OptSGA, OptTType:
		if s.optTable.CheckRemote(opt) != False {
			s.optTable.NoteRemote(opt, false)
			s.sendIAC(DONT, opt)
		}
	default:
		s.logf("DEBUG: telnet %s: ignoring WONT for unknown option %d", s.AddrPort(), opt)
	}
	return nil
}

// sendEnvironRequest asks the peer to report the variables named in
// newEnvironNames via IAC SB NEW-ENVIRON SEND VAR name ... IAC SE.
func (s *ClientSession) sendEnvironRequest() {
	payload := []byte{byte(IAC), byte(SB), byte(OptNewEnviron), opSEND}
	for _, name := range newEnvironNames {
		payload = append(payload, envVAR)
		payload = append(payload, []byte(name)...)
	}
	payload = append(payload, byte(IAC), byte(SE))
	s.SendStr(payload)
}

// sendStatus reports our view of negotiation state per RFC 859: active
// options get DO, negotiated-off options get DONT, options we never
// resolved are omitted entirely. See SPEC_FULL.md §9 for why this
// departs from the original source's (buggy) STATUS responder.
func (s *ClientSession) sendStatus() {
	out := []byte{byte(IAC), byte(SB), byte(OptStatus), opIS}
	for _, opt := range statusOptions {
		switch s.optTable.CheckLocal(opt) {
		case True:
			out = append(out, byte(IAC), byte(DO), byte(opt))
		case False:
			out = append(out, byte(IAC), byte(DONT), byte(opt))
		}
	}
	for _, opt := range statusOptions {
		switch s.optTable.CheckRemote(opt) {
		case True:
			out = append(out, byte(IAC), byte(DO), byte(opt))
		case False:
			out = append(out, byte(IAC), byte(DONT), byte(opt))
		}
	}
	out = append(out, byte(IAC), byte(SE))
	s.SendStr(out)
}
