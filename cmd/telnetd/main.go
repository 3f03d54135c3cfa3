// Command telnetd is a thin fixture host around internal/telnetserver:
// it wires the Multiplexer's callbacks and nothing else, to exercise
// every ClientSession method without reimplementing a BBS.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/stlalpha/asynctelnet/internal/config"
	"github.com/stlalpha/asynctelnet/internal/logging"
	"github.com/stlalpha/asynctelnet/internal/reaper"
	"github.com/stlalpha/asynctelnet/internal/telnetserver"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	configPath := flag.String("config", "", "directory containing config.json (default: ./configs)")
	flag.Parse()

	logging.DebugEnabled = *debug
	log.SetOutput(os.Stderr)

	basePath, err := os.Getwd()
	if err != nil {
		log.Fatalf("FATAL: getwd: %v", err)
	}
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(basePath, "configs")
	}

	cfg, err := config.LoadServerConfig(cfgPath)
	if err != nil {
		log.Fatalf("FATAL: loading config: %v", err)
	}

	var cfgMu sync.RWMutex
	watcher, err := config.NewWatcher(cfgPath, &cfg, &cfgMu)
	if err != nil {
		log.Printf("WARN: config hot-reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	var srv *telnetserver.Server
	srv, err = telnetserver.NewServer(telnetserver.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		MaxConnections: cfg.MaxConnections,
		ListenBacklog:  cfg.ListenBacklog,
		RecvBlock:      cfg.RecvBlockBytes,
		SBMaxLen:       cfg.SBMaxLenBytes,
		PollInterval:   cfg.PollInterval(),
		Callbacks: telnetserver.Callbacks{
			OnConnect:    onConnect,
			OnDisconnect: onDisconnect,
			OnNAWS:       onNAWS,
			OnInput:      onInput,
		},
	})
	if err != nil {
		log.Fatalf("FATAL: configuring telnet server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idleReaper := reaper.NewScheduler(serverSessions(srv), cfg.IdleTimeout())
	if err := idleReaper.Start(ctx, cfg.IdleSweepInterval()); err != nil {
		log.Fatalf("FATAL: starting idle reaper: %v", err)
	}

	log.Printf("INFO: telnetd starting on %s:%d", cfg.Host, cfg.Port)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("FATAL: telnet server: %v", err)
	}
}

// serverSessions adapts Server.Sessions to a reaper.SessionSource; the
// conversion exists because reaper deliberately does not import
// telnetserver (see internal/reaper's package doc).
func serverSessions(srv *telnetserver.Server) reaper.SessionSource {
	return func() []reaper.Session {
		sessions := srv.Sessions()
		out := make([]reaper.Session, len(sessions))
		for i, s := range sessions {
			out[i] = s
		}
		return out
	}
}

// onConnect issues the opening negotiation sequence a typical host
// wants (NAWS, SGA both directions, local echo, NEW-ENVIRON, TTYPE),
// then greets the client. This is the full extent of "application"
// behavior this command provides.
func onConnect(sess *telnetserver.ClientSession) {
	sess.RequestDoNAWS()
	sess.RequestWillSGA()
	sess.RequestDoSGA()
	sess.RequestWillEcho()
	sess.RequestDoEnv()
	sess.RequestTtype()

	if err := sess.SendUnicode("Connected.\r\n"); err != nil {
		log.Printf("WARN: telnetd: %s: banner send: %v", sess.AddrPort(), err)
	}
}

// onDisconnect logs what the session did with its time, per
// ClientSession.Duration/BytesReceived.
func onDisconnect(sess *telnetserver.ClientSession) {
	log.Printf("INFO: telnetd: %s disconnected after %s, %d bytes received",
		sess.AddrPort(), sess.Duration().Round(0), sess.BytesReceived())
}

// onNAWS logs the negotiated terminal dimensions.
func onNAWS(sess *telnetserver.ClientSession) {
	cols, _ := sess.Env("COLUMNS")
	lines, _ := sess.Env("LINES")
	log.Printf("INFO: telnetd: %s window resized to %sx%s", sess.AddrPort(), cols, lines)
}

// onInput is a trivial demonstration of GetInput/SendStr/InputReady: it
// reads whatever the client typed this drive-loop tick and writes it
// straight back. It runs on the session's own driving goroutine (see
// telnetserver.Callbacks.OnInput), never on one of its own, so it never
// races the parser over recvBuf.
func onInput(sess *telnetserver.ClientSession) {
	if sess.InputReady() {
		sess.SendStr(sess.GetInput())
	}
}
