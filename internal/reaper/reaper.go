// Package reaper periodically deactivates telnet sessions that have
// been idle past a configured threshold, using the same cron-driven
// job shape the BBS scheduler this package is descended from used for
// timed events.
package reaper

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Session is the minimal view of a telnetserver.ClientSession the
// reaper needs; kept as an interface so this package does not import
// telnetserver and can be tested without a real connection.
type Session interface {
	Idle() time.Duration
	AddrPort() string
	Deactivate()
}

// SessionSource lists the sessions currently tracked by the server.
type SessionSource func() []Session

// Scheduler sweeps for idle sessions on a cron schedule and deactivates
// any whose Idle() has reached Timeout. A Timeout of zero disables sweeping
// entirely (Start becomes a no-op).
type Scheduler struct {
	Sessions SessionSource
	Timeout  time.Duration

	cron *cron.Cron
}

// NewScheduler constructs a Scheduler.
func NewScheduler(sessions SessionSource, timeout time.Duration) *Scheduler {
	return &Scheduler{Sessions: sessions, Timeout: timeout, cron: cron.New(cron.WithSeconds())}
}

// Start schedules the idle sweep and begins running it in the
// background. It returns immediately; call Stop, or cancel ctx, to
// halt sweeping.
func (s *Scheduler) Start(ctx context.Context, sweepInterval time.Duration) error {
	if s.Timeout <= 0 {
		log.Printf("INFO: reaper: idle timeout disabled, not scheduling sweeps")
		return nil
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}

	spec := "@every " + sweepInterval.String()
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("INFO: reaper: sweeping every %s for sessions idle past %s", sweepInterval, s.Timeout)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron job, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) sweep() {
	sessions := s.Sessions()
	reaped := 0
	for _, sess := range sessions {
		if sess.Idle() >= s.Timeout {
			log.Printf("INFO: reaper: deactivating %s after %s idle", sess.AddrPort(), sess.Idle().Round(time.Second))
			sess.Deactivate()
			reaped++
		}
	}
	if reaped > 0 {
		log.Printf("INFO: reaper: swept %d idle session(s)", reaped)
	}
}
