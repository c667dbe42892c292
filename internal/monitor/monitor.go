// Package monitor runs the reconnect and poll loops that drive the session table.
package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/powa-team/pgtop/internal/engine"
	pgerrors "github.com/powa-team/pgtop/internal/errors"
	"github.com/powa-team/pgtop/internal/history"
	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
	"github.com/powa-team/pgtop/internal/screen"
)

// Registry is the host set of one connection cycle.
type Registry interface {
	AllHealthy(ctx context.Context) bool
	Collect(ctx context.Context) ([]model.HostSnapshot, error)
	Hosts() []model.Host
	Close() error
}

// ConnectFunc builds a fresh Registry; it is called once per connection cycle.
type ConnectFunc func(ctx context.Context) (Registry, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// errCyclesDone stops the loops once MaxCycles frames were rendered.
var errCyclesDone = errors.New("cycle limit reached")

// Options configures a Supervisor.
type Options struct {
	Connect  ConnectFunc
	Engine   *engine.Engine
	Renderer *screen.Renderer
	Output   io.Writer
	Logger   logger.Logger

	PollInterval      time.Duration
	ReconnectInterval time.Duration
	ClockTicks        int

	// MaxCycles stops Run after that many rendered cycles; 0 runs forever.
	MaxCycles int64

	// Sleep and Now default to the wall clock.
	Sleep SleepFunc
	Now   func() time.Time
}

// Supervisor owns the registry and the history store of the current
// connection cycle and publishes a Status after every rendered cycle.
type Supervisor struct {
	opts Options
	log  logger.Logger

	mu     sync.RWMutex
	status model.Status
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	return &Supervisor{opts: opts, log: opts.Logger}
}

// Run connects and polls until ctx is cancelled, rebuilding every connection
// after any failure. It returns nil once MaxCycles is reached, ctx.Err() on
// cancellation and a terminal error if the screen cannot be written.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runConnection(ctx)
		switch {
		case errors.Is(err, errCyclesDone):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case pgerrors.IsCode(err, pgerrors.ErrTerminal):
			return err
		}

		s.fail(err)
		if err := s.opts.Sleep(ctx, s.opts.ReconnectInterval); err != nil {
			return err
		}
	}
}

// runConnection runs one connection cycle. It always returns a non-nil error
// explaining why the cycle ended; every connection is closed on return.
func (s *Supervisor) runConnection(ctx context.Context) error {
	s.mu.Lock()
	s.status.Reconnects++
	s.mu.Unlock()

	reg, err := s.opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			s.log.Warn("closing connections: %v", err)
		}
	}()

	store := history.New(s.opts.ClockTicks)
	for reg.AllHealthy(ctx) {
		snapshots, err := reg.Collect(ctx)
		if err != nil {
			return err
		}

		records := store.Merge(snapshots)
		alerts := s.opts.Engine.Analyze(records)
		for _, a := range alerts {
			s.log.Debug("alert %s on %s", a, a.Identity.HostID)
		}

		frame := s.opts.Renderer.Render(records, len(alerts) > 0)
		if _, err := io.WriteString(s.opts.Output, frame); err != nil {
			return pgerrors.WrapWithCode(err, pgerrors.ErrTerminal, "writing to the terminal", "")
		}

		if s.publish(reg.Hosts(), snapshots, records, alerts) {
			return errCyclesDone
		}

		if err := s.opts.Sleep(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
	return pgerrors.New(pgerrors.ErrConnection, "lost connection to one or more hosts", "")
}

// fail reports the error that ended a connection cycle on the log and the screen.
func (s *Supervisor) fail(err error) {
	s.log.Error("%v; reconnecting in %s", err, s.opts.ReconnectInterval)

	s.mu.Lock()
	s.status.Connected = false
	s.status.LastError = err.Error()
	s.mu.Unlock()

	msg := s.opts.Renderer.Message(err.Error() + "; reconnecting in " + s.opts.ReconnectInterval.String())
	if _, werr := io.WriteString(s.opts.Output, msg); werr != nil {
		s.log.Error("writing to the terminal: %v", werr)
	}
}

// publish records a completed cycle and reports whether the cycle limit was reached.
func (s *Supervisor) publish(hosts []model.Host, snapshots []model.HostSnapshot, records []*model.ProcessRecord, alerts []model.AlertEvent) bool {
	sessions := make(map[string]int, len(snapshots))
	for _, snap := range snapshots {
		sessions[snap.Host.ID()] = len(snap.Rows)
	}

	hostStatus := make([]model.HostStatus, len(hosts))
	for i, h := range hosts {
		hostStatus[i] = model.HostStatus{Host: h, Sessions: sessions[h.ID()]}
	}

	ranked := make([]model.ProcessRecord, len(records))
	for i, rec := range records {
		ranked[i] = *rec
		ranked[i].Previous = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Connected = true
	s.status.Cycles++
	s.status.UpdatedAt = s.opts.Now()
	s.status.Hosts = hostStatus
	s.status.Records = ranked
	s.status.Alerts = alerts

	return s.opts.MaxCycles > 0 && s.status.Cycles >= s.opts.MaxCycles
}

// Status returns a copy of the last published status.
// The slices are replaced on every cycle, never modified in place.
func (s *Supervisor) Status() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
