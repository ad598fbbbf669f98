// Package engine wires the synchronization pipeline together: the scheduler
// fires, the transport client fetches one batched snapshot, the differ
// computes deltas against the last-known snapshot, and the topic bus fans the
// resulting change events out to subscribers.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/duetlabs/pairsync/pkg/bus"
	"github.com/duetlabs/pairsync/pkg/scheduler"
	"github.com/duetlabs/pairsync/pkg/snapshot"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Fetcher performs the single batched poll request of one cycle.
type Fetcher interface {
	Fetch(ctx context.Context) (*snapshot.PollSnapshot, error)
}

// ChangeJournal records published change events, e.g. to sqlite. Journal
// failures are logged, never fatal.
type ChangeJournal interface {
	LogChanges(ctx context.Context, events []snapshot.ChangeEvent) error
}

// Config holds everything the engine needs.
type Config struct {
	Fetcher Fetcher   // required
	Bus     *bus.Bus  // required
	Journal ChangeJournal // optional
	Log     Logger    // optional; nil = no logging

	// OnEvent is called synchronously for every published event, after bus
	// fan-out. This is where the consuming app performs completion
	// inference (see flags.Detector). Nil = no callback.
	OnEvent func(ev snapshot.ChangeEvent)

	// Interval and MaxInterval override the scheduler defaults; zero keeps
	// them. FetchTimeout bounds one cycle's fetch; zero means the
	// transport's own timeout applies alone.
	Interval     time.Duration
	MaxInterval  time.Duration
	FetchTimeout time.Duration
}

// Engine owns the only mutable cross-cycle state of the pipeline: the
// last-known snapshot. It is never exposed outside the engine/differ pair.
type Engine struct {
	fetcher      Fetcher
	bus          *bus.Bus
	journal      ChangeJournal
	log          Logger
	onEvent      func(ev snapshot.ChangeEvent)
	fetchTimeout time.Duration

	sched *scheduler.Scheduler

	mu          sync.Mutex
	last        *snapshot.PollSnapshot
	lastSuccess time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("engine: Fetcher is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("engine: Bus is required")
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}

	e := &Engine{
		fetcher:      cfg.Fetcher,
		bus:          cfg.Bus,
		journal:      cfg.Journal,
		log:          log,
		onEvent:      cfg.OnEvent,
		fetchTimeout: cfg.FetchTimeout,
	}

	sched, err := scheduler.New(scheduler.Config{
		Cycle:       e.runCycle,
		Interval:    cfg.Interval,
		MaxInterval: cfg.MaxInterval,
	})
	if err != nil {
		return nil, err
	}
	e.sched = sched
	return e, nil
}

// Subscribe registers interest in polling. The first subscriber starts the
// scheduler with an immediate cycle.
func (e *Engine) Subscribe() { e.sched.Subscribe() }

// Unsubscribe withdraws interest. The last unsubscribe stops polling; an
// in-flight cycle still completes and publishes.
func (e *Engine) Unsubscribe() { e.sched.Unsubscribe() }

// Pause suspends polling (app backgrounded).
func (e *Engine) Pause() { e.sched.Pause() }

// Resume restarts polling with an immediate cycle (app foregrounded).
func (e *Engine) Resume() { e.sched.Resume() }

// PollNow requests an immediate cycle; dropped if one is already running.
func (e *Engine) PollNow() { e.sched.PollNow() }

// State returns the scheduler state.
func (e *Engine) State() scheduler.State { return e.sched.State() }

// LastSuccess returns when the last cycle completed successfully. Zero if
// none has. Drives the passive "last updated Xs ago" staleness display.
func (e *Engine) LastSuccess() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSuccess
}

// LastServerTime returns the server timestamp of the last snapshot. Zero if
// none has been fetched.
func (e *Engine) LastServerTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return time.Time{}
	}
	return e.last.ServerTime
}

// runCycle is one fetch + diff + publish pass. Fetch errors propagate so the
// scheduler's backoff applies; everything after a successful fetch is
// isolated and cannot fail the cycle.
func (e *Engine) runCycle(ctx context.Context) error {
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	snap, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	previous := e.last
	e.last = snap
	e.lastSuccess = time.Now().UTC()
	e.mu.Unlock()

	events := snapshot.Diff(previous, snap)
	if len(events) == 0 {
		return nil
	}
	e.log.Debugf("engine: cycle produced %d change events", len(events))

	for _, ev := range events {
		e.bus.Publish(ev.Key, ev)
		if e.onEvent != nil {
			e.onEvent(ev)
		}
	}

	if e.journal != nil {
		if err := e.journal.LogChanges(context.Background(), events); err != nil {
			e.log.Warnf("engine: could not journal changes: %v", err)
		}
	}
	return nil
}
