// Package scheduler drives the poll loop: one recurring timer per process,
// reference-counted subscriptions, pause/resume for app backgrounding, and
// exponential backoff on failed cycles. Every other engine component is
// passive with respect to timing.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duetlabs/pairsync/internal/utils"
)

// State is the scheduler lifecycle state.
type State int32

const (
	Idle State = iota
	Starting
	Polling
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Paused:
		return "paused"
	case Error:
		return "error"
	}
	return "unknown"
}

const (
	// DefaultInterval is the uniform inter-cycle interval shared by all
	// consumers.
	DefaultInterval = 5 * time.Second
	// DefaultMaxInterval caps the backoff.
	DefaultMaxInterval = 30 * time.Second
)

// CycleFunc runs one poll cycle: fetch, diff, publish. A non-nil error
// triggers backoff.
type CycleFunc func(ctx context.Context) error

// Config configures a Scheduler.
type Config struct {
	// Cycle is required.
	Cycle CycleFunc
	// Interval defaults to DefaultInterval.
	Interval time.Duration
	// MaxInterval defaults to DefaultMaxInterval.
	MaxInterval time.Duration
}

type ctrlMsg int

const (
	ctrlPause ctrlMsg = iota
	ctrlResume
	ctrlPoke
)

// Scheduler owns the single timer. Subscribe/Unsubscribe adjust a reference
// count; the timer runs iff the count is positive. Cycles are non-reentrant:
// the loop runs them sequentially and a poke arriving mid-cycle is dropped
// and logged, never queued.
type Scheduler struct {
	cycle       CycleFunc
	interval    time.Duration
	maxInterval time.Duration

	inFlight atomic.Bool

	mu        sync.Mutex
	refs      int
	state     State
	current   time.Duration // delay before the next cycle
	succeeded bool          // at least one cycle completed since start
	stop      chan struct{}
	ctrl      chan ctrlMsg
	done      chan struct{}
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Cycle == nil {
		return nil, errors.New("scheduler: Cycle is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	return &Scheduler{
		cycle:       cfg.Cycle,
		interval:    cfg.Interval,
		maxInterval: cfg.MaxInterval,
		state:       Idle,
		current:     cfg.Interval,
	}, nil
}

// Subscribe increments the reference count. The 0->1 transition starts the
// timer and performs an immediate first cycle instead of waiting a full
// interval.
func (s *Scheduler) Subscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs++
	if s.refs > 1 {
		return
	}

	s.state = Starting
	s.current = s.interval
	s.succeeded = false
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.ctrl = make(chan ctrlMsg, 4)
	go s.loop(s.stop, s.ctrl, s.done)
	utils.Log.Debugf("scheduler: started (interval %s)", s.interval)
}

// Unsubscribe decrements the reference count. At zero the timer stops and
// the scheduler returns to idle. An in-flight cycle is not aborted: its
// results are still delivered, after which the loop exits.
func (s *Scheduler) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		utils.Log.Warnf("scheduler: unsubscribe without matching subscribe, ignoring")
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}

	close(s.stop)
	s.state = Idle
	s.current = s.interval
	utils.Log.Debugf("scheduler: stopped, last subscriber removed")
}

// Pause suspends the timer without touching the reference count. Used when
// the app moves to the background.
func (s *Scheduler) Pause() { s.send(ctrlPause) }

// Resume restores a paused timer and runs a cycle immediately rather than
// waiting out the interval.
func (s *Scheduler) Resume() { s.send(ctrlResume) }

// PollNow requests an immediate cycle. If a cycle is still in flight the
// request is dropped and logged, bounding concurrent requests to one.
func (s *Scheduler) PollNow() {
	if s.inFlight.Load() {
		utils.Log.Warnf("scheduler: cycle in flight, dropping poll request")
		return
	}
	s.send(ctrlPoke)
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the timer loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs > 0
}

// Refs returns the subscriber reference count.
func (s *Scheduler) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// CurrentInterval returns the delay that will precede the next cycle. It
// grows while cycles fail and resets on success.
func (s *Scheduler) CurrentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) send(msg ctrlMsg) {
	s.mu.Lock()
	ctrl := s.ctrl
	active := s.refs > 0
	s.mu.Unlock()

	if !active {
		utils.Log.Debugf("scheduler: control message while idle, ignoring")
		return
	}
	select {
	case ctrl <- msg:
	default:
		utils.Log.Warnf("scheduler: control queue full, dropping message")
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, ctrl <-chan ctrlMsg, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0) // immediate first cycle
	defer timer.Stop()
	paused := false
	timerLive := true

	disarm := func() {
		if timerLive && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerLive = false
	}

	for {
		select {
		case <-stop:
			return

		case msg := <-ctrl:
			switch msg {
			case ctrlPause:
				if paused {
					continue
				}
				disarm()
				paused = true
				s.setState(Paused)
				utils.Log.Debugf("scheduler: paused")

			case ctrlResume:
				if !paused {
					continue
				}
				paused = false
				s.resumeState()
				timer.Reset(0)
				timerLive = true
				utils.Log.Debugf("scheduler: resumed")

			case ctrlPoke:
				if paused {
					continue
				}
				disarm()
				timer.Reset(0)
				timerLive = true
			}

		case <-timer.C:
			timerLive = false
			if paused {
				continue
			}
			s.runCycle()
			// Unsubscribe during the cycle wins over rearming.
			select {
			case <-stop:
				return
			default:
			}
			timer.Reset(s.CurrentInterval())
			timerLive = true
		}
	}
}

// runCycle executes one cycle and applies the state/backoff rules. The loop
// goroutine is the only caller, which makes cycles non-reentrant; the
// in-flight guard additionally lets PollNow drop requests mid-cycle.
func (s *Scheduler) runCycle() {
	if !s.inFlight.CompareAndSwap(false, true) {
		utils.Log.Warnf("scheduler: cycle already in flight, dropping tick")
		return
	}
	defer s.inFlight.Store(false)

	err := s.cycle(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		// Stopped while the cycle was running; leave idle state alone.
		return
	}

	if err != nil {
		if s.state == Error {
			s.current *= 2
			if s.current > s.maxInterval {
				s.current = s.maxInterval
			}
		} else {
			s.current = s.interval
			s.state = Error
		}
		utils.Log.Warnf("scheduler: cycle failed, next attempt in %s: %v", s.current, err)
		return
	}

	s.succeeded = true
	s.current = s.interval
	s.state = Polling
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.state = st
	}
}

func (s *Scheduler) resumeState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	if s.succeeded {
		s.state = Polling
	} else {
		s.state = Starting
	}
}
