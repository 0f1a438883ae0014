package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	"github.com/realDragonium/Slumber/module"
	log "github.com/sirupsen/logrus"
)

const (
	eventBuffer = 64
	// killWait bounds how long the owner waits for a killed process to be
	// reaped before it continues.
	killWait = 5 * time.Second
)

type requestKind byte

const (
	wakeRequest requestKind = iota
	sleepRequest
)

func (kind requestKind) String() string {
	if kind == wakeRequest {
		return "wake"
	}
	return "sleep"
}

type request struct {
	kind  requestKind
	reply chan bool
}

type spawnResult struct {
	attempt int
	exited  <-chan struct{}
	err     error
}

type readyResult struct {
	attempt int
	channel ControlChannel
	err     error
}

type terminateResult struct {
	attempt int
	frozen  bool
	err     error
}

type failureBox struct {
	err error
}

// Server owns the lifecycle state of the backing server. Every trigger is a
// message to the goroutine running Run, which is the only one changing the
// state. Readers use the snapshot methods.
type Server struct {
	cfg     config.ServerRuntimeConfig
	process Process
	status  module.StatusCache

	requests   chan request
	spawned    chan spawnResult
	ready      chan readyResult
	terminated chan terminateResult
	events     chan core.Event
	done       chan struct{}

	state   atomic.Value
	failure atomic.Value
	conns   int64

	mu     sync.Mutex
	notify chan struct{}

	// owned by the Run goroutine
	current        core.ServerState
	attempt        int
	cancelAttempt  context.CancelFunc
	exited         <-chan struct{}
	channel        ControlChannel
	startTimer     *time.Timer
	stopTimer      *time.Timer
	sleepQueued    bool
	wakeQueued     bool
	probing        bool
	crashRestarted bool
	startedAt      time.Time
	runningSince   time.Time
	lastActive     time.Time
}

func New(cfg config.ServerRuntimeConfig, process Process, status module.StatusCache) *Server {
	s := &Server{
		cfg:        cfg,
		process:    process,
		status:     status,
		requests:   make(chan request),
		spawned:    make(chan spawnResult),
		ready:      make(chan readyResult),
		terminated: make(chan terminateResult),
		events:     make(chan core.Event, eventBuffer),
		done:       make(chan struct{}),
		notify:     make(chan struct{}),
		current:    core.Sleeping,
	}
	s.state.Store(core.Sleeping)
	s.failure.Store(failureBox{})
	recordState(core.Sleeping)
	return s
}

func (s *Server) State() core.ServerState {
	return s.state.Load().(core.ServerState)
}

func (s *Server) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// WaitFor blocks until the server is in one of the given states or ctx is
// done, in which case the last seen state is returned with the ctx error.
func (s *Server) WaitFor(ctx context.Context, states ...core.ServerState) (core.ServerState, error) {
	for {
		ch := s.Subscribe()
		current := s.State()
		for _, state := range states {
			if current == state {
				return current, nil
			}
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}

func (s *Server) Failure() error {
	return s.failure.Load().(failureBox).err
}

func (s *Server) Status() (mc.ResponseJSON, bool) {
	if s.status == nil {
		return mc.ResponseJSON{}, false
	}
	return s.status.Last()
}

func (s *Server) Events() <-chan core.Event {
	return s.events
}

func (s *Server) ConnOpened() {
	atomic.AddInt64(&s.conns, 1)
	activeConnections.Inc()
}

func (s *Server) ConnClosed() {
	atomic.AddInt64(&s.conns, -1)
	activeConnections.Dec()
}

func (s *Server) Connections() int64 {
	return atomic.LoadInt64(&s.conns)
}

func (s *Server) Wake() bool {
	return s.request(wakeRequest)
}

func (s *Server) Sleep() bool {
	return s.request(sleepRequest)
}

func (s *Server) request(kind requestKind) bool {
	req := request{kind: kind, reply: make(chan bool, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return false
	}
	return <-req.reply
}

// Run processes triggers until ctx is done, the server process is stopped
// before it returns.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	if s.cfg.WakeOnStart || s.cfg.Probe {
		s.probing = !s.cfg.WakeOnStart
		s.beginStart()
	}

	idle := time.NewTicker(s.idleInterval())
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case req := <-s.requests:
			req.reply <- s.handle(req.kind)
		case res := <-s.spawned:
			s.onSpawned(res)
		case res := <-s.ready:
			s.onReady(res)
		case res := <-s.terminated:
			s.onTerminated(res)
		case <-s.exited:
			s.exited = nil
			s.onExit()
		case <-timerC(s.startTimer):
			s.startTimer = nil
			if s.current == core.Starting {
				s.failStart(core.ErrStartTimeout)
			}
		case <-timerC(s.stopTimer):
			s.stopTimer = nil
			if s.current == core.Stopping {
				s.forceKill()
			}
		case now := <-idle.C:
			s.checkIdle(now)
		}
	}
}

func (s *Server) idleInterval() time.Duration {
	if s.cfg.SleepAfter > 0 && s.cfg.SleepAfter < time.Second {
		return s.cfg.SleepAfter
	}
	return time.Second
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Server) handle(kind requestKind) bool {
	switch {
	case kind == wakeRequest && s.current == core.Sleeping:
		s.beginStart()
		return true
	case kind == wakeRequest && s.current == core.Stopping:
		log.Info("wake requested while stopping, starting again once stopped")
		s.wakeQueued = true
		return true
	case kind == wakeRequest && s.current == core.Starting && (s.sleepQueued || s.probing):
		s.sleepQueued = false
		s.probing = false
		return true
	case kind == sleepRequest && s.current == core.Running:
		s.beginStop()
		return true
	case kind == sleepRequest && s.current == core.Starting:
		log.Info("sleep requested while starting, stopping once running")
		s.sleepQueued = true
		return true
	case kind == sleepRequest && s.current == core.Stopping && s.wakeQueued:
		s.wakeQueued = false
		return true
	}
	log.Debugf("ignoring %v request while %v", kind, s.current)
	return false
}

func (s *Server) transition(state core.ServerState) {
	old := s.current
	s.current = state
	s.mu.Lock()
	s.state.Store(state)
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
	recordState(state)
	log.Infof("server state %v -> %v", old, state)
}

func (s *Server) setFailure(err error) {
	s.failure.Store(failureBox{err: err})
}

func (s *Server) emit(kind core.EventKind, err error) {
	lifecycleEvents.WithLabelValues(kind.String()).Inc()
	entry := log.WithField("event", kind.String())
	switch {
	case errors.Is(err, core.ErrControlChannelAuth):
		entry.WithError(err).Error("server lifecycle event")
	case err != nil:
		entry.WithError(err).Warn("server lifecycle event")
	default:
		entry.Info("server lifecycle event")
	}

	select {
	case s.events <- core.Event{Kind: kind, Err: err, Time: time.Now()}:
	default:
	}
}

func (s *Server) beginStart() {
	s.attempt++
	attempt := s.attempt
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelAttempt = cancel
	s.sleepQueued = false
	s.wakeQueued = false
	s.setFailure(nil)
	s.startedAt = time.Now()
	s.startTimer = time.NewTimer(s.cfg.StartTimeout)
	s.transition(core.Starting)

	go func() {
		err := s.process.Start(ctx)
		var exited <-chan struct{}
		if err == nil {
			exited = s.process.Exited()
		}
		select {
		case s.spawned <- spawnResult{attempt: attempt, exited: exited, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}

		channel, err := s.process.WaitReady(ctx, s.cfg.StartTimeout)
		select {
		case s.ready <- readyResult{attempt: attempt, channel: channel, err: err}:
		case <-s.done:
			if channel != nil {
				channel.Close()
			}
		}
	}()
}

func (s *Server) onSpawned(res spawnResult) {
	if res.attempt != s.attempt || s.current != core.Starting {
		if res.err == nil && s.current == core.Sleeping {
			log.Warn("server process came up after its start was given up, killing it")
			s.process.Kill()
		}
		return
	}
	if res.err != nil {
		s.failStart(res.err)
		return
	}
	s.exited = res.exited
	s.emit(core.EventStarted, nil)
}

func (s *Server) onReady(res readyResult) {
	if res.attempt != s.attempt || s.current != core.Starting {
		if res.channel != nil {
			res.channel.Close()
		}
		return
	}
	if res.err != nil {
		s.failStart(res.err)
		return
	}

	stopTimer(s.startTimer)
	s.startTimer = nil
	s.channel = res.channel
	now := time.Now()
	s.runningSince = now
	s.lastActive = now
	s.crashRestarted = false
	startDuration.Observe(now.Sub(s.startedAt).Seconds())
	s.transition(core.Running)
	s.emit(core.EventReady, nil)

	if s.probing {
		log.Info("probed server status, putting it back to sleep")
		s.probing = false
		s.sleepQueued = true
	}
	if s.sleepQueued {
		s.sleepQueued = false
		s.beginStop()
	}
}

// failStart gives up the current start attempt, whatever was spawned is
// killed and the state goes back to Sleeping.
func (s *Server) failStart(err error) {
	stopTimer(s.startTimer)
	s.startTimer = nil
	if s.cancelAttempt != nil {
		s.cancelAttempt()
	}
	if s.exited != nil {
		s.process.Kill()
		s.awaitExit()
	}
	s.sleepQueued = false
	s.probing = false
	s.setFailure(err)
	s.transition(core.Sleeping)
	s.emit(core.EventStartFailed, err)
}

func (s *Server) awaitExit() {
	select {
	case <-s.exited:
		s.exited = nil
	case <-time.After(killWait):
		log.Warn("killed server process did not exit yet")
	}
}

func (s *Server) beginStop() {
	s.transition(core.Stopping)
	s.stopTimer = time.NewTimer(s.cfg.StopTimeout)
	channel := s.channel
	s.channel = nil
	attempt := s.attempt
	go func() {
		frozen, err := s.process.Terminate(channel)
		if channel != nil {
			channel.Close()
		}
		select {
		case s.terminated <- terminateResult{attempt: attempt, frozen: frozen, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Server) onTerminated(res terminateResult) {
	if res.attempt != s.attempt || s.current != core.Stopping {
		return
	}
	if res.err != nil {
		log.Warnf("could not stop the server gracefully: %v", res.err)
		return
	}
	if res.frozen {
		s.finishStop(nil)
	}
}

func (s *Server) forceKill() {
	s.process.Kill()
	s.awaitExit()
	s.finishStop(core.ErrForceKilled)
}

func (s *Server) finishStop(err error) {
	stopTimer(s.stopTimer)
	s.stopTimer = nil
	s.transition(core.Sleeping)
	if err != nil {
		s.emit(core.EventForceKilled, err)
	} else {
		s.emit(core.EventStopped, nil)
	}
	if s.wakeQueued {
		s.wakeQueued = false
		s.beginStart()
	}
}

func (s *Server) onExit() {
	switch s.current {
	case core.Stopping:
		s.finishStop(nil)
	case core.Starting, core.Running:
		s.crash()
	default:
		log.Debug("server process exited while sleeping")
	}
}

func (s *Server) crash() {
	stopTimer(s.startTimer)
	s.startTimer = nil
	if s.cancelAttempt != nil {
		s.cancelAttempt()
	}
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	s.sleepQueued = false
	s.probing = false
	s.setFailure(core.ErrServerCrashed)
	s.transition(core.Sleeping)
	s.emit(core.EventCrashed, core.ErrServerCrashed)

	if s.cfg.WakeOnCrash && !s.crashRestarted {
		s.crashRestarted = true
		log.Info("restarting server after crash")
		s.beginStart()
	}
}

func (s *Server) checkIdle(now time.Time) {
	if s.current != core.Running || s.cfg.SleepAfter <= 0 {
		return
	}
	if s.Connections() > 0 {
		s.lastActive = now
		return
	}
	if now.Sub(s.lastActive) < s.cfg.SleepAfter || now.Sub(s.runningSince) < s.cfg.MinOnlineTime {
		return
	}
	log.Infof("no players for %v, putting server to sleep", s.cfg.SleepAfter)
	s.beginStop()
}

func (s *Server) shutdown() {
	stopTimer(s.startTimer)
	stopTimer(s.stopTimer)
	if s.cancelAttempt != nil {
		s.cancelAttempt()
	}
	err := s.process.Stop(s.channel, s.cfg.StopTimeout)
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	if s.current == core.Sleeping && err == nil {
		return
	}
	s.transition(core.Sleeping)
	if err != nil {
		s.emit(core.EventForceKilled, err)
	} else {
		s.emit(core.EventStopped, nil)
	}
}
