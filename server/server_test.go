package server_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/server"
)

var defaultChTimeout = time.Second

type fakeChannel struct {
	mu       sync.Mutex
	commands []string
	closed   bool
}

func (ch *fakeChannel) Cmd(command string) (string, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.commands = append(ch.commands, command)
	return "", nil
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
	return nil
}

// fakeProcess becomes ready once MakeReady is called and exits once it is
// terminated, unless hangOnStop is set.
type fakeProcess struct {
	mu         sync.Mutex
	starts     int
	kills      int
	startErr   error
	readyErr   error
	hangOnStop bool
	freeze     bool
	frozen     bool
	ready      bool
	readyCh    chan struct{}
	exited     chan struct{}
	channel    *fakeChannel
}

func newFakeProcess() *fakeProcess {
	exited := make(chan struct{})
	close(exited)
	return &fakeProcess{
		readyCh: make(chan struct{}),
		exited:  exited,
		channel: &fakeChannel{},
	}
}

func (p *fakeProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if p.startErr != nil {
		return p.startErr
	}
	p.ready = false
	p.readyCh = make(chan struct{})
	if p.frozen {
		p.frozen = false
		return nil
	}
	p.exited = make(chan struct{})
	return nil
}

func (p *fakeProcess) WaitReady(ctx context.Context, timeout time.Duration) (server.ControlChannel, error) {
	p.mu.Lock()
	ready, readyCh := p.ready, p.readyCh
	p.mu.Unlock()
	if ready {
		return p.readyResult()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-readyCh:
	case <-ctx.Done():
		return nil, core.ErrStartTimeout
	case <-timer.C:
		return nil, core.ErrStartTimeout
	}
	return p.readyResult()
}

func (p *fakeProcess) readyResult() (server.ControlChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readyErr != nil {
		return nil, p.readyErr
	}
	return p.channel, nil
}

func (p *fakeProcess) Terminate(channel server.ControlChannel) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freeze {
		p.frozen = true
		return true, nil
	}
	if channel != nil {
		channel.Cmd("stop")
	}
	if !p.hangOnStop {
		p.exit()
	}
	return false, nil
}

func (p *fakeProcess) Stop(channel server.ControlChannel, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	p.exit()
	return nil
}

func (p *fakeProcess) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *fakeProcess) exit() {
	select {
	case <-p.exited:
	default:
		close(p.exited)
	}
}

// MakeReady marks the current process as ready, every start resets it.
func (p *fakeProcess) MakeReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		p.ready = true
		close(p.readyCh)
	}
}

func (p *fakeProcess) Crash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exit()
}

func (p *fakeProcess) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

func (p *fakeProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

func testConfig() config.ServerRuntimeConfig {
	return config.ServerRuntimeConfig{
		Command:      []string{"java", "-jar", "server.jar"},
		Address:      "127.0.0.1:25566",
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	}
}

func runServer(t *testing.T, cfg config.ServerRuntimeConfig, process server.Process) *server.Server {
	t.Helper()
	srv := server.New(cfg, process, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func waitForState(t *testing.T, srv *server.Server, state core.ServerState) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), defaultChTimeout)
	defer cancel()
	if got, err := srv.WaitFor(ctx, state); err != nil {
		t.Fatalf("expected state %v but is still %v", state, got)
	}
}

func waitForEvent(t *testing.T, srv *server.Server, kind core.EventKind) core.Event {
	t.Helper()
	timer := time.After(defaultChTimeout)
	for {
		select {
		case ev := <-srv.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timer:
			t.Fatalf("did not receive a %v event", kind)
		}
	}
}

func TestServer_StartsSleeping(t *testing.T) {
	process := newFakeProcess()
	srv := runServer(t, testConfig(), process)
	if srv.State() != core.Sleeping {
		t.Errorf("expected Sleeping but got %v", srv.State())
	}
	if process.Starts() != 0 {
		t.Errorf("nothing should have been started")
	}
}

func TestServer_SingleStartUnderConcurrentWakes(t *testing.T) {
	process := newFakeProcess()
	srv := runServer(t, testConfig(), process)

	var wg sync.WaitGroup
	accepted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted <- srv.Wake()
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for ok := range accepted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one accepted wake but got %d", count)
	}
	waitForEvent(t, srv, core.EventStarted)
	if process.Starts() != 1 {
		t.Errorf("expected one process start but got %d", process.Starts())
	}
	if srv.State() != core.Starting {
		t.Errorf("expected Starting but got %v", srv.State())
	}
}

func TestServer_BecomesRunningWhenReady(t *testing.T) {
	process := newFakeProcess()
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
	waitForEvent(t, srv, core.EventReady)
	if srv.Failure() != nil {
		t.Errorf("expected no failure but got %v", srv.Failure())
	}
	if srv.Wake() {
		t.Error("wake should be ignored while running")
	}
}

func TestServer_StartTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.StartTimeout = 100 * time.Millisecond
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	ev := waitForEvent(t, srv, core.EventStartFailed)
	if !errors.Is(ev.Err, core.ErrStartTimeout) {
		t.Errorf("expected start timeout but got %v", ev.Err)
	}
	waitForState(t, srv, core.Sleeping)
	if !errors.Is(srv.Failure(), core.ErrStartTimeout) {
		t.Errorf("expected failure to be start timeout but got %v", srv.Failure())
	}
	if process.Kills() == 0 {
		t.Error("the partially started process should have been killed")
	}

	// the next trigger starts again
	if !srv.Wake() {
		t.Error("wake after a failed start should be accepted")
	}
	waitForEvent(t, srv, core.EventStarted)
	if process.Starts() != 2 {
		t.Errorf("expected 2 starts but got %d", process.Starts())
	}
}

func TestServer_SpawnFailure(t *testing.T) {
	process := newFakeProcess()
	process.startErr = fmt.Errorf("%w: no java", core.ErrSpawnFailure)
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	ev := waitForEvent(t, srv, core.EventStartFailed)
	if !errors.Is(ev.Err, core.ErrSpawnFailure) {
		t.Errorf("expected spawn failure but got %v", ev.Err)
	}
	waitForState(t, srv, core.Sleeping)
	if !errors.Is(srv.Failure(), core.ErrSpawnFailure) {
		t.Errorf("expected spawn failure but got %v", srv.Failure())
	}
}

func TestServer_ControlChannelAuthFailure(t *testing.T) {
	process := newFakeProcess()
	process.readyErr = core.ErrControlChannelAuth
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForEvent(t, srv, core.EventStartFailed)
	waitForState(t, srv, core.Sleeping)
	if !errors.Is(srv.Failure(), core.ErrControlChannelAuth) {
		t.Errorf("expected auth failure but got %v", srv.Failure())
	}
}

func TestServer_SleepWhileStartingIsQueued(t *testing.T) {
	process := newFakeProcess()
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	if !srv.Sleep() {
		t.Fatal("sleep while starting should be queued")
	}
	if srv.State() != core.Starting {
		t.Fatalf("state should still be Starting but is %v", srv.State())
	}

	process.MakeReady()
	waitForEvent(t, srv, core.EventReady)
	waitForEvent(t, srv, core.EventStopped)
	waitForState(t, srv, core.Sleeping)

	deadline := time.Now().Add(defaultChTimeout)
	for {
		process.channel.mu.Lock()
		commands, closed := process.channel.commands, process.channel.closed
		process.channel.mu.Unlock()
		if closed {
			if len(commands) != 1 || commands[0] != "stop" {
				t.Errorf("expected a stop command over the control channel, got %v", commands)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("control channel should be closed after stopping")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_SleepWhileSleepingIsIgnored(t *testing.T) {
	srv := runServer(t, testConfig(), newFakeProcess())
	if srv.Sleep() {
		t.Error("sleep while sleeping should be ignored")
	}
}

func TestServer_WakeWhileStoppingRestarts(t *testing.T) {
	process := newFakeProcess()
	process.hangOnStop = true
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
	srv.Sleep()
	waitForState(t, srv, core.Stopping)

	if !srv.Wake() {
		t.Fatal("wake while stopping should be remembered")
	}
	process.Crash()
	waitForEvent(t, srv, core.EventStopped)
	waitForEvent(t, srv, core.EventStarted)
	if process.Starts() != 2 {
		t.Errorf("expected the server to start again, starts: %d", process.Starts())
	}
}

func TestServer_StopTimeoutForceKills(t *testing.T) {
	cfg := testConfig()
	cfg.StopTimeout = 100 * time.Millisecond
	process := newFakeProcess()
	process.hangOnStop = true
	srv := runServer(t, cfg, process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
	srv.Sleep()

	ev := waitForEvent(t, srv, core.EventForceKilled)
	if !errors.Is(ev.Err, core.ErrForceKilled) {
		t.Errorf("expected force killed but got %v", ev.Err)
	}
	waitForState(t, srv, core.Sleeping)
	if process.Kills() != 1 {
		t.Errorf("expected one kill but got %d", process.Kills())
	}
}

func TestServer_Crash(t *testing.T) {
	tt := []struct {
		name        string
		wakeOnCrash bool
		expected    core.ServerState
		starts      int
	}{
		{name: "stays asleep", wakeOnCrash: false, expected: core.Sleeping, starts: 1},
		{name: "restarts", wakeOnCrash: true, expected: core.Starting, starts: 2},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.WakeOnCrash = tc.wakeOnCrash
			process := newFakeProcess()
			srv := runServer(t, cfg, process)

			srv.Wake()
			waitForEvent(t, srv, core.EventStarted)
			process.MakeReady()
			waitForState(t, srv, core.Running)

			process.Crash()
			ev := waitForEvent(t, srv, core.EventCrashed)
			if !errors.Is(ev.Err, core.ErrServerCrashed) {
				t.Errorf("expected crashed error but got %v", ev.Err)
			}
			waitForState(t, srv, tc.expected)
			if tc.wakeOnCrash {
				waitForEvent(t, srv, core.EventStarted)
			}
			if process.Starts() != tc.starts {
				t.Errorf("expected %d starts but got %d", tc.starts, process.Starts())
			}
		})
	}
}

func TestServer_RestartsOnlyOncePerCrash(t *testing.T) {
	cfg := testConfig()
	cfg.WakeOnCrash = true
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)

	process.Crash()
	waitForEvent(t, srv, core.EventCrashed)
	waitForEvent(t, srv, core.EventStarted)

	// crashes again before becoming ready
	process.Crash()
	waitForEvent(t, srv, core.EventCrashed)
	waitForState(t, srv, core.Sleeping)
	time.Sleep(50 * time.Millisecond)
	if process.Starts() != 2 {
		t.Errorf("expected no restart after the second crash, starts: %d", process.Starts())
	}
	if srv.State() != core.Sleeping {
		t.Errorf("expected Sleeping but got %v", srv.State())
	}
}

func TestServer_IdleSleep(t *testing.T) {
	cfg := testConfig()
	cfg.SleepAfter = 50 * time.Millisecond
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)

	srv.ConnOpened()
	time.Sleep(200 * time.Millisecond)
	if srv.State() != core.Running {
		t.Fatalf("server with a player should keep running, is %v", srv.State())
	}

	srv.ConnClosed()
	waitForEvent(t, srv, core.EventStopped)
	waitForState(t, srv, core.Sleeping)
}

func TestServer_MinOnlineTime(t *testing.T) {
	cfg := testConfig()
	cfg.SleepAfter = 20 * time.Millisecond
	cfg.MinOnlineTime = 300 * time.Millisecond
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)

	time.Sleep(150 * time.Millisecond)
	if srv.State() != core.Running {
		t.Fatalf("server should stay up for the minimal online time, is %v", srv.State())
	}
	waitForState(t, srv, core.Sleeping)
}

func TestServer_Freeze(t *testing.T) {
	process := newFakeProcess()
	process.freeze = true
	srv := runServer(t, testConfig(), process)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
	srv.Sleep()
	waitForEvent(t, srv, core.EventStopped)
	waitForState(t, srv, core.Sleeping)

	srv.Wake()
	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
}

func TestServer_ProbeOnStart(t *testing.T) {
	cfg := testConfig()
	cfg.Probe = true
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForEvent(t, srv, core.EventReady)
	waitForEvent(t, srv, core.EventStopped)
	waitForState(t, srv, core.Sleeping)
}

func TestServer_WakeOnStart(t *testing.T) {
	cfg := testConfig()
	cfg.WakeOnStart = true
	process := newFakeProcess()
	srv := runServer(t, cfg, process)

	waitForEvent(t, srv, core.EventStarted)
	process.MakeReady()
	waitForState(t, srv, core.Running)
	time.Sleep(50 * time.Millisecond)
	if srv.State() != core.Running {
		t.Errorf("server should keep running, is %v", srv.State())
	}
}

func TestServer_SubscribeIsClosedOnTransition(t *testing.T) {
	process := newFakeProcess()
	srv := runServer(t, testConfig(), process)

	ch := srv.Subscribe()
	srv.Wake()
	select {
	case <-ch:
	case <-time.After(defaultChTimeout):
		t.Fatal("subscription was not notified")
	}
}

func TestServer_WaitForRespectsContext(t *testing.T) {
	srv := runServer(t, testConfig(), newFakeProcess())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state, err := srv.WaitFor(ctx, core.Running)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded but got %v", err)
	}
	if state != core.Sleeping {
		t.Errorf("expected Sleeping but got %v", state)
	}
}
