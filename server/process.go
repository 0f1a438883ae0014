package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/module"
	log "github.com/sirupsen/logrus"
)

// Process is the backing server process as the lifecycle sees it.
type Process interface {
	// Start spawns the process, or resumes it when it is frozen.
	Start(ctx context.Context) error
	// WaitReady blocks until the server accepts the control channel (or
	// answers a status request when rcon is disabled). It never changes
	// anything about the process itself.
	WaitReady(ctx context.Context, timeout time.Duration) (ControlChannel, error)
	// Terminate asks the process to go away, the process may still be
	// alive when it returns. frozen reports the process was suspended
	// instead.
	Terminate(channel ControlChannel) (frozen bool, err error)
	// Stop ends the process and waits up to timeout for the exit, after
	// which the process is killed and core.ErrForceKilled returned.
	Stop(channel ControlChannel, timeout time.Duration) error
	Kill() error
	// Exited is closed once the current process exits.
	Exited() <-chan struct{}
}

func NewServerProcess(cfg config.ServerRuntimeConfig, status module.StatusCache) *ServerProcess {
	exited := make(chan struct{})
	close(exited)
	return &ServerProcess{
		cfg:      cfg,
		status:   status,
		password: cfg.Rcon.Password,
		exited:   exited,
		logger:   log.WithField("server", filepath.Base(cfg.Command[0])),
	}
}

type ServerProcess struct {
	cfg    config.ServerRuntimeConfig
	status module.StatusCache
	logger *log.Entry

	mu       sync.Mutex
	cmd      *exec.Cmd
	exited   chan struct{}
	frozen   bool
	password string
}

func (p *ServerProcess) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *ServerProcess) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return p.cmd != nil
	}
}

func (p *ServerProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alive() {
		if !p.frozen {
			return nil
		}
		if err := unfreezeProcess(p.cmd.Process); err != nil {
			return fmt.Errorf("%w: resuming frozen process: %v", core.ErrSpawnFailure, err)
		}
		p.frozen = false
		p.logger.Info("resumed frozen server process")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrSpawnFailure, err)
	}

	if p.cfg.RewriteProperties {
		if err := p.rewriteProperties(); err != nil {
			p.logger.Warnf("could not rewrite %s: %v", module.ServerPropertiesFileName, err)
		}
	}

	cmd := exec.Command(p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Dir = p.cfg.Directory
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSpawnFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSpawnFailure, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrSpawnFailure, err)
	}
	p.logger.Infof("started server process with pid %d", cmd.Process.Pid)

	var relays sync.WaitGroup
	relays.Add(2)
	go p.relay(stdout, log.InfoLevel, &relays)
	go p.relay(stderr, log.WarnLevel, &relays)

	exited := make(chan struct{})
	go func() {
		relays.Wait()
		err := cmd.Wait()
		if err != nil {
			p.logger.Infof("server process exited: %v", err)
		} else {
			p.logger.Info("server process exited")
		}
		close(exited)
	}()

	p.cmd = cmd
	p.exited = exited
	p.frozen = false
	return nil
}

func (p *ServerProcess) relay(r io.Reader, level log.Level, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Log(level, scanner.Text())
	}
}

// rewriteProperties makes the server listen where Slumber expects it and
// sets up rcon, a new password is generated each start when configured.
func (p *ServerProcess) rewriteProperties() error {
	host, port, err := net.SplitHostPort(p.cfg.Address)
	if err != nil {
		return err
	}
	changes := map[string]string{
		"server-ip":     host,
		"server-port":   port,
		"enable-status": "true",
	}
	if p.cfg.Rcon.Enabled {
		if p.cfg.Rcon.Randomize {
			p.password = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		changes["enable-rcon"] = "true"
		changes["rcon.port"] = fmt.Sprint(p.cfg.Rcon.Port)
		changes["rcon.password"] = p.password
	}
	path := filepath.Join(p.cfg.Directory, module.ServerPropertiesFileName)
	changed, err := module.RewriteProperties(path, changes)
	if changed {
		p.logger.Debugf("updated %s", path)
	}
	return err
}

func (p *ServerProcess) WaitReady(ctx context.Context, timeout time.Duration) (ControlChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := p.cfg.ReadyPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		channel, err := p.poll(interval)
		if err == nil {
			return channel, nil
		}
		if errors.Is(err, core.ErrControlChannelAuth) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", core.ErrStartTimeout, err)
		case <-ticker.C:
		}
	}
}

func (p *ServerProcess) poll(timeout time.Duration) (ControlChannel, error) {
	if !p.cfg.Rcon.Enabled {
		if p.status == nil {
			return nil, errors.New("no way to check the server, enable rcon")
		}
		_, err := p.status.Refresh()
		return nil, err
	}

	p.mu.Lock()
	password := p.password
	p.mu.Unlock()
	channel, err := DialControlChannel(p.cfg.Rcon.Address, password, timeout, p.cfg.Rcon.SendProxyV2)
	if err != nil {
		return nil, err
	}
	if p.status != nil {
		if _, err := p.status.Refresh(); err != nil {
			p.logger.Debugf("status probe after rcon login failed: %v", err)
		}
	}
	return channel, nil
}

func (p *ServerProcess) Terminate(channel ControlChannel) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive() {
		return false, nil
	}

	if p.cfg.Freeze && canFreeze {
		err := freezeProcess(p.cmd.Process)
		if err == nil {
			p.frozen = true
			p.logger.Info("froze server process")
			return true, nil
		}
		p.logger.Warnf("could not freeze server process, stopping it: %v", err)
	}
	return false, p.stop(channel)
}

func (p *ServerProcess) stop(channel ControlChannel) error {
	if channel != nil {
		_, err := channel.Cmd("stop")
		if err == nil {
			return nil
		}
		p.logger.Warnf("rcon stop failed, signaling the process: %v", err)
	}
	return terminateProcess(p.cmd.Process)
}

// Stop always ends the process, a frozen process is resumed first so it can
// shut down cleanly.
func (p *ServerProcess) Stop(channel ControlChannel, timeout time.Duration) error {
	p.mu.Lock()
	if !p.alive() {
		p.mu.Unlock()
		return nil
	}
	if p.frozen {
		if err := unfreezeProcess(p.cmd.Process); err != nil {
			p.logger.Warnf("could not resume frozen server process: %v", err)
		}
		p.frozen = false
	}
	if err := p.stop(channel); err != nil {
		p.logger.Warnf("could not terminate server process: %v", err)
	}
	exited := p.exited
	p.mu.Unlock()

	select {
	case <-exited:
		return nil
	case <-time.After(timeout):
	}
	if err := p.Kill(); err != nil {
		return err
	}
	return core.ErrForceKilled
}

func (p *ServerProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive() {
		return nil
	}
	p.frozen = false
	return p.cmd.Process.Kill()
}
