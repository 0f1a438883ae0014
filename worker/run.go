package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/pires/go-proxyproto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/module"
	"github.com/realDragonium/Slumber/server"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	pidFileName   = "slumber.pid"
	statusTimeout = 5 * time.Second
)

// RunProxy runs Slumber with the config at configPath until it receives
// SIGINT or SIGTERM, or is replaced by an upgraded process.
func RunProxy(configPath, version string) error {
	cfg, err := config.ReadSlumberConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.VerifyConfig(cfg); err != nil {
		return err
	}
	SetupLogging(cfg.Runtime.LogLevel)
	log.Infof("Starting Slumber %s", version)

	workerCfg := config.NewWorkerConfig(cfg)
	serverCfg, err := config.NewServerRuntimeConfig(cfg)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: workerCfg.DialTimeout}
	statusCache := module.NewStatusCache(serverCfg.Protocol, statusTimeout, module.BasicConnCreator(serverCfg.Address, dialer))
	process := server.NewServerProcess(serverCfg, statusCache)
	srv := server.New(serverCfg, process, statusCache)

	bans := module.NewBanList(serverCfg.Directory, serverCfg.BanListRefresh, workerCfg.DropBannedIPs)
	if err := bans.Reload(); err != nil {
		log.Warnf("could not read ban list: %v", err)
	}
	whitelist := module.NewWhitelist(serverCfg.Directory)
	if err := whitelist.Reload(); err != nil {
		log.Warnf("could not read whitelist: %v", err)
	}

	notUseHotSwap := !cfg.Runtime.TableFlip || runtime.GOOS == "windows" || version == "docker"
	var upg *tableflip.Upgrader
	if !notUseHotSwap {
		upg, err = newUpgrader(cfg, configPath)
		if err != nil {
			return err
		}
		defer upg.Stop()
	}
	ln, err := createListener(cfg, upg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		bans.Run(ctx)
		return nil
	})
	g.Go(func() error {
		refreshLoop(ctx, serverCfg.BanListRefresh, whitelist)
		return nil
	})
	g.Go(func() error {
		ReloadOnEvents(ctx, srv.Events(), bans, whitelist)
		return nil
	})

	reqCh := make(chan net.Conn, 50)
	manager := NewWorkerManager(workerCfg, reqCh, Services{
		Server:   srv,
		Access:   NewAccessControl(workerCfg, bans),
		WakeGate: whitelist,
		Refuser:  bans,
	})
	manager.Start()
	g.Go(func() error {
		serveListener(ctx, ln, reqCh)
		return nil
	})
	log.Infof("Listening on %s, forwarding to %s", cfg.Public.Address, serverCfg.Address)

	var httpServers []*http.Server
	if cfg.Metrics.Enabled {
		log.Info("Starting prometheus...")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServers = append(httpServers, newHTTPServer(cfg.Metrics.Bind, mux))
	}
	if cfg.API.Enabled {
		log.Infof("Now starting api endpoint on %s", cfg.API.Bind)
		api := NewAPI(srv, bans, whitelist)
		httpServers = append(httpServers, newHTTPServer(cfg.API.Bind, api.Handler()))
	}
	for _, httpServer := range httpServers {
		httpServer := httpServer
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server on %s: %v", httpServer.Addr, err)
			}
			return nil
		})
	}

	if upg != nil {
		if err := upg.Ready(); err != nil {
			cancel()
			g.Wait()
			return err
		}
		g.Go(func() error {
			select {
			case <-upg.Exit():
				log.Info("upgraded process is ready, shutting down")
				cancel()
			case <-ctx.Done():
			}
			return nil
		})
	}
	log.Info("Finished starting up")

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		manager.Stop()
		for _, httpServer := range httpServers {
			httpServer.Close()
		}
		return nil
	})
	err = g.Wait()
	log.Info("Shut down")
	return err
}

// SetupLogging sets the level of the global logger, unknown levels fall
// back to info.
func SetupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// NewAccessControl checks the lockout first and then the ban list.
func NewAccessControl(cfg config.WorkerConfig, bans module.ConnectionLimiter) module.ConnectionLimiter {
	chain := module.LimiterChain{}
	if cfg.Lockout {
		chain = append(chain, module.NewLockout(cfg.LockoutMessage))
	}
	if cfg.BlockBannedIPs && bans != nil {
		chain = append(chain, bans)
	}
	return chain
}

func refreshLoop(ctx context.Context, interval time.Duration, snapshot Reloadable) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snapshot.Reload(); err != nil {
				log.Errorf("failed to reload: %v", err)
			}
		}
	}
}

// ReloadOnEvents reads the snapshots again whenever the server became ready
// or stopped, the server may have changed them while it was running.
func ReloadOnEvents(ctx context.Context, events <-chan core.Event, snapshots ...Reloadable) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind != core.EventReady && ev.Kind != core.EventStopped && ev.Kind != core.EventForceKilled {
				continue
			}
			log.Debugf("reloading snapshots after %s", ev.Kind)
			for _, snapshot := range snapshots {
				if err := snapshot.Reload(); err != nil {
					log.Errorf("failed to reload: %v", err)
				}
			}
		}
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func newUpgrader(cfg config.SlumberConfig, configPath string) (*tableflip.Upgrader, error) {
	pidFile := cfg.Runtime.PidFile
	if pidFile == "" {
		pidFile = filepath.Join(filepath.Dir(configPath), pidFileName)
	}
	if _, err := os.Stat(pidFile); errors.Is(err, os.ErrNotExist) {
		pid := fmt.Sprint(os.Getpid())
		os.WriteFile(pidFile, []byte(pid), 0644)
	}
	upg, err := tableflip.New(tableflip.Options{
		PIDFile: pidFile,
	})
	if err != nil {
		return nil, err
	}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			err := upg.Upgrade()
			if err != nil {
				log.Errorf("upgrade failed: %v", err)
			}
		}
	}()
	return upg, nil
}

func createListener(cfg config.SlumberConfig, upg *tableflip.Upgrader) (net.Listener, error) {
	var ln net.Listener
	var err error
	if upg == nil {
		ln, err = net.Listen("tcp", cfg.Public.Address)
	} else {
		ln, err = upg.Listen("tcp", cfg.Public.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("can't listen on %s: %w", cfg.Public.Address, err)
	}

	if cfg.Public.AcceptProxyProtocol {
		policyFunc := func(upstream net.Addr) (proxyproto.Policy, error) {
			return proxyproto.REQUIRE, nil
		}
		proxyListener := &proxyproto.Listener{
			Listener: ln,
			Policy:   policyFunc,
		}
		return proxyListener, nil
	}
	return ln, nil
}

func serveListener(ctx context.Context, listener net.Listener, reqCh chan<- net.Conn) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("net.Listener was closed, stopping with accepting calls")
				break
			}
			log.Warn(err)
			continue
		}
		select {
		case reqCh <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}
