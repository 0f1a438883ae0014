package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/shlex"
	"github.com/realDragonium/Slumber/core"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDialTimeout = 5 * time.Second
	readyPollInterval  = time.Second
)

type WorkerConfig struct {
	Workers   int
	IOTimeout time.Duration

	Version  string
	Protocol int
	Motd     MotdConfig

	Plan  core.OccupationPlan
	Forge bool

	Lockout        bool
	LockoutMessage string
	BlockBannedIPs bool
	DropBannedIPs  bool
	WakeWhitelist  bool

	ProxyTo     string
	SendProxyV2 bool
	DialTimeout time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return NewWorkerConfig(DefaultSlumberConfig())
}

func NewWorkerConfig(cfg SlumberConfig) WorkerConfig {
	ioTimeout := time.Duration(cfg.Runtime.IOTimeout) * time.Second
	if ioTimeout <= 0 {
		ioTimeout = time.Second
	}
	plan, err := NewOccupationPlan(cfg)
	if err != nil {
		log.Warnf("invalid join methods, falling back to kick: %v", err)
		plan = core.OccupationPlan{kickMethod(cfg)}
	}
	if cfg.Server.Forge && plan.Has(core.Lobby) {
		log.Warn("the lobby can't host forge clients, removing it from join.methods")
		plan = withoutLobby(plan)
		if len(plan) == 0 {
			plan = core.OccupationPlan{kickMethod(cfg)}
		}
	}
	return WorkerConfig{
		Workers:   cfg.Runtime.Workers,
		IOTimeout: ioTimeout,

		Version:  cfg.Public.Version,
		Protocol: cfg.Public.Protocol,
		Motd:     cfg.Motd,

		Plan:  plan,
		Forge: cfg.Server.Forge,

		Lockout:        cfg.Lockout.Enabled,
		LockoutMessage: cfg.Lockout.Message,
		BlockBannedIPs: cfg.Server.BlockBannedIPs,
		DropBannedIPs:  cfg.Server.DropBannedIPs,
		WakeWhitelist:  cfg.Server.WakeWhitelist,

		ProxyTo:     cfg.Server.Address,
		SendProxyV2: cfg.Server.SendProxyV2,
		DialTimeout: defaultDialTimeout,
	}
}

// NewOccupationPlan converts join.methods into the ordered plan, every method
// gets its own parameters copied in.
func NewOccupationPlan(cfg SlumberConfig) (core.OccupationPlan, error) {
	plan := core.OccupationPlan{}
	for _, name := range cfg.Join.Methods {
		kind, err := core.ParseJoinMethodKind(name)
		if err != nil {
			return plan, &InvalidValue{"join.methods", cfg.Join.Methods, err.Error()}
		}
		var method core.JoinMethod
		switch kind {
		case core.Hold:
			method = core.JoinMethod{
				Kind:    core.Hold,
				Timeout: time.Duration(cfg.Join.Hold.Timeout) * time.Second,
			}
		case core.Kick:
			method = kickMethod(cfg)
		case core.Forward:
			method = core.JoinMethod{
				Kind:        core.Forward,
				Address:     cfg.Join.Forward.Address,
				SendProxyV2: cfg.Join.Forward.SendProxyV2,
			}
		case core.Lobby:
			method = core.JoinMethod{
				Kind:            core.Lobby,
				Timeout:         time.Duration(cfg.Join.Lobby.Timeout) * time.Second,
				LobbyMessage:    cfg.Join.Lobby.Message,
				ReadySound:      cfg.Join.Lobby.ReadySound,
				StartingMessage: cfg.Join.Kick.Starting,
				StoppingMessage: cfg.Join.Kick.Stopping,
			}
		}
		plan = append(plan, method)
	}
	return plan, nil
}

func kickMethod(cfg SlumberConfig) core.JoinMethod {
	return core.JoinMethod{
		Kind:            core.Kick,
		StartingMessage: cfg.Join.Kick.Starting,
		StoppingMessage: cfg.Join.Kick.Stopping,
	}
}

func withoutLobby(plan core.OccupationPlan) core.OccupationPlan {
	kept := core.OccupationPlan{}
	for _, method := range plan {
		if method.Kind != core.Lobby {
			kept = append(kept, method)
		}
	}
	return kept
}

// ProbeOnStart decides whether the server is started once when Slumber
// starts, to learn its version and status. Only an explicit
// server.probe_on_start does so: the lobby speaks fixed versions and never
// runs for forge servers, motd.from_server is filled at the first start.
func ProbeOnStart(cfg SlumberConfig) bool {
	return cfg.Server.ProbeOnStart
}

type RconRuntimeConfig struct {
	Enabled     bool
	Address     string
	Port        int
	Password    string
	Randomize   bool
	SendProxyV2 bool
}

type ServerRuntimeConfig struct {
	Directory string
	Command   []string
	Address   string
	Protocol  int

	Freeze      bool
	WakeOnStart bool
	WakeOnCrash bool
	Probe       bool

	StartTimeout      time.Duration
	StopTimeout       time.Duration
	SleepAfter        time.Duration
	MinOnlineTime     time.Duration
	ReadyPollInterval time.Duration

	Rcon              RconRuntimeConfig
	RewriteProperties bool
	BanListRefresh    time.Duration
}

func NewServerRuntimeConfig(cfg SlumberConfig) (ServerRuntimeConfig, error) {
	args, err := shlex.Split(cfg.Server.Command)
	if err != nil {
		return ServerRuntimeConfig{}, fmt.Errorf("could not split server.command: %w", err)
	}
	if len(args) == 0 {
		return ServerRuntimeConfig{}, ErrMissingCommand
	}

	host, _, err := net.SplitHostPort(cfg.Server.Address)
	if err != nil {
		return ServerRuntimeConfig{}, &InvalidValue{"server.address", cfg.Server.Address, err.Error()}
	}

	refresh := time.Duration(cfg.Advanced.BanListRefresh) * time.Second
	if refresh <= 0 {
		refresh = 10 * time.Second
	}

	return ServerRuntimeConfig{
		Directory: cfg.Server.Directory,
		Command:   args,
		Address:   cfg.Server.Address,
		Protocol:  cfg.Public.Protocol,

		Freeze:      cfg.Server.FreezeProcess,
		WakeOnStart: cfg.Server.WakeOnStart,
		WakeOnCrash: cfg.Server.WakeOnCrash,
		Probe:       ProbeOnStart(cfg),

		StartTimeout:      time.Duration(cfg.Server.StartTimeout) * time.Second,
		StopTimeout:       time.Duration(cfg.Server.StopTimeout) * time.Second,
		SleepAfter:        time.Duration(cfg.Time.SleepAfter) * time.Second,
		MinOnlineTime:     time.Duration(cfg.Time.MinOnlineTime) * time.Second,
		ReadyPollInterval: readyPollInterval,

		Rcon: RconRuntimeConfig{
			Enabled:     cfg.Rcon.Enabled,
			Address:     net.JoinHostPort(host, strconv.Itoa(cfg.Rcon.Port)),
			Port:        cfg.Rcon.Port,
			Password:    cfg.Rcon.Password,
			Randomize:   cfg.Rcon.RandomizePassword,
			SendProxyV2: cfg.Rcon.SendProxyV2,
		},
		RewriteProperties: cfg.Advanced.RewriteServerProperties,
		BanListRefresh:    refresh,
	}, nil
}
