package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/mod/semver"
)

var ErrConfigNotFound = errors.New("config file not found")

// ReadSlumberConfig reads the toml file at path. Every key can be overridden
// by an environment variable, server.command is read from
// SLUMBER_SERVER_COMMAND. When the file does not exist the config is build
// from environment variables and defaults only.
func ReadSlumberConfig(path string) (SlumberConfig, error) {
	v := newViper()
	fromEnv := false

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Infof("config file not found at %s, using environment variables and defaults", path)
		fromEnv = true
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SlumberConfig{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg SlumberConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.FilePath = path
	cfg.FromEnv = fromEnv

	if fromEnv {
		cfg.unescapeMessages()
	} else if !filepath.IsAbs(cfg.Server.Directory) {
		cfg.Server.Directory = filepath.Join(filepath.Dir(path), cfg.Server.Directory)
	}

	checkVersion(cfg.Config.Version)
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultSlumberConfig())
	return v
}

// setDefaults registers every key, viper only unmarshals environment
// variables for keys it knows about.
func setDefaults(v *viper.Viper, cfg SlumberConfig) {
	v.SetDefault("public.address", cfg.Public.Address)
	v.SetDefault("public.version", cfg.Public.Version)
	v.SetDefault("public.protocol", cfg.Public.Protocol)
	v.SetDefault("public.accept_proxy_protocol", cfg.Public.AcceptProxyProtocol)

	v.SetDefault("server.directory", cfg.Server.Directory)
	v.SetDefault("server.command", cfg.Server.Command)
	v.SetDefault("server.address", cfg.Server.Address)
	v.SetDefault("server.freeze_process", cfg.Server.FreezeProcess)
	v.SetDefault("server.wake_on_start", cfg.Server.WakeOnStart)
	v.SetDefault("server.wake_on_crash", cfg.Server.WakeOnCrash)
	v.SetDefault("server.probe_on_start", cfg.Server.ProbeOnStart)
	v.SetDefault("server.forge", cfg.Server.Forge)
	v.SetDefault("server.start_timeout", cfg.Server.StartTimeout)
	v.SetDefault("server.stop_timeout", cfg.Server.StopTimeout)
	v.SetDefault("server.wake_whitelist", cfg.Server.WakeWhitelist)
	v.SetDefault("server.block_banned_ips", cfg.Server.BlockBannedIPs)
	v.SetDefault("server.drop_banned_ips", cfg.Server.DropBannedIPs)
	v.SetDefault("server.send_proxy_v2", cfg.Server.SendProxyV2)

	v.SetDefault("time.sleep_after", cfg.Time.SleepAfter)
	v.SetDefault("time.min_online_time", cfg.Time.MinOnlineTime)

	v.SetDefault("motd.sleeping", cfg.Motd.Sleeping)
	v.SetDefault("motd.starting", cfg.Motd.Starting)
	v.SetDefault("motd.stopping", cfg.Motd.Stopping)
	v.SetDefault("motd.from_server", cfg.Motd.FromServer)

	v.SetDefault("join.methods", cfg.Join.Methods)
	v.SetDefault("join.kick.starting", cfg.Join.Kick.Starting)
	v.SetDefault("join.kick.stopping", cfg.Join.Kick.Stopping)
	v.SetDefault("join.hold.timeout", cfg.Join.Hold.Timeout)
	v.SetDefault("join.forward.address", cfg.Join.Forward.Address)
	v.SetDefault("join.forward.send_proxy_v2", cfg.Join.Forward.SendProxyV2)
	v.SetDefault("join.lobby.timeout", cfg.Join.Lobby.Timeout)
	v.SetDefault("join.lobby.message", cfg.Join.Lobby.Message)
	v.SetDefault("join.lobby.ready_sound", cfg.Join.Lobby.ReadySound)

	v.SetDefault("lockout.enabled", cfg.Lockout.Enabled)
	v.SetDefault("lockout.message", cfg.Lockout.Message)

	v.SetDefault("rcon.enabled", cfg.Rcon.Enabled)
	v.SetDefault("rcon.port", cfg.Rcon.Port)
	v.SetDefault("rcon.password", cfg.Rcon.Password)
	v.SetDefault("rcon.randomize_password", cfg.Rcon.RandomizePassword)
	v.SetDefault("rcon.send_proxy_v2", cfg.Rcon.SendProxyV2)

	v.SetDefault("advanced.rewrite_server_properties", cfg.Advanced.RewriteServerProperties)
	v.SetDefault("advanced.ban_list_refresh", cfg.Advanced.BanListRefresh)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.bind", cfg.Metrics.Bind)
	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.bind", cfg.API.Bind)

	v.SetDefault("runtime.workers", cfg.Runtime.Workers)
	v.SetDefault("runtime.io_timeout", cfg.Runtime.IOTimeout)
	v.SetDefault("runtime.tableflip", cfg.Runtime.TableFlip)
	v.SetDefault("runtime.pid_file", cfg.Runtime.PidFile)
	v.SetDefault("runtime.log_level", cfg.Runtime.LogLevel)

	v.SetDefault("config.version", cfg.Config.Version)
}

// unescapeMessages turns the escape sequences environment variables can't
// hold otherwise into the real characters.
func (cfg *SlumberConfig) unescapeMessages() {
	for _, msg := range []*string{
		&cfg.Motd.Sleeping,
		&cfg.Motd.Starting,
		&cfg.Motd.Stopping,
		&cfg.Join.Kick.Starting,
		&cfg.Join.Kick.Stopping,
		&cfg.Join.Lobby.Message,
		&cfg.Lockout.Message,
	} {
		*msg = Unescape(*msg)
	}
}

var escapeReplacer = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
)

func Unescape(s string) string {
	return escapeReplacer.Replace(s)
}

func checkVersion(version string) {
	if version == "" {
		log.Warn("config version unknown, it may be outdated")
		return
	}
	v, current := "v"+strings.TrimPrefix(version, "v"), "v"+ConfigVersion
	if !semver.IsValid(v) {
		log.Warnf("config version %q is invalid, you may need to update it", version)
		return
	}
	if semver.Compare(v, current) < 0 {
		log.Warnf("config is for an older version (%s < %s), you may need to update it", version, ConfigVersion)
	}
}
