package config

import (
	"runtime"
)

const (
	MainConfigFileName = "slumber.toml"
	EnvPrefix          = "SLUMBER"
	// ConfigVersion is the version of the config layout this build writes
	// and understands.
	ConfigVersion = "0.3.0"
)

type SlumberConfig struct {
	FilePath string `mapstructure:"-"`
	// FromEnv is set when no config file was found and everything came from
	// environment variables and defaults.
	FromEnv bool `mapstructure:"-"`

	Public   PublicConfig   `mapstructure:"public"`
	Server   ServerConfig   `mapstructure:"server"`
	Time     TimeConfig     `mapstructure:"time"`
	Motd     MotdConfig     `mapstructure:"motd"`
	Join     JoinConfig     `mapstructure:"join"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	Rcon     RconConfig     `mapstructure:"rcon"`
	Advanced AdvancedConfig `mapstructure:"advanced"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Config   VersionConfig  `mapstructure:"config"`
}

type PublicConfig struct {
	Address             string `mapstructure:"address"`
	Version             string `mapstructure:"version"`
	Protocol            int    `mapstructure:"protocol"`
	AcceptProxyProtocol bool   `mapstructure:"accept_proxy_protocol"`
}

type ServerConfig struct {
	Directory      string `mapstructure:"directory"`
	Command        string `mapstructure:"command"`
	Address        string `mapstructure:"address"`
	FreezeProcess  bool   `mapstructure:"freeze_process"`
	WakeOnStart    bool   `mapstructure:"wake_on_start"`
	WakeOnCrash    bool   `mapstructure:"wake_on_crash"`
	ProbeOnStart   bool   `mapstructure:"probe_on_start"`
	Forge          bool   `mapstructure:"forge"`
	StartTimeout   int    `mapstructure:"start_timeout"`
	StopTimeout    int    `mapstructure:"stop_timeout"`
	WakeWhitelist  bool   `mapstructure:"wake_whitelist"`
	BlockBannedIPs bool   `mapstructure:"block_banned_ips"`
	DropBannedIPs  bool   `mapstructure:"drop_banned_ips"`
	SendProxyV2    bool   `mapstructure:"send_proxy_v2"`
}

type TimeConfig struct {
	SleepAfter    int `mapstructure:"sleep_after"`
	MinOnlineTime int `mapstructure:"min_online_time"`
}

type MotdConfig struct {
	Sleeping   string `mapstructure:"sleeping"`
	Starting   string `mapstructure:"starting"`
	Stopping   string `mapstructure:"stopping"`
	FromServer bool   `mapstructure:"from_server"`
}

type JoinConfig struct {
	Methods []string          `mapstructure:"methods"`
	Kick    JoinKickConfig    `mapstructure:"kick"`
	Hold    JoinHoldConfig    `mapstructure:"hold"`
	Forward JoinForwardConfig `mapstructure:"forward"`
	Lobby   JoinLobbyConfig   `mapstructure:"lobby"`
}

type JoinKickConfig struct {
	Starting string `mapstructure:"starting"`
	Stopping string `mapstructure:"stopping"`
}

type JoinHoldConfig struct {
	Timeout int `mapstructure:"timeout"`
}

type JoinForwardConfig struct {
	Address     string `mapstructure:"address"`
	SendProxyV2 bool   `mapstructure:"send_proxy_v2"`
}

type JoinLobbyConfig struct {
	Timeout    int    `mapstructure:"timeout"`
	Message    string `mapstructure:"message"`
	ReadySound string `mapstructure:"ready_sound"`
}

type LockoutConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Message string `mapstructure:"message"`
}

type RconConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Port              int    `mapstructure:"port"`
	Password          string `mapstructure:"password"`
	RandomizePassword bool   `mapstructure:"randomize_password"`
	SendProxyV2       bool   `mapstructure:"send_proxy_v2"`
}

type AdvancedConfig struct {
	RewriteServerProperties bool `mapstructure:"rewrite_server_properties"`
	// BanListRefresh is the interval in seconds banned-ips.json and
	// whitelist.json are checked for changes.
	BanListRefresh int `mapstructure:"ban_list_refresh"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

type RuntimeConfig struct {
	Workers   int    `mapstructure:"workers"`
	IOTimeout int    `mapstructure:"io_timeout"`
	TableFlip bool   `mapstructure:"tableflip"`
	PidFile   string `mapstructure:"pid_file"`
	LogLevel  string `mapstructure:"log_level"`
}

type VersionConfig struct {
	Version string `mapstructure:"version"`
}

func DefaultSlumberConfig() SlumberConfig {
	return SlumberConfig{
		Public: PublicConfig{
			Address:  "0.0.0.0:25565",
			Version:  "1.17.1",
			Protocol: 756,
		},
		Server: ServerConfig{
			Directory:      ".",
			Address:        "127.0.0.1:25566",
			FreezeProcess:  true,
			StartTimeout:   300,
			StopTimeout:    150,
			WakeWhitelist:  true,
			BlockBannedIPs: true,
		},
		Time: TimeConfig{
			SleepAfter:    60,
			MinOnlineTime: 60,
		},
		Motd: MotdConfig{
			Sleeping: "☠ Server is sleeping\n§2☻ Join to start it up",
			Starting: "§2☻ Server is starting...\n§7⌛ Please wait...",
			Stopping: "☠ Server going to sleep...\n⌛ Please wait...",
		},
		Join: JoinConfig{
			Methods: []string{"hold", "kick"},
			Kick: JoinKickConfig{
				Starting: "Server is starting... §c♥§r\n\nThis may take some time.\n\nPlease try to reconnect in a minute.",
				Stopping: "Server is going to sleep... §7☠§r\n\nPlease try to reconnect in a minute to wake it again.",
			},
			Hold: JoinHoldConfig{
				Timeout: 25,
			},
			Forward: JoinForwardConfig{
				Address: "127.0.0.1:25565",
			},
			Lobby: JoinLobbyConfig{
				Timeout:    600,
				Message:    "§2Server is starting\n§7⌛ Please wait...",
				ReadySound: "block.note_block.chime",
			},
		},
		Lockout: LockoutConfig{
			Message: "Server is closed §7☠§r\n\nPlease come back another time.",
		},
		Rcon: RconConfig{
			Enabled:           runtime.GOOS == "windows",
			Port:              25575,
			RandomizePassword: true,
		},
		Advanced: AdvancedConfig{
			RewriteServerProperties: true,
			BanListRefresh:          10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Bind:    ":9100",
		},
		API: APIConfig{
			Enabled: true,
			Bind:    "127.0.0.1:8080",
		},
		Runtime: RuntimeConfig{
			Workers:   10,
			IOTimeout: 1,
			PidFile:   "/var/run/slumber.pid",
			LogLevel:  "info",
		},
	}
}
